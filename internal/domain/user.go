// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxUserIDLen = 64

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

type UserID string

// User is the anonymous identity a client matches under.
type User struct {
	ID          UserID `json:"id"`
	Role        Role   `json:"role"`
	Language    string `json:"language"`
	IsAnonymous bool   `json:"isAnonymous"`
}

// NewAnonymousUser mints a fresh anonymous identity.
func NewAnonymousUser() *User {
	return &User{ID: UserID(uuid.NewString()), IsAnonymous: true}
}

func (id UserID) Validate() error {
	if len(id) == 0 {
		return ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return ErrUserIDTooLong
	}
	return nil
}
