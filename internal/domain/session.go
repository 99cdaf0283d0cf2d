package domain

import (
	"errors"
	"fmt"
)

var ErrInvalidConfig = errors.New("invalid session config")

type Role string

const (
	RoleAdvisor  Role = "advisor"
	RoleListener Role = "listener"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdvisor, RoleListener:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidConfig, s)
	}
}

// SessionConfig is the immutable input of one call attempt.
type SessionConfig struct {
	Role     Role   `json:"role"`
	UserID   UserID `json:"userId"`
	Language string `json:"language"`
}

func (c SessionConfig) Validate() error {
	if _, err := ParseRole(string(c.Role)); err != nil {
		return err
	}
	if err := c.UserID.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if !IsSupportedLanguage(c.Language) {
		return fmt.Errorf("%w: unsupported language %q", ErrInvalidConfig, c.Language)
	}
	return nil
}

type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

const DefaultLanguage = "en"

var languages = []Language{
	{Code: "en", Name: "English"},
	{Code: "es", Name: "Spanish"},
	{Code: "fr", Name: "French"},
	{Code: "de", Name: "German"},
	{Code: "hi", Name: "Hindi"},
	{Code: "zh", Name: "Chinese"},
	{Code: "ar", Name: "Arabic"},
	{Code: "pt", Name: "Portuguese"},
	{Code: "ru", Name: "Russian"},
	{Code: "ja", Name: "Japanese"},
}

// Languages returns a copy of the matchable language table.
func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

func IsSupportedLanguage(code string) bool {
	for _, l := range languages {
		if l.Code == code {
			return true
		}
	}
	return false
}
