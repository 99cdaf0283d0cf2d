package session

import (
	"errors"
	"fmt"
)

var (
	ErrSessionActive          = errors.New("session already active")
	ErrSessionClosed          = errors.New("session closed")
	ErrConnectTimeout         = errors.New("socket connection timeout")
	ErrMatchTimeout           = errors.New("no match found in time")
	ErrUnsupportedNegotiation = errors.New("unsupported negotiation")
	ErrTransportNotReady      = errors.New("transport not initialized")
)

// Stage names the step of Connect that failed.
type Stage string

const (
	StageSignal       Stage = "signal"
	StageDevice       Stage = "device"
	StageCapabilities Stage = "capabilities"
	StageDeviceLoad   Stage = "device-load"
	StageTransport    Stage = "transport"
	StageMatchmaking  Stage = "matchmaking"
)

type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(s Stage, err error) error {
	return &StageError{Stage: s, Err: err}
}
