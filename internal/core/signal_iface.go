package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotConnected  = errors.New("signaling channel not connected")
	ErrChannelClosed = errors.New("signaling channel closed")
	ErrBackpressure  = errors.New("backpressure")
)

// Lifecycle events emitted by every SignalChannel next to server pushes.
const (
	EventConnected    = "connect"
	EventDisconnected = "disconnect"
	EventConnectError = "connect_error"
	EventError        = "error"
)

// Event is either a server push or a channel lifecycle notification.
type Event struct {
	Type string
	Data json.RawMessage
	Err  error
}

// SignalChannel abstracts the message-oriented connection to the matching server.
// It is owned by one session and must be closed by it.
type SignalChannel interface {
	// Connect blocks until the server acknowledged the connection or ctx is done.
	Connect(ctx context.Context) error
	// Request sends a correlated request and decodes the response data into out.
	// A response carrying an error field is returned as *RemoteError.
	Request(ctx context.Context, method string, payload, out any) error
	// Notify sends a fire-and-forget message.
	Notify(method string, payload any) error
	// OnEvent sets the single subscriber for pushes and lifecycle events.
	// Events are delivered in receive order.
	OnEvent(func(Event))
	Close() error
}

// RemoteError is a failure reported by the server inside a correlated response.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}
