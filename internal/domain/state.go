package domain

type ConnectionStatus string

const (
	StatusIdle         ConnectionStatus = "idle"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusError        ConnectionStatus = "error"
)

// ConnectionState is what the UI renders: a coarse status plus free text.
type ConnectionState struct {
	Status  ConnectionStatus `json:"status"`
	Message string           `json:"message"`
	PeerID  string           `json:"peerId,omitempty"`
}

// CanTransition reports whether moving from s to next keeps a session attempt monotonic.
// Going back to connecting is only allowed after the attempt ended.
func (s ConnectionStatus) CanTransition(next ConnectionStatus) bool {
	switch next {
	case StatusConnecting:
		return s == StatusIdle || s == StatusDisconnected || s == StatusError || s == StatusConnecting
	case StatusConnected:
		return s == StatusConnecting || s == StatusConnected
	case StatusDisconnected, StatusError:
		return true
	case StatusIdle:
		return s == StatusIdle
	}
	return false
}

// Active reports whether a session attempt is in flight or established.
func (s ConnectionStatus) Active() bool {
	return s == StatusConnecting || s == StatusConnected
}
