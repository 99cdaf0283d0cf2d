package core

import (
	"context"
	"errors"
)

var (
	ErrDeviceLoad         = errors.New("device load failed")
	ErrDeviceLoaded       = errors.New("device already loaded")
	ErrDeviceNotLoaded    = errors.New("device not loaded")
	ErrTransportClosed    = errors.New("transport closed")
	ErrUnsupportedKind    = errors.New("unsupported media kind")
	ErrNegotiatorNotReady = errors.New("transport has no negotiator")
)

type NegotiationKind string

const (
	// NegotiateConnect asks the remote side to finish a transport's DTLS handshake.
	NegotiateConnect NegotiationKind = "connect"
	// NegotiateProduce registers a new outbound stream; send transports only.
	NegotiateProduce NegotiationKind = "produce"
)

// NegotiationRequest is raised by a transport when it needs the remote router.
type NegotiationRequest struct {
	Kind           NegotiationKind
	TransportID    string
	DtlsParameters *DtlsParameters
	MediaKind      MediaKind
	RtpParameters  *RtpParameters
}

type NegotiationResult struct {
	// ProducerID is set for NegotiateProduce.
	ProducerID string
}

// Negotiator answers transport negotiation requests. Returning an error rejects
// the pending transport operation.
type Negotiator func(ctx context.Context, req NegotiationRequest) (NegotiationResult, error)

type MediaEngine interface {
	// NewDevice returns an unloaded device; one per session.
	NewDevice() (Device, error)
}

type Device interface {
	// Load negotiates against the router capabilities. Must precede transport creation.
	Load(ctx context.Context, routerCaps RtpCapabilities) error
	Loaded() bool
	RtpCapabilities() RtpCapabilities
	CanProduce(kind MediaKind) bool
	CreateSendTransport(opts TransportOptions) (SendTransport, error)
	CreateRecvTransport(opts TransportOptions) (RecvTransport, error)
}

type Transport interface {
	ID() string
	// SetNegotiator sets the single handler for negotiation requests (last wins).
	SetNegotiator(Negotiator)
	Closed() bool
	// Close is idempotent.
	Close() error
}

type SendTransport interface {
	Transport
	Produce(ctx context.Context, opts ProduceOptions) (Producer, error)
}

type RecvTransport interface {
	Transport
	Consume(ctx context.Context, opts ConsumeOptions) (Consumer, error)
}

type ProduceOptions struct {
	Track        AudioTrack
	CodecOptions CodecOptions
}

type ConsumeOptions struct {
	ID            string
	ProducerID    string
	Kind          MediaKind
	RtpParameters RtpParameters
}

// Producer is the local outbound stream.
type Producer interface {
	ID() string
	Kind() MediaKind
	Paused() bool
	Pause()
	Resume()
	Close() error
}

// Consumer is the inbound stream of the remote peer.
type Consumer interface {
	ID() string
	ProducerID() string
	Kind() MediaKind
	Track() RemoteTrack
	Close() error
}
