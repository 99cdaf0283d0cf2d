package session

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/voicematch/internal/core"
	"github.com/rs/zerolog"
)

type negotiationHandler func(ctx context.Context, req core.NegotiationRequest) (core.NegotiationResult, error)

// bridge forwards transport negotiation requests to the server, one correlated
// round trip per request.
type bridge struct {
	signal   core.SignalChannel
	timeout  time.Duration
	log      zerolog.Logger
	handlers map[core.NegotiationKind]negotiationHandler
}

func newBridge(signal core.SignalChannel, timeout time.Duration, log zerolog.Logger) *bridge {
	b := &bridge{signal: signal, timeout: timeout, log: log}
	b.handlers = map[core.NegotiationKind]negotiationHandler{
		core.NegotiateConnect: b.connectTransport,
		core.NegotiateProduce: b.produce,
	}
	return b
}

// Negotiate implements core.Negotiator.
func (b *bridge) Negotiate(ctx context.Context, req core.NegotiationRequest) (core.NegotiationResult, error) {
	h, ok := b.handlers[req.Kind]
	if !ok {
		return core.NegotiationResult{}, fmt.Errorf("%w: %q", ErrUnsupportedNegotiation, req.Kind)
	}
	res, err := h(ctx, req)
	if err != nil {
		b.log.Error().Err(err).Str("kind", string(req.Kind)).Str("transport_id", req.TransportID).Msg("negotiation rejected")
		return core.NegotiationResult{}, err
	}
	b.log.Debug().Str("kind", string(req.Kind)).Str("transport_id", req.TransportID).Msg("negotiation resolved")
	return res, nil
}

func (b *bridge) connectTransport(ctx context.Context, req core.NegotiationRequest) (core.NegotiationResult, error) {
	if req.DtlsParameters == nil {
		return core.NegotiationResult{}, fmt.Errorf("connect %s: missing dtls parameters", req.TransportID)
	}
	payload := core.ConnectTransportRequest{
		TransportID:    req.TransportID,
		DtlsParameters: *req.DtlsParameters,
	}
	if err := roundTrip(ctx, b.signal, b.timeout, core.MethodConnectTransport, payload, nil); err != nil {
		return core.NegotiationResult{}, err
	}
	return core.NegotiationResult{}, nil
}

func (b *bridge) produce(ctx context.Context, req core.NegotiationRequest) (core.NegotiationResult, error) {
	if req.RtpParameters == nil {
		return core.NegotiationResult{}, fmt.Errorf("produce on %s: missing rtp parameters", req.TransportID)
	}
	payload := core.ProduceRequest{
		TransportID:   req.TransportID,
		Kind:          req.MediaKind,
		RtpParameters: *req.RtpParameters,
	}
	var resp core.ProduceResponse
	if err := roundTrip(ctx, b.signal, b.timeout, core.MethodProduce, payload, &resp); err != nil {
		return core.NegotiationResult{}, err
	}
	return core.NegotiationResult{ProducerID: resp.ID}, nil
}

// roundTrip performs one correlated request, bounded by timeout when positive.
func roundTrip(ctx context.Context, signal core.SignalChannel, timeout time.Duration, method string, payload, out any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return signal.Request(ctx, method, payload, out)
}
