package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/voicematch/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

var ErrHandshakeTimeout = errors.New("transport handshake timeout")

// transport is one ICE+DTLS association with the router. The connect
// negotiation runs once, before the first stream; ICE and DTLS then start in
// the background against the router's parameters.
type transport struct {
	id  string
	api *webrtc.API
	cfg Config
	log zerolog.Logger

	remoteICE        webrtc.ICEParameters
	remoteCandidates []webrtc.ICECandidate
	remoteDTLS       webrtc.DTLSParameters

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	connectMu  sync.Mutex
	negotiated bool

	mu         sync.Mutex
	negotiator core.Negotiator
	closed     bool
	ready      chan struct{}
	startErr   error
}

func newTransport(api *webrtc.API, cfg Config, opts core.TransportOptions, log zerolog.Logger) (*transport, error) {
	candidates, err := iceCandidates(opts.IceCandidates)
	if err != nil {
		return nil, err
	}
	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: cfg.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("ice gatherer: %w", err)
	}
	iceT := api.NewICETransport(gatherer)
	dtls, err := api.NewDTLSTransport(iceT, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls transport: %w", err)
	}

	t := &transport{
		id:               opts.ID,
		api:              api,
		cfg:              cfg,
		log:              log,
		remoteICE:        iceParameters(opts.IceParameters),
		remoteCandidates: candidates,
		remoteDTLS:       remoteDTLS(opts.DtlsParameters),
		gatherer:         gatherer,
		ice:              iceT,
		dtls:             dtls,
		ready:            make(chan struct{}),
	}
	iceT.OnConnectionStateChange(func(s webrtc.ICETransportState) {
		t.log.Info().Str("ice_state", s.String()).Msg("ICE state")
	})
	dtls.OnStateChange(func(s webrtc.DTLSTransportState) {
		t.log.Info().Str("dtls_state", s.String()).Msg("DTLS state")
	})
	return t, nil
}

func (t *transport) ID() string { return t.id }

func (t *transport) SetNegotiator(n core.Negotiator) {
	t.mu.Lock()
	t.negotiator = n
	t.mu.Unlock()
}

func (t *transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *transport) currentNegotiator() (core.Negotiator, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, core.ErrTransportClosed
	}
	if t.negotiator == nil {
		return nil, core.ErrNegotiatorNotReady
	}
	return t.negotiator, nil
}

// ensureConnected raises the connect negotiation on first use.
func (t *transport) ensureConnected(ctx context.Context) error {
	t.connectMu.Lock()
	defer t.connectMu.Unlock()
	if t.negotiated {
		return nil
	}
	n, err := t.currentNegotiator()
	if err != nil {
		return err
	}

	local, err := t.gather(ctx)
	if err != nil {
		return err
	}
	if _, err := n(ctx, core.NegotiationRequest{
		Kind:           core.NegotiateConnect,
		TransportID:    t.id,
		DtlsParameters: &local,
	}); err != nil {
		return fmt.Errorf("connect transport %s: %w", t.id, err)
	}
	t.negotiated = true
	go t.start()
	return nil
}

func (t *transport) gather(ctx context.Context) (core.DtlsParameters, error) {
	done := make(chan struct{})
	var once sync.Once
	t.gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			once.Do(func() { close(done) })
		}
	})
	if err := t.gatherer.Gather(); err != nil {
		return core.DtlsParameters{}, fmt.Errorf("gather: %w", err)
	}

	timer := time.NewTimer(t.cfg.GatherTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		t.log.Warn().Dur("timeout", t.cfg.GatherTimeout).Msg("gathering incomplete, continuing")
	case <-ctx.Done():
		return core.DtlsParameters{}, ctx.Err()
	}

	params, err := t.dtls.GetLocalParameters()
	if err != nil {
		return core.DtlsParameters{}, fmt.Errorf("local dtls parameters: %w", err)
	}
	return localDTLS(params), nil
}

func (t *transport) start() {
	err := t.handshake()
	t.mu.Lock()
	t.startErr = err
	t.mu.Unlock()
	close(t.ready)
	if err != nil {
		t.log.Error().Err(err).Msg("transport failed")
		return
	}
	t.log.Info().Msg("transport connected")
}

func (t *transport) handshake() error {
	if err := t.ice.SetRemoteCandidates(t.remoteCandidates); err != nil {
		return fmt.Errorf("remote candidates: %w", err)
	}
	// The router is ICE-lite, so this side controls.
	role := webrtc.ICERoleControlling
	if err := t.ice.Start(t.gatherer, t.remoteICE, &role); err != nil {
		return fmt.Errorf("ice: %w", err)
	}
	if err := t.dtls.Start(t.remoteDTLS); err != nil {
		return fmt.Errorf("dtls: %w", err)
	}
	return nil
}

// waitReady blocks until ICE and DTLS are up.
func (t *transport) waitReady(ctx context.Context) error {
	timer := time.NewTimer(t.cfg.HandshakeTimeout)
	defer timer.Stop()
	select {
	case <-t.ready:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.startErr
	case <-timer.C:
		return ErrHandshakeTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	err := errors.Join(t.dtls.Stop(), t.ice.Stop(), t.gatherer.Close())
	t.log.Info().Msg("transport closed")
	return err
}
