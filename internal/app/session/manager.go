// Package session drives one anonymous voice call: signaling, capability
// negotiation, transports, matchmaking and the audio producer/consumer pair.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/voicematch/internal/core"
	"github.com/dkeye/voicematch/internal/domain"
	"github.com/rs/zerolog"
)

const DefaultConnectTimeout = 10 * time.Second

// Deps are the collaborators of a Manager.
type Deps struct {
	// NewSignal returns a fresh, unconnected channel for every Connect.
	NewSignal  func() core.SignalChannel
	Engine     core.MediaEngine
	Microphone core.Microphone
	Sink       core.AudioSink
}

// Timeouts bound the stages of a session. Zero disables a bound, except
// Connect which falls back to DefaultConnectTimeout.
type Timeouts struct {
	Connect time.Duration
	Request time.Duration
	Match   time.Duration
}

// CallLimits end a matched call after MaxDuration, announcing it
// WarningBeforeEnd earlier. Zero MaxDuration disables both.
type CallLimits struct {
	MaxDuration      time.Duration
	WarningBeforeEnd time.Duration
}

var DefaultCodecOptions = core.CodecOptions{
	OpusStereo:          false,
	OpusDtx:             true,
	OpusFec:             true,
	OpusPtime:           20,
	OpusMaxPlaybackRate: 48000,
}

var DefaultAudioConstraints = core.AudioConstraints{
	EchoCancellation: true,
	NoiseSuppression: true,
	AutoGainControl:  true,
	SampleRate:       48000,
	ChannelCount:     1,
}

type Option func(*Manager)

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l.With().Str("module", "app.session").Logger() }
}

func WithTimeouts(t Timeouts) Option {
	return func(m *Manager) {
		if t.Connect <= 0 {
			t.Connect = DefaultConnectTimeout
		}
		m.timeouts = t
	}
}

func WithCallLimits(l CallLimits) Option {
	return func(m *Manager) { m.limits = l }
}

func WithCodecOptions(o core.CodecOptions) Option {
	return func(m *Manager) { m.codecOpts = o }
}

func WithAudioConstraints(c core.AudioConstraints) Option {
	return func(m *Manager) { m.constraints = c }
}

// Manager owns the lifecycle of one call at a time:
// New -> Connect -> Disconnect -> (Connect again or discard).
type Manager struct {
	deps        Deps
	log         zerolog.Logger
	timeouts    Timeouts
	limits      CallLimits
	codecOpts   core.CodecOptions
	constraints core.AudioConstraints

	mu        sync.Mutex
	state     domain.ConnectionState
	cfg       *domain.SessionConfig
	connected bool
	call      *call

	hooksMu            sync.RWMutex
	onStateChange      func(domain.ConnectionState)
	onPeerConnected    func(peerID string)
	onPeerDisconnected func()
	onError            func(error)
}

func New(deps Deps, opts ...Option) *Manager {
	m := &Manager{
		deps:        deps,
		log:         zerolog.Nop(),
		timeouts:    Timeouts{Connect: DefaultConnectTimeout},
		codecOpts:   DefaultCodecOptions,
		constraints: DefaultAudioConstraints,
		state:       domain.ConnectionState{Status: domain.StatusIdle},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnStateChange sets the state hook; the last registration wins.
func (m *Manager) OnStateChange(fn func(domain.ConnectionState)) {
	m.hooksMu.Lock()
	m.onStateChange = fn
	m.hooksMu.Unlock()
}

func (m *Manager) OnPeerConnected(fn func(peerID string)) {
	m.hooksMu.Lock()
	m.onPeerConnected = fn
	m.hooksMu.Unlock()
}

func (m *Manager) OnPeerDisconnected(fn func()) {
	m.hooksMu.Lock()
	m.onPeerDisconnected = fn
	m.hooksMu.Unlock()
}

func (m *Manager) OnError(fn func(error)) {
	m.hooksMu.Lock()
	m.onError = fn
	m.hooksMu.Unlock()
}

func (m *Manager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the last Connect completed and the session was
// not torn down or dropped since.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Manager) Config() (domain.SessionConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return domain.SessionConfig{}, false
	}
	return *m.cfg, true
}

// Muted reports the producer's paused flag; false without a producer.
func (m *Manager) Muted() bool {
	c := m.current()
	if c == nil {
		return false
	}
	p := c.Producer()
	return p != nil && p.Paused()
}

// Connect opens the signaling channel, negotiates device capabilities,
// creates both transports and asks for a match. Audio starts later, when the
// server reports a match. On failure the error hook fires once, the state is
// error and the call's event loop stops; the partially built session is held
// until Disconnect or the next Connect releases it.
func (m *Manager) Connect(ctx context.Context, cfg domain.SessionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c, stale, st, err := m.begin(cfg)
	if err != nil {
		return err
	}
	if stale != nil {
		m.log.Info().Msg("releasing previous session before connecting")
		m.teardown(stale)
	}
	m.notifyState(st)

	go m.runEvents(c)

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	if err := m.establish(opCtx, c, cfg); err != nil {
		return m.failConnect(c, err)
	}

	m.mu.Lock()
	current := m.call == c
	if current {
		m.connected = true
	}
	m.mu.Unlock()
	if !current {
		return ErrSessionClosed
	}
	m.setState(c, domain.StatusConnected, "Finding a match...", "")
	close(c.ready)
	return nil
}

// begin installs a new call and moves to connecting under one lock, so a
// concurrent Connect sees the attempt as active.
func (m *Manager) begin(cfg domain.SessionConfig) (*call, *call, domain.ConnectionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.call != nil && m.state.Status.Active() {
		return nil, nil, domain.ConnectionState{}, ErrSessionActive
	}
	stale := m.call
	m.call = newCall()
	m.cfg = &cfg
	m.connected = false
	m.state = domain.ConnectionState{Status: domain.StatusConnecting, Message: "Connecting to server..."}
	return m.call, stale, m.state, nil
}

func (m *Manager) establish(ctx context.Context, c *call, cfg domain.SessionConfig) error {
	signal := m.deps.NewSignal()
	if !c.set(func() { c.signal = signal }) {
		_ = signal.Close()
		return ErrSessionClosed
	}
	signal.OnEvent(c.events.push)

	connectCtx, cancel := context.WithTimeout(ctx, m.timeouts.Connect)
	err := signal.Connect(connectCtx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = ErrConnectTimeout
		}
		return stageErr(StageSignal, err)
	}
	m.log.Info().Msg("signaling connected")
	m.setState(c, domain.StatusConnecting, "Connected to server", "")

	device, err := m.deps.Engine.NewDevice()
	if err != nil {
		return stageErr(StageDevice, err)
	}
	c.set(func() { c.device = device })

	m.setState(c, domain.StatusConnecting, "Getting server capabilities...", "")
	var caps core.RtpCapabilitiesResponse
	if err := roundTrip(ctx, signal, m.timeouts.Request, core.MethodGetRtpCapabilities, struct{}{}, &caps); err != nil {
		return stageErr(StageCapabilities, err)
	}
	if err := device.Load(ctx, caps.RtpCapabilities); err != nil {
		return stageErr(StageDeviceLoad, err)
	}

	m.setState(c, domain.StatusConnecting, "Creating transport...", "")
	if err := m.createTransports(ctx, c, signal, device); err != nil {
		return stageErr(StageTransport, err)
	}

	m.setState(c, domain.StatusConnecting, "Finding a match...", "")
	req := core.FindMatchRequest{
		Role:     string(cfg.Role),
		Language: cfg.Language,
		UserID:   string(cfg.UserID),
	}
	if err := signal.Notify(core.MethodFindMatch, req); err != nil {
		return stageErr(StageMatchmaking, err)
	}
	if m.timeouts.Match > 0 {
		c.after(m.timeouts.Match, eventMatchTimeout)
	}
	return nil
}

func (m *Manager) createTransports(ctx context.Context, c *call, signal core.SignalChannel, device core.Device) error {
	var sendOpts core.TransportOptions
	err := roundTrip(ctx, signal, m.timeouts.Request, core.MethodCreateTransport,
		core.CreateTransportRequest{Type: core.TransportProducer}, &sendOpts)
	if err != nil {
		return err
	}
	sendT, err := device.CreateSendTransport(sendOpts)
	if err != nil {
		return fmt.Errorf("send transport: %w", err)
	}
	if !c.set(func() { c.sendT = sendT }) {
		_ = sendT.Close()
		return ErrSessionClosed
	}

	var recvOpts core.TransportOptions
	err = roundTrip(ctx, signal, m.timeouts.Request, core.MethodCreateTransport,
		core.CreateTransportRequest{Type: core.TransportConsumer}, &recvOpts)
	if err != nil {
		return err
	}
	recvT, err := device.CreateRecvTransport(recvOpts)
	if err != nil {
		return fmt.Errorf("recv transport: %w", err)
	}
	if !c.set(func() { c.recvT = recvT }) {
		_ = recvT.Close()
		return ErrSessionClosed
	}

	b := newBridge(signal, m.timeouts.Request, m.log)
	sendT.SetNegotiator(b.Negotiate)
	recvT.SetNegotiator(b.Negotiate)
	m.log.Info().Str("send_transport", sendT.ID()).Str("recv_transport", recvT.ID()).Msg("transports created")
	return nil
}

func (m *Manager) failConnect(c *call, err error) error {
	if m.current() != c {
		return fmt.Errorf("%w: %w", ErrSessionClosed, err)
	}
	m.log.Error().Err(err).Msg("connection error")
	c.cancel()
	m.setState(c, domain.StatusError, err.Error(), "")
	m.reportError(err)
	return err
}

// ToggleMute pauses or resumes the producer and returns the new muted state.
// Without a producer it does nothing and returns false.
func (m *Manager) ToggleMute() bool {
	c := m.current()
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.producer == nil {
		return false
	}
	if c.producer.Paused() {
		c.producer.Resume()
		m.log.Info().Msg("unmuted")
		return false
	}
	c.producer.Pause()
	m.log.Info().Msg("muted")
	return true
}

// Disconnect releases producer, consumer, both transports and the signaling
// channel, in that order. Every step runs even if an earlier one failed.
// Safe from any state, including during Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	c := m.call
	m.call = nil
	m.connected = false
	m.state = domain.ConnectionState{Status: domain.StatusDisconnected, Message: "Disconnected"}
	st := m.state
	m.mu.Unlock()

	if c != nil {
		m.teardown(c)
	}
	m.notifyState(st)
}

func (m *Manager) teardown(c *call) {
	c.cancel()
	c.events.close()
	r := c.release()

	step := func(name string, fn func() error) {
		if err := fn(); err != nil {
			m.log.Warn().Err(err).Str("step", name).Msg("teardown step failed")
		}
	}
	if r.producer != nil {
		step("producer", r.producer.Close)
	}
	if r.track != nil {
		step("microphone", r.track.Close)
	}
	if r.consumer != nil {
		step("consumer", r.consumer.Close)
	}
	if r.playback != nil {
		step("playback", r.playback.Close)
	}
	if r.sendT != nil {
		step("producer transport", r.sendT.Close)
	}
	if r.recvT != nil {
		step("consumer transport", r.recvT.Close)
	}
	if r.signal != nil {
		step("leave", func() error { return r.signal.Notify(core.MethodLeaveRoom, struct{}{}) })
		step("signal", r.signal.Close)
	}
	m.log.Info().Msg("session released")
}

func (m *Manager) current() *call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.call
}

// setState applies a transition for call c; a nil c applies unconditionally.
// Transitions from a call that is no longer current are dropped.
func (m *Manager) setState(c *call, status domain.ConnectionStatus, msg, peerID string) {
	m.mu.Lock()
	if c != nil && m.call != c {
		m.mu.Unlock()
		return
	}
	if from := m.state.Status; !from.CanTransition(status) {
		m.mu.Unlock()
		m.log.Warn().Str("from", string(from)).Str("to", string(status)).Msg("state transition dropped")
		return
	}
	m.state = domain.ConnectionState{Status: status, Message: msg, PeerID: peerID}
	st := m.state
	m.mu.Unlock()
	m.notifyState(st)
}

func (m *Manager) notifyState(st domain.ConnectionState) {
	m.log.Info().Str("status", string(st.Status)).Str("message", st.Message).Msg("connection state")
	m.hooksMu.RLock()
	fn := m.onStateChange
	m.hooksMu.RUnlock()
	if fn != nil {
		fn(st)
	}
}

// active reports whether c is the current call and still connecting or connected.
func (m *Manager) active(c *call) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.call == c && m.state.Status.Active()
}

// setMessage updates the status text and keeps the status and peer.
func (m *Manager) setMessage(c *call, msg string) {
	st := m.State()
	m.setState(c, st.Status, msg, st.PeerID)
}

func (m *Manager) reportError(err error) {
	m.hooksMu.RLock()
	fn := m.onError
	m.hooksMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}
