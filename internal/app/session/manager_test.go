package session

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/voicematch/internal/core"
	"github.com/dkeye/voicematch/internal/core/mocks"
	"github.com/dkeye/voicematch/internal/domain"
	"go.uber.org/mock/gomock"
)

type recorder struct {
	mu       sync.Mutex
	states   []domain.ConnectionState
	peers    []string
	peerGone int
	errs     []error
}

func (r *recorder) attach(m *Manager) {
	m.OnStateChange(func(s domain.ConnectionState) {
		r.mu.Lock()
		r.states = append(r.states, s)
		r.mu.Unlock()
	})
	m.OnPeerConnected(func(id string) {
		r.mu.Lock()
		r.peers = append(r.peers, id)
		r.mu.Unlock()
	})
	m.OnPeerDisconnected(func() {
		r.mu.Lock()
		r.peerGone++
		r.mu.Unlock()
	})
	m.OnError(func(err error) {
		r.mu.Lock()
		r.errs = append(r.errs, err)
		r.mu.Unlock()
	})
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s.Message)
	}
	return out
}

func (r *recorder) peerList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.peers...)
}

func (r *recorder) peerDisconnects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peerGone
}

type harness struct {
	t      *testing.T
	ctrl   *gomock.Controller
	ops    *opLog
	engine *fakeEngine
	mic    *mocks.MockMicrophone
	sink   *mocks.MockAudioSink
	rec    *recorder
	m      *Manager

	// prepare customizes every signal before Connect uses it.
	prepare func(*fakeSignal)

	mu      sync.Mutex
	signals []*fakeSignal
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	ops := &opLog{}
	h := &harness{
		t:      t,
		ctrl:   ctrl,
		ops:    ops,
		engine: &fakeEngine{ops: ops},
		mic:    mocks.NewMockMicrophone(ctrl),
		sink:   mocks.NewMockAudioSink(ctrl),
		rec:    &recorder{},
	}
	h.m = New(Deps{
		NewSignal: func() core.SignalChannel {
			s := newFakeSignal(ops)
			if h.prepare != nil {
				h.prepare(s)
			}
			h.mu.Lock()
			h.signals = append(h.signals, s)
			h.mu.Unlock()
			return s
		},
		Engine:     h.engine,
		Microphone: h.mic,
		Sink:       h.sink,
	}, opts...)
	h.rec.attach(h.m)
	t.Cleanup(h.m.Disconnect)
	return h
}

func (h *harness) signal() *fakeSignal {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.signals) == 0 {
		h.t.Fatal("no signal channel created")
	}
	return h.signals[len(h.signals)-1]
}

func (h *harness) signalCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.signals)
}

func (h *harness) connect() {
	h.t.Helper()
	if err := h.m.Connect(context.Background(), advisorConfig); err != nil {
		h.t.Fatalf("Connect() error = %v", err)
	}
}

// expectCall prepares microphone and sink for one matched call.
func (h *harness) expectCall() {
	track := mocks.NewMockAudioTrack(h.ctrl)
	track.EXPECT().Close().Return(nil).AnyTimes()
	h.mic.EXPECT().Open(gomock.Any(), DefaultAudioConstraints).Return(track, nil)
	h.sink.EXPECT().Play(gomock.Any(), gomock.Any()).Return(closerFunc(func() error {
		h.ops.add("stop playback")
		return nil
	}), nil).MaxTimes(1)
}

var advisorConfig = domain.SessionConfig{Role: domain.RoleAdvisor, UserID: "u1", Language: "en"}

func TestConnect_NegotiatesAndRequestsMatch(t *testing.T) {
	h := newHarness(t)
	h.connect()

	sig := h.signal()
	if got := sig.requested(core.MethodGetRtpCapabilities); got != 1 {
		t.Fatalf("capability requests = %d, want 1", got)
	}
	if got := sig.requested(core.MethodCreateTransport); got != 2 {
		t.Fatalf("transport requests = %d, want 2", got)
	}
	if h.signalCount() != 1 || h.engine.deviceCount() != 1 {
		t.Fatalf("signals = %d devices = %d, want 1 and 1", h.signalCount(), h.engine.deviceCount())
	}

	sendTs, recvTs := h.engine.device().transports()
	if len(sendTs) != 1 || sendTs[0].ID() != "pt1" {
		t.Fatalf("send transports = %v, want [pt1]", sendTs)
	}
	if len(recvTs) != 1 || recvTs[0].ID() != "ct1" {
		t.Fatalf("recv transports = %v, want [ct1]", recvTs)
	}

	finds := sig.notified(core.MethodFindMatch)
	if len(finds) != 1 {
		t.Fatalf("find-match notifications = %d, want 1", len(finds))
	}
	var got map[string]string
	if err := json.Unmarshal(finds[0], &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"role": "advisor", "language": "en", "userId": "u1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("find-match payload = %v, want %v", got, want)
	}

	ops := h.ops.list()
	load := slices.Index(ops, "load device")
	send := slices.Index(ops, "create send pt1")
	find := slices.Index(ops, "notify "+core.MethodFindMatch)
	if load < 0 || load > send || send > find {
		t.Fatalf("operation order = %v", ops)
	}

	st := h.m.State()
	if st.Status != domain.StatusConnected || st.Message != "Finding a match..." {
		t.Fatalf("State() = %+v", st)
	}
	if !h.m.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}
	if cfg, ok := h.m.Config(); !ok || cfg != advisorConfig {
		t.Fatalf("Config() = %+v, %v", cfg, ok)
	}
	wantMsgs := []string{
		"Connecting to server...",
		"Connected to server",
		"Getting server capabilities...",
		"Creating transport...",
		"Finding a match...",
		"Finding a match...",
	}
	if got := h.rec.messages(); !slices.Equal(got, wantMsgs) {
		t.Fatalf("status messages = %q, want %q", got, wantMsgs)
	}
}

func TestConnect_RemoteErrorOnCapabilities(t *testing.T) {
	h := newHarness(t)
	h.prepare = func(s *fakeSignal) {
		s.respond(core.MethodGetRtpCapabilities, func(json.RawMessage) (any, error) {
			return nil, errors.New("router unavailable")
		})
	}

	err := h.m.Connect(context.Background(), advisorConfig)
	var remote *core.RemoteError
	if !errors.As(err, &remote) || remote.Message != "router unavailable" {
		t.Fatalf("Connect() error = %v, want remote error", err)
	}
	var stage *StageError
	if !errors.As(err, &stage) || stage.Stage != StageCapabilities {
		t.Fatalf("Connect() error = %v, want capabilities stage", err)
	}

	errs := h.rec.errors()
	if len(errs) != 1 || errs[0].Error() != err.Error() {
		t.Fatalf("error callbacks = %v, want exactly [%v]", errs, err)
	}
	if st := h.m.State(); st.Status != domain.StatusError {
		t.Fatalf("State() = %+v, want error", st)
	}
	if h.m.IsConnected() {
		t.Fatal("IsConnected() = true after failed Connect")
	}
	if sendTs, recvTs := h.engine.device().transports(); len(sendTs)+len(recvTs) != 0 {
		t.Fatal("transports created after capability failure")
	}

	h.m.Disconnect()
	if got := h.signal().closeCount(); got != 1 {
		t.Fatalf("signal closed %d times, want 1", got)
	}
	if st := h.m.State(); st.Status != domain.StatusDisconnected {
		t.Fatalf("State() = %+v, want disconnected", st)
	}
}

func TestConnect_Failures(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		prepare func(*fakeSignal)
		loadErr error
		stage   Stage
		want    error
	}{
		{
			name:    "connect timeout",
			opts:    []Option{WithTimeouts(Timeouts{Connect: 20 * time.Millisecond})},
			prepare: func(s *fakeSignal) { s.hang = true },
			stage:   StageSignal,
			want:    ErrConnectTimeout,
		},
		{
			name:    "connect refused",
			prepare: func(s *fakeSignal) { s.connectErr = core.ErrChannelClosed },
			stage:   StageSignal,
			want:    core.ErrChannelClosed,
		},
		{
			name:    "device load",
			loadErr: core.ErrDeviceLoad,
			stage:   StageDeviceLoad,
			want:    core.ErrDeviceLoad,
		},
		{
			name: "request timeout",
			opts: []Option{WithTimeouts(Timeouts{Request: 20 * time.Millisecond})},
			prepare: func(s *fakeSignal) {
				s.respond(core.MethodCreateTransport, nil)
			},
			stage: StageTransport,
			want:  context.DeadlineExceeded,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.opts...)
			h.prepare = tt.prepare
			h.engine.loadErr = tt.loadErr

			err := h.m.Connect(context.Background(), advisorConfig)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Connect() error = %v, want %v", err, tt.want)
			}
			var stage *StageError
			if !errors.As(err, &stage) || stage.Stage != tt.stage {
				t.Fatalf("Connect() error = %v, want stage %s", err, tt.stage)
			}
			if got := len(h.rec.errors()); got != 1 {
				t.Fatalf("error callbacks = %d, want 1", got)
			}
		})
	}
}

func TestConnect_InvalidConfigAllocatesNothing(t *testing.T) {
	h := newHarness(t)
	err := h.m.Connect(context.Background(), domain.SessionConfig{Role: "judge", UserID: "u1", Language: "en"})
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("Connect() error = %v, want ErrInvalidConfig", err)
	}
	if h.signalCount() != 0 {
		t.Fatal("signal channel created for invalid config")
	}
	if st := h.m.State(); st.Status != domain.StatusIdle {
		t.Fatalf("State() = %+v, want idle", st)
	}
}

func TestConnect_RejectsSecondSession(t *testing.T) {
	h := newHarness(t)
	h.connect()
	if err := h.m.Connect(context.Background(), advisorConfig); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Connect() error = %v, want ErrSessionActive", err)
	}
	if h.signalCount() != 1 {
		t.Fatalf("signals = %d, want 1", h.signalCount())
	}
}

func TestConnect_ConcurrentAttemptIsRejected(t *testing.T) {
	h := newHarness(t)
	h.prepare = func(s *fakeSignal) { s.respond(core.MethodGetRtpCapabilities, nil) }

	done := make(chan error, 1)
	go func() { done <- h.m.Connect(context.Background(), advisorConfig) }()
	eventually(t, "capability request", func() bool {
		return h.signalCount() == 1 && h.signal().requested(core.MethodGetRtpCapabilities) == 1
	})

	if err := h.m.Connect(context.Background(), advisorConfig); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("concurrent Connect() error = %v, want ErrSessionActive", err)
	}
	if h.signalCount() != 1 || h.signal().closeCount() != 0 {
		t.Fatal("concurrent Connect() disturbed the attempt in flight")
	}

	h.m.Disconnect()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("first Connect() did not return after Disconnect")
	}
}

func TestConnect_RejectedOnceAttemptBegins(t *testing.T) {
	h := newHarness(t)
	c, stale, st, err := h.m.begin(advisorConfig)
	if err != nil || stale != nil {
		t.Fatalf("begin() = %v, %v", stale, err)
	}
	if st.Status != domain.StatusConnecting || h.m.State().Status != domain.StatusConnecting {
		t.Fatalf("state after begin = %+v, want connecting", h.m.State())
	}

	if err := h.m.Connect(context.Background(), advisorConfig); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("Connect() error = %v, want ErrSessionActive", err)
	}
	if h.m.current() != c {
		t.Fatal("attempt in flight was replaced")
	}
	if h.signalCount() != 0 {
		t.Fatal("signal channel created by the rejected Connect")
	}
}

func TestConnect_FailureStopsEventLoop(t *testing.T) {
	h := newHarness(t)
	h.prepare = func(s *fakeSignal) { s.connectErr = core.ErrChannelClosed }
	if err := h.m.Connect(context.Background(), advisorConfig); err == nil {
		t.Fatal("Connect() succeeded, want failure")
	}

	c := h.m.current()
	if c == nil {
		t.Fatal("failed attempt not held until Disconnect")
	}
	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("event loop still running after failed Connect")
	}
}

func TestConnect_EarlyPushesWaitForSetup(t *testing.T) {
	h := newHarness(t)
	h.expectCall()
	h.prepare = func(s *fakeSignal) {
		s.respond(core.MethodGetRtpCapabilities, func(json.RawMessage) (any, error) {
			s.push(t, core.EventMatchFound, core.MatchFound{PeerID: "early"})
			s.push(t, core.EventNewConsumer, core.NewConsumer{ID: "c1", ProducerID: "rp", Kind: core.KindAudio})
			return core.RtpCapabilitiesResponse{RtpCapabilities: testCaps}, nil
		})
	}
	h.connect()

	eventually(t, "consumer", func() bool {
		c := h.m.current()
		return c != nil && c.Consumer() != nil
	})
	ops := h.ops.list()
	find := slices.Index(ops, "notify "+core.MethodFindMatch)
	produce := slices.Index(ops, "produce producer-1")
	consume := slices.Index(ops, "consume c1")
	if find < 0 || produce < find || consume < produce {
		t.Fatalf("operation order = %v, want find-match, produce, consume", ops)
	}
	if peers := h.rec.peerList(); !slices.Equal(peers, []string{"early"}) {
		t.Fatalf("peer callbacks = %v", peers)
	}
}

func TestConnect_AfterFailureReplacesStaleSession(t *testing.T) {
	h := newHarness(t)
	h.prepare = func(s *fakeSignal) { s.connectErr = core.ErrChannelClosed }
	if err := h.m.Connect(context.Background(), advisorConfig); err == nil {
		t.Fatal("Connect() succeeded, want failure")
	}
	first := h.signal()

	h.prepare = nil
	h.connect()
	if first.closeCount() != 1 {
		t.Fatal("stale signal channel not closed")
	}
	if st := h.m.State(); st.Status != domain.StatusConnected {
		t.Fatalf("State() = %+v, want connected", st)
	}
}

func TestToggleMute_WithoutProducer(t *testing.T) {
	h := newHarness(t)
	if h.m.ToggleMute() {
		t.Fatal("ToggleMute() = true before Connect")
	}
	h.connect()
	if h.m.ToggleMute() || h.m.Muted() {
		t.Fatal("ToggleMute() muted without a producer")
	}
}

func TestMatchFound_ProducesThenConsumes(t *testing.T) {
	h := newHarness(t)
	h.expectCall()
	h.connect()
	sig := h.signal()

	sig.push(t, core.EventMatchFound, core.MatchFound{PeerID: "peer-9"})
	eventually(t, "request-consume", func() bool {
		return len(sig.notified(core.MethodRequestConsume)) == 1
	})

	announced := core.NewConsumer{
		ID:         "c1",
		ProducerID: "remote-producer",
		Kind:       core.KindAudio,
		RtpParameters: core.RtpParameters{
			Codecs:    []core.RtpCodecParameters{{MimeType: "audio/opus", PayloadType: 100, ClockRate: 48000, Channels: 2}},
			Encodings: []core.RtpEncodingParameters{{SSRC: 1234}},
		},
	}
	sig.push(t, core.EventNewConsumer, announced)

	sendTs, recvTs := h.engine.device().transports()
	eventually(t, "consumer", func() bool { return len(recvTs[0].consumerList()) == 1 })

	if got := sendTs[0].producerCount(); got != 1 {
		t.Fatalf("producers = %d, want 1", got)
	}
	ops := h.ops.list()
	if p, c := slices.Index(ops, "produce producer-1"), slices.Index(ops, "consume c1"); p < 0 || c < p {
		t.Fatalf("operation order = %v, want produce before consume", ops)
	}
	got := recvTs[0].consumerList()[0].opts
	want := core.ConsumeOptions{
		ID:            announced.ID,
		ProducerID:    announced.ProducerID,
		Kind:          announced.Kind,
		RtpParameters: announced.RtpParameters,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("consume options = %+v, want %+v", got, want)
	}
	if got := sig.requested(core.MethodConnectTransport); got != 2 {
		t.Fatalf("connect-transport requests = %d, want 2", got)
	}

	var consume core.RequestConsumeRequest
	if err := json.Unmarshal(sig.notified(core.MethodRequestConsume)[0], &consume); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(consume.RtpCapabilities, testCaps) {
		t.Fatalf("request-consume capabilities = %+v", consume.RtpCapabilities)
	}

	st := h.m.State()
	if st.Status != domain.StatusConnected || st.PeerID != "peer-9" || st.Message != "Connected! You can now talk." {
		t.Fatalf("State() = %+v", st)
	}
	h.rec.mu.Lock()
	peers := append([]string(nil), h.rec.peers...)
	h.rec.mu.Unlock()
	if !slices.Equal(peers, []string{"peer-9"}) {
		t.Fatalf("peer callbacks = %v", peers)
	}
}

func TestToggleMute_RoundTrip(t *testing.T) {
	h := newHarness(t)
	h.expectCall()
	h.connect()
	h.signal().push(t, core.EventMatchFound, core.MatchFound{PeerID: "p"})

	eventually(t, "producer", func() bool { return h.m.current().Producer() != nil })

	producer := h.m.current().Producer()
	original := producer.Paused()
	first, second := h.m.ToggleMute(), h.m.ToggleMute()
	if !first || second {
		t.Fatalf("ToggleMute() twice = %v, %v, want true, false", first, second)
	}
	if producer.Paused() != original {
		t.Fatal("paused flag not restored")
	}
	if h.m.ToggleMute() != h.m.Muted() {
		t.Fatal("Muted() disagrees with ToggleMute()")
	}
}

func TestPeerDisconnected(t *testing.T) {
	h := newHarness(t)
	h.expectCall()
	h.connect()
	sig := h.signal()

	sig.push(t, core.EventMatchFound, core.MatchFound{PeerID: "p"})
	sig.push(t, core.EventNewConsumer, core.NewConsumer{ID: "c1", ProducerID: "rp", Kind: core.KindAudio})
	_, recvTs := h.engine.device().transports()
	eventually(t, "consumer", func() bool { return len(recvTs[0].consumerList()) == 1 })

	sig.push(t, core.EventPeerDisconnected, struct{}{})
	eventually(t, "peer-disconnected callback", func() bool { return h.rec.peerDisconnects() == 1 })
	eventually(t, "consumer closed", func() bool { return recvTs[0].consumerList()[0].isClosed() })

	if got := h.rec.peerDisconnects(); got != 1 {
		t.Fatalf("peer-disconnected callbacks = %d, want 1", got)
	}
	sendTs, recvTs := h.engine.device().transports()
	if len(sendTs) != 1 || len(recvTs) != 1 || sendTs[0].producerCount() != 1 {
		t.Fatal("peer disconnect created new transports or producers")
	}
	if got := len(sig.notified(core.MethodFindMatch)); got != 1 {
		t.Fatalf("find-match sent %d times, want 1", got)
	}
	if st := h.m.State(); st.Message != "Peer disconnected" || st.PeerID != "" {
		t.Fatalf("State() = %+v", st)
	}
	eventually(t, "playback stopped", func() bool { return slices.Contains(h.ops.list(), "stop playback") })
}

func TestMatchFound_MicrophonePermissionDenied(t *testing.T) {
	h := newHarness(t)
	h.mic.EXPECT().Open(gomock.Any(), gomock.Any()).Return(nil, core.ErrMicrophonePermission)
	h.connect()
	sig := h.signal()

	sig.push(t, core.EventMatchFound, core.MatchFound{PeerID: "p"})
	eventually(t, "error callback", func() bool { return len(h.rec.errors()) == 1 })

	if err := h.rec.errors()[0]; !errors.Is(err, core.ErrMicrophonePermission) {
		t.Fatalf("error = %v, want ErrMicrophonePermission", err)
	}
	sendTs, _ := h.engine.device().transports()
	if sendTs[0].producerCount() != 0 {
		t.Fatal("producer created without microphone")
	}
	if len(sig.notified(core.MethodRequestConsume)) != 0 {
		t.Fatal("request-consume sent without producer")
	}
}

func TestNewConsumer_PlaybackFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.sink.EXPECT().Play(gomock.Any(), gomock.Any()).Return(nil, errors.New("ffplay not found"))
	h.connect()

	h.signal().push(t, core.EventNewConsumer, core.NewConsumer{ID: "c1", ProducerID: "rp", Kind: core.KindAudio})
	eventually(t, "error callback", func() bool { return len(h.rec.errors()) == 1 })

	if h.m.current().Consumer() == nil {
		t.Fatal("consumer dropped after playback failure")
	}
	if st := h.m.State(); st.Status != domain.StatusConnected {
		t.Fatalf("State() = %+v, want connected", st)
	}
}

func TestDisconnect_ReleasesInOrderAndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.expectCall()
	h.connect()
	sig := h.signal()
	sig.push(t, core.EventMatchFound, core.MatchFound{PeerID: "p"})
	sig.push(t, core.EventNewConsumer, core.NewConsumer{ID: "c1", ProducerID: "rp", Kind: core.KindAudio})
	eventually(t, "call established", func() bool {
		c := h.m.current()
		return c != nil && c.Producer() != nil && c.Consumer() != nil
	})
	sendTs, recvTs := h.engine.device().transports()
	sendTs[0].closeErr = errors.New("already closed")

	for i := 0; i < 2; i++ {
		h.m.Disconnect()
		if st := h.m.State(); st.Status != domain.StatusDisconnected {
			t.Fatalf("Disconnect #%d: State() = %+v", i+1, st)
		}
	}

	ops := h.ops.list()
	order := []string{
		"close producer",
		"close consumer",
		"stop playback",
		"close transport pt1",
		"close transport ct1",
		"notify " + core.MethodLeaveRoom,
		"close signal",
	}
	last := -1
	for _, op := range order {
		i := slices.Index(ops, op)
		if i <= last {
			t.Fatalf("teardown order = %v, want %v", ops, order)
		}
		last = i
	}
	if !sendTs[0].Closed() || !recvTs[0].Closed() {
		t.Fatal("transports left open")
	}
	if sig.closeCount() != 1 {
		t.Fatalf("signal closed %d times, want 1", sig.closeCount())
	}
	if h.m.IsConnected() || h.m.Muted() {
		t.Fatal("session still reports connected")
	}
}

func TestDisconnect_MidConnect(t *testing.T) {
	h := newHarness(t)
	h.prepare = func(s *fakeSignal) { s.respond(core.MethodGetRtpCapabilities, nil) }

	done := make(chan error, 1)
	go func() { done <- h.m.Connect(context.Background(), advisorConfig) }()
	eventually(t, "capability request", func() bool {
		return h.signalCount() == 1 && h.signal().requested(core.MethodGetRtpCapabilities) == 1
	})

	h.m.Disconnect()
	select {
	case err := <-done:
		if !errors.Is(err, ErrSessionClosed) {
			t.Fatalf("Connect() error = %v, want ErrSessionClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Connect() did not return after Disconnect")
	}
	if st := h.m.State(); st.Status != domain.StatusDisconnected {
		t.Fatalf("State() = %+v, want disconnected", st)
	}
	if len(h.rec.errors()) != 0 {
		t.Fatalf("error callbacks = %v, want none", h.rec.errors())
	}
	if h.signal().closeCount() != 1 {
		t.Fatal("signal channel not closed")
	}
}

func TestDisconnect_WhileConnectFinishes(t *testing.T) {
	h := newHarness(t)
	h.prepare = func(s *fakeSignal) {
		s.onNotify = func(method string) {
			if method == core.MethodFindMatch {
				h.m.Disconnect()
			}
		}
	}

	if err := h.m.Connect(context.Background(), advisorConfig); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Connect() error = %v, want ErrSessionClosed", err)
	}
	if st := h.m.State(); st.Status != domain.StatusDisconnected {
		t.Fatalf("State() = %+v, want disconnected", st)
	}
	if h.m.IsConnected() {
		t.Fatal("IsConnected() = true for a released session")
	}
	if len(h.rec.errors()) != 0 {
		t.Fatalf("error callbacks = %v, want none", h.rec.errors())
	}
}

func TestDisconnect_BeforeConnect(t *testing.T) {
	h := newHarness(t)
	h.m.Disconnect()
	if st := h.m.State(); st.Status != domain.StatusDisconnected || st.Message != "Disconnected" {
		t.Fatalf("State() = %+v", st)
	}
}

func TestChannelDropped(t *testing.T) {
	h := newHarness(t)
	h.connect()
	h.signal().push(t, core.EventDisconnected, nil)

	eventually(t, "disconnected state", func() bool { return h.m.State().Status == domain.StatusDisconnected })
	if h.m.IsConnected() {
		t.Fatal("IsConnected() = true after channel dropped")
	}
	if h.signalCount() != 1 {
		t.Fatal("channel reconnected automatically")
	}

	h.connect()
	if h.signalCount() != 2 {
		t.Fatalf("signals = %d, want 2 after explicit reconnect", h.signalCount())
	}
}

func TestMatchFound_AfterChannelDropped(t *testing.T) {
	h := newHarness(t)
	h.connect()
	sig := h.signal()

	sig.push(t, core.EventDisconnected, nil)
	sig.push(t, core.EventMatchFound, core.MatchFound{PeerID: "late"})
	sig.push(t, core.EventError, core.ErrorPush{Message: "drained"})
	eventually(t, "queue drained", func() bool { return len(h.rec.errors()) == 1 })

	if peers := h.rec.peerList(); len(peers) != 0 {
		t.Fatalf("peer callbacks = %v, want none", peers)
	}
	if len(sig.notified(core.MethodRequestConsume)) != 0 {
		t.Fatal("request-consume sent after the channel dropped")
	}
	if st := h.m.State(); st.Status != domain.StatusDisconnected {
		t.Fatalf("State() = %+v, want disconnected", st)
	}
}

func TestChannelErrorPush(t *testing.T) {
	h := newHarness(t)
	h.connect()
	h.signal().push(t, core.EventError, core.ErrorPush{Message: "room is full"})

	eventually(t, "error callback", func() bool { return len(h.rec.errors()) == 1 })
	if got := h.rec.errors()[0].Error(); got != "room is full" {
		t.Fatalf("error = %q", got)
	}
}

func TestMatchTimeout(t *testing.T) {
	h := newHarness(t, WithTimeouts(Timeouts{Match: 20 * time.Millisecond}))
	h.connect()

	eventually(t, "match timeout", func() bool { return len(h.rec.errors()) == 1 })
	if err := h.rec.errors()[0]; !errors.Is(err, ErrMatchTimeout) {
		t.Fatalf("error = %v, want ErrMatchTimeout", err)
	}
}

func TestCallLimits(t *testing.T) {
	h := newHarness(t, WithCallLimits(CallLimits{MaxDuration: 80 * time.Millisecond, WarningBeforeEnd: 40 * time.Millisecond}))
	h.expectCall()
	h.connect()
	h.signal().push(t, core.EventMatchFound, core.MatchFound{PeerID: "p"})

	eventually(t, "call ended", func() bool { return h.m.State().Status == domain.StatusDisconnected })
	if !slices.Contains(h.rec.messages(), "Call ending soon") {
		t.Fatalf("status messages = %q, want a warning", h.rec.messages())
	}
	if h.signal().closeCount() != 1 {
		t.Fatal("signal channel not closed at call limit")
	}
}

func TestManagersAreIndependent(t *testing.T) {
	a, b := newHarness(t), newHarness(t)
	a.connect()
	if st := b.m.State(); st.Status != domain.StatusIdle {
		t.Fatalf("second manager State() = %+v, want idle", st)
	}
	b.connect()
	a.m.Disconnect()
	if st := b.m.State(); st.Status != domain.StatusConnected {
		t.Fatalf("second manager State() = %+v after first disconnected", st)
	}
}
