package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/voicematch/internal/core"
)

// opLog records side effects across fakes so tests can assert ordering.
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	l.ops = append(l.ops, op)
	l.mu.Unlock()
}

func (l *opLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

type sent struct {
	method  string
	payload json.RawMessage
}

type responder func(payload json.RawMessage) (any, error)

type fakeSignal struct {
	ops *opLog

	mu         sync.Mutex
	handler    func(core.Event)
	responders map[string]responder
	requests   []sent
	notifies   []sent
	connectErr error
	hang       bool
	closes     int

	// onNotify runs after a notification is recorded, outside the lock.
	onNotify func(method string)
}

func newFakeSignal(ops *opLog) *fakeSignal {
	s := &fakeSignal{ops: ops, responders: map[string]responder{}}
	s.respond(core.MethodGetRtpCapabilities, func(json.RawMessage) (any, error) {
		return core.RtpCapabilitiesResponse{RtpCapabilities: testCaps}, nil
	})
	s.respond(core.MethodCreateTransport, func(p json.RawMessage) (any, error) {
		var req core.CreateTransportRequest
		_ = json.Unmarshal(p, &req)
		id := "pt1"
		if req.Type == core.TransportConsumer {
			id = "ct1"
		}
		return core.TransportOptions{ID: id}, nil
	})
	s.respond(core.MethodConnectTransport, func(json.RawMessage) (any, error) {
		return struct{}{}, nil
	})
	s.respond(core.MethodProduce, func(json.RawMessage) (any, error) {
		return core.ProduceResponse{ID: "producer-1"}, nil
	})
	return s
}

var testCaps = core.RtpCapabilities{Codecs: []core.RtpCodecCapability{{
	Kind:      core.KindAudio,
	MimeType:  "audio/opus",
	ClockRate: 48000,
	Channels:  2,
}}}

func (s *fakeSignal) respond(method string, r responder) {
	s.mu.Lock()
	s.responders[method] = r
	s.mu.Unlock()
}

func (s *fakeSignal) Connect(ctx context.Context) error {
	s.mu.Lock()
	hang, err := s.hang, s.connectErr
	s.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (s *fakeSignal) Request(ctx context.Context, method string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.requests = append(s.requests, sent{method, raw})
	r := s.responders[method]
	s.mu.Unlock()
	s.ops.add("request " + method)

	if r == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	resp, err := r(raw)
	if err != nil {
		return &core.RemoteError{Method: method, Message: err.Error()}
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (s *fakeSignal) Notify(method string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.notifies = append(s.notifies, sent{method, raw})
	hook := s.onNotify
	s.mu.Unlock()
	s.ops.add("notify " + method)
	if hook != nil {
		hook(method)
	}
	return nil
}

func (s *fakeSignal) OnEvent(fn func(core.Event)) {
	s.mu.Lock()
	s.handler = fn
	s.mu.Unlock()
}

func (s *fakeSignal) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.ops.add("close signal")
	return nil
}

func (s *fakeSignal) push(t *testing.T, typ string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		t.Fatalf("push %s: no event handler registered", typ)
	}
	h(core.Event{Type: typ, Data: raw})
}

func (s *fakeSignal) notified(method string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []json.RawMessage
	for _, n := range s.notifies {
		if n.method == method {
			out = append(out, n.payload)
		}
	}
	return out
}

func (s *fakeSignal) requested(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.method == method {
			n++
		}
	}
	return n
}

func (s *fakeSignal) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeEngine struct {
	ops *opLog

	mu      sync.Mutex
	devices []*fakeDevice
	loadErr error
}

func (e *fakeEngine) NewDevice() (core.Device, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d := &fakeDevice{ops: e.ops, loadErr: e.loadErr}
	e.devices = append(e.devices, d)
	return d, nil
}

func (e *fakeEngine) device() *fakeDevice {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.devices) == 0 {
		return nil
	}
	return e.devices[len(e.devices)-1]
}

func (e *fakeEngine) deviceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.devices)
}

type fakeDevice struct {
	ops     *opLog
	loadErr error

	mu     sync.Mutex
	caps   *core.RtpCapabilities
	sendTs []*fakeSendTransport
	recvTs []*fakeRecvTransport
}

func (d *fakeDevice) Load(_ context.Context, caps core.RtpCapabilities) error {
	if d.loadErr != nil {
		return d.loadErr
	}
	d.mu.Lock()
	d.caps = &caps
	d.mu.Unlock()
	d.ops.add("load device")
	return nil
}

func (d *fakeDevice) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.caps != nil
}

func (d *fakeDevice) RtpCapabilities() core.RtpCapabilities {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.caps == nil {
		return core.RtpCapabilities{}
	}
	return *d.caps
}

func (d *fakeDevice) CanProduce(kind core.MediaKind) bool { return kind == core.KindAudio && d.Loaded() }

func (d *fakeDevice) CreateSendTransport(opts core.TransportOptions) (core.SendTransport, error) {
	if !d.Loaded() {
		return nil, core.ErrDeviceNotLoaded
	}
	t := &fakeSendTransport{fakeTransport: fakeTransport{id: opts.ID, ops: d.ops}}
	d.mu.Lock()
	d.sendTs = append(d.sendTs, t)
	d.mu.Unlock()
	d.ops.add("create send " + opts.ID)
	return t, nil
}

func (d *fakeDevice) CreateRecvTransport(opts core.TransportOptions) (core.RecvTransport, error) {
	if !d.Loaded() {
		return nil, core.ErrDeviceNotLoaded
	}
	t := &fakeRecvTransport{fakeTransport: fakeTransport{id: opts.ID, ops: d.ops}}
	d.mu.Lock()
	d.recvTs = append(d.recvTs, t)
	d.mu.Unlock()
	d.ops.add("create recv " + opts.ID)
	return t, nil
}

func (d *fakeDevice) transports() ([]*fakeSendTransport, []*fakeRecvTransport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeSendTransport(nil), d.sendTs...), append([]*fakeRecvTransport(nil), d.recvTs...)
}

type fakeTransport struct {
	id  string
	ops *opLog

	mu         sync.Mutex
	negotiator core.Negotiator
	connected  bool
	closed     bool
	closeErr   error
}

func (t *fakeTransport) ID() string { return t.id }

func (t *fakeTransport) SetNegotiator(n core.Negotiator) {
	t.mu.Lock()
	t.negotiator = n
	t.mu.Unlock()
}

func (t *fakeTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	err := t.closeErr
	t.mu.Unlock()
	t.ops.add("close transport " + t.id)
	return err
}

// ensureConnected raises the connect negotiation once, like a real transport
// before its first stream.
func (t *fakeTransport) ensureConnected(ctx context.Context) error {
	t.mu.Lock()
	n, done := t.negotiator, t.connected
	t.mu.Unlock()
	if done {
		return nil
	}
	if n == nil {
		return core.ErrNegotiatorNotReady
	}
	_, err := n(ctx, core.NegotiationRequest{
		Kind:           core.NegotiateConnect,
		TransportID:    t.id,
		DtlsParameters: &core.DtlsParameters{Role: "client"},
	})
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

type fakeSendTransport struct {
	fakeTransport

	producers []*fakeProducer
}

func (t *fakeSendTransport) Produce(ctx context.Context, opts core.ProduceOptions) (core.Producer, error) {
	if err := t.ensureConnected(ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	n := t.negotiator
	t.mu.Unlock()
	res, err := n(ctx, core.NegotiationRequest{
		Kind:          core.NegotiateProduce,
		TransportID:   t.id,
		MediaKind:     core.KindAudio,
		RtpParameters: &core.RtpParameters{Codecs: []core.RtpCodecParameters{{MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2}}},
	})
	if err != nil {
		return nil, err
	}
	p := &fakeProducer{id: res.ProducerID, opts: opts, ops: t.ops}
	t.mu.Lock()
	t.producers = append(t.producers, p)
	t.mu.Unlock()
	t.ops.add("produce " + p.id)
	return p, nil
}

func (t *fakeSendTransport) producerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.producers)
}

type fakeRecvTransport struct {
	fakeTransport

	consumers []*fakeConsumer
}

func (t *fakeRecvTransport) Consume(ctx context.Context, opts core.ConsumeOptions) (core.Consumer, error) {
	if err := t.ensureConnected(ctx); err != nil {
		return nil, err
	}
	c := &fakeConsumer{opts: opts, ops: t.ops}
	t.mu.Lock()
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
	t.ops.add("consume " + opts.ID)
	return c, nil
}

func (t *fakeRecvTransport) consumerList() []*fakeConsumer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*fakeConsumer(nil), t.consumers...)
}

type fakeProducer struct {
	id   string
	opts core.ProduceOptions
	ops  *opLog

	mu     sync.Mutex
	paused bool
	closed bool
}

func (p *fakeProducer) ID() string { return p.id }

func (p *fakeProducer) Kind() core.MediaKind { return core.KindAudio }

func (p *fakeProducer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *fakeProducer) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

func (p *fakeProducer) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

func (p *fakeProducer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.ops.add("close producer")
	return errors.New("producer already gone")
}

type fakeConsumer struct {
	opts  core.ConsumeOptions
	track core.RemoteTrack
	ops   *opLog

	mu     sync.Mutex
	closed bool
}

func (c *fakeConsumer) ID() string { return c.opts.ID }

func (c *fakeConsumer) ProducerID() string { return c.opts.ProducerID }

func (c *fakeConsumer) Kind() core.MediaKind { return c.opts.Kind }

func (c *fakeConsumer) Track() core.RemoteTrack { return c.track }

func (c *fakeConsumer) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.ops.add("close consumer")
	return nil
}

func (c *fakeConsumer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// eventually polls cond until it holds or a second passed.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
