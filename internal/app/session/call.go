package session

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/dkeye/voicematch/internal/core"
)

// Internal events, queued next to server pushes so they stay ordered.
const (
	eventMatchTimeout = "internal:match-timeout"
	eventCallWarning  = "internal:call-warning"
	eventCallLimit    = "internal:call-limit"
)

// call owns every resource of one session attempt.
type call struct {
	ctx    context.Context
	cancel context.CancelFunc
	events *eventQueue
	ready  chan struct{}
	done   chan struct{}

	mu       sync.Mutex
	closed   bool
	matched  bool
	signal   core.SignalChannel
	device   core.Device
	sendT    core.SendTransport
	recvT    core.RecvTransport
	producer core.Producer
	track    core.AudioTrack
	consumer core.Consumer
	playback io.Closer
	timers   []*time.Timer
}

func newCall() *call {
	ctx, cancel := context.WithCancel(context.Background())
	return &call{
		ctx:    ctx,
		cancel: cancel,
		events: newEventQueue(),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// set stores a resource unless the call was already torn down.
func (c *call) set(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	fn()
	return true
}

func (c *call) Signal() core.SignalChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signal
}

func (c *call) Device() core.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}

func (c *call) SendTransport() core.SendTransport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendT
}

func (c *call) RecvTransport() core.RecvTransport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recvT
}

func (c *call) Producer() core.Producer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.producer
}

func (c *call) Consumer() core.Consumer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consumer
}

// after queues an internal event once d elapsed.
func (c *call) after(d time.Duration, event string) {
	c.set(func() {
		c.timers = append(c.timers, time.AfterFunc(d, func() {
			c.events.push(core.Event{Type: event})
		}))
	})
}

// takeConsumer detaches consumer and playback, e.g. when the peer left.
func (c *call) takeConsumer() (core.Consumer, io.Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cons, pb := c.consumer, c.playback
	c.consumer, c.playback = nil, nil
	return cons, pb
}

type resources struct {
	signal   core.SignalChannel
	sendT    core.SendTransport
	recvT    core.RecvTransport
	producer core.Producer
	track    core.AudioTrack
	consumer core.Consumer
	playback io.Closer
}

// release marks the call closed and hands over everything it still owns.
func (c *call) release() resources {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, t := range c.timers {
		t.Stop()
	}
	r := resources{
		signal:   c.signal,
		sendT:    c.sendT,
		recvT:    c.recvT,
		producer: c.producer,
		track:    c.track,
		consumer: c.consumer,
		playback: c.playback,
	}
	c.signal, c.device, c.sendT, c.recvT = nil, nil, nil, nil
	c.producer, c.track, c.consumer, c.playback = nil, nil, nil, nil
	c.timers = nil
	return r
}

// eventQueue is an unbounded FIFO so the signaling read loop never blocks on
// a slow handler.
type eventQueue struct {
	mu     sync.Mutex
	items  []core.Event
	closed bool
	wake   chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{wake: make(chan struct{}, 1)}
}

func (q *eventQueue) push(e core.Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, e)
	q.mu.Unlock()
	q.notify()
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()
	q.notify()
}

func (q *eventQueue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pop blocks until an event is available; false once the queue is closed.
func (q *eventQueue) pop() (core.Event, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return core.Event{}, false
		}
		if len(q.items) > 0 {
			e := q.items[0]
			q.items[0] = core.Event{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return e, true
		}
		q.mu.Unlock()
		<-q.wake
	}
}
