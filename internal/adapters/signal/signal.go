// Package signal is the websocket client side of the matching server protocol.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/voicematch/internal/core"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

const (
	typeResponse = "response"
	typePing     = "ping"
	typePong     = "pong"
)

var ErrAlreadyConnected = errors.New("signaling channel already connected")

// message is the single frame shape in both directions. Requests and their
// responses share an id; notifications and pushes carry none.
type message struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type responseStatus struct {
	Error string `json:"error,omitempty"`
}

type result struct {
	data json.RawMessage
	err  error
}

type Options struct {
	URL          string
	Header       http.Header
	Dialer       *websocket.Dialer
	SendBuffer   int
	WriteTimeout time.Duration
	// PingPeriod enables keepalive pings; the read deadline is derived from it.
	PingPeriod time.Duration
	ReadLimit  int64
}

func (o *Options) setDefaults() {
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
}

// Client implements core.SignalChannel over one websocket connection.
// A Client is single use: once closed it cannot reconnect.
type Client struct {
	opts Options
	log  zerolog.Logger

	mu      sync.RWMutex
	conn    *websocket.Conn
	send    chan []byte
	closed  bool
	pending map[string]chan result
	handler func(core.Event)

	pumps conc.WaitGroup
}

func NewClient(opts Options, log zerolog.Logger) *Client {
	opts.setDefaults()
	return &Client{
		opts:    opts,
		log:     log.With().Str("module", "signal").Logger(),
		pending: make(map[string]chan result),
	}
}

func (c *Client) OnEvent(fn func(core.Event)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.RLock()
	closed, conn := c.closed, c.conn
	c.mu.RUnlock()
	if closed {
		return core.ErrChannelClosed
	}
	if conn != nil {
		return ErrAlreadyConnected
	}

	ws, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		err = fmt.Errorf("dial %s: %w", c.opts.URL, err)
		c.log.Error().Err(err).Msg("connect failed")
		c.emit(core.Event{Type: core.EventConnectError, Err: err})
		return err
	}
	ws.SetReadLimit(c.opts.ReadLimit)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ws.Close()
		return core.ErrChannelClosed
	}
	c.conn = ws
	c.send = make(chan []byte, c.opts.SendBuffer)
	c.mu.Unlock()

	c.pumps.Go(func() { c.writePump(ws) })
	c.pumps.Go(func() { c.readPump(ws) })

	c.log.Info().Str("url", c.opts.URL).Msg("connected")
	c.emit(core.Event{Type: core.EventConnected})
	return nil
}

// Request sends a correlated request and waits for its response, ctx or the
// connection to end, whichever comes first.
func (c *Client) Request(ctx context.Context, method string, payload, out any) error {
	id := uuid.NewString()
	ch := make(chan result, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.ErrChannelClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(method, id, payload); err != nil {
		c.forget(id)
		return err
	}
	c.log.Debug().Str("method", method).Str("id", id).Msg("request sent")

	select {
	case <-ctx.Done():
		c.forget(id)
		return fmt.Errorf("%s: %w", method, ctx.Err())
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("%s: %w", method, res.err)
		}
		var status responseStatus
		if len(res.data) > 0 {
			if err := json.Unmarshal(res.data, &status); err == nil && status.Error != "" {
				return &core.RemoteError{Method: method, Message: status.Error}
			}
		}
		if out == nil || len(res.data) == 0 {
			return nil
		}
		if err := json.Unmarshal(res.data, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", method, err)
		}
		return nil
	}
}

func (c *Client) Notify(method string, payload any) error {
	return c.write(method, "", payload)
}

// Close flushes queued frames, says goodbye and waits for both pumps.
// Must not be called from inside the event handler.
func (c *Client) Close() error {
	if !c.shutdown(core.ErrChannelClosed) {
		return nil
	}
	c.pumps.Wait()
	c.log.Info().Msg("closed")
	return nil
}

func (c *Client) write(method, id string, payload any) error {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", method, err)
		}
		data = b
	}
	frame, err := json.Marshal(message{Type: method, ID: id, Data: data})
	if err != nil {
		return fmt.Errorf("%s: encode: %w", method, err)
	}
	return c.TrySend(frame)
}

// TrySend queues a frame without blocking.
func (c *Client) TrySend(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrChannelClosed
	}
	if c.send == nil {
		return core.ErrNotConnected
	}
	select {
	case c.send <- frame:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) resolve(id string, data json.RawMessage) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if !ok {
		c.log.Warn().Str("id", id).Msg("response without pending request")
		return
	}
	ch <- result{data: data}
}

// shutdown marks the client closed, stops the writer and fails every pending
// request with cause. It reports whether this call did the work.
func (c *Client) shutdown(cause error) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	if c.send != nil {
		close(c.send)
	}
	pending := c.pending
	c.pending = make(map[string]chan result)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- result{err: cause}
	}
	return true
}

func (c *Client) emit(e core.Event) {
	c.mu.RLock()
	fn := c.handler
	c.mu.RUnlock()
	if fn != nil {
		fn(e)
	}
}
