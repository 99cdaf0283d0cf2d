package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/voicematch/internal/core"
	"github.com/dkeye/voicematch/internal/domain"
)

// runEvents handles pushes of one call in arrival order. Nothing is handled
// before Connect finished, so a consumer never precedes transport setup.
func (m *Manager) runEvents(c *call) {
	defer close(c.done)
	select {
	case <-c.ready:
	case <-c.ctx.Done():
		return
	}
	for {
		e, ok := c.events.pop()
		if !ok {
			return
		}
		m.dispatch(c, e)
	}
}

func (m *Manager) dispatch(c *call, e core.Event) {
	log := m.log.With().Str("event", e.Type).Logger()
	log.Debug().Msg("event received")

	switch e.Type {
	case core.EventMatchFound:
		m.handleMatchFound(c, e.Data)
	case core.EventNewConsumer:
		m.handleNewConsumer(c, e.Data)
	case core.EventPeerDisconnected:
		m.handlePeerDisconnected(c)
	case core.EventConnected:
		log.Info().Msg("signaling reconnected")
	case core.EventDisconnected:
		m.mu.Lock()
		if m.call == c {
			m.connected = false
		}
		m.mu.Unlock()
		m.setState(c, domain.StatusDisconnected, "Disconnected", "")
	case core.EventConnectError, core.EventError:
		m.handleChannelError(c, e)
	case eventMatchTimeout:
		c.mu.Lock()
		matched := c.matched
		c.mu.Unlock()
		if !matched {
			log.Warn().Dur("timeout", m.timeouts.Match).Msg("no match found")
			m.report(c, ErrMatchTimeout)
		}
	case eventCallWarning:
		m.setMessage(c, "Call ending soon")
	case eventCallLimit:
		if m.current() == c {
			log.Info().Dur("max_duration", m.limits.MaxDuration).Msg("call limit reached")
			m.Disconnect()
		}
	default:
		log.Debug().Msg("unhandled event")
	}
}

func (m *Manager) handleMatchFound(c *call, data json.RawMessage) {
	var msg core.MatchFound
	if err := json.Unmarshal(data, &msg); err != nil {
		m.report(c, fmt.Errorf("decode %s: %w", core.EventMatchFound, err))
		return
	}

	if !m.active(c) {
		m.log.Warn().Str("peer_id", msg.PeerID).Msg("match arrived after the session ended, ignoring")
		return
	}

	first := false
	c.set(func() {
		first = !c.matched
		c.matched = true
	})
	if !first {
		m.log.Warn().Str("peer_id", msg.PeerID).Msg("duplicate match ignored")
		return
	}

	m.log.Info().Str("peer_id", msg.PeerID).Msg("match found")
	m.setState(c, domain.StatusConnected, "Match found! Connecting...", msg.PeerID)
	m.hooksMu.RLock()
	onPeer := m.onPeerConnected
	m.hooksMu.RUnlock()
	if onPeer != nil {
		onPeer(msg.PeerID)
	}
	m.armCallLimits(c)

	if err := m.startProducing(c); err != nil {
		m.report(c, err)
		return
	}
	m.setMessage(c, "Connected! You can now talk.")

	signal, device := c.Signal(), c.Device()
	if signal == nil || device == nil {
		return
	}
	req := core.RequestConsumeRequest{RtpCapabilities: device.RtpCapabilities()}
	if err := signal.Notify(core.MethodRequestConsume, req); err != nil {
		m.report(c, fmt.Errorf("%s: %w", core.MethodRequestConsume, err))
	}
}

func (m *Manager) startProducing(c *call) error {
	sendT := c.SendTransport()
	if sendT == nil {
		return ErrTransportNotReady
	}

	track, err := m.deps.Microphone.Open(c.ctx, m.constraints)
	if err != nil {
		m.log.Error().Err(err).Msg("microphone unavailable")
		return err
	}
	if !c.set(func() { c.track = track }) {
		_ = track.Close()
		return ErrSessionClosed
	}

	producer, err := sendT.Produce(c.ctx, core.ProduceOptions{Track: track, CodecOptions: m.codecOpts})
	if err != nil {
		return fmt.Errorf("produce: %w", err)
	}
	if !c.set(func() { c.producer = producer }) {
		_ = producer.Close()
		return ErrSessionClosed
	}
	m.log.Info().Str("producer_id", producer.ID()).Msg("producing audio")
	return nil
}

func (m *Manager) armCallLimits(c *call) {
	l := m.limits
	if l.MaxDuration <= 0 {
		return
	}
	if l.WarningBeforeEnd > 0 && l.WarningBeforeEnd < l.MaxDuration {
		c.after(l.MaxDuration-l.WarningBeforeEnd, eventCallWarning)
	}
	c.after(l.MaxDuration, eventCallLimit)
}

func (m *Manager) handleNewConsumer(c *call, data json.RawMessage) {
	var msg core.NewConsumer
	if err := json.Unmarshal(data, &msg); err != nil {
		m.report(c, fmt.Errorf("decode %s: %w", core.EventNewConsumer, err))
		return
	}
	if c.Consumer() != nil {
		m.log.Warn().Str("consumer_id", msg.ID).Msg("consumer already attached, ignoring")
		return
	}
	recvT := c.RecvTransport()
	if recvT == nil {
		m.report(c, ErrTransportNotReady)
		return
	}

	consumer, err := recvT.Consume(c.ctx, core.ConsumeOptions{
		ID:            msg.ID,
		ProducerID:    msg.ProducerID,
		Kind:          msg.Kind,
		RtpParameters: msg.RtpParameters,
	})
	if err != nil {
		m.report(c, fmt.Errorf("consume: %w", err))
		return
	}
	if !c.set(func() { c.consumer = consumer }) {
		_ = consumer.Close()
		return
	}
	m.log.Info().Str("consumer_id", consumer.ID()).Str("producer_id", consumer.ProducerID()).Msg("consuming audio")

	playback, err := m.deps.Sink.Play(c.ctx, consumer.Track())
	if err != nil {
		m.log.Error().Err(err).Msg("playback failed to start")
		m.report(c, fmt.Errorf("playback: %w", err))
		return
	}
	if !c.set(func() { c.playback = playback }) {
		_ = playback.Close()
	}
}

func (m *Manager) handlePeerDisconnected(c *call) {
	m.log.Info().Msg("peer disconnected")
	st := m.State()
	m.setState(c, st.Status, "Peer disconnected", "")
	m.hooksMu.RLock()
	fn := m.onPeerDisconnected
	m.hooksMu.RUnlock()
	if fn != nil {
		fn()
	}

	consumer, playback := c.takeConsumer()
	if playback != nil {
		if err := playback.Close(); err != nil {
			m.log.Warn().Err(err).Msg("closing playback")
		}
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			m.log.Warn().Err(err).Msg("closing consumer")
		}
	}
}

func (m *Manager) handleChannelError(c *call, e core.Event) {
	err := e.Err
	if err == nil {
		var msg core.ErrorPush
		if jerr := json.Unmarshal(e.Data, &msg); jerr == nil && msg.Message != "" {
			err = errors.New(msg.Message)
		} else {
			err = errors.New("signaling error")
		}
	}
	m.log.Error().Err(err).Msg("signaling error")
	m.report(c, err)
}

// report forwards an asynchronous failure of call c to the error hook.
func (m *Manager) report(c *call, err error) {
	if m.current() != c {
		return
	}
	m.reportError(err)
}
