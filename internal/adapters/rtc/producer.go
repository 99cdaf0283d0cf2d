package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"

	"github.com/dkeye/voicematch/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// SendTransport carries the microphone to the router.
type SendTransport struct {
	*transport
	device *Device
	mids   atomic.Int32
}

// Produce registers the track with the router and starts forwarding its
// samples. The connect negotiation runs first if this is the first stream.
func (t *SendTransport) Produce(ctx context.Context, opts core.ProduceOptions) (core.Producer, error) {
	if opts.Track == nil {
		return nil, errors.New("produce: nil track")
	}
	codec, ok := t.device.opus()
	if !ok {
		return nil, fmt.Errorf("%w: router offers no opus", core.ErrUnsupportedKind)
	}
	if err := t.ensureConnected(ctx); err != nil {
		return nil, err
	}

	local, err := webrtc.NewTrackLocalStaticSample(capabilityOf(codec), "audio", opts.Track.ID())
	if err != nil {
		return nil, fmt.Errorf("local track: %w", err)
	}
	sender, err := t.api.NewRTPSender(local, t.dtls)
	if err != nil {
		return nil, fmt.Errorf("rtp sender: %w", err)
	}
	params := sender.GetParameters()
	mid := strconv.Itoa(int(t.mids.Add(1)) - 1)
	rtpParams := sendParameters(codec, params, opts.CodecOptions, mid)

	n, err := t.currentNegotiator()
	if err != nil {
		_ = sender.Stop()
		return nil, err
	}
	res, err := n(ctx, core.NegotiationRequest{
		Kind:          core.NegotiateProduce,
		TransportID:   t.id,
		MediaKind:     core.KindAudio,
		RtpParameters: &rtpParams,
	})
	if err != nil {
		_ = sender.Stop()
		return nil, fmt.Errorf("produce on %s: %w", t.id, err)
	}
	if err := sender.Send(params); err != nil {
		_ = sender.Stop()
		return nil, fmt.Errorf("send: %w", err)
	}

	p := newProducer(res.ProducerID, sender, local, opts.Track, t.log.With().Str("producer_id", res.ProducerID).Logger())
	p.start()
	return p, nil
}

func sendParameters(codec core.RtpCodecCapability, params webrtc.RTPSendParameters, opts core.CodecOptions, mid string) core.RtpParameters {
	out := core.RtpParameters{
		Mid: mid,
		Codecs: []core.RtpCodecParameters{{
			MimeType:     codec.MimeType,
			PayloadType:  codec.PreferredPayloadType,
			ClockRate:    codec.ClockRate,
			Channels:     codec.Channels,
			Parameters:   withCodecOptions(codec.Parameters, opts),
			RtcpFeedback: codec.RtcpFeedback,
		}},
		Rtcp: &core.RtcpParameters{Cname: uuid.NewString(), ReducedSize: true},
	}
	for _, ext := range params.HeaderExtensions {
		out.HeaderExtensions = append(out.HeaderExtensions, core.RtpHeaderExtensionParameters{URI: ext.URI, ID: ext.ID})
	}
	for _, enc := range params.Encodings {
		out.Encodings = append(out.Encodings, core.RtpEncodingParameters{SSRC: uint32(enc.SSRC), Dtx: opts.OpusDtx})
	}
	return out
}

type trackState int32

const (
	trackLive trackState = iota
	trackPaused
	trackClosed
)

// Producer forwards samples of a local track while live; a paused producer
// keeps reading and drops them.
type Producer struct {
	id     string
	sender *webrtc.RTPSender
	local  *webrtc.TrackLocalStaticSample
	src    core.AudioTrack
	log    zerolog.Logger

	state  atomic.Int32 // trackLive by default
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newProducer(id string, sender *webrtc.RTPSender, local *webrtc.TrackLocalStaticSample, src core.AudioTrack, log zerolog.Logger) *Producer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Producer{
		id:     id,
		sender: sender,
		local:  local,
		src:    src,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (p *Producer) start() {
	go p.loop()
	go p.drainRTCP()
}

func (p *Producer) loop() {
	defer close(p.done)
	for {
		sample, err := p.src.ReadSample(p.ctx)
		if err != nil {
			if p.ctx.Err() == nil && !errors.Is(err, io.EOF) {
				p.log.Error().Err(err).Msg("producer read error, stopping")
			}
			return
		}
		switch trackState(p.state.Load()) {
		case trackClosed:
			return
		case trackPaused:
			continue
		}
		if err := p.local.WriteSample(sample); err != nil {
			if !errors.Is(err, io.ErrClosedPipe) {
				p.log.Error().Err(err).Msg("producer write error, stopping")
			}
			return
		}
	}
}

// drainRTCP keeps the sender's interceptors fed.
func (p *Producer) drainRTCP() {
	buf := make([]byte, 1500)
	for {
		if _, _, err := p.sender.Read(buf); err != nil {
			return
		}
	}
}

func (p *Producer) ID() string           { return p.id }
func (p *Producer) Kind() core.MediaKind { return core.KindAudio }

func (p *Producer) Paused() bool {
	return trackState(p.state.Load()) == trackPaused
}

func (p *Producer) Pause() {
	p.state.CompareAndSwap(int32(trackLive), int32(trackPaused))
}

func (p *Producer) Resume() {
	p.state.CompareAndSwap(int32(trackPaused), int32(trackLive))
}

// Close stops forwarding and the sender. The source track stays open; it
// belongs to whoever opened it.
func (p *Producer) Close() error {
	if trackState(p.state.Swap(int32(trackClosed))) == trackClosed {
		return nil
	}
	p.cancel()
	return p.sender.Stop()
}
