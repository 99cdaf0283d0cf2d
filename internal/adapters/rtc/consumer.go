package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dkeye/voicematch/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// RecvTransport carries the remote peer's audio.
type RecvTransport struct {
	*transport
}

// Consume starts receiving the announced stream. Unlike Produce it waits for
// the handshake since pion binds receive streams to a live SRTP session.
func (t *RecvTransport) Consume(ctx context.Context, opts core.ConsumeOptions) (core.Consumer, error) {
	if opts.Kind != core.KindAudio {
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedKind, opts.Kind)
	}
	if len(opts.RtpParameters.Codecs) == 0 || len(opts.RtpParameters.Encodings) == 0 {
		return nil, errors.New("consume: rtp parameters need a codec and an encoding")
	}
	codec := opts.RtpParameters.Codecs[0]
	if !isSupported(codec.MimeType) {
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedKind, codec.MimeType)
	}

	if err := t.ensureConnected(ctx); err != nil {
		return nil, err
	}
	if err := t.waitReady(ctx); err != nil {
		return nil, fmt.Errorf("consume on %s: %w", t.id, err)
	}

	receiver, err := t.api.NewRTPReceiver(webrtc.RTPCodecTypeAudio, t.dtls)
	if err != nil {
		return nil, fmt.Errorf("rtp receiver: %w", err)
	}
	err = receiver.Receive(webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				SSRC:        webrtc.SSRC(opts.RtpParameters.Encodings[0].SSRC),
				PayloadType: webrtc.PayloadType(codec.PayloadType),
			},
		}},
	})
	if err != nil {
		_ = receiver.Stop()
		return nil, fmt.Errorf("receive: %w", err)
	}
	t.log.Info().Str("consumer_id", opts.ID).Str("mime", codec.MimeType).Msg("receiving")

	return &Consumer{
		opts:     opts,
		receiver: receiver,
		track:    &remoteTrack{id: opts.ID, track: receiver.Track(), codec: codec},
	}, nil
}

type Consumer struct {
	opts     core.ConsumeOptions
	receiver *webrtc.RTPReceiver
	track    *remoteTrack
	closed   atomic.Bool
}

func (c *Consumer) ID() string              { return c.opts.ID }
func (c *Consumer) ProducerID() string      { return c.opts.ProducerID }
func (c *Consumer) Kind() core.MediaKind    { return c.opts.Kind }
func (c *Consumer) Track() core.RemoteTrack { return c.track }

func (c *Consumer) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.receiver.Stop()
}

// remoteTrack describes itself from the router's parameters; pion only learns
// the codec once packets flow.
type remoteTrack struct {
	id    string
	track *webrtc.TrackRemote
	codec core.RtpCodecParameters
}

func (r *remoteTrack) ID() string           { return r.id }
func (r *remoteTrack) Kind() core.MediaKind { return core.KindAudio }
func (r *remoteTrack) MimeType() string     { return r.codec.MimeType }
func (r *remoteTrack) ClockRate() uint32    { return r.codec.ClockRate }

func (r *remoteTrack) Channels() uint16 {
	if r.codec.Channels == 0 {
		return 1
	}
	return r.codec.Channels
}

func (r *remoteTrack) ReadRTP() (*rtp.Packet, error) {
	if r.track == nil {
		return nil, errors.New("remote track not bound")
	}
	pkt, _, err := r.track.ReadRTP()
	return pkt, err
}
