package core

//go:generate mockgen -source=audio_iface.go -destination=mocks/audio_mock.go -package=mocks

import (
	"context"
	"errors"
	"io"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media"
)

var (
	// ErrMicrophonePermission means the user or the OS refused capture access.
	ErrMicrophonePermission = errors.New("could not access microphone, please grant permission")
	// ErrMicrophoneUnavailable means no capture device or capture backend exists.
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")
)

type AudioConstraints struct {
	EchoCancellation bool `json:"echoCancellation" mapstructure:"echo_cancellation"`
	NoiseSuppression bool `json:"noiseSuppression" mapstructure:"noise_suppression"`
	AutoGainControl  bool `json:"autoGainControl" mapstructure:"auto_gain_control"`
	SampleRate       int  `json:"sampleRate" mapstructure:"sample_rate"`
	ChannelCount     int  `json:"channelCount" mapstructure:"channel_count"`
}

// AudioTrack is a local capture track producing encoded Opus samples.
type AudioTrack interface {
	ID() string
	// ReadSample blocks until the next encoded sample; io.EOF after Close.
	ReadSample(ctx context.Context) (media.Sample, error)
	Close() error
}

// RemoteTrack is the inbound RTP stream of a consumer.
type RemoteTrack interface {
	ID() string
	Kind() MediaKind
	MimeType() string
	ClockRate() uint32
	Channels() uint16
	ReadRTP() (*rtp.Packet, error)
}

type Microphone interface {
	Open(ctx context.Context, c AudioConstraints) (AudioTrack, error)
}

// AudioSink plays a remote track; closing the returned handle stops playback.
type AudioSink interface {
	Play(ctx context.Context, track RemoteTrack) (io.Closer, error)
}
