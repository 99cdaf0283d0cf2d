// Package audio captures the microphone and plays the remote peer through
// ffmpeg and ffplay subprocesses.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/voicematch/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog"
)

const (
	defaultFrame  = 20 * time.Millisecond
	opusClockRate = 48000
)

type CaptureConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	InputFormat string `mapstructure:"input_format"`
	InputDevice string `mapstructure:"input_device"`
}

func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{FFmpegPath: "ffmpeg", InputFormat: "alsa", InputDevice: "default"}
}

// Microphone implements core.Microphone with an ffmpeg process encoding the
// input device to Ogg/Opus on stdout.
type Microphone struct {
	cfg CaptureConfig
	log zerolog.Logger

	lookPath func(string) (string, error)
}

func NewMicrophone(cfg CaptureConfig, log zerolog.Logger) *Microphone {
	return &Microphone{
		cfg:      cfg,
		log:      log.With().Str("module", "audio.capture").Logger(),
		lookPath: exec.LookPath,
	}
}

func captureArgs(cfg CaptureConfig, c core.AudioConstraints) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
	}
	var filters []string
	if c.NoiseSuppression {
		filters = append(filters, "afftdn")
	}
	if c.AutoGainControl {
		filters = append(filters, "dynaudnorm")
	}
	if len(filters) > 0 {
		args = append(args, "-af", strings.Join(filters, ","))
	}
	channels := c.ChannelCount
	if channels <= 0 {
		channels = 1
	}
	return append(args,
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(opusClockRate),
		"-c:a", "libopus",
		"-application", "voip",
		"-frame_duration", "20",
		"-page_duration", "20000",
		"-f", "ogg", "-",
	)
}

var permissionHints = []string{"permission denied", "operation not permitted", "not authorized", "access denied"}

// classify maps an early ffmpeg exit to a microphone error the user can act on.
func classify(stderr string) error {
	msg := strings.ToLower(stderr)
	for _, h := range permissionHints {
		if strings.Contains(msg, h) {
			return core.ErrMicrophonePermission
		}
	}
	if detail := strings.TrimSpace(stderr); detail != "" {
		return fmt.Errorf("%w: %s", core.ErrMicrophoneUnavailable, lastLine(detail))
	}
	return core.ErrMicrophoneUnavailable
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Open starts capturing and returns once the first Ogg page arrived, so
// refused or missing devices fail here rather than mid-call.
func (m *Microphone) Open(ctx context.Context, c core.AudioConstraints) (core.AudioTrack, error) {
	path, err := m.lookPath(m.cfg.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found", core.ErrMicrophoneUnavailable, m.cfg.FFmpegPath)
	}
	if c.EchoCancellation {
		m.log.Debug().Msg("echo cancellation is left to the input device")
	}

	args := captureArgs(m.cfg, c)
	cmd := exec.Command(path, args...)
	cmd.WaitDelay = time.Second
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrMicrophoneUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrMicrophoneUnavailable, err)
	}
	m.log.Info().Str("device", m.cfg.InputDevice).Str("format", m.cfg.InputFormat).Msg("capture started")

	t := &captureTrack{
		id:      uuid.NewString(),
		cmd:     cmd,
		log:     m.log,
		samples: make(chan media.Sample, 50),
		done:    make(chan struct{}),
	}

	opened := make(chan error, 1)
	go t.run(stdout, opened)

	select {
	case err := <-opened:
		if err != nil {
			_ = t.Close()
			return nil, classify(stderr.String())
		}
	case <-ctx.Done():
		_ = t.Close()
		return nil, ctx.Err()
	}
	return t, nil
}

type captureTrack struct {
	id  string
	cmd *exec.Cmd
	log zerolog.Logger

	samples chan media.Sample
	done    chan struct{}
	once    sync.Once

	mu  sync.Mutex
	err error
}

func (t *captureTrack) ID() string { return t.id }

// run parses Ogg pages until ffmpeg stops; opened reports the header result.
func (t *captureTrack) run(stdout io.Reader, opened chan<- error) {
	defer close(t.samples)
	ogg, _, err := oggreader.NewWith(stdout)
	opened <- err
	if err != nil {
		return
	}

	var last uint64
	for {
		page, header, err := ogg.ParseNextPage()
		if err != nil {
			t.mu.Lock()
			t.err = err
			t.mu.Unlock()
			return
		}
		if bytes.HasPrefix(page, []byte("OpusTags")) {
			continue
		}
		duration := defaultFrame
		if last != 0 && header.GranulePosition > last {
			duration = time.Duration(header.GranulePosition-last) * time.Second / opusClockRate
		}
		last = header.GranulePosition

		select {
		case t.samples <- media.Sample{Data: page, Duration: duration}:
		case <-t.done:
			return
		}
	}
}

func (t *captureTrack) ReadSample(ctx context.Context) (media.Sample, error) {
	select {
	case s, ok := <-t.samples:
		if ok {
			return s, nil
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.err == nil || errors.Is(t.err, io.ErrUnexpectedEOF) {
			return media.Sample{}, io.EOF
		}
		return media.Sample{}, t.err
	case <-ctx.Done():
		return media.Sample{}, ctx.Err()
	}
}

func (t *captureTrack) Close() error {
	t.once.Do(func() {
		close(t.done)
		if t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
		_ = t.cmd.Wait()
		t.log.Info().Msg("capture stopped")
	})
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
