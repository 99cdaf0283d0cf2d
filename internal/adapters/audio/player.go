package audio

import (
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
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog"
)

var ErrPlayerUnavailable = errors.New("audio player unavailable")

type PlaybackConfig struct {
	FFplayPath string `mapstructure:"ffplay_path"`
}

func DefaultPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{FFplayPath: "ffplay"}
}

// Player implements core.AudioSink. Opus is remuxed into Ogg for ffplay;
// G.711 payloads are piped raw.
type Player struct {
	cfg PlaybackConfig
	log zerolog.Logger

	lookPath func(string) (string, error)
}

func NewPlayer(cfg PlaybackConfig, log zerolog.Logger) *Player {
	return &Player{
		cfg:      cfg,
		log:      log.With().Str("module", "audio.playback").Logger(),
		lookPath: exec.LookPath,
	}
}

func playbackArgs(track core.RemoteTrack) ([]string, error) {
	args := []string{"-hide_banner", "-loglevel", "error", "-nodisp", "-autoexit", "-fflags", "nobuffer", "-flags", "low_delay"}
	switch mime := track.MimeType(); {
	case strings.EqualFold(mime, webrtc.MimeTypeOpus):
		args = append(args, "-f", "ogg")
	case strings.EqualFold(mime, webrtc.MimeTypePCMU):
		args = append(args, "-f", "mulaw", "-ar", strconv.Itoa(int(track.ClockRate())), "-ac", strconv.Itoa(int(track.Channels())))
	case strings.EqualFold(mime, webrtc.MimeTypePCMA):
		args = append(args, "-f", "alaw", "-ar", strconv.Itoa(int(track.ClockRate())), "-ac", strconv.Itoa(int(track.Channels())))
	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedKind, mime)
	}
	return append(args, "-"), nil
}

// packetWriter turns RTP packets into what ffplay reads on stdin.
type packetWriter interface {
	WriteRTP(pkt *rtp.Packet) error
}

type rawWriter struct{ w io.Writer }

func (r rawWriter) WriteRTP(pkt *rtp.Packet) error {
	_, err := r.w.Write(pkt.Payload)
	return err
}

func newPacketWriter(track core.RemoteTrack, w io.Writer) (packetWriter, error) {
	if strings.EqualFold(track.MimeType(), webrtc.MimeTypeOpus) {
		return oggwriter.NewWith(w, track.ClockRate(), track.Channels())
	}
	return rawWriter{w: w}, nil
}

func (p *Player) Play(_ context.Context, track core.RemoteTrack) (io.Closer, error) {
	path, err := p.lookPath(p.cfg.FFplayPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrPlayerUnavailable, p.cfg.FFplayPath)
	}
	args, err := playbackArgs(track)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path, args...)
	cmd.WaitDelay = time.Second
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlayerUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlayerUnavailable, err)
	}
	w, err := newPacketWriter(track, stdin)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("playback writer: %w", err)
	}

	pb := &playback{cmd: cmd, stdin: stdin, log: p.log.With().Str("track_id", track.ID()).Logger()}
	go pb.pump(track, w)
	pb.log.Info().Str("mime", track.MimeType()).Msg("playback started")
	return pb, nil
}

type playback struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	log   zerolog.Logger
	once  sync.Once
}

// pump copies packets until the track or the player ends.
func (pb *playback) pump(track core.RemoteTrack, w packetWriter) {
	for {
		pkt, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				pb.log.Debug().Err(err).Msg("playback read ended")
			}
			return
		}
		if err := w.WriteRTP(pkt); err != nil {
			pb.log.Warn().Err(err).Msg("playback write error, stopping")
			return
		}
	}
}

func (pb *playback) Close() error {
	pb.once.Do(func() {
		_ = pb.stdin.Close()
		if pb.cmd.Process != nil {
			_ = pb.cmd.Process.Kill()
		}
		_ = pb.cmd.Wait()
		pb.log.Info().Msg("playback stopped")
	})
	return nil
}
