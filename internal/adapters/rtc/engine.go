// Package rtc implements the media engine on pion's ORTC API: one ICE/DTLS
// transport per direction, an RTP sender for the microphone and an RTP
// receiver for the remote peer.
package rtc

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/voicematch/internal/core"
	"github.com/pion/ice/v4"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type Config struct {
	ICEServers []webrtc.ICEServer
	// GatherTimeout bounds local candidate gathering.
	GatherTimeout time.Duration
	// HandshakeTimeout bounds ICE and DTLS before the first consumer starts.
	HandshakeTimeout time.Duration
	NetworkTypes     []webrtc.NetworkType
}

func DefaultConfig() Config {
	return Config{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
		GatherTimeout:    5 * time.Second,
		HandshakeTimeout: 15 * time.Second,
		NetworkTypes:     []webrtc.NetworkType{webrtc.NetworkTypeUDP4},
	}
}

// Engine implements core.MediaEngine.
type Engine struct {
	cfg Config
	log zerolog.Logger
}

func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	defaults := DefaultConfig()
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = defaults.GatherTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}
	return &Engine{cfg: cfg, log: log.With().Str("module", "rtc").Logger()}
}

func (e *Engine) NewDevice() (core.Device, error) {
	return &Device{cfg: e.cfg, log: e.log}, nil
}

// Device holds the codec set negotiated with one router.
type Device struct {
	cfg Config
	log zerolog.Logger

	mu   sync.RWMutex
	api  *webrtc.API
	caps *core.RtpCapabilities
}

// Load keeps the router's audio codecs this side understands and builds the
// pion API around them.
func (d *Device) Load(_ context.Context, routerCaps core.RtpCapabilities) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.caps != nil {
		return core.ErrDeviceLoaded
	}

	me := &webrtc.MediaEngine{}
	var caps core.RtpCapabilities
	for _, c := range routerCaps.Codecs {
		if c.Kind != core.KindAudio || !isSupported(c.MimeType) {
			continue
		}
		err := me.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: capabilityOf(c),
			PayloadType:        webrtc.PayloadType(c.PreferredPayloadType),
		}, webrtc.RTPCodecTypeAudio)
		if err != nil {
			return fmt.Errorf("%w: register %s: %w", core.ErrDeviceLoad, c.MimeType, err)
		}
		caps.Codecs = append(caps.Codecs, c)
	}
	if len(caps.Codecs) == 0 {
		return fmt.Errorf("%w: no common audio codec", core.ErrDeviceLoad)
	}
	for _, ext := range routerCaps.HeaderExtensions {
		if ext.Kind != core.KindAudio || strings.EqualFold(ext.Direction, "inactive") {
			continue
		}
		err := me.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{URI: ext.URI}, webrtc.RTPCodecTypeAudio)
		if err != nil {
			return fmt.Errorf("%w: header extension %s: %w", core.ErrDeviceLoad, ext.URI, err)
		}
		caps.HeaderExtensions = append(caps.HeaderExtensions, ext)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, registry); err != nil {
		return fmt.Errorf("%w: interceptors: %w", core.ErrDeviceLoad, err)
	}

	se := webrtc.SettingEngine{LoggerFactory: newLoggerFactory(d.log)}
	se.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	if len(d.cfg.NetworkTypes) > 0 {
		se.SetNetworkTypes(d.cfg.NetworkTypes)
	}

	d.api = webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithSettingEngine(se),
		webrtc.WithInterceptorRegistry(registry),
	)
	d.caps = &caps
	d.log.Info().Int("codecs", len(caps.Codecs)).Int("header_extensions", len(caps.HeaderExtensions)).Msg("device loaded")
	return nil
}

func (d *Device) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.caps != nil
}

func (d *Device) RtpCapabilities() core.RtpCapabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.caps == nil {
		return core.RtpCapabilities{}
	}
	return *d.caps
}

// CanProduce reports whether kind can be sent; only Opus audio qualifies.
func (d *Device) CanProduce(kind core.MediaKind) bool {
	_, ok := d.opus()
	return ok && kind == core.KindAudio
}

func (d *Device) opus() (core.RtpCodecCapability, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.caps == nil {
		return core.RtpCodecCapability{}, false
	}
	for _, c := range d.caps.Codecs {
		if isOpus(c.MimeType) {
			return c, true
		}
	}
	return core.RtpCodecCapability{}, false
}

func (d *Device) CreateSendTransport(opts core.TransportOptions) (core.SendTransport, error) {
	t, err := d.newTransport(opts, "send")
	if err != nil {
		return nil, err
	}
	return &SendTransport{transport: t, device: d}, nil
}

func (d *Device) CreateRecvTransport(opts core.TransportOptions) (core.RecvTransport, error) {
	t, err := d.newTransport(opts, "recv")
	if err != nil {
		return nil, err
	}
	return &RecvTransport{transport: t}, nil
}

func (d *Device) newTransport(opts core.TransportOptions, direction string) (*transport, error) {
	d.mu.RLock()
	api := d.api
	d.mu.RUnlock()
	if api == nil {
		return nil, core.ErrDeviceNotLoaded
	}
	if opts.ID == "" {
		return nil, fmt.Errorf("%s transport: missing id", direction)
	}
	return newTransport(api, d.cfg, opts, d.log.With().Str("direction", direction).Str("transport_id", opts.ID).Logger())
}
