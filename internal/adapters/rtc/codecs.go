package rtc

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/dkeye/voicematch/internal/core"
	"github.com/pion/webrtc/v4"
)

// Audio codecs this device can negotiate. Only Opus is produced since the
// microphone yields Opus samples; G.711 is accepted for consumption.
var supportedAudio = []string{webrtc.MimeTypeOpus, webrtc.MimeTypePCMU, webrtc.MimeTypePCMA}

func isSupported(mime string) bool {
	return slices.ContainsFunc(supportedAudio, func(s string) bool { return strings.EqualFold(s, mime) })
}

func isOpus(mime string) bool {
	return strings.EqualFold(mime, webrtc.MimeTypeOpus)
}

// fmtpLine renders codec parameters as an SDP fmtp line with sorted keys.
func fmtpLine(params map[string]any) string {
	keys := slices.Sorted(maps.Keys(params))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatParam(params[k]))
	}
	return strings.Join(parts, ";")
}

func formatParam(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(t)
	}
}

func capabilityOf(c core.RtpCodecCapability) webrtc.RTPCodecCapability {
	fb := make([]webrtc.RTCPFeedback, 0, len(c.RtcpFeedback))
	for _, f := range c.RtcpFeedback {
		fb = append(fb, webrtc.RTCPFeedback{Type: f.Type, Parameter: f.Parameter})
	}
	return webrtc.RTPCodecCapability{
		MimeType:     c.MimeType,
		ClockRate:    c.ClockRate,
		Channels:     c.Channels,
		SDPFmtpLine:  fmtpLine(c.Parameters),
		RTCPFeedback: fb,
	}
}

// withCodecOptions applies Opus encoder options onto the codec parameters
// announced to the router.
func withCodecOptions(params map[string]any, o core.CodecOptions) map[string]any {
	out := maps.Clone(params)
	if out == nil {
		out = map[string]any{}
	}
	stereo := 0
	if o.OpusStereo {
		stereo = 1
	}
	out["stereo"] = stereo
	out["sprop-stereo"] = stereo
	if o.OpusDtx {
		out["usedtx"] = 1
	} else {
		delete(out, "usedtx")
	}
	if o.OpusFec {
		out["useinbandfec"] = 1
	} else {
		out["useinbandfec"] = 0
	}
	if o.OpusPtime > 0 {
		out["ptime"] = o.OpusPtime
	}
	if o.OpusMaxPlaybackRate > 0 {
		out["maxplaybackrate"] = o.OpusMaxPlaybackRate
	}
	return out
}

func iceParameters(p core.IceParameters) webrtc.ICEParameters {
	return webrtc.ICEParameters{
		UsernameFragment: p.UsernameFragment,
		Password:         p.Password,
		ICELite:          p.IceLite,
	}
}

func iceCandidates(in []core.IceCandidate) ([]webrtc.ICECandidate, error) {
	out := make([]webrtc.ICECandidate, 0, len(in))
	for _, c := range in {
		proto, err := webrtc.NewICEProtocol(c.Protocol)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.Foundation, err)
		}
		typ, err := webrtc.NewICECandidateType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.Foundation, err)
		}
		out = append(out, webrtc.ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.Host(),
			Protocol:   proto,
			Port:       c.Port,
			Typ:        typ,
			Component:  1,
			TCPType:    c.TCPType,
		})
	}
	return out, nil
}

// remoteDTLS pins the router to the server role; this side always dials.
func remoteDTLS(p core.DtlsParameters) webrtc.DTLSParameters {
	fps := make([]webrtc.DTLSFingerprint, 0, len(p.Fingerprints))
	for _, f := range p.Fingerprints {
		fps = append(fps, webrtc.DTLSFingerprint{Algorithm: f.Algorithm, Value: f.Value})
	}
	return webrtc.DTLSParameters{Role: webrtc.DTLSRoleServer, Fingerprints: fps}
}

func localDTLS(p webrtc.DTLSParameters) core.DtlsParameters {
	fps := make([]core.DtlsFingerprint, 0, len(p.Fingerprints))
	for _, f := range p.Fingerprints {
		fps = append(fps, core.DtlsFingerprint{Algorithm: f.Algorithm, Value: f.Value})
	}
	return core.DtlsParameters{Role: webrtc.DTLSRoleClient.String(), Fingerprints: fps}
}
