package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/voicematch/internal/adapters/audio"
	"github.com/dkeye/voicematch/internal/core"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "VOICEMATCH"

type Config struct {
	Mode     string `mapstructure:"mode"`
	LogLevel string `mapstructure:"log_level"`

	ServerURL      string        `mapstructure:"server_url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MatchTimeout   time.Duration `mapstructure:"match_timeout"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	ICEServers     []string      `mapstructure:"ice_servers"`

	Audio    core.AudioConstraints `mapstructure:"audio"`
	Codec    core.CodecOptions     `mapstructure:"codec"`
	Call     CallConfig            `mapstructure:"call"`
	Capture  audio.CaptureConfig   `mapstructure:"capture"`
	Playback audio.PlaybackConfig  `mapstructure:"playback"`
	HTTP     HTTPConfig            `mapstructure:"http"`
}

type CallConfig struct {
	MaxDuration      time.Duration `mapstructure:"max_duration"`
	WarningBeforeEnd time.Duration `mapstructure:"warning_before_end"`
}

type HTTPConfig struct {
	Listen          string        `mapstructure:"listen"`
	Secret          string        `mapstructure:"secret"`
	StaticPath      string        `mapstructure:"static_path"`
	ConnectLimit    int           `mapstructure:"connect_limit"`
	ConnectInterval time.Duration `mapstructure:"connect_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")

	v.SetDefault("server_url", "ws://localhost:3000/ws")
	v.SetDefault("connect_timeout", "10s")
	v.SetDefault("request_timeout", "0s")
	v.SetDefault("match_timeout", "60s")
	v.SetDefault("ping_period", "25s")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("audio.echo_cancellation", true)
	v.SetDefault("audio.noise_suppression", true)
	v.SetDefault("audio.auto_gain_control", true)
	v.SetDefault("audio.sample_rate", 48000)
	v.SetDefault("audio.channel_count", 1)

	v.SetDefault("codec.opus_stereo", false)
	v.SetDefault("codec.opus_dtx", true)
	v.SetDefault("codec.opus_fec", true)
	v.SetDefault("codec.opus_ptime", 20)
	v.SetDefault("codec.opus_max_playback_rate", 48000)

	v.SetDefault("call.max_duration", "30m")
	v.SetDefault("call.warning_before_end", "1m")

	capture := audio.DefaultCaptureConfig()
	v.SetDefault("capture.ffmpeg_path", capture.FFmpegPath)
	v.SetDefault("capture.input_format", capture.InputFormat)
	v.SetDefault("capture.input_device", capture.InputDevice)
	v.SetDefault("playback.ffplay_path", audio.DefaultPlaybackConfig().FFplayPath)

	v.SetDefault("http.listen", "127.0.0.1:8080")
	v.SetDefault("http.secret", "")
	v.SetDefault("http.static_path", "")
	v.SetDefault("http.connect_limit", 5)
	v.SetDefault("http.connect_interval", "1m")
}

// New returns a viper instance with defaults and environment binding but no
// file; commands bind their flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads path, or config/config.<CONFIG_ENV>.yaml when path is empty.
// A missing default file is not an error; a missing explicit one is.
func Load(path string) (*Config, error) {
	return LoadWith(New(), path)
}

func LoadWith(v *viper.Viper, path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		path = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if explicit {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		log.Warn().Str("module", "config").Str("file", path).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", path).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Debug().Str("module", "config").Str("mode", cfg.Mode).Str("server", cfg.ServerURL).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("config: server_url is required")
	}
	if c.ConnectTimeout < 0 || c.RequestTimeout < 0 || c.MatchTimeout < 0 {
		return fmt.Errorf("config: timeouts must not be negative")
	}
	if c.Call.MaxDuration > 0 && c.Call.WarningBeforeEnd >= c.Call.MaxDuration {
		return fmt.Errorf("config: call.warning_before_end must be shorter than call.max_duration")
	}
	return nil
}
