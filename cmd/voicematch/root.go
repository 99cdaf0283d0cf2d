package main

import (
	"fmt"

	"github.com/dkeye/voicematch/internal/adapters/audio"
	"github.com/dkeye/voicematch/internal/adapters/rtc"
	"github.com/dkeye/voicematch/internal/adapters/signal"
	"github.com/dkeye/voicematch/internal/app/session"
	"github.com/dkeye/voicematch/internal/config"
	"github.com/dkeye/voicematch/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cli struct {
	v          *viper.Viper
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	app := &cli{v: config.New()}

	root := &cobra.Command{
		Use:   "voicematch",
		Short: "Anonymous voice matching client",
		Long: `voicematch connects to a matchmaking SFU, waits for a partner speaking the
same language and bridges your microphone and speakers to them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.load()
		},
	}

	root.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "Config file (default config/config.$CONFIG_ENV.yaml)")
	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringP("server", "s", "", "Signaling server websocket URL")
	_ = app.v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))
	_ = app.v.BindPFlag("server_url", root.PersistentFlags().Lookup("server"))

	root.AddCommand(app.connectCommand(), app.serveCommand())
	return root
}

func (a *cli) load() error {
	cfg, err := config.LoadWith(a.v, a.configPath)
	if err != nil {
		return err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	a.cfg = cfg
	return nil
}

// newManager wires the production adapters into a session manager.
func (a *cli) newManager() *session.Manager {
	cfg := a.cfg
	logger := log.Logger

	rtcCfg := rtc.DefaultConfig()
	if len(cfg.ICEServers) > 0 {
		rtcCfg.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	return session.New(session.Deps{
		NewSignal: func() core.SignalChannel {
			return signal.NewClient(signal.Options{
				URL:        cfg.ServerURL,
				PingPeriod: cfg.PingPeriod,
				ReadLimit:  cfg.ReadLimit,
			}, logger)
		},
		Engine:     rtc.NewEngine(rtcCfg, logger),
		Microphone: audio.NewMicrophone(cfg.Capture, logger),
		Sink:       audio.NewPlayer(cfg.Playback, logger),
	},
		session.WithLogger(logger),
		session.WithTimeouts(session.Timeouts{
			Connect: cfg.ConnectTimeout,
			Request: cfg.RequestTimeout,
			Match:   cfg.MatchTimeout,
		}),
		session.WithCallLimits(session.CallLimits{
			MaxDuration:      cfg.Call.MaxDuration,
			WarningBeforeEnd: cfg.Call.WarningBeforeEnd,
		}),
		session.WithCodecOptions(cfg.Codec),
		session.WithAudioConstraints(cfg.Audio),
	)
}
