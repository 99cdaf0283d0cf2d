package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/dkeye/voicematch/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func (a *cli) connectCommand() *cobra.Command {
	var role, language, user string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Find a partner and talk from the terminal",
		Long: `Connect to the matchmaking server with the given role and language and stay
in the call until the peer leaves, the call limit is reached or Ctrl+C.
Type "m" and Enter to toggle mute, "q" to hang up.`,
		Example: `  voicematch connect --role advisor --language en
  voicematch connect -r listener -l es --match-timeout 2m
  voicematch connect -r advisor -s wss://match.example.com/ws`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			uid := domain.UserID(user)
			if uid == "" {
				uid = domain.NewAnonymousUser().ID
			}
			return a.runConnect(cmd.Context(), domain.SessionConfig{Role: r, UserID: uid, Language: language})
		},
	}

	cmd.Flags().StringVarP(&role, "role", "r", "", "advisor or listener")
	cmd.Flags().StringVarP(&language, "language", "l", domain.DefaultLanguage, "Language code to match on")
	cmd.Flags().StringVarP(&user, "user", "u", "", "User id (default: a fresh anonymous id)")
	cmd.Flags().Duration("match-timeout", 0, "Give up when no partner is found in time (0 = wait forever, default from config)")
	cmd.Flags().Duration("max-duration", 0, "End the call after this long (0 = no limit, default from config)")
	_ = cmd.MarkFlagRequired("role")
	_ = a.v.BindPFlag("match_timeout", cmd.Flags().Lookup("match-timeout"))
	_ = a.v.BindPFlag("call.max_duration", cmd.Flags().Lookup("max-duration"))

	return cmd
}

func (a *cli) runConnect(parent context.Context, cfg domain.SessionConfig) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := a.newManager()
	ended := make(chan struct{})
	var once sync.Once

	m.OnStateChange(func(s domain.ConnectionState) {
		fmt.Printf("[%s] %s\n", s.Status, s.Message)
		if s.Status == domain.StatusDisconnected || s.Status == domain.StatusError {
			once.Do(func() { close(ended) })
		}
	})
	m.OnPeerConnected(func(peerID string) {
		fmt.Printf("matched with %s\n", peerID)
	})
	m.OnPeerDisconnected(func() {
		fmt.Println("your partner left, press q to hang up")
	})
	m.OnError(func(err error) {
		log.Error().Str("module", "cli").Err(err).Msg("session error")
	})

	if err := m.Connect(ctx, cfg); err != nil {
		m.Disconnect()
		return err
	}
	defer m.Disconnect()

	commands := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			commands <- strings.TrimSpace(sc.Text())
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ended:
			return nil
		case c := <-commands:
			switch c {
			case "m":
				if m.ToggleMute() {
					fmt.Println("muted")
				} else {
					fmt.Println("unmuted")
				}
			case "q":
				return nil
			}
		}
	}
}
