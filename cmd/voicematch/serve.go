package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	router "github.com/dkeye/voicematch/internal/adapters/http"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func (a *cli) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local control API a UI shell drives",
		Example: `  voicematch serve
  voicematch serve --listen 127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd.Context())
		},
	}
	cmd.Flags().String("listen", "", "Listen address of the control API")
	_ = a.v.BindPFlag("http.listen", cmd.Flags().Lookup("listen"))
	return cmd
}

func (a *cli) runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := a.newManager()
	defer m.Disconnect()

	hub := router.NewHub(32, log.Logger)
	hub.Attach(m)

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Listen,
		Handler:           router.SetupRouter(a.cfg, m, hub, log.Logger),
		ReadHeaderTimeout: 10 * time.Second,
		// Event streams end with the process instead of holding Shutdown open.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("control API started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
