package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"glass-voice/internal/server"
	"glass-voice/internal/session"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assistant over HTTP and WebSocket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.build(ctx, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			sweeper, err := session.NewSweeper(a.Sessions, a.Config.Session.IdleTTL, a.Config.Session.SweepInterval, a.Logger)
			if err != nil {
				return err
			}
			sweeper.Start()
			defer sweeper.Stop()

			srv, err := server.New(a.Service, a.Logger)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.Config.HTTP.Addr
			}
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: http.addr from config)")
	return cmd
}
