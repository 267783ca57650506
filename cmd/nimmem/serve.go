package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-memory/server"
)

func newServeCmd(a *app) *cobra.Command {
	var allowAnyOrigin bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the WebSocket chat and HTTP memory API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt := newRuntime(ctx, a.cfg, a.logger)
			defer rt.close()

			responder, err := rt.responder()
			if err != nil {
				return err
			}

			srv := server.New(server.Config{
				Engine:         rt.engine(responder),
				Managers:       rt.managers(),
				Gatherer:       rt.registry,
				Metrics:        server.NewMetrics(rt.registry),
				Logger:         a.logger,
				AllowAnyOrigin: allowAnyOrigin,
			})
			return srv.ListenAndServe(ctx, a.cfg.Server.Addr, a.cfg.Server.ShutdownTimeout)
		},
	}

	cmd.Flags().BoolVar(&allowAnyOrigin, "allow-any-origin", false, "Accept WebSocket connections from any browser origin")
	return cmd
}
