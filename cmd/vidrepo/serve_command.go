package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"vidrepo/internal/httpapi"
	"vidrepo/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the repository API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := ctx.open()
			if err != nil {
				return err
			}
			defer ctx.close()
			addr := strings.TrimSpace(bind)
			if addr == "" {
				addr = a.cfg.API.Bind
			}

			server := httpapi.New(a.svc, a.hub, a.metrics, a.logger,
				httpapi.WithHealthCheck(func(c context.Context) error {
					return a.store.Ping(c)
				}),
			)
			a.logger.Info("vidrepo starting",
				logging.String(logging.FieldEventType, "serve_start"),
				logging.String("data_dir", a.cfg.Paths.DataDir),
				logging.String("blob_backend", a.cfg.Storage.BlobBackend),
				logging.Bool("ingest_enabled", a.cfg.Ingest.Enabled),
				logging.Bool("mirror_enabled", a.cfg.Mirror.Enabled),
			)
			if err := server.Serve(signalCtx, addr); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			a.logger.Info("vidrepo stopped", logging.String(logging.FieldEventType, "serve_stop"))
			return nil
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (defaults to api.bind)")
	return cmd
}
