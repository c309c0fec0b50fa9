package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/lab-extractor/internal/export"
	"github.com/joseph-ayodele/lab-extractor/internal/server"
)

func serveCmd(opts *globalOptions) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /process-document over HTTP with a gRPC health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.openDB(ctx, opts.inmem); err != nil {
				return err
			}
			if migrate && !opts.inmem {
				if err := a.migrate(ctx); err != nil {
					return err
				}
			}
			if err := a.buildProcessor(ctx); err != nil {
				return err
			}

			if strings.EqualFold(a.cfg.Server.Mode, "dev") {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}
			router := server.NewRouter(a.cfg.Server.APIKey, server.Handlers{
				Documents: server.NewDocumentHandler(a.processor, a.cfg.Server, a.logger),
				Export:    server.NewExportHandler(a.results, export.NewService(a.results, a.logger), a.logger),
			}, a.logger)
			if a.cfg.Server.APIKey == "" {
				a.logger.Warn("server.api_key.disabled")
			}

			return server.New(a.cfg.Server, router, a.db, a.logger).Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "create the schema and seed the catalog before serving")
	return cmd
}
