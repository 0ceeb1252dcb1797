package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iafnetworkspa/joke-mcp/internal/config"
	"github.com/iafnetworkspa/joke-mcp/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newHTTPCmd() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "http",
		Short: "Serve MCP over HTTP",
		Long: `Serve MCP over HTTP.

Routes:
  GET  /                                      server identity
  GET  /health                                liveness
  POST /mcp                                   JSON-RPC 2.0
  GET  /.well-known/oauth-protected-resource  RFC 9728 metadata`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			override := func(cfg *config.Config) {
				if cmd.Flags().Changed("host") {
					cfg.Server.Host = host
				}
				if cmd.Flags().Changed("port") {
					cfg.Server.Port = port
				}
			}
			return runHTTP(commandContext(cmd), override)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Address to bind (overrides HOST)")
	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (overrides PORT)")

	return cmd
}

func runHTTP(parent context.Context, override func(*config.Config)) error {
	a, err := bootstrap(configPath, override)
	if err != nil {
		return err
	}

	srv, err := server.New(a.cfg.Server, a.dispatcher, a.metadata())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
