package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// configPath is the optional TOML file layered between defaults and env
var configPath string

// rootCmd serves MCP over stdio when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "joke-server",
	Short: "MCP server exposing dad and mom joke tools",
	Long: `joke-server exposes two MCP tools, get_dad_joke and get_mom_joke.

Without a subcommand it speaks JSON-RPC over stdin/stdout, one message per
line. Use 'joke-server http' to serve the same tools over HTTP with OAuth 2.1
protected resource metadata.

get_mom_joke requires a bearer token carrying the tools:mom_jokes scope.
Over stdio the token is read from params._meta.authorization.token.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runStdio,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to TOML configuration file (optional, environment variables override it)")
	rootCmd.AddCommand(newHTTPCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runStdio(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(configPath, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() {
		done <- a.dispatcher.ServeStdio(ctx, os.Stdin, os.Stdout)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("stdio server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info().Msg("Received shutdown signal")
		return nil
	}
}

// commandContext returns cmd's context or Background when run outside Execute
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
