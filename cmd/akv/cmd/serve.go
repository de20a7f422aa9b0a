/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ssargent/akv/pkg/api"
	"github.com/ssargent/akv/pkg/store"
)

// newServeCmd serves the store over HTTP
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long: `Serve the store over HTTP until interrupted.

Requests must carry the configured API key in the X-API-Key header. Running
without an API key leaves the API open and is only meant for local use.
Prometheus metrics are exposed on /metrics.

Examples:
  akv serve
  akv serve --port 9090 --bind 0.0.0.0 --api-key mysecretkey`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if container == nil {
				return errors.New("dependency container not initialized")
			}

			kv, cfg, logger, err := openStore(cmd)
			if err != nil {
				return err
			}
			syncStore := store.NewSyncKVStore(kv)

			if cmd.Flags().Changed("port") {
				cfg.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("bind") {
				cfg.Bind, _ = cmd.Flags().GetString("bind")
			}
			if cmd.Flags().Changed("api-key") {
				cfg.Security.APIKey, _ = cmd.Flags().GetString("api-key")
			}

			logger.Info().Str("data_file", kv.Path()).Int("keys", len(kv.Keys(nil))).Msg("store opened")
			if cfg.Security.APIKey == "" {
				logger.Warn().Msg("no API key configured, authentication is disabled")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			starter := container.GetServerFactory().CreateServerStarter()
			err = starter.StartServer(ctx, syncStore, api.ServerConfig{
				Bind:   cfg.Bind,
				Port:   cfg.Port,
				APIKey: cfg.Security.APIKey,
				Logger: logger,
			})
			if closeErr := closeStore(syncStore); err == nil {
				err = closeErr
			}
			return err
		},
	}

	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on (overrides the config)")
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind (overrides the config)")
	serveCmd.Flags().String("api-key", "", "API key for authentication (overrides the config)")
	return serveCmd
}
