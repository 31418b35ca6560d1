package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/eliranbeatt/studioOpsAi-sub001/internal/config"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/home"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the StudioOps ingestion server",
	Long: `Start the StudioOps HTTP server.

This starts the HTTP API server, the MinIO content store container, and the
pipeline worker pool. When the server shuts down (via Ctrl+C or SIGTERM),
MinIO is also stopped.

The server provides:
  - /health - Basic server health check
  - /ready  - Readiness check (includes catalog and store status)

Examples:
  studioops serve                    # Start on default port 8321
  studioops serve --port 3000        # Start on custom port
  studioops serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Set up logger
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		// Get home directory
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		// Write a starter config on first run
		if !h.ConfigExists() && cfgFile == "" {
			if err := config.WriteDefault(h.ConfigPath()); err != nil {
				return err
			}
			logger.Info("wrote default config", "path", h.ConfigPath())
		}

		cfgMgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfgMgr.WatchConfig()

		// Flags override config
		host := serveHost
		if host == "" {
			host = cfgMgr.Get().Server.Host
		}
		port := servePort
		if port == 0 {
			port = cfgMgr.Get().Server.Port
		}

		// Create server
		srv, err := server.New(server.Config{
			Host:          host,
			Port:          port,
			Home:          h,
			ConfigManager: cfgMgr,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default from config)")

	rootCmd.AddCommand(serveCmd)
}
