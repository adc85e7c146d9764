package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"conduit/internal/logging"
	"conduit/internal/web"
	"conduit/pkg/claude"
	"conduit/pkg/config"
	"conduit/pkg/events"
	"conduit/pkg/msgstore"
)

// newServeCmd starts the HTTP daemon: database, change-event service, and
// SSE/API server.
func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the conduit daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			logger := logging.New(debug)
			defer func() { _ = logger.Sync() }()

			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return err
			}

			svc, db, err := events.Open(cmd.Context(), cfg.ResolveDBPath(), logger)
			if err != nil {
				return err
			}
			defer db.Close()
			defer svc.Close()

			exec := &claude.Executor{
				Command: cfg.ClaudeCommand,
				Logger:  logger.Named("claude"),
			}

			if !debug {
				gin.SetMode(gin.ReleaseMode)
			}
			server := web.NewServer(db, svc, msgstore.NewRegistry(), exec, logger)

			logger.Info("conduit listening",
				zap.String("addr", cfg.Listen),
				zap.String("db", cfg.ResolveDBPath()))
			return server.Run(cfg.Listen)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "config file (default ~/"+config.DefaultPath+")")
	cmd.Flags().StringVar(&listen, "listen", "", "listen address override")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	return cmd
}
