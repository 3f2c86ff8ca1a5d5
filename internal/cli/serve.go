package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sakif/gitviz/internal/server"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return fmt.Errorf("validate config: %w", err)
			}

			logger := newLogger(cmd, os.Stdout, cfg)

			// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
			if cfg.Session.DBPath != ":memory:" {
				if err := os.MkdirAll(filepath.Dir(cfg.Session.DBPath), 0o755); err != nil {
					return fmt.Errorf("creating database directory: %w", err)
				}
			}

			srv, err := server.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}

			// Start blocks until SIGINT or SIGTERM.
			return srv.Start()
		},
	}
}
