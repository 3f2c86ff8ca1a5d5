// Package cli contains the gitviz commands, built with cobra.
//
//	gitviz serve   run the dashboard backend
//	gitviz stats   print a branch's committer statistics in the terminal
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sakif/gitviz/internal/config"
)

// NewRootCommand builds the command tree. Commands are constructed fresh
// on every call so tests can run them in isolation.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "gitviz",
		Short: "Dashboard backend for the git-analyser API.",
		Long: `gitviz signs users in against the git-analyser API, keeps their
access tokens renewed, and turns commit histories into chart-ready series.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "path to a gitviz.yaml config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(newServeCommand(), newStatsCommand())
	return root
}

// loadConfig reads the --config flag and loads configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the text logger every component receives. --verbose
// wins over log.level.
func newLogger(cmd *cobra.Command, w io.Writer, cfg *config.Config) *slog.Logger {
	level, _ := cfg.Log.SlogLevel()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
