package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/petal-labs/vendwatch/config"
)

// newLogger builds the slog logger for a command. --verbose forces debug
// level and --quiet limits output to errors.
func newLogger(cmd *cobra.Command, lc config.LogConfig) (*slog.Logger, error) {
	level, err := config.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		level = slog.LevelError
	}
	return slog.New(newLogHandler(cmd.ErrOrStderr(), lc.Format, level)), nil
}

func newLogHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
