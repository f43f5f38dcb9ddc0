package cli

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nehonix-edge/gatewaysupervisord/internal/config"
	"github.com/nehonix-edge/gatewaysupervisord/internal/supervisor"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load configuration, start the supervisor, and block until shutdown",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRun()
	},
}

func doRun() error {
	cfg, err := config.FromEnviron()
	if err != nil {
		return configError(err)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogPretty)
	logger.Info().Str("device_id", cfg.DeviceID).Int("worker_count", len(cfg.Workers)).Msg("starting gatewaysupervisord")

	sup, err := supervisor.New(cfg, logger)
	if err != nil {
		return startupError(err)
	}

	sup.Run()
	return nil
}

// newLogger builds the process-wide zerolog.Logger from the resolved
// log_level; an unrecognized level falls back to info rather than failing
// startup.
func newLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var w = os.Stderr
	logger := zerolog.New(w).With().Timestamp().Logger().Level(lvl)
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger().Level(lvl)
	}
	return logger
}
