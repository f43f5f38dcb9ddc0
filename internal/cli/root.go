package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nehonix-edge/gatewaysupervisord/internal/gwerr"
)

// exitError lets a subcommand pick its own process exit code (0 clean
// shutdown, 1 fatal configuration error, 2 unrecoverable startup failure)
// while still surfacing through cobra's ordinary error return path.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configError(err error) error  { return &exitError{code: 1, err: err} }
func startupError(err error) error { return &exitError{code: 2, err: err} }

// IsConfigError reports whether err (as returned by Execute, or any
// subcommand's RunE) represents the fatal configuration-error class.
func IsConfigError(err error) bool {
	var ee *exitError
	if asExitError(err, &ee) {
		return ee.code == 1
	}
	return gwerr.Is(err, gwerr.KindConfig)
}

func asExitError(err error, target **exitError) bool {
	ee, ok := err.(*exitError)
	if ok {
		*target = ee
	}
	return ok
}

var rootCmd = &cobra.Command{
	Use:           "gatewaysupervisord",
	Short:         "Edge/IoT gateway process supervisor",
	Long:          "gatewaysupervisord supervises a fleet of local worker processes, watches host vitals, and relays telemetry with store-and-forward durability.",
	SilenceErrors: true,
	SilenceUsage:  true,
	// Bare invocation behaves exactly like `run`.
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRun()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(statusCmd)
}

// Execute runs the root command and terminates the process with the exit
// code matching the error it got back, if any.
func Execute() error {
	err := rootCmd.Execute()
	if err == nil {
		return nil
	}

	code := 1
	var ee *exitError
	if asExitError(err, &ee) {
		code = ee.code
		err = ee.err
	}

	fmt.Fprintf(os.Stderr, "gatewaysupervisord: %v\n", err)
	os.Exit(code)
	return nil
}
