package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nehonix-edge/gatewaysupervisord/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration inspection commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse and validate configuration from the environment without starting anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromEnviron()
		if err != nil {
			return configError(err)
		}
		fmt.Printf("configuration OK: device_id=%s telemetry_endpoint=%s workers=%d\n",
			cfg.DeviceID, cfg.TelemetryEndpoint, len(cfg.Workers))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
