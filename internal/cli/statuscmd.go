package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nehonix-edge/gatewaysupervisord/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the most recent metrics snapshot left by a prior run (best-effort, local-only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := os.Getenv("GWSV_STATE_DIR")
		if dir == "" {
			dir = config.Default().StateDir
		}

		data, err := os.ReadFile(dir + "/last_metrics_snapshot.txt")
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Println("no metrics snapshot found; the supervisor may not have shut down cleanly yet")
				return nil
			}
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}
