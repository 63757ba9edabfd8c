package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows the sync status of a node",
	Long:  `Shows the cursor position, cache invariants, and worker liveness of a node`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return fmt.Errorf("creating client: %s", err)
		}
		status, err := c.Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting status: %s", err)
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(status)
	},
}
