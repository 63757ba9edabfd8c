package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castsync/go-castsync/pkg/backup/restorer"
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restores a node database from a published backup",
	Long:  `Restores a node database from a compressed backup file URL, verifying the result before use`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := cmd.Flags().GetString("url")
		if err != nil {
			return errors.New("failed to parse url")
		}
		if url == "" {
			return errors.New("url is required")
		}
		dbPath, err := cmd.Flags().GetString("db")
		if err != nil {
			return errors.New("failed to parse db")
		}

		r, err := restorer.NewRestorer(url, dbPath)
		if err != nil {
			return fmt.Errorf("creating restorer: %s", err)
		}
		if err := r.Restore(cmd.Context()); err != nil {
			return fmt.Errorf("restoring: %s", err)
		}
		fmt.Printf("Restored %s\n", dbPath)

		return nil
	},
}
