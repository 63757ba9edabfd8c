package main

import (
	"github.com/spf13/cobra"
)

var cliName = "toolkit"

var rootCmd = &cobra.Command{
	Use:   cliName,
	Short: "toolkit is a CLI for castsync operators",
	Long:  `toolkit is a CLI for castsync operators executing mundane tasks`,
	Args:  cobra.ExactArgs(0),
}

func main() {
	rootCmd.Execute() //nolint
}

func init() {
	rootCmd.PersistentFlags().String("endpoint", "http://localhost:8080", "URL of a running castsync node")
	rootCmd.PersistentFlags().String("api-key", "", "api key for the admin API")

	targetsAddCmd.Flags().Bool("root", false, "register the target as root")
	targetsListCmd.Flags().Int("limit", 50, "maximum amount of targets to list")
	targetsListCmd.Flags().Int("offset", 0, "listing offset")
	targetsListCmd.Flags().String("sync-status", "", "filter by sync status (synced, unsynced, waiting)")
	targetsCmd.AddCommand(targetsAddCmd)
	targetsCmd.AddCommand(targetsRemoveCmd)
	targetsCmd.AddCommand(targetsListCmd)
	rootCmd.AddCommand(targetsCmd)

	queuesCmd.AddCommand(queuesCountsCmd)
	queuesCmd.AddCommand(queuesPauseCmd)
	queuesCmd.AddCommand(queuesResumeCmd)
	queuesCmd.AddCommand(queuesClearCmd)
	rootCmd.AddCommand(queuesCmd)

	rootCmd.AddCommand(statusCmd)

	snapshotCmd.Flags().String("db", "castsync.db", "path of the node's SQLite database")
	snapshotCmd.Flags().String("out", "snapshot", "directory to write the parquet files to")
	rootCmd.AddCommand(snapshotCmd)

	restoreCmd.Flags().String("url", "", "URL of a compressed backup file")
	restoreCmd.Flags().String("db", "castsync.db", "path to place the restored SQLite database at")
	rootCmd.AddCommand(restoreCmd)
}
