package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/spf13/cobra"
)

// messageTables are the tables exported by the snapshot command.
var messageTables = []string{
	"casts",
	"reactions",
	"links",
	"verifications",
	"user_data",
	"onchain_events",
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Exports the message tables to parquet files",
	Long:  `Exports the message tables of a node's SQLite database to parquet files using DuckDB`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := cmd.Flags().GetString("db")
		if err != nil {
			return errors.New("failed to parse db")
		}
		outDir, err := cmd.Flags().GetString("out")
		if err != nil {
			return errors.New("failed to parse out")
		}

		if _, err := os.Stat(dbPath); err != nil {
			return fmt.Errorf("database not found: %s", err)
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %s", err)
		}

		duck, err := sql.Open("duckdb", "")
		if err != nil {
			return fmt.Errorf("open duckdb: %s", err)
		}
		defer func() { _ = duck.Close() }()

		if _, err := duck.Exec("INSTALL sqlite; LOAD sqlite;"); err != nil {
			return fmt.Errorf("loading sqlite extension: %s", err)
		}
		if _, err := duck.Exec(fmt.Sprintf("ATTACH '%s' AS src (TYPE sqlite);", dbPath)); err != nil {
			return fmt.Errorf("attaching database: %s", err)
		}

		for _, table := range messageTables {
			outFile := filepath.Join(outDir, table+".parquet")
			copyStmt := fmt.Sprintf(
				"COPY (SELECT * FROM src.%s) TO '%s' (FORMAT parquet, COMPRESSION zstd);", table, outFile)
			if _, err := duck.Exec(copyStmt); err != nil {
				return fmt.Errorf("exporting %s: %s", table, err)
			}
			fmt.Printf("Exported %s\n", outFile)
		}

		return nil
	},
}
