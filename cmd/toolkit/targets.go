package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/pkg/client"
	"github.com/spf13/cobra"
)

func newClient(cmd *cobra.Command) (*client.Client, error) {
	endpoint, err := cmd.Flags().GetString("endpoint")
	if err != nil {
		return nil, errors.New("failed to parse endpoint")
	}
	apiKey, err := cmd.Flags().GetString("api-key")
	if err != nil {
		return nil, errors.New("failed to parse api-key")
	}

	var opts []client.NewClientOption
	if apiKey != "" {
		opts = append(opts, client.NewClientAPIKey(apiKey))
	}
	return client.NewClient(endpoint, opts...)
}

func parseFID(arg string) (castsync.FID, error) {
	fid, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || fid == 0 {
		return 0, fmt.Errorf("invalid fid %q", arg)
	}
	return castsync.FID(fid), nil
}

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Target registry operations",
	Long:  `Add, remove, and list the targets a castsync node indexes`,
	Args:  cobra.ExactArgs(1),
}

var targetsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Registers a new target",
	Long:  `Registers a new target in the node and schedules its backfill`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fid, err := parseFID(args[0])
		if err != nil {
			return err
		}
		isRoot, err := cmd.Flags().GetBool("root")
		if err != nil {
			return errors.New("failed to parse root")
		}

		c, err := newClient(cmd)
		if err != nil {
			return fmt.Errorf("creating client: %s", err)
		}
		if err := c.AddTarget(cmd.Context(), fid, isRoot); err != nil {
			return fmt.Errorf("adding target: %s", err)
		}

		fmt.Printf("Target %d added (root=%v)\n", fid, isRoot)
		return nil
	},
}

var targetsRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Removes a target",
	Long:  `Removes a target from the node; its rows stay until pruned`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fid, err := parseFID(args[0])
		if err != nil {
			return err
		}

		c, err := newClient(cmd)
		if err != nil {
			return fmt.Errorf("creating client: %s", err)
		}
		if err := c.RemoveTarget(cmd.Context(), fid); err != nil {
			return fmt.Errorf("removing target: %s", err)
		}

		fmt.Printf("Target %d removed\n", fid)
		return nil
	},
}

var targetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists targets",
	Long:  `Lists the targets of the node with their sync status`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return errors.New("failed to parse limit")
		}
		offset, err := cmd.Flags().GetInt("offset")
		if err != nil {
			return errors.New("failed to parse offset")
		}
		syncStatus, err := cmd.Flags().GetString("sync-status")
		if err != nil {
			return errors.New("failed to parse sync-status")
		}

		c, err := newClient(cmd)
		if err != nil {
			return fmt.Errorf("creating client: %s", err)
		}
		response, err := c.ListTargets(cmd.Context(), client.ListTargetsQuery{
			Limit:      limit,
			Offset:     offset,
			SyncStatus: syncStatus,
		})
		if err != nil {
			return fmt.Errorf("listing targets: %s", err)
		}

		for _, target := range response.Targets {
			fmt.Printf("%d\troot=%v\tstatus=%s\n", target.FID, target.IsRoot, target.Status)
		}
		fmt.Printf("\n%d total, %d synced, %d unsynced, %d root\n",
			response.Counts.Total, response.Counts.Synced, response.Counts.Unsynced, response.Counts.Root)
		return nil
	},
}
