package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var queuesCmd = &cobra.Command{
	Use:   "queues",
	Short: "Job queue operations",
	Long:  `Inspect and control the job queues of a castsync node`,
	Args:  cobra.ExactArgs(1),
}

var queuesCountsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Shows the job counts of a queue",
	Long:  `Shows the job counts of a queue`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return fmt.Errorf("creating client: %s", err)
		}
		counts, err := c.QueueCounts(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("getting queue counts: %s", err)
		}

		fmt.Printf("active: %d\nwaiting: %d\ncompleted: %d\nfailed: %d\ndelayed: %d\npaused: %v\n",
			counts.Active, counts.Waiting, counts.Completed, counts.Failed, counts.Delayed, counts.Paused)
		return nil
	},
}

var queuesPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pauses a queue",
	Long:  `Stops workers from picking up jobs of a queue`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return fmt.Errorf("creating client: %s", err)
		}
		if err := c.PauseQueue(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("pausing queue: %s", err)
		}

		fmt.Printf("Queue %s paused\n", args[0])
		return nil
	},
}

var queuesResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resumes a paused queue",
	Long:  `Resumes a paused queue`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return fmt.Errorf("creating client: %s", err)
		}
		if err := c.ResumeQueue(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("resuming queue: %s", err)
		}

		fmt.Printf("Queue %s resumed\n", args[0])
		return nil
	},
}

var queuesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clears a queue",
	Long:  `Drops all pending jobs of a queue`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return fmt.Errorf("creating client: %s", err)
		}
		if err := c.ClearQueue(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("clearing queue: %s", err)
		}

		fmt.Printf("Queue %s cleared\n", args[0])
		return nil
	},
}
