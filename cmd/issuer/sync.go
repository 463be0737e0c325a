package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ctenopoma/issuer/internal/replica"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the replication loop until interrupted",
	Long: `Replay peers' change records into the local working copy.

The loop scans the shared outbox every few seconds (and immediately
when a new record appears), applies foreign records and skips records
this machine produced. On interrupt the outbox is consolidated into
the authoritative database before exiting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			applier := replica.NewApplier(a.store, a.logger)
			rep := replica.NewReplicator(a.outbox, applier, replica.ReplicatorConfig{
				Interval: a.cfg.PollInterval,
				Logger:   a.logger,
				OnChange: func() {
					fmt.Println("Remote changes applied.")
				},
			})

			fmt.Printf("Watching %s (machine %s), Ctrl-C to stop...\n",
				a.outbox.Dir(), a.cfg.MachineName)
			err := rep.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			// Shutdown consolidation folds the outbox into the
			// authoritative file.
			fmt.Println("Consolidating before exit...")
			return runMerge(a)
		})
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Consolidate outstanding change records into the master database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(runMerge)
	},
}

// runMerge checkpoints the local copy and runs the merge coordinator.
func runMerge(a *app) error {
	// The local copy seeds the master on first merge; checkpoint so
	// the file on disk is complete.
	if err := a.store.Checkpoint(); err != nil {
		a.logger.Printf("Warning: checkpoint before merge failed: %v", err)
	}

	lock := replica.NewMergeLock(a.cfg.MergeLockPath(), a.cfg.MachineName,
		a.cfg.LockRetries, a.cfg.LockRetryDelay, a.cfg.LockStaleAfter, a.logger)
	merger := replica.NewMerger(a.outbox, lock,
		a.cfg.MasterDBPath(), a.cfg.LocalDBPath(), a.cfg.DataDir, a.logger)

	err := merger.Merge(context.Background())
	if errors.Is(err, replica.ErrLockBusy) {
		fmt.Println("Another machine is consolidating; records kept for the next attempt.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println("Merge complete.")
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			names, err := a.outbox.List()
			if err != nil {
				return err
			}

			own, foreign := 0, 0
			for _, name := range names {
				if replica.FromOrigin(name, a.cfg.MachineName) {
					own++
				} else {
					foreign++
				}
			}

			fmt.Printf("Machine:       %s\n", a.cfg.MachineName)
			fmt.Printf("Shared dir:    %s\n", a.cfg.SharedDir)
			fmt.Printf("Local copy:    %s\n", a.cfg.LocalDBPath())
			fmt.Printf("Pending:       %d record(s) (%d ours, %d from peers)\n",
				len(names), own, foreign)

			lock := replica.NewMergeLock(a.cfg.MergeLockPath(), a.cfg.MachineName,
				a.cfg.LockRetries, a.cfg.LockRetryDelay, a.cfg.LockStaleAfter, a.logger)
			if holder := lock.Holder(); holder != "" {
				fmt.Printf("Merge lock:    held by %s\n", holder)
			} else {
				fmt.Printf("Merge lock:    free\n")
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(watchCmd, mergeCmd, statusCmd)
}
