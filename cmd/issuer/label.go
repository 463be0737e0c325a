package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctenopoma/issuer/internal/replica"
)

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Manage labels",
}

var labelSetCmd = &cobra.Command{
	Use:   "set <issue-id> [label...]",
	Short: "Replace an issue's entire label set",
	Long: `Replace all labels on an issue with the given list.

This is whole-set replacement: labels not listed are removed, listed
labels are created on demand. With no labels the issue ends up
unlabeled.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issueID, err := parseID(args[0])
		if err != nil {
			return err
		}
		labels := args[1:]

		return withApp(func(a *app) error {
			ctx := cmd.Context()
			if err := a.store.ReplaceIssueLabels(ctx, issueID, labels); err != nil {
				return err
			}
			a.capture(replica.ActionSet, "issue_labels", issueID, replica.LabelSet(labels))

			// Label changes count as activity on the issue.
			if stamp, err := a.store.TouchIssue(ctx, issueID); err == nil {
				a.capture(replica.ActionUpdate, "issues", issueID,
					replica.Fields{{Name: "updated_at", Value: stamp}})
			}

			fmt.Printf("Set %d label(s) on issue #%d\n", len(labels), issueID)
			return nil
		})
	},
}

var labelListCmd = &cobra.Command{
	Use:   "list [issue-id]",
	Short: "List all labels, or the labels of one issue",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			ctx := cmd.Context()

			var labels []string
			var err error
			if len(args) == 1 {
				issueID, perr := parseID(args[0])
				if perr != nil {
					return perr
				}
				labels, err = a.store.IssueLabels(ctx, issueID)
			} else {
				labels, err = a.store.AllLabels(ctx)
			}
			if err != nil {
				return err
			}

			for _, l := range labels {
				fmt.Println(l)
			}
			if len(labels) == 0 {
				fmt.Println("No labels found.")
			}
			return nil
		})
	},
}

func init() {
	labelCmd.AddCommand(labelSetCmd, labelListCmd)
	rootCmd.AddCommand(labelCmd)
}
