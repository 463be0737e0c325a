package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctenopoma/issuer/internal/replica"
)

var commentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Manage comments",
}

var commentAddCmd = &cobra.Command{
	Use:   "add <issue-id> <body>",
	Short: "Add a comment to an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		issueID, err := parseID(args[0])
		if err != nil {
			return err
		}

		return withApp(func(a *app) error {
			ctx := cmd.Context()
			comment, err := a.store.AddComment(ctx, issueID, args[1], currentUser())
			if err != nil {
				return err
			}
			a.capture(replica.ActionInsert, "comments", comment.ID, replica.CommentInsert(comment))

			// Commenting counts as activity on the issue.
			if stamp, err := a.store.TouchIssue(ctx, issueID); err == nil {
				a.capture(replica.ActionUpdate, "issues", issueID,
					replica.Fields{{Name: "updated_at", Value: stamp}})
			}

			fmt.Printf("Added comment %d to issue #%d\n", comment.ID, issueID)
			return nil
		})
	},
}

var commentEditCmd = &cobra.Command{
	Use:   "edit <comment-id> <body>",
	Short: "Edit a comment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		return withApp(func(a *app) error {
			comment, err := a.store.UpdateComment(cmd.Context(), id, args[1])
			if err != nil {
				return fmt.Errorf("comment %d not found", id)
			}
			a.capture(replica.ActionUpdate, "comments", id, replica.CommentUpdate(comment))

			fmt.Printf("Updated comment %d\n", id)
			return nil
		})
	},
}

var commentDeleteCmd = &cobra.Command{
	Use:   "delete <comment-id>",
	Short: "Delete a comment (soft delete, replicated to peers)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		return withApp(func(a *app) error {
			stamp, err := a.store.SoftDeleteComment(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("comment %d not found", id)
			}
			a.capture(replica.ActionUpdate, "comments", id, replica.SoftDelete(stamp))

			fmt.Printf("Deleted comment %d\n", id)
			return nil
		})
	},
}

func init() {
	commentCmd.AddCommand(commentAddCmd, commentEditCmd, commentDeleteCmd)
	rootCmd.AddCommand(commentCmd)
}
