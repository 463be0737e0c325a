package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctenopoma/issuer/internal/replica"
	"github.com/ctenopoma/issuer/internal/store"
)

var reactCmd = &cobra.Command{
	Use:   "react",
	Short: "Toggle reactions on issues and comments",
}

var reactIssueCmd = &cobra.Command{
	Use:   "issue <issue-id> <reaction>",
	Short: "Toggle your reaction on an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		issueID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			return toggleReaction(cmd, a, "issue_reactions", issueID, issueID, args[1])
		})
	},
}

var reactCommentCmd = &cobra.Command{
	Use:   "comment <comment-id> <reaction>",
	Short: "Toggle your reaction on a comment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		commentID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			issueID, err := a.store.CommentIssueID(cmd.Context(), commentID)
			if err != nil {
				return fmt.Errorf("comment %d not found", commentID)
			}
			return toggleReaction(cmd, a, "comment_reactions", commentID, issueID, args[1])
		})
	},
}

// toggleReaction flips the current user's reaction on a target and
// captures the change. targetID keys the reaction table; issueID is
// the parent issue whose updated_at is touched.
func toggleReaction(cmd *cobra.Command, a *app, table string, targetID, issueID int64, reaction string) error {
	ctx := cmd.Context()
	user := currentUser()

	exists, err := a.store.HasReaction(ctx, table, targetID, user, reaction)
	if err != nil {
		return err
	}

	if exists {
		if err := a.store.RemoveReaction(ctx, table, targetID, user, reaction); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", reaction)
	} else {
		if err := a.store.AddReaction(ctx, table, targetID, user, reaction, store.NowStamp()); err != nil {
			return err
		}
		fmt.Printf("Added %s\n", reaction)
	}
	a.capture(replica.ActionToggle, table, targetID, replica.ReactionToggle(user, reaction, exists))

	if stamp, err := a.store.TouchIssue(ctx, issueID); err == nil {
		a.capture(replica.ActionUpdate, "issues", issueID,
			replica.Fields{{Name: "updated_at", Value: stamp}})
	}
	return nil
}

func init() {
	reactCmd.AddCommand(reactIssueCmd, reactCommentCmd)
	rootCmd.AddCommand(reactCmd)
}
