package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ctenopoma/issuer/internal/replica"
	"github.com/ctenopoma/issuer/internal/store"
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage issues",
}

var issueCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, _ := cmd.Flags().GetString("body")
		assignee, _ := cmd.Flags().GetString("assignee")

		return withApp(func(a *app) error {
			issue, err := a.store.CreateIssue(cmd.Context(), args[0], body, currentUser(), assignee)
			if err != nil {
				return err
			}
			a.capture(replica.ActionInsert, "issues", issue.ID, replica.IssueInsert(issue))

			fmt.Printf("Created issue #%d: %s\n", issue.ID, issue.Title)
			return nil
		})
	},
}

var issueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues, most recently updated first",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		assignee, _ := cmd.Flags().GetString("assignee")
		limit, _ := cmd.Flags().GetInt("limit")

		return withApp(func(a *app) error {
			issues, err := a.store.ListIssues(cmd.Context(), store.IssueFilter{
				Status:   status,
				Assignee: assignee,
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			for _, issue := range issues {
				fmt.Printf("#%-5d %-8s %s\n", issue.ID, issue.Status, issue.Title)
			}
			if len(issues) == 0 {
				fmt.Println("No issues found.")
			}
			return nil
		})
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one issue with comments, labels and reactions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		return withApp(func(a *app) error {
			ctx := cmd.Context()
			issue, err := a.store.GetIssue(ctx, id)
			if err != nil {
				return fmt.Errorf("issue #%d not found", id)
			}

			fmt.Printf("#%d %s [%s]\n", issue.ID, issue.Title, issue.Status)
			fmt.Printf("by %s, assignee %q, updated %s\n", issue.CreatedBy, issue.Assignee, issue.UpdatedAt)
			if issue.IsDeleted {
				fmt.Println("(deleted)")
			}
			if issue.Body != "" {
				fmt.Printf("\n%s\n", issue.Body)
			}

			if labels, err := a.store.IssueLabels(ctx, id); err == nil && len(labels) > 0 {
				fmt.Printf("\nLabels: %v\n", labels)
			}
			if reactions, err := a.store.ListReactions(ctx, "issue_reactions", id); err == nil && len(reactions) > 0 {
				fmt.Println("\nReactions:")
				for _, r := range reactions {
					fmt.Printf("  %s by %s\n", r.Reaction, r.ReactedBy)
				}
			}
			if comments, err := a.store.ListComments(ctx, id); err == nil && len(comments) > 0 {
				fmt.Println("\nComments:")
				for _, c := range comments {
					fmt.Printf("  [%d] %s (%s): %s\n", c.ID, c.CreatedBy, c.CreatedAt, c.Body)
				}
			}
			return nil
		})
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update an issue's fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		return withApp(func(a *app) error {
			ctx := cmd.Context()
			issue, err := a.store.GetIssue(ctx, id)
			if err != nil {
				return fmt.Errorf("issue #%d not found", id)
			}

			title := stringFlagOr(cmd, "title", issue.Title)
			body := stringFlagOr(cmd, "body", issue.Body)
			status := stringFlagOr(cmd, "status", issue.Status)
			assignee := stringFlagOr(cmd, "assignee", issue.Assignee)

			milestoneID := issue.MilestoneID
			if cmd.Flags().Changed("milestone") {
				m, _ := cmd.Flags().GetInt64("milestone")
				if m > 0 {
					milestoneID = &m
				} else {
					milestoneID = nil
				}
			}

			updated, err := a.store.UpdateIssue(ctx, id, title, body, status, assignee, milestoneID)
			if err != nil {
				return err
			}
			a.capture(replica.ActionUpdate, "issues", id, replica.IssueUpdate(updated))

			fmt.Printf("Updated issue #%d\n", id)
			return nil
		})
	},
}

var issueCloseCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		return withApp(func(a *app) error {
			ctx := cmd.Context()
			issue, err := a.store.GetIssue(ctx, id)
			if err != nil {
				return fmt.Errorf("issue #%d not found", id)
			}

			updated, err := a.store.UpdateIssue(ctx, id, issue.Title, issue.Body, store.StatusClosed, issue.Assignee, issue.MilestoneID)
			if err != nil {
				return err
			}
			a.capture(replica.ActionUpdate, "issues", id, replica.IssueUpdate(updated))

			fmt.Printf("Closed issue #%d\n", id)
			return nil
		})
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an issue (soft delete, replicated to peers)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		return withApp(func(a *app) error {
			stamp, err := a.store.SoftDeleteIssue(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("issue #%d not found", id)
			}
			a.capture(replica.ActionUpdate, "issues", id, replica.SoftDelete(stamp))

			fmt.Printf("Deleted issue #%d\n", id)
			return nil
		})
	},
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// stringFlagOr returns the flag value when set, else the fallback.
func stringFlagOr(cmd *cobra.Command, name, fallback string) string {
	if cmd.Flags().Changed(name) {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return fallback
}

func init() {
	issueCreateCmd.Flags().String("body", "", "issue body text")
	issueCreateCmd.Flags().String("assignee", "", "assignee user name")

	issueListCmd.Flags().String("status", "", "filter by status (OPEN, CLOSED)")
	issueListCmd.Flags().String("assignee", "", "filter by assignee")
	issueListCmd.Flags().Int("limit", 0, "maximum number of issues")

	issueUpdateCmd.Flags().String("title", "", "new title")
	issueUpdateCmd.Flags().String("body", "", "new body")
	issueUpdateCmd.Flags().String("status", "", "new status")
	issueUpdateCmd.Flags().String("assignee", "", "new assignee")
	issueUpdateCmd.Flags().Int64("milestone", 0, "milestone id (0 clears)")

	issueCmd.AddCommand(issueCreateCmd, issueListCmd, issueShowCmd,
		issueUpdateCmd, issueCloseCmd, issueDeleteCmd)
	rootCmd.AddCommand(issueCmd)
}
