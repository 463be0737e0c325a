package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctenopoma/issuer/internal/replica"
)

var milestoneCmd = &cobra.Command{
	Use:   "milestone",
	Short: "Manage milestones",
}

var milestoneCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a milestone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		start, _ := cmd.Flags().GetString("start")
		due, _ := cmd.Flags().GetString("due")

		return withApp(func(a *app) error {
			m, err := a.store.CreateMilestone(cmd.Context(), args[0], description, start, due)
			if err != nil {
				return err
			}
			a.capture(replica.ActionInsert, "milestones", m.ID, replica.MilestoneInsert(m))

			fmt.Printf("Created milestone %d: %s\n", m.ID, m.Title)
			return nil
		})
	},
}

var milestoneUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a milestone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		return withApp(func(a *app) error {
			ctx := cmd.Context()
			m, err := a.store.GetMilestone(ctx, id)
			if err != nil {
				return fmt.Errorf("milestone %d not found", id)
			}

			title := stringFlagOr(cmd, "title", m.Title)
			description := stringFlagOr(cmd, "description", m.Description)
			start := stringFlagOr(cmd, "start", m.StartDate)
			due := stringFlagOr(cmd, "due", m.DueDate)
			status := stringFlagOr(cmd, "status", m.Status)

			updated, err := a.store.UpdateMilestone(ctx, id, title, description, start, due, status)
			if err != nil {
				return err
			}
			a.capture(replica.ActionUpdate, "milestones", id, replica.MilestoneUpdate(updated))

			fmt.Printf("Updated milestone %d\n", id)
			return nil
		})
	},
}

var milestoneListCmd = &cobra.Command{
	Use:   "list",
	Short: "List milestones ordered by due date",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			milestones, err := a.store.ListMilestones(cmd.Context())
			if err != nil {
				return err
			}

			for _, m := range milestones {
				due := m.DueDate
				if due == "" {
					due = "-"
				}
				fmt.Printf("%-5d %-10s due %-12s %s\n", m.ID, m.Status, due, m.Title)
			}
			if len(milestones) == 0 {
				fmt.Println("No milestones found.")
			}
			return nil
		})
	},
}

var milestoneDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a milestone (soft delete, replicated to peers)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		return withApp(func(a *app) error {
			stamp, err := a.store.SoftDeleteMilestone(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("milestone %d not found", id)
			}
			a.capture(replica.ActionUpdate, "milestones", id, replica.SoftDelete(stamp))

			fmt.Printf("Deleted milestone %d\n", id)
			return nil
		})
	},
}

func init() {
	milestoneCreateCmd.Flags().String("description", "", "milestone description")
	milestoneCreateCmd.Flags().String("start", "", "start date (YYYY-MM-DD)")
	milestoneCreateCmd.Flags().String("due", "", "due date (YYYY-MM-DD)")

	milestoneUpdateCmd.Flags().String("title", "", "new title")
	milestoneUpdateCmd.Flags().String("description", "", "new description")
	milestoneUpdateCmd.Flags().String("start", "", "new start date")
	milestoneUpdateCmd.Flags().String("due", "", "new due date")
	milestoneUpdateCmd.Flags().String("status", "", "new status (planned, active, completed)")

	milestoneCmd.AddCommand(milestoneCreateCmd, milestoneUpdateCmd,
		milestoneListCmd, milestoneDeleteCmd)
	rootCmd.AddCommand(milestoneCmd)
}
