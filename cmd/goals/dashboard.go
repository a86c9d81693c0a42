package main

import (
	"fmt"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/isdelr/goals-be/internal/client"
	"github.com/spf13/cobra"
)

const dashboardDescriptionLen = 100

func (a *app) dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "dashboard",
		Short:       "Show goal counts and your most recent goals",
		Annotations: view(client.PathDashboard),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := a.goals.Summary(cmd.Context())
			if err != nil {
				return describe(err)
			}

			user := a.controller.State().User
			name := user.Username
			if name == "" {
				name = user.Name
			}
			fmt.Fprintf(a.out, "Welcome, %s!\n\n", name)

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Total goals:\t%d\n", summary.Total)
			fmt.Fprintf(w, "Completed:\t%d\n", summary.Completed)
			fmt.Fprintf(w, "In progress:\t%d\n", summary.InProgress)
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(a.out, "\nRecent goals:")
			if len(summary.Recent) == 0 {
				fmt.Fprintln(a.out, "  You have no goals yet. Add one with `goals goals add`.")
				return nil
			}
			for _, goal := range summary.Recent {
				mark := " "
				if goal.Completed {
					mark = "x"
				}
				fmt.Fprintf(a.out, "  [%s] %s: %s\n", mark, goal.Title, truncate(goal.Description, dashboardDescriptionLen))
			}
			return nil
		},
	}
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
