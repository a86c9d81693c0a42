package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/isdelr/goals-be/internal/models"
	"github.com/spf13/cobra"
)

func (a *app) goalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "goals",
		Short:       "List and manage your goals",
		Annotations: view("/goals"),
	}
	cmd.AddCommand(
		a.goalsListCmd(),
		a.goalsShowCmd(),
		a.goalsAddCmd(),
		a.goalsEditCmd(),
		a.goalsDoneCmd(),
		a.goalsRemoveCmd(),
	)
	return cmd
}

func (a *app) goalsListCmd() *cobra.Command {
	var status, sort string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := models.ParseGoalFilter(status, sort)
			if err != nil {
				return err
			}
			goals, err := a.goals.List(cmd.Context(), filter)
			if err != nil {
				return describe(err)
			}
			if len(goals) == 0 {
				fmt.Fprintln(a.out, "No goals yet. Add one with `goals goals add`.")
				return nil
			}
			return printGoals(a.out, goals)
		},
	}
	cmd.Flags().StringVar(&status, "status", models.StatusAll, "all, completed or active")
	cmd.Flags().StringVar(&sort, "sort", models.SortRecent, "recent, priority, deadline or alpha")
	return cmd
}

func (a *app) goalsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			goal, err := a.goals.Get(cmd.Context(), args[0])
			if err != nil {
				return describe(err)
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "ID:\t%s\n", goal.ID)
			fmt.Fprintf(w, "Title:\t%s\n", goal.Title)
			fmt.Fprintf(w, "Description:\t%s\n", goal.Description)
			fmt.Fprintf(w, "Priority:\t%s\n", goal.Priority)
			fmt.Fprintf(w, "Deadline:\t%s\n", formatDeadline(goal.Deadline))
			fmt.Fprintf(w, "Completed:\t%t\n", goal.Completed)
			fmt.Fprintf(w, "Updated:\t%s\n", goal.UpdatedAt.Local().Format(time.DateTime))
			return w.Flush()
		},
	}
}

func (a *app) goalsAddCmd() *cobra.Command {
	var (
		in                 models.GoalInput
		deadline, priority string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a goal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deadline != "" {
				t, err := models.ParseDeadline(deadline)
				if err != nil {
					return err
				}
				in.Deadline = models.DeadlineAt(t)
			}
			in.Priority = models.Priority(priority)

			goal, err := a.goals.Create(cmd.Context(), in)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(a.out, "Added %q (%s).\n", goal.Title, goal.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "goal title")
	cmd.Flags().StringVar(&in.Description, "description", "", "goal description")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline as YYYY-MM-DD")
	cmd.Flags().StringVar(&priority, "priority", "", "Baixa, Média or Alta (default Média)")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("description")
	return cmd
}

func (a *app) goalsEditCmd() *cobra.Command {
	var (
		title, description, deadline, priority string
		version                                int64
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change the fields you pass",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd models.GoalUpdate
			flags := cmd.Flags()
			if flags.Changed("title") {
				upd.Title = &title
			}
			if flags.Changed("description") {
				upd.Description = &description
			}
			if flags.Changed("priority") {
				p := models.Priority(priority)
				upd.Priority = &p
			}
			if flags.Changed("deadline") {
				upd.Deadline = models.Deadline{Set: true}
				if deadline != "" {
					t, err := models.ParseDeadline(deadline)
					if err != nil {
						return err
					}
					upd.Deadline.Value = &t
				}
			}
			if flags.Changed("version") {
				upd.Version = &version
			}

			goal, err := a.goals.Update(cmd.Context(), args[0], upd)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(a.out, "Updated %q (version %d).\n", goal.Title, goal.Version)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&deadline, "deadline", "", "new deadline as YYYY-MM-DD, empty to clear")
	cmd.Flags().StringVar(&priority, "priority", "", "Baixa, Média or Alta")
	cmd.Flags().Int64Var(&version, "version", 0, "fail if the goal changed since this version")
	return cmd
}

func (a *app) goalsDoneCmd() *cobra.Command {
	var undo bool

	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a goal completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			completed := !undo
			goal, err := a.goals.Update(cmd.Context(), args[0], models.GoalUpdate{Completed: &completed})
			if err != nil {
				return describe(err)
			}
			state := "completed"
			if !goal.Completed {
				state = "active"
			}
			fmt.Fprintf(a.out, "%q is %s.\n", goal.Title, state)
			return nil
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "mark the goal active again")
	return cmd
}

func (a *app) goalsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a goal",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.goals.Delete(cmd.Context(), args[0]); err != nil {
				return describe(err)
			}
			fmt.Fprintln(a.out, "Deleted.")
			return nil
		},
	}
}

func printGoals(out io.Writer, goals []models.Goal) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDONE\tPRIORITY\tDEADLINE\tTITLE")
	for _, g := range goals {
		done := " "
		if g.Completed {
			done = "x"
		}
		fmt.Fprintf(w, "%s\t[%s]\t%s\t%s\t%s\n", g.ID, done, g.Priority, formatDeadline(g.Deadline), g.Title)
	}
	return w.Flush()
}

func formatDeadline(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.DateOnly)
}
