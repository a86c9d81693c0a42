package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/isdelr/goals-be/internal/client"
	"github.com/isdelr/goals-be/internal/models"
	"github.com/spf13/cobra"
)

func (a *app) registerCmd() *cobra.Command {
	var in models.RegisterInput

	cmd := &cobra.Command{
		Use:         "register",
		Short:       "Create an account and log in",
		Annotations: view(client.PathRegister),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if in.Username == "" {
				if in.Username, err = a.prompt("Username"); err != nil {
					return err
				}
			}
			if in.Email == "" {
				if in.Email, err = a.prompt("Email"); err != nil {
					return err
				}
			}
			if in.Password, err = a.promptPassword("Password"); err != nil {
				return err
			}

			if err := a.controller.Register(cmd.Context(), in); err != nil {
				return describe(err)
			}
			fmt.Fprintf(a.out, "Welcome, %s!\n", a.controller.State().User.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Username, "username", "", "username")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	return cmd
}

func (a *app) loginCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:         "login",
		Short:       "Log in with email and password",
		Annotations: view(client.PathLogin),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if email == "" {
				if email, err = a.prompt("Email"); err != nil {
					return err
				}
			}
			password, err := a.promptPassword("Password")
			if err != nil {
				return err
			}

			if err := a.controller.Login(cmd.Context(), email, password); err != nil {
				return describe(err)
			}
			fmt.Fprintf(a.out, "Logged in as %s.\n", a.controller.State().User.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.controller.Logout()
			fmt.Fprintln(a.out, "Logged out.")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "whoami",
		Short:       "Show the logged-in account",
		Annotations: view("/profile"),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := a.controller.Profile(cmd.Context())
			if err != nil {
				return describe(err)
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Username:\t%s\n", profile.Username)
			fmt.Fprintf(w, "Name:\t%s\n", profile.Name)
			fmt.Fprintf(w, "Email:\t%s\n", profile.Email)
			return w.Flush()
		},
	}
}

func (a *app) profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "profile",
		Short:       "Change or delete your account",
		Annotations: view("/profile"),
	}

	var (
		username, name, email string
		changePassword        bool
	)
	update := &cobra.Command{
		Use:   "update",
		Short: "Update profile fields; only the flags you pass change",
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd models.ProfileUpdate
			if cmd.Flags().Changed("username") {
				upd.Username = &username
			}
			if cmd.Flags().Changed("name") {
				upd.Name = &name
			}
			if cmd.Flags().Changed("email") {
				upd.Email = &email
			}
			if changePassword {
				current, err := a.promptPassword("Current password")
				if err != nil {
					return err
				}
				next, err := a.promptPassword("New password")
				if err != nil {
					return err
				}
				upd.CurrentPassword, upd.NewPassword = &current, &next
			}
			if upd == (models.ProfileUpdate{}) {
				return errors.New("nothing to update; pass --username, --name, --email or --password")
			}

			profile, err := a.controller.UpdateProfile(cmd.Context(), upd)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(a.out, "Profile updated for %s.\n", profile.Username)
			return nil
		},
	}
	update.Flags().StringVar(&username, "username", "", "new username")
	update.Flags().StringVar(&name, "name", "", "new display name")
	update.Flags().StringVar(&email, "email", "", "new email address")
	update.Flags().BoolVar(&changePassword, "password", false, "change the password (prompts)")

	var yes bool
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete your account and all of its goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				answer, err := a.prompt("Delete your account and every goal? Type 'yes' to confirm")
				if err != nil {
					return err
				}
				if !strings.EqualFold(answer, "yes") {
					fmt.Fprintln(a.out, "Aborted.")
					return nil
				}
			}
			if err := a.controller.DeleteAccount(cmd.Context()); err != nil {
				return describe(err)
			}
			fmt.Fprintln(a.out, "Account deleted.")
			return nil
		},
	}
	deleteCmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")

	cmd.AddCommand(update, deleteCmd)
	return cmd
}

func (a *app) activityCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:         "activity",
		Short:       "Show recent account activity",
		Annotations: view("/profile"),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := a.controller.Activity(cmd.Context(), limit)
			if err != nil {
				return describe(err)
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tTYPE\tMESSAGE")
			for _, e := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.CreatedAt.Local().Format(time.DateTime), e.Type, e.Message)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events")
	return cmd
}
