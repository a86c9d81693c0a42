// Command goals is a terminal client for the goals API.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/isdelr/goals-be/internal/client"
	"github.com/isdelr/goals-be/internal/logger"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// viewAnnotation names the view a command renders, for the route guard.
const viewAnnotation = "view"

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

type app struct {
	serverURL string
	dir       string
	verbose   bool

	controller *client.Controller
	goals      *client.Goals
	in         *bufio.Reader
	out        io.Writer
}

func main() {
	a := &app{in: bufio.NewReader(os.Stdin), out: os.Stdout}
	if err := a.rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "goals",
		Short:         "Track personal goals from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.prepare(cmd)
		},
	}

	defaultServer := os.Getenv("GOALS_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:5000"
	}
	root.PersistentFlags().StringVar(&a.serverURL, "server", defaultServer, "API base URL ($GOALS_SERVER)")
	root.PersistentFlags().StringVar(&a.dir, "session-dir", "", "directory holding the saved session (default: user config dir)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log requests and navigation")

	root.AddCommand(
		a.registerCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.profileCmd(),
		a.activityCmd(),
		a.dashboardCmd(),
		a.goalsCmd(),
	)
	return root
}

// prepare builds the session controller, restores the saved session and
// runs the route guard before the command prints anything.
func (a *app) prepare(cmd *cobra.Command) error {
	level := "warn"
	if a.verbose {
		level = "debug"
	}
	if err := logger.Init(level, "console"); err != nil {
		return err
	}

	dir := a.dir
	if dir == "" {
		var err error
		if dir, err = client.DefaultDir(); err != nil {
			return fmt.Errorf("locating session dir: %w", err)
		}
	}

	nav := client.NavigatorFunc(func(path string) {
		log.Debug().Str("view", path).Msg("Navigate")
	})
	a.controller = client.NewController(a.serverURL, client.NewFileStore(dir), client.WithNavigator(nav))
	a.goals = client.NewGoals(a.controller)
	if err := a.controller.Rehydrate(); err != nil {
		return err
	}

	view := viewOf(cmd)
	if view == "" {
		return nil
	}
	decision := client.Guard(a.controller.State(), view)
	if decision.Allow {
		return nil
	}
	if strings.HasPrefix(decision.Redirect, client.PathLogin) {
		return errors.New("you are not logged in; run `goals login` or `goals register` first")
	}
	return fmt.Errorf("already logged in as %s; run `goals logout` first", a.controller.State().User.Username)
}

// viewOf returns the view annotation of cmd or its closest ancestor.
func viewOf(cmd *cobra.Command) string {
	for c := cmd; c != nil; c = c.Parent() {
		if view, ok := c.Annotations[viewAnnotation]; ok {
			return view
		}
	}
	return ""
}

func view(path string) map[string]string {
	return map[string]string{viewAnnotation: path}
}

// prompt reads one trimmed line after printing label.
func (a *app) prompt(label string) (string, error) {
	fmt.Fprintf(a.out, "%s: ", label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a password without echo.
func (a *app) promptPassword(label string) (string, error) {
	fmt.Fprintf(a.out, "%s: ", label)
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(a.out)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// describe turns client errors into something to print.
func describe(err error) error {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		return errors.New("your session expired; run `goals login` again")
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return errors.New(apiErr.Message)
	}
	return err
}
