package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/andrejsstepanovs/supadiag/accounts"
)

func newUsersCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Look up user profiles",
	}

	find := &cobra.Command{
		Use:   "find <email>",
		Short: "Find a profile by email",
		Args:  cobra.ExactArgs(1),
		RunE:  app.handleUsersFind,
	}

	var since time.Duration
	var limit int
	recent := &cobra.Command{
		Use:   "recent",
		Short: "List profiles created recently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.handleUsersRecent(since, limit)
		},
	}
	recent.Flags().DurationVar(&since, "since", 7*24*time.Hour, "how far back to look")
	recent.Flags().IntVar(&limit, "limit", 50, "maximum rows")

	cmd.AddCommand(find, recent)
	return cmd
}

func newAuthCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Exercise the auth service with the anon key",
	}

	reset := &cobra.Command{
		Use:   "reset-password <email>",
		Short: "Send a password reset email",
		Args:  cobra.ExactArgs(1),
		RunE:  app.handleAuthReset,
	}

	var name string
	signup := &cobra.Command{
		Use:   "signup <email> <password>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.handleAuthSignUp(args[0], args[1], name)
		},
	}
	signup.Flags().StringVar(&name, "name", "", "full name stored in the user metadata")

	signin := &cobra.Command{
		Use:   "signin <email> <password>",
		Short: "Sign in and report the session, never the token",
		Args:  cobra.ExactArgs(2),
		RunE:  app.handleAuthSignIn,
	}

	cmd.AddCommand(reset, signup, signin)
	return cmd
}

// accounts needs the service role key for profile reads and the anon key for auth.
func (a *App) accounts(rows bool) (*accounts.Service, error) {
	if rows {
		client, err := a.backend(true)
		if err != nil {
			return nil, err
		}
		return accounts.New(client, nil, a.log), nil
	}

	client, err := a.backend(false)
	if err != nil {
		return nil, err
	}
	return accounts.New(nil, client, a.log), nil
}

func (a *App) handleUsersFind(cmd *cobra.Command, args []string) error {
	svc, err := a.accounts(true)
	if err != nil {
		return err
	}
	profile, err := svc.Find(args[0])
	if err != nil {
		return err
	}
	return a.print(accounts.Profiles{*profile})
}

func (a *App) handleUsersRecent(since time.Duration, limit int) error {
	svc, err := a.accounts(true)
	if err != nil {
		return err
	}
	profiles, err := svc.Recent(since, limit)
	if err != nil {
		return err
	}
	return a.print(profiles)
}

func (a *App) handleAuthReset(cmd *cobra.Command, args []string) error {
	svc, err := a.accounts(false)
	if err != nil {
		return err
	}
	if err := svc.ResetPassword(args[0]); err != nil {
		return err
	}
	return a.print(fmt.Sprintf("password reset email requested for %s", args[0]))
}

func (a *App) handleAuthSignUp(email, password, name string) error {
	svc, err := a.accounts(false)
	if err != nil {
		return err
	}
	res, err := svc.SignUp(email, password, name)
	if err != nil {
		return err
	}
	return a.print(res)
}

func (a *App) handleAuthSignIn(cmd *cobra.Command, args []string) error {
	svc, err := a.accounts(false)
	if err != nil {
		return err
	}
	res, err := svc.SignIn(args[0], args[1])
	if err != nil {
		return err
	}
	return a.print(res)
}
