package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var identifier, password, otp string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session in the profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p := newPrompter(cmd)

			var err error
			if identifier, err = p.ask(identifier, "Username or email"); err != nil {
				return err
			}
			if password, err = p.ask(password, "Password"); err != nil {
				return err
			}

			m, done, err := a.manager(ctx, nil)
			if err != nil {
				return err
			}
			defer done()

			res, err := m.Login(ctx, identifier, password, otp)
			if err != nil {
				return errors.New(goSession.Message(err))
			}
			if res.Outcome == goSession.LoginTwoFactorRequired {
				code, err := p.ask("", "Two-factor code")
				if err != nil {
					return err
				}
				if res, err = m.Login(ctx, identifier, password, code); err != nil {
					return errors.New(goSession.Message(err))
				}
			}

			out := cmd.OutOrStdout()
			if res.User != nil {
				fmt.Fprintf(out, "Signed in as %s (%s).\n", res.User.Username, res.User.Email)
			} else {
				fmt.Fprintln(out, "Signed in.")
			}
			fmt.Fprintf(out, "Session expires at %s unless there is activity.\n", res.ExpiresAt.Local().Format(time.TimeOnly))
			return nil
		},
	}

	cmd.Flags().StringVarP(&identifier, "user", "u", "", "Username or email (prompted if omitted)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted if omitted)")
	cmd.Flags().StringVar(&otp, "otp", "", "Two-factor code (prompted when the service asks for one)")
	return cmd
}

func newWhoamiCmd(a *app) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			m, done, err := a.manager(ctx, nil)
			if err != nil {
				return err
			}
			defer done()

			if st := m.Resume(ctx); !st.State.Authenticated() {
				return errors.New("not signed in")
			}
			u := m.CurrentUser(ctx)
			if refresh || u == nil {
				fresh, err := m.RefreshProfile(ctx)
				if err != nil {
					return errors.New(goSession.Message(err))
				}
				u = &fresh
			}
			printUser(cmd.OutOrStdout(), u)
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch the profile from the service")
	return cmd
}

func printUser(w io.Writer, u *goSession.User) {
	fmt.Fprintf(w, "id:        %s\n", u.ID)
	fmt.Fprintf(w, "username:  %s\n", u.Username)
	fmt.Fprintf(w, "email:     %s\n", u.Email)
	fmt.Fprintf(w, "full name: %s\n", u.FullName)
	if u.Role != "" {
		fmt.Fprintf(w, "role:      %s\n", u.Role)
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the session state of the profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			m, done, err := a.manager(ctx, nil)
			if err != nil {
				return err
			}
			defer done()

			st := m.Resume(ctx)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "state: %s\n", st.State)
			if !st.State.Authenticated() {
				return nil
			}
			if st.User != nil {
				fmt.Fprintf(out, "user: %s\n", st.User.Username)
			}
			fmt.Fprintf(out, "expires: %s (in %s)\n", st.ExpiresAt.Local().Format(time.TimeOnly), st.Remaining.Truncate(time.Second))
			if st.State == goSession.StateWarning {
				fmt.Fprintf(out, "warning: session expires in %ds\n", st.RemainingSeconds)
			}
			return nil
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session for every client of the profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			m, done, err := a.manager(ctx, nil)
			if err != nil {
				return err
			}
			defer done()

			m.Resume(ctx)
			if err := m.LogoutNow(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}
