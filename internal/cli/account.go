package cli

import (
	"errors"
	"fmt"

	goSession "github.com/MrEthical07/goSession"
	"github.com/spf13/cobra"
)

func newRegisterCmd(a *app) *cobra.Command {
	var in goSession.RegisterInput
	var login bool

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account, optionally signing in afterwards",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p := newPrompter(cmd)
			var err error
			if in.Password, err = p.ask(in.Password, "Password"); err != nil {
				return err
			}

			m, done, err := a.manager(ctx, nil)
			if err != nil {
				return err
			}
			defer done()

			out := cmd.OutOrStdout()
			if !login {
				if _, err := m.Register(ctx, in); err != nil {
					return errors.New(goSession.Message(err))
				}
				fmt.Fprintln(out, "Account created. Sign in with sessionctl login.")
				return nil
			}

			res, err := m.RegisterAndLogin(ctx, in)
			if err != nil {
				return errors.New(goSession.Message(err))
			}
			switch res.AutoLogin {
			case goSession.AutoLoginSucceeded:
				fmt.Fprintf(out, "Account created. Signed in as %s.\n", in.Username)
			case goSession.AutoLoginTwoFactorRequired:
				fmt.Fprintln(out, "Account created. Sign in with sessionctl login to enter the two-factor code.")
			default:
				fmt.Fprintf(out, "Account created, but signing in failed: %s\n", goSession.Message(res.LoginErr))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Email, "email", "", "Email address")
	f.StringVar(&in.Username, "username", "", "Username")
	f.StringVar(&in.FullName, "name", "", "Full name")
	f.StringVarP(&in.Password, "password", "p", "", "Password (prompted if omitted)")
	f.BoolVar(&login, "login", false, "Sign in after the account is created")
	return cmd
}

func newForgotPasswordCmd(a *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Ask the service to email a password reset code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			m, done, err := a.manager(ctx, nil)
			if err != nil {
				return err
			}
			defer done()

			if err := m.RequestPasswordReset(ctx, email); err != nil {
				return errors.New(goSession.Message(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "If the address is registered, a reset code is on its way.")
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	return cmd
}

func newResetPasswordCmd(a *app) *cobra.Command {
	var in goSession.ResetPasswordInput

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password with an emailed reset code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p := newPrompter(cmd)
			var err error
			if in.OTP, err = p.ask(in.OTP, "Reset code"); err != nil {
				return err
			}
			if in.NewPassword, err = p.ask(in.NewPassword, "New password"); err != nil {
				return err
			}
			if in.ConfirmPassword, err = p.ask(in.ConfirmPassword, "Confirm password"); err != nil {
				return err
			}

			m, done, err := a.manager(ctx, nil)
			if err != nil {
				return err
			}
			defer done()

			if err := m.ResetPassword(ctx, in); err != nil {
				return errors.New(goSession.Message(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password reset. Sign in with the new password.")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Email, "email", "", "Account email")
	f.StringVar(&in.OTP, "code", "", "Reset code (prompted if omitted)")
	f.StringVar(&in.NewPassword, "password", "", "New password (prompted if omitted)")
	f.StringVar(&in.ConfirmPassword, "confirm", "", "New password again (prompted if omitted)")
	return cmd
}
