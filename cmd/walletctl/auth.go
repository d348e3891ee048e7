package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/primewallet/walletclient/internal/session"
)

func (c *cli) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Check that the credentials sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.signIn(cmd.Context()); err != nil {
				return err
			}
			user := c.app.Session.CurrentUser()
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s <%s>\n", user.Name, user.Email)
			return nil
		},
	}
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign in and end the session on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.signIn(cmd.Context()); err != nil {
				return err
			}
			c.app.Session.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func (c *cli) registerCmd() *cobra.Command {
	var name, confirmation string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account; the email must be verified before login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if confirmation == "" {
				confirmation = c.password
			}
			res := c.app.Session.Register(cmd.Context(), session.Registration{
				Name:                 name,
				Email:                c.email,
				Password:             c.password,
				PasswordConfirmation: confirmation,
			})
			if res.Aborted {
				return cmd.Context().Err()
			}
			if !res.Success {
				return fmt.Errorf("%s%s", res.Message, formatFieldErrors(res.FieldErrors))
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&confirmation, "password-confirmation", "", "defaults to --password")
	return cmd
}

func (c *cli) resendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resend-verification",
		Short: "Send the verification email again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			msg, err := c.app.Session.ResendVerification(cmd.Context(), c.email)
			if errors.Is(err, session.ErrEmailRequired) {
				return errors.New("--email is required")
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.signIn(cmd.Context()); err != nil {
				return err
			}
			snap := c.app.Session.Snapshot()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User:    %s <%s> (id %s)\n", snap.User.Name, snap.User.Email, snap.User.ID)
			if snap.Wallet != nil {
				fmt.Fprintf(out, "Wallet:  %s\n", snap.Wallet.Address)
				fmt.Fprintf(out, "Balance: %s %s\n", snap.Wallet.Balance.StringFixed(2), snap.Wallet.Currency)
			}
			return nil
		},
	}
}
