// walletctl drives the wallet client from the command line: sign in, check
// the balance, look up recipients, send money and browse history.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/primewallet/walletclient/internal/app"
	"github.com/primewallet/walletclient/internal/config"
	"github.com/primewallet/walletclient/internal/logging"
	"github.com/primewallet/walletclient/internal/session"
)

type cli struct {
	app      *app.App
	email    string
	password string
	logLevel string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "walletctl",
		Short:         "Command-line client for the PrimeWallet API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.open(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.app != nil {
				c.app.Close()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.email, "email", os.Getenv("WALLET_EMAIL"), "account email (env WALLET_EMAIL)")
	flags.StringVar(&c.password, "password", os.Getenv("WALLET_PASSWORD"), "account password (env WALLET_PASSWORD)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level, overrides LOG_LEVEL")

	root.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.registerCmd(),
		c.resendCmd(),
		c.whoamiCmd(),
		c.balanceCmd(),
		c.resolveCmd(),
		c.sendCmd(),
		c.historyCmd(),
	)
	return root
}

func (c *cli) open(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if c.logLevel != "" {
		level = c.logLevel
	}
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), level)

	a, err := app.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	if err := a.Start(cmd.Context()); err != nil {
		a.Close()
		return err
	}
	c.app = a
	return nil
}

// signIn logs in with the configured credentials. Sessions do not outlive
// the process, so every command that needs one signs in first.
func (c *cli) signIn(ctx context.Context) error {
	if c.app.Session.IsAuthenticated() {
		return nil
	}
	if c.email == "" || c.password == "" {
		return errors.New("this command needs --email and --password (or WALLET_EMAIL and WALLET_PASSWORD)")
	}
	res := c.app.Session.Login(ctx, session.Credentials{Email: c.email, Password: c.password})
	if !res.Success() {
		return fmt.Errorf("%s%s", res.Message, formatFieldErrors(res.FieldErrors))
	}
	return nil
}

func formatFieldErrors(fields map[string][]string) string {
	if len(fields) == 0 {
		return ""
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "\n  %s: %s", name, strings.Join(fields[name], "; "))
	}
	return b.String()
}
