package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/primewallet/walletclient/internal/history"
	"github.com/primewallet/walletclient/internal/transfer"
	"github.com/primewallet/walletclient/internal/wallet"
)

func (c *cli) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the wallet balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.signIn(cmd.Context()); err != nil {
				return err
			}
			w, err := c.app.Session.FetchWallet(cmd.Context())
			if err != nil {
				return err
			}
			if w == nil {
				return errors.New("no wallet found for this account")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", w.Balance.StringFixed(2), w.Currency)
			return nil
		},
	}
}

func (c *cli) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <email-or-address>",
		Short: "Look up a recipient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.signIn(cmd.Context()); err != nil {
				return err
			}
			rcpt, err := c.app.Recipients.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rcpt == nil {
				return errors.New("recipient not found")
			}
			verified := ""
			if rcpt.Verified {
				verified = " (verified)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s%s\n", rcpt.Name, rcpt.Address, verified)
			return nil
		},
	}
}

func (c *cli) sendCmd() *cobra.Command {
	var (
		currency string
		note     string
		key      string
		resume   string
		retries  int
	)
	cmd := &cobra.Command{
		Use:   "send <recipient> <amount> | send --resume <attempt-id>",
		Short: "Send money; network failures are retried with the same idempotency key",
		Args: func(cmd *cobra.Command, args []string) error {
			if resume != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var in transfer.Input
			if resume == "" {
				amount, err := wallet.ParseAmount(args[1])
				if err != nil {
					return fmt.Errorf("invalid amount %q: %w", args[1], err)
				}
				in = transfer.Input{Recipient: args[0], Amount: amount, Currency: currency, Note: note, IdempotencyKey: key}
			}
			if err := c.signIn(cmd.Context()); err != nil {
				return err
			}

			var (
				attempt *transfer.Attempt
				err     error
			)
			if resume != "" {
				attempt, err = c.app.Transfers.Resume(cmd.Context(), resume)
			} else {
				attempt, err = c.app.Transfers.NewAttempt(cmd.Context(), in)
			}
			if err != nil {
				var inputErr *transfer.InputError
				if errors.As(err, &inputErr) {
					return fmt.Errorf("please check the transfer details%s", formatFieldErrors(inputErr.FieldErrors))
				}
				return err
			}

			res := c.app.Transfers.Retry(cmd.Context(), attempt)
			for !res.Success && res.Kind == transfer.KindNetwork && attempt.Tries <= retries {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s Retrying with key %s\n", res.Message, attempt.Key)
				res = c.app.Transfers.Retry(cmd.Context(), attempt)
			}
			if !res.Success {
				if res.Kind.Retryable() {
					fmt.Fprintf(cmd.ErrOrStderr(), "Transfer %s has no answer yet; run send --resume %s to try it again with the same key\n", attempt.ID, attempt.ID)
				}
				return fmt.Errorf("%s%s", res.Message, formatFieldErrors(res.FieldErrors))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Message)
			if res.Transaction != nil && res.Transaction.ID != "" {
				fmt.Fprintf(out, "Transaction: %s\n", res.Transaction.ID)
			}
			if res.NewBalance != nil {
				fmt.Fprintf(out, "Balance:     %s\n", res.NewBalance.StringFixed(2))
			}
			fmt.Fprintf(out, "Key:         %s\n", res.IdempotencyKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&currency, "currency", "", "currency code, defaults to the wallet currency")
	cmd.Flags().StringVar(&note, "note", "", "note for the recipient")
	cmd.Flags().StringVar(&key, "key", "", "idempotency key to send, for callers that manage their own")
	cmd.Flags().StringVar(&resume, "resume", "", "resume an unanswered attempt by id (needs REDIS_URL across runs)")
	cmd.Flags().IntVar(&retries, "retries", 2, "retries after a network failure")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	var filters transfer.Filters
	var direction string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := parseDirection(direction, &filters); err != nil {
				return err
			}
			if err := c.signIn(cmd.Context()); err != nil {
				return err
			}
			records, err := c.app.Transfers.FetchTransactions(cmd.Context(), filters)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No transactions found.")
				return nil
			}
			return printRecords(cmd, records)
		},
	}
	cmd.PersistentFlags().StringVar(&direction, "type", "", "credit or debit")
	cmd.PersistentFlags().IntVar(&filters.Page, "page", 0, "page number")
	cmd.PersistentFlags().IntVar(&filters.PerPage, "per-page", 0, "page size, defaults to PAGE_SIZE")
	cmd.PersistentFlags().StringVar(&filters.Status, "status", "", "filter by status")

	sync := &cobra.Command{
		Use:   "sync",
		Short: "Copy a page of transactions into the local history store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := parseDirection(direction, &filters); err != nil {
				return err
			}
			if err := c.signIn(cmd.Context()); err != nil {
				return err
			}
			res, err := c.app.Syncer.Sync(cmd.Context(), filters)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d, stored %d new, skipped %d without id\n", res.Fetched, res.Added, res.Skipped)
			stored, err := c.app.History.List(cmd.Context(), history.Query{Direction: filters.Type, Limit: 10})
			if err != nil {
				return err
			}
			if len(stored) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Latest stored:")
				return printRecords(cmd, stored)
			}
			return nil
		},
	}
	cmd.AddCommand(sync)
	return cmd
}

func parseDirection(s string, f *transfer.Filters) error {
	switch d := transfer.Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case "", transfer.Credit, transfer.Debit:
		f.Type = d
		return nil
	default:
		return fmt.Errorf("--type must be credit or debit, got %q", s)
	}
}

func printRecords(cmd *cobra.Command, records []transfer.Record) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tTYPE\tAMOUNT\tCOUNTERPARTY\tSTATUS\tDESCRIPTION")
	for _, r := range records {
		date := r.Timestamp
		if !r.OccurredAt.IsZero() {
			date = r.OccurredAt.Local().Format("2006-01-02 15:04")
		}
		var sign string
		switch r.Direction {
		case transfer.Credit:
			sign = "+"
		case transfer.Debit:
			sign = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s%s %s\t%s\t%s\t%s\n",
			date, r.Direction, sign, r.Amount.StringFixed(2), r.Currency,
			r.CounterpartyName, r.Status, r.Description)
	}
	return w.Flush()
}
