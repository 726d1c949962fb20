package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/inavhq/clawdvault-sdk/pkg/api"
	"github.com/inavhq/clawdvault-sdk/pkg/trade"
)

type tradeFunc func(ctx context.Context, mint string, amount, maxSlippage decimal.Decimal) (*trade.Trade, error)

func newBuyCmd(a *app) *cobra.Command {
	return newTradeCmd(a, "buy <mint> <sol>", "Buy a token with SOL", "sol", func() tradeFunc { return a.client.Buy })
}

func newSellCmd(a *app) *cobra.Command {
	return newTradeCmd(a, "sell <mint> <tokens>", "Sell tokens for SOL", "tokens", func() tradeFunc { return a.client.Sell })
}

// newTradeCmd builds buy and sell. fn is resolved at run time, after setup
// created the client.
func newTradeCmd(a *app, use, short, amountName string, fn func() tradeFunc) *cobra.Command {
	var slippage string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(amountName, args[1])
			if err != nil {
				return err
			}
			tolerance, err := a.slippage(slippage)
			if err != nil {
				return err
			}

			t, err := fn()(cmd.Context(), args[0], amount, tolerance)
			if t != nil {
				// submitted: show what is known even when confirmation failed
				if perr := a.printTrade(cmd, t); perr != nil && err == nil {
					err = perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&slippage, "slippage", "", "max slippage as a fraction, e.g. 0.02 (default from config)")
	return cmd
}

func (a *app) slippage(flag string) (decimal.Decimal, error) {
	if flag == "" {
		return a.cfg.Slippage()
	}
	s, err := decimal.NewFromString(flag)
	if err != nil || s.IsNegative() || s.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("slippage must be a fraction in [0, 1), got %q", flag)
	}
	return s, nil
}

func (a *app) printTrade(cmd *cobra.Command, t *trade.Trade) error {
	return a.output(cmd, t, func() error {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s %s: %s\n", t.Type, t.Mint, t.Status)
		fmt.Fprintf(w, "signature  %s\n", t.Signature)
		fmt.Fprintf(w, "sol        %s\n", optional(t.SolAmount))
		_, err := fmt.Fprintf(w, "tokens     %s (min %s)\n", optional(t.TokenAmount), t.MinOutput)
		return err
	})
}

func newCreateCmd(a *app) *cobra.Command {
	var (
		p          api.CreateTokenParams
		initialBuy string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Launch a new token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if initialBuy != "" {
				d, err := decimal.NewFromString(initialBuy)
				if err != nil || d.IsNegative() {
					return fmt.Errorf("invalid initial buy %q", initialBuy)
				}
				p.InitialBuy = d
			}
			created, err := a.client.CreateToken(cmd.Context(), p)
			if created != nil {
				if perr := a.output(cmd, created, func() error {
					_, err := fmt.Fprintf(cmd.OutOrStdout(), "created %s\nsignature %s\n", created.Mint, created.Signature)
					return err
				}); perr != nil && err == nil {
					err = perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&p.Name, "name", "", "token name")
	cmd.Flags().StringVar(&p.Symbol, "symbol", "", "ticker symbol")
	cmd.Flags().StringVar(&p.Description, "description", "", "description")
	cmd.Flags().StringVar(&p.Image, "image", "", "image URL")
	cmd.Flags().StringVar(&p.Twitter, "twitter", "", "twitter handle or URL")
	cmd.Flags().StringVar(&p.Telegram, "telegram", "", "telegram URL")
	cmd.Flags().StringVar(&p.Website, "website", "", "website URL")
	cmd.Flags().StringVar(&initialBuy, "initial-buy", "", "SOL to buy in the launch transaction")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("symbol")
	return cmd
}

func newPendingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List journaled trades still awaiting an outcome",
		Long:  "List journaled trades still awaiting an outcome. Needs postgres.dsn.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Postgres.DSN == "" {
				return fmt.Errorf("pending needs a trade journal: set postgres.dsn")
			}
			entries, err := a.client.Unresolved(cmd.Context())
			if err != nil {
				return err
			}
			return a.output(cmd, entries, func() error {
				rows := make([][]any, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []any{
						time.UnixMilli(e.SubmittedAt).Local().Format("01-02 15:04:05"),
						e.Op, e.Mint, e.Amount, e.Status, e.Signature,
					})
				}
				return table(cmd, "SUBMITTED\tOP\tMINT\tAMOUNT\tSTATUS\tSIGNATURE", rows)
			})
		},
	}
}

func newReconcileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <signature>",
		Short: "Check a timed-out trade again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := a.client.Reconcile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := struct {
				Signature string       `json:"signature"`
				Status    trade.Status `json:"status"`
			}{args[0], status}
			return a.output(cmd, out, func() error {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], status)
				return err
			})
		},
	}
}
