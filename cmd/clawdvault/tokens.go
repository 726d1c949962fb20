package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inavhq/clawdvault-sdk/pkg/api"
)

func newTokensCmd(a *app) *cobra.Command {
	var (
		f         api.TokenFilter
		graduated bool
	)
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "List tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("graduated") {
				f.Graduated = &graduated
			}
			list, err := a.client.ListTokens(cmd.Context(), f)
			if err != nil {
				return err
			}
			return a.output(cmd, list, func() error {
				rows := make([][]any, 0, len(list.Tokens))
				for _, t := range list.Tokens {
					rows = append(rows, []any{t.Mint, t.Symbol, t.Name, t.PriceSol, t.MarketCapSol})
				}
				if err := table(cmd, "MINT\tSYMBOL\tNAME\tPRICE (SOL)\tMCAP (SOL)", rows); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "page %d, %d of %d tokens\n", list.Page, len(list.Tokens), list.Total)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&f.Sort, "sort", "created", "created, market_cap, volume or price")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "tokens per page")
	cmd.Flags().IntVar(&f.Page, "page", 1, "page number")
	cmd.Flags().StringVar(&f.Search, "search", "", "match name or symbol")
	cmd.Flags().StringVar(&f.Creator, "creator", "", "only tokens created by this wallet")
	cmd.Flags().BoolVar(&graduated, "graduated", false, "only graduated (or, with =false, bonding) tokens")
	return cmd
}

func newTokenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "token <mint>",
		Short: "Show a token with its statistics and recent trades",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := a.client.GetToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			stats, err := a.client.GetStats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := struct {
				*api.TokenDetail
				Stats *api.TokenStats `json:"stats"`
			}{detail, stats}
			return a.output(cmd, out, func() error {
				t := detail.Token
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%s (%s)  %s\n", t.Name, t.Symbol, t.Mint)
				fmt.Fprintf(w, "price %s SOL, market cap %s SOL, %d holders\n", t.PriceSol, t.MarketCapSol, stats.Holders)
				fmt.Fprintf(w, "24h: volume %s SOL, %d trades, change %s\n\n", stats.Volume24hSol, stats.Trades24h, stats.PriceChange24h)

				rows := make([][]any, 0, len(detail.Trades))
				for _, tr := range detail.Trades {
					rows = append(rows, []any{tr.CreatedAt.Local().Format("01-02 15:04:05"), tr.Type, tr.SolAmount, tr.TokenAmount, tr.Trader})
				}
				return table(cmd, "TIME\tTYPE\tSOL\tTOKENS\tTRADER", rows)
			})
		},
	}
}

func newQuoteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "quote <buy|sell> <mint> <amount>",
		Short: "Quote a trade without executing it",
		Long:  "Quote a trade. The amount is SOL for buys and tokens for sells.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ := api.TradeType(args[0])
			if !typ.Valid() {
				return fmt.Errorf("trade type must be buy or sell, got %q", args[0])
			}
			amount, err := parseAmount("amount", args[2])
			if err != nil {
				return err
			}
			q, err := a.client.GetQuote(cmd.Context(), api.QuoteParams{Mint: args[1], Type: typ, Amount: amount})
			if err != nil {
				return err
			}
			return a.output(cmd, q, func() error {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s (impact %s%%, fee %s)\n",
					q.Type, q.Input, q.Output, q.PriceImpact.Shift(2).StringFixed(2), q.Fee)
				return err
			})
		},
	}
}

func newBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <mint>",
		Short: "Show the wallet's holding of a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.client.GetMyBalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.output(cmd, b, func() error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), b.Balance)
				return err
			})
		},
	}
}

func newNetworkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "network",
		Short: "Show cluster health and the SOL price",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := a.client.GetNetworkStatus(cmd.Context())
			if err != nil {
				return err
			}
			price, err := a.client.GetSolPrice(cmd.Context())
			if err != nil {
				return err
			}
			out := struct {
				*api.NetworkStatus
				SolPriceUSD string `json:"sol_price_usd"`
			}{status, price.Price.String()}
			return a.output(cmd, out, func() error {
				health := "healthy"
				if !status.RPCHealthy {
					health = "unhealthy"
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: rpc %s at slot %d, SOL $%s\n",
					status.Network, health, status.Slot, price.Price.StringFixed(2))
				return err
			})
		},
	}
}
