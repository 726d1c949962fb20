package launchpadtest

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/inavhq/clawdvault-sdk/pkg/api"
)

func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func (s *Server) handleListTokens(c *gin.Context) {
	limit := queryInt(c, "limit", 20)
	page := queryInt(c, "page", 1)
	creator := c.Query("creator")
	search := strings.ToLower(c.Query("search"))
	graduated, filterGraduated := c.GetQuery("graduated")

	s.mu.Lock()
	var list []api.Token
	for _, mint := range s.order {
		t := s.tokens[mint].token
		if creator != "" && t.Creator != creator {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Name), search) &&
			!strings.Contains(strings.ToLower(t.Symbol), search) {
			continue
		}
		if filterGraduated && strconv.FormatBool(t.Graduated) != graduated {
			continue
		}
		list = append(list, t)
	}
	s.mu.Unlock()

	switch c.Query("sort") {
	case "market_cap", "price":
		sort.SliceStable(list, func(i, j int) bool { return list[i].MarketCapSol.GreaterThan(list[j].MarketCapSol) })
	default:
		// newest first
		for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
			list[i], list[j] = list[j], list[i]
		}
	}

	total := len(list)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	c.JSON(http.StatusOK, api.TokenList{Tokens: list[start:end], Total: total, Page: page, PerPage: limit})
}

func (s *Server) handleGetToken(c *gin.Context) {
	mint := c.Param("mint")

	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.tokens[mint]
	if !ok {
		abortError(c, http.StatusNotFound, api.CodeTokenNotFound, "token not found")
		return
	}
	c.JSON(http.StatusOK, api.TokenDetail{Token: ts.token, Trades: s.tradesOf(mint, 10, "")})
}

func (s *Server) handleStats(c *gin.Context) {
	mint := c.Query("mint")

	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.tokens[mint]
	if !ok {
		abortError(c, http.StatusNotFound, api.CodeTokenNotFound, "token not found")
		return
	}

	stats := api.TokenStats{Mint: mint, Volume24hSol: decimal.Zero}
	for _, b := range ts.holders {
		if b.IsPositive() {
			stats.Holders++
		}
	}
	cutoff := time.Now().Add(-24 * time.Hour)
	var first decimal.Decimal
	for _, tr := range s.trades {
		if tr.Mint != mint || tr.CreatedAt.Before(cutoff) {
			continue
		}
		if stats.Trades24h == 0 {
			first = tr.PriceSol
			stats.HighSol, stats.LowSol = tr.PriceSol, tr.PriceSol
		}
		stats.Trades24h++
		stats.Volume24hSol = stats.Volume24hSol.Add(tr.SolAmount)
		stats.HighSol = decimal.Max(stats.HighSol, tr.PriceSol)
		stats.LowSol = decimal.Min(stats.LowSol, tr.PriceSol)
	}
	if first.IsPositive() {
		stats.PriceChange24h = ts.token.PriceSol.Sub(first).DivRound(first, 6)
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleTrades(c *gin.Context) {
	limit := queryInt(c, "limit", 50)

	s.mu.Lock()
	trades := s.tradesOf(c.Query("mint"), limit+1, c.Query("before"))
	s.mu.Unlock()

	hasMore := len(trades) > limit
	if hasMore {
		trades = trades[:limit]
	}
	c.JSON(http.StatusOK, api.TradeHistory{Trades: trades, HasMore: hasMore})
}

// tradesOf returns up to limit trades of mint (all mints if empty), newest
// first, older than the trade with ID before. Must be called with s.mu held.
func (s *Server) tradesOf(mint string, limit int, before string) []api.TradeRecord {
	out := []api.TradeRecord{}
	skipping := before != ""
	for i := len(s.trades) - 1; i >= 0 && len(out) < limit; i-- {
		tr := s.trades[i]
		if skipping {
			if tr.ID == before {
				skipping = false
			}
			continue
		}
		if mint == "" || tr.Mint == mint {
			out = append(out, tr)
		}
	}
	return out
}

func (s *Server) handleQuote(c *gin.Context) {
	mint := c.Query("mint")
	typ := api.TradeType(c.Query("type"))
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil || !amount.IsPositive() {
		abortError(c, http.StatusBadRequest, api.CodeInvalidAmount, "amount must be a positive number")
		return
	}
	if !typ.Valid() {
		abortError(c, http.StatusBadRequest, "", "type must be buy or sell")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.tokens[mint]
	if !ok {
		abortError(c, http.StatusNotFound, api.CodeTokenNotFound, "token not found")
		return
	}
	f := ts.curve.simulate(typ, amount)
	impact := f.priceImpact
	if v, ok := s.impact[mint]; ok {
		impact = v
	}
	c.JSON(http.StatusOK, api.Quote{
		Type:         typ,
		Mint:         mint,
		Input:        amount,
		Output:       f.output,
		PriceImpact:  impact,
		CurrentPrice: ts.curve.price(),
		Fee:          f.fee,
	})
}
