package launchpadtest

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/inavhq/clawdvault-sdk/pkg/api"
	"github.com/inavhq/clawdvault-sdk/pkg/signer"
	"github.com/inavhq/clawdvault-sdk/pkg/stream"
)

// checkFunds must be called with s.mu held.
func (s *Server) checkFunds(ts *tokenState, wallet string, typ api.TradeType, amount decimal.Decimal) bool {
	if typ == api.TradeBuy {
		return s.solBalance(wallet).GreaterThanOrEqual(amount)
	}
	return ts.holders[wallet].GreaterThanOrEqual(amount)
}

// applyTrade executes a trade against ts for wallet and publishes it.
// Must be called with s.mu held.
func (s *Server) applyTrade(ts *tokenState, wallet, signature string, typ api.TradeType, amount decimal.Decimal) api.TradeRecord {
	f := ts.curve.simulate(typ, amount)
	output := f.output
	if s.drift.IsPositive() {
		places := int32(tokenDecimals)
		if typ == api.TradeSell {
			places = solDecimals
		}
		output = output.Mul(decimal.NewFromInt(1).Sub(s.drift)).RoundFloor(places)
	}

	tr := api.TradeRecord{
		ID:        s.nextID("trade"),
		Signature: signature,
		Mint:      ts.token.Mint,
		Type:      typ,
		Trader:    wallet,
		CreatedAt: time.Now().UTC(),
	}
	if typ == api.TradeBuy {
		s.sol[wallet] = s.solBalance(wallet).Sub(amount)
		ts.holders[wallet] = ts.holders[wallet].Add(output)
		tr.SolAmount, tr.TokenAmount = amount, output
	} else {
		ts.holders[wallet] = ts.holders[wallet].Sub(amount)
		s.sol[wallet] = s.solBalance(wallet).Add(output)
		tr.SolAmount, tr.TokenAmount = output, amount
	}
	ts.curve = f.next
	ts.sync()
	tr.PriceSol = ts.token.PriceSol

	s.trades = append(s.trades, tr)
	s.publishTrade(ts, stream.TradeEvent{TradeRecord: tr})
	return tr
}

func (s *Server) handlePrepareTrade(c *gin.Context) {
	var req api.PrepareTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "", "invalid body")
		return
	}
	wallet := c.GetString(walletKey)
	if req.Wallet != "" && req.Wallet != wallet {
		abortError(c, http.StatusForbidden, "WALLET_MISMATCH", "wallet does not match session")
		return
	}
	if !req.Amount.IsPositive() {
		abortError(c, http.StatusBadRequest, api.CodeInvalidAmount, "amount must be positive")
		return
	}
	if !req.Type.Valid() {
		abortError(c, http.StatusBadRequest, "", "type must be buy or sell")
		return
	}
	pub, err := signer.ParsePublicKey(wallet)
	if err != nil {
		abortError(c, http.StatusBadRequest, "INVALID_WALLET", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.tokens[req.Mint]
	if !ok {
		abortError(c, http.StatusNotFound, api.CodeTokenNotFound, "token not found")
		return
	}
	if !s.checkFunds(ts, wallet, req.Type, req.Amount) {
		abortError(c, http.StatusBadRequest, api.CodeInsufficientBalance, "insufficient balance for "+string(req.Type))
		return
	}
	f := ts.curve.simulate(req.Type, req.Amount)
	if req.MinOutput.IsPositive() && f.output.LessThan(req.MinOutput) {
		abortError(c, http.StatusBadRequest, api.CodeSlippageExceeded, "expected output below min_output")
		return
	}

	raw := BuildTransaction([]byte(string(req.Type)+":"+req.Mint+":"+req.Amount.String()), pub)
	tx, _ := signer.ParseTransaction(raw)
	s.prepared[string(tx.MessageBytes())] = &prepared{
		wallet:    wallet,
		mint:      req.Mint,
		typ:       req.Type,
		amount:    req.Amount,
		minOutput: req.MinOutput,
	}

	c.JSON(http.StatusOK, api.PreparedTransaction{
		Transaction:    base64.StdEncoding.EncodeToString(raw),
		ExpectedOutput: f.output,
		MinOutput:      req.MinOutput,
	})
}

// takePrepared verifies a signed transaction and claims its prepared entry.
// Must be called with s.mu held.
func (s *Server) takePrepared(c *gin.Context, signed string) (*prepared, string, bool) {
	raw, err := base64.StdEncoding.DecodeString(signed)
	if err != nil {
		abortError(c, http.StatusBadRequest, "INVALID_TRANSACTION", "transaction is not base64")
		return nil, "", false
	}
	tx, err := signer.ParseTransaction(raw)
	if err != nil {
		abortError(c, http.StatusBadRequest, "INVALID_TRANSACTION", err.Error())
		return nil, "", false
	}
	if !tx.Verify() {
		abortError(c, http.StatusBadRequest, "INVALID_SIGNATURE", "transaction signature verification failed")
		return nil, "", false
	}
	p, ok := s.prepared[string(tx.MessageBytes())]
	if !ok {
		abortError(c, http.StatusBadRequest, "UNKNOWN_TRANSACTION", "transaction was not prepared or already executed")
		return nil, "", false
	}
	if p.wallet != c.GetString(walletKey) {
		abortError(c, http.StatusForbidden, "WALLET_MISMATCH", "wallet does not match session")
		return nil, "", false
	}
	delete(s.prepared, string(tx.MessageBytes()))
	return p, tx.Signatures[0].String(), true
}

func (s *Server) handleExecuteTrade(c *gin.Context) {
	var req api.ExecuteTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "", "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, sig, ok := s.takePrepared(c, req.SignedTransaction)
	if !ok {
		return
	}
	if p.create != nil {
		abortError(c, http.StatusBadRequest, "UNKNOWN_TRANSACTION", "not a trade transaction")
		return
	}
	ts := s.tokens[p.mint]
	if !s.checkFunds(ts, p.wallet, p.typ, p.amount) {
		abortError(c, http.StatusBadRequest, api.CodeInsufficientBalance, "insufficient balance for "+string(p.typ))
		return
	}

	tr := s.applyTrade(ts, p.wallet, sig, p.typ, p.amount)
	s.track(sig)

	res := api.ExecutionResult{Signature: sig}
	if !s.omitAmounts {
		res.SolAmount, res.TokenAmount = &tr.SolAmount, &tr.TokenAmount
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleStatus(c *gin.Context) {
	sig := c.Query("signature")

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.txs[sig]
	if !ok {
		abortError(c, http.StatusNotFound, "NOT_FOUND", "unknown signature")
		return
	}
	st := api.TransactionStatus{Signature: sig, Status: p.status, Slot: p.slot}
	if time.Now().Before(p.readyAt) {
		st.Status = api.ConfirmationPending
	}
	if st.Status == api.ConfirmationFailed {
		st.Err = FailedTxError
	}
	if st.Status == api.ConfirmationPending {
		st.Slot = 0
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handlePrepareCreate(c *gin.Context) {
	var req api.PrepareCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "", "invalid body")
		return
	}
	wallet := c.GetString(walletKey)
	if req.Name == "" || req.Symbol == "" {
		abortError(c, http.StatusBadRequest, "", "name and symbol are required")
		return
	}
	if req.InitialBuy.IsNegative() {
		abortError(c, http.StatusBadRequest, api.CodeInvalidAmount, "initial buy must not be negative")
		return
	}
	pub, err := signer.ParsePublicKey(wallet)
	if err != nil {
		abortError(c, http.StatusBadRequest, "INVALID_WALLET", err.Error())
		return
	}
	mintKey, err := signer.GenerateKeypair()
	if err != nil {
		abortError(c, http.StatusInternalServerError, "", err.Error())
		return
	}
	mintPub, _ := signer.ParsePublicKey(mintKey.PublicKey())

	raw := BuildTransaction([]byte("create:"+req.Symbol), pub, mintPub)
	// the mint account co-signs; the server holds its key
	raw, err = mintKey.SignTransaction(c.Request.Context(), raw)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "", err.Error())
		return
	}
	tx, _ := signer.ParseTransaction(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.InitialBuy.GreaterThan(s.solBalance(wallet)) {
		abortError(c, http.StatusBadRequest, api.CodeInsufficientBalance, "insufficient balance for initial buy")
		return
	}
	params := req.CreateTokenParams
	s.prepared[string(tx.MessageBytes())] = &prepared{
		wallet: wallet,
		mint:   mintKey.PublicKey(),
		amount: req.InitialBuy,
		create: &params,
	}
	c.JSON(http.StatusOK, api.PreparedCreate{
		Transaction: base64.StdEncoding.EncodeToString(raw),
		Mint:        mintKey.PublicKey(),
	})
}

func (s *Server) handleExecuteCreate(c *gin.Context) {
	var req api.ExecuteCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "", "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, sig, ok := s.takePrepared(c, req.SignedTransaction)
	if !ok {
		return
	}
	if p.create == nil || (req.Mint != "" && req.Mint != p.mint) {
		abortError(c, http.StatusBadRequest, "UNKNOWN_TRANSACTION", "not a creation transaction for this mint")
		return
	}

	ts := s.addToken(p.mint, *p.create, p.wallet)
	if p.amount.IsPositive() {
		s.applyTrade(ts, p.wallet, sig, api.TradeBuy, p.amount)
	}
	s.track(sig)

	token := ts.token
	c.JSON(http.StatusOK, api.CreatedToken{Signature: sig, Mint: p.mint, Token: &token})
}
