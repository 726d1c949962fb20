// Package trade quotes and executes bonding-curve trades and tracks their
// on-chain confirmation.
package trade

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/inavhq/clawdvault-sdk/internal/domain"
	"github.com/inavhq/clawdvault-sdk/internal/logging"
	"github.com/inavhq/clawdvault-sdk/internal/observability"
	"github.com/inavhq/clawdvault-sdk/internal/storage"
	"github.com/inavhq/clawdvault-sdk/pkg/api"
	"github.com/inavhq/clawdvault-sdk/pkg/signer"
)

// API is the subset of the launchpad API the engine uses.
// *api.Client satisfies it.
type API interface {
	Quote(ctx context.Context, p api.QuoteParams) (*api.Quote, error)
	PrepareTrade(ctx context.Context, token string, req api.PrepareTradeRequest) (*api.PreparedTransaction, error)
	ExecuteTrade(ctx context.Context, token string, req api.ExecuteTradeRequest) (*api.ExecutionResult, error)
	PrepareCreate(ctx context.Context, token string, req api.PrepareCreateRequest) (*api.PreparedCreate, error)
	ExecuteCreate(ctx context.Context, token string, req api.ExecuteCreateRequest) (*api.CreatedToken, error)
}

var _ API = (*api.Client)(nil)

// Config holds confirmation polling parameters.
type Config struct {
	// PollInterval is the fixed delay between status checks.
	PollInterval time.Duration
	// ConfirmTimeout bounds the wait for a terminal status.
	ConfirmTimeout time.Duration
}

// DefaultConfig returns default polling parameters.
func DefaultConfig() Config {
	return Config{
		PollInterval:   2 * time.Second,
		ConfirmTimeout: 60 * time.Second,
	}
}

// Request is a buy or sell. Amount is SOL for buys and tokens for sells.
// MaxSlippage is a fraction of the expected output, e.g. 0.02.
type Request struct {
	Mint        string
	Amount      decimal.Decimal
	MaxSlippage decimal.Decimal
	// Token is the session token the request is authenticated with.
	Token string
}

// Trade is a submitted buy or sell. SolAmount and TokenAmount are nil when
// unknown; an absent amount is never zero.
type Trade struct {
	Type        api.TradeType
	Mint        string
	SolAmount   *decimal.Decimal
	TokenAmount *decimal.Decimal
	Signature   string
	Status      Status
	// Quote is the fresh quote the trade was bounded by.
	Quote       *api.Quote
	MinOutput   decimal.Decimal
	SubmittedAt time.Time
	ConfirmedAt *time.Time
}

// Engine executes trades for one signer. It is safe for concurrent use;
// each call blocks only its caller.
type Engine struct {
	api       API
	signer    signer.Signer
	confirmer Confirmer
	journal   storage.TradeJournal
	cfg       Config
	logger    *logrus.Entry
	metrics   *observability.Metrics
	now       func() time.Time
}

// Option configures Engine.
type Option func(*Engine)

// WithJournal records every submitted signature and its outcome.
func WithJournal(j storage.TradeJournal) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithConfig sets polling parameters.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an Engine. s may be nil for a quote-only engine.
func NewEngine(a API, s signer.Signer, c Confirmer, opts ...Option) *Engine {
	e := &Engine{
		api:       a,
		signer:    s,
		confirmer: c,
		cfg:       DefaultConfig(),
		logger:    logging.Discard(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.PollInterval <= 0 {
		e.cfg.PollInterval = DefaultConfig().PollInterval
	}
	if e.cfg.ConfirmTimeout <= 0 {
		e.cfg.ConfirmTimeout = DefaultConfig().ConfirmTimeout
	}
	e.logger = e.logger.WithField("component", "trade")
	return e
}

// GetQuote prices a prospective trade. Nothing is cached.
func (e *Engine) GetQuote(ctx context.Context, p api.QuoteParams) (*api.Quote, error) {
	if !p.Amount.IsPositive() {
		return nil, &api.Error{Kind: api.KindInvalidAmount, Op: "quote", Mint: p.Mint, Amount: p.Amount.String(),
			Message: "amount must be positive"}
	}
	if p.Mint == "" || !p.Type.Valid() {
		return nil, &api.Error{Kind: api.KindRequest, Op: "quote", Mint: p.Mint, Amount: p.Amount.String(),
			Message: "mint and a buy or sell type are required"}
	}
	q, err := e.api.Quote(ctx, p)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordQuote()
	return q, nil
}

// Buy spends req.Amount SOL on req.Mint.
func (e *Engine) Buy(ctx context.Context, req Request) (*Trade, error) {
	return e.execute(ctx, api.TradeBuy, req)
}

// Sell sells req.Amount tokens of req.Mint.
func (e *Engine) Sell(ctx context.Context, req Request) (*Trade, error) {
	return e.execute(ctx, api.TradeSell, req)
}

var one = decimal.NewFromInt(1)

// execute runs quote, pre-check, prepare, sign, submit and confirm. Once the
// transaction is submitted the returned Trade is non-nil even on error, so
// the signature is never lost.
func (e *Engine) execute(ctx context.Context, typ api.TradeType, req Request) (*Trade, error) {
	op := string(typ)
	fail := func(kind api.Kind, msg string, err error) *api.Error {
		return &api.Error{Kind: kind, Op: op, Mint: req.Mint, Amount: req.Amount.String(), Message: msg, Err: err}
	}

	if req.MaxSlippage.IsNegative() || req.MaxSlippage.GreaterThanOrEqual(one) {
		return nil, fail(api.KindInvalidAmount, "max slippage must be in [0, 1)", nil)
	}
	if e.signer == nil {
		return nil, fail(api.KindSignature, "no signer configured", nil)
	}

	q, err := e.GetQuote(ctx, api.QuoteParams{Mint: req.Mint, Type: typ, Amount: req.Amount})
	if err != nil {
		return nil, err
	}
	if q.PriceImpact.GreaterThan(req.MaxSlippage) {
		e.metrics.RecordOutcome(op, "slippage")
		return nil, fail(api.KindSlippageExceeded,
			fmt.Sprintf("price impact %s exceeds max slippage %s", q.PriceImpact, req.MaxSlippage), nil)
	}

	minOutput := q.Output.Mul(one.Sub(req.MaxSlippage)).RoundFloor(9)
	wallet := e.signer.PublicKey()
	prepared, err := e.api.PrepareTrade(ctx, req.Token, api.PrepareTradeRequest{
		Mint:        req.Mint,
		Type:        typ,
		Amount:      req.Amount,
		Wallet:      wallet,
		SlippageBps: req.MaxSlippage.Mul(decimal.NewFromInt(10_000)).IntPart(),
		MinOutput:   minOutput,
	})
	if err != nil {
		e.metrics.RecordOutcome(op, "rejected")
		return nil, err
	}

	signed, err := e.sign(ctx, prepared.Transaction)
	if err != nil {
		e.metrics.RecordOutcome(op, "signature_failed")
		return nil, fail(api.KindSignature, "sign transaction", err)
	}

	res, err := e.api.ExecuteTrade(ctx, req.Token, api.ExecuteTradeRequest{
		Mint:              req.Mint,
		Type:              typ,
		Amount:            req.Amount,
		Wallet:            wallet,
		SignedTransaction: signed,
	})
	if err != nil {
		e.metrics.RecordOutcome(op, "rejected")
		return nil, err
	}

	t := &Trade{
		Type:        typ,
		Mint:        req.Mint,
		SolAmount:   res.SolAmount,
		TokenAmount: res.TokenAmount,
		Signature:   res.Signature,
		Status:      StatusPending,
		Quote:       q,
		MinOutput:   minOutput,
		SubmittedAt: e.now(),
	}
	// the input side is what we sent; only the output side can be unknown
	input := req.Amount
	if typ == api.TradeBuy && t.SolAmount == nil {
		t.SolAmount = &input
	}
	if typ == api.TradeSell && t.TokenAmount == nil {
		t.TokenAmount = &input
	}

	log := e.logger.WithFields(logrus.Fields{"mint": req.Mint, "signature": t.Signature, "type": op})
	log.Info("trade submitted")
	e.metrics.RecordSubmitted(op)
	e.record(ctx, &domain.JournalEntry{
		Signature:   t.Signature,
		Wallet:      wallet,
		Mint:        req.Mint,
		Op:          op,
		Amount:      req.Amount,
		MinOutput:   minOutput,
		SolAmount:   t.SolAmount,
		TokenAmount: t.TokenAmount,
		Status:      domain.JournalPending,
		SubmittedAt: t.SubmittedAt.UnixMilli(),
	})

	conf, lastErr := e.await(ctx, t.Signature)
	t.Status = conf.Status
	e.resolve(ctx, t.Signature, conf)
	e.metrics.RecordOutcome(op, string(conf.Status))

	switch conf.Status {
	case StatusTimeout:
		log.Warn("trade not confirmed before timeout")
		err := fail(api.KindTransactionTimeout, "not confirmed in time, outcome unknown", lastErr)
		err.Signature = t.Signature
		return t, err
	case StatusFailed:
		log.WithField("err", conf.Err).Warn("trade failed on chain")
		err := fail(api.KindTransactionFailed, conf.Err, nil)
		err.Signature = t.Signature
		return t, err
	}

	confirmedAt := e.now()
	t.ConfirmedAt = &confirmedAt
	e.metrics.ObserveConfirmation(confirmedAt.Sub(t.SubmittedAt))
	log.Info("trade confirmed")

	realized := t.TokenAmount
	if typ == api.TradeSell {
		realized = t.SolAmount
	}
	if realized != nil && realized.LessThan(minOutput) {
		err := fail(api.KindSlippageExceeded,
			fmt.Sprintf("realized output %s below bound %s", realized, minOutput), nil)
		err.Signature = t.Signature
		return t, err
	}
	return t, nil
}

// sign decodes a prepared base64 transaction, signs it and re-encodes it.
func (e *Engine) sign(ctx context.Context, encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode prepared transaction: %w", err)
	}
	signed, err := e.signer.SignTransaction(ctx, raw)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(signed), nil
}

// await polls the confirmer at a fixed interval until a terminal status,
// the configured timeout, or ctx cancellation. Both of the latter yield
// StatusTimeout together with the last polling error, if any.
func (e *Engine) await(ctx context.Context, signature string) (Confirmation, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		conf, err := e.confirmer.Status(ctx, signature)
		switch {
		case err != nil:
			if ctx.Err() == nil {
				lastErr = err
				e.logger.WithError(err).WithField("signature", signature).Debug("status check failed")
			}
		case conf.Status.Terminal():
			return conf, nil
		}

		select {
		case <-ctx.Done():
			return Confirmation{Status: StatusTimeout}, lastErr
		case <-ticker.C:
		}
	}
}

// Reconcile checks a signature once, typically one that timed out earlier,
// and updates the journal when it reached a terminal status.
func (e *Engine) Reconcile(ctx context.Context, signature string) (Status, error) {
	conf, err := e.confirmer.Status(ctx, signature)
	if err != nil {
		return "", err
	}
	if conf.Status.Terminal() {
		e.resolve(ctx, signature, conf)
	}
	return conf.Status, nil
}

// Unresolved lists journaled trades of the signer that are still pending or
// timed out. It returns nil without a journal.
func (e *Engine) Unresolved(ctx context.Context) ([]*domain.JournalEntry, error) {
	if e.journal == nil || e.signer == nil {
		return nil, nil
	}
	return e.journal.ListUnresolved(ctx, e.signer.PublicKey())
}

func (e *Engine) record(ctx context.Context, entry *domain.JournalEntry) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Insert(ctx, entry); err != nil {
		e.logger.WithError(err).WithField("signature", entry.Signature).Warn("journal insert failed")
	}
}

func (e *Engine) resolve(ctx context.Context, signature string, conf Confirmation) {
	if e.journal == nil || conf.Status == StatusPending {
		return
	}
	// the poll may have ended because ctx was cancelled
	ctx = context.WithoutCancel(ctx)
	err := e.journal.Resolve(ctx, signature, domain.JournalStatus(conf.Status), e.now().UnixMilli(), conf.Err)
	if err != nil && !errors.Is(err, storage.ErrAlreadyResolved) && !errors.Is(err, storage.ErrNotFound) {
		e.logger.WithError(err).WithField("signature", signature).Warn("journal resolve failed")
	}
}
