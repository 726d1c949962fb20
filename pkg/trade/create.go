package trade

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/inavhq/clawdvault-sdk/internal/domain"
	"github.com/inavhq/clawdvault-sdk/pkg/api"
)

// CreateToken launches a token: prepare-create, sign, execute-create, then
// wait for confirmation like a trade. token is the session token. After
// submission the result is non-nil even on error.
func (e *Engine) CreateToken(ctx context.Context, token string, p api.CreateTokenParams) (*api.CreatedToken, error) {
	const op = "create_token"
	fail := func(kind api.Kind, msg string, err error) *api.Error {
		return &api.Error{Kind: kind, Op: op, Amount: p.InitialBuy.String(), Message: msg, Err: err}
	}

	if p.InitialBuy.IsNegative() {
		return nil, fail(api.KindInvalidAmount, "initial buy must not be negative", nil)
	}
	if p.Name == "" || p.Symbol == "" {
		return nil, fail(api.KindRequest, "name and symbol are required", nil)
	}
	if e.signer == nil {
		return nil, fail(api.KindSignature, "no signer configured", nil)
	}
	wallet := e.signer.PublicKey()

	prepared, err := e.api.PrepareCreate(ctx, token, api.PrepareCreateRequest{CreateTokenParams: p, Wallet: wallet})
	if err != nil {
		return nil, err
	}

	signed, err := e.sign(ctx, prepared.Transaction)
	if err != nil {
		e.metrics.RecordOutcome("create", "signature_failed")
		serr := fail(api.KindSignature, "sign transaction", err)
		serr.Mint = prepared.Mint
		return nil, serr
	}

	created, err := e.api.ExecuteCreate(ctx, token, api.ExecuteCreateRequest{
		CreateTokenParams: p,
		Wallet:            wallet,
		Mint:              prepared.Mint,
		SignedTransaction: signed,
	})
	if err != nil {
		return nil, err
	}

	log := e.logger.WithFields(logrus.Fields{"mint": created.Mint, "signature": created.Signature})
	log.Info("token creation submitted")
	e.metrics.RecordSubmitted("create")
	e.record(ctx, &domain.JournalEntry{
		Signature:   created.Signature,
		Wallet:      wallet,
		Mint:        created.Mint,
		Op:          domain.OpCreate,
		Amount:      p.InitialBuy,
		Status:      domain.JournalPending,
		SubmittedAt: e.now().UnixMilli(),
	})

	conf, lastErr := e.await(ctx, created.Signature)
	e.resolve(ctx, created.Signature, conf)
	e.metrics.RecordOutcome("create", string(conf.Status))

	switch conf.Status {
	case StatusTimeout:
		err := fail(api.KindTransactionTimeout, "not confirmed in time, outcome unknown", lastErr)
		err.Mint, err.Signature = created.Mint, created.Signature
		return created, err
	case StatusFailed:
		err := fail(api.KindTransactionFailed, conf.Err, nil)
		err.Mint, err.Signature = created.Mint, created.Signature
		return created, err
	}
	log.Info("token created")
	return created, nil
}
