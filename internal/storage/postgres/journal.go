package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/inavhq/clawdvault-sdk/internal/domain"
	"github.com/inavhq/clawdvault-sdk/internal/storage"
)

// Journal implements storage.TradeJournal using PostgreSQL.
type Journal struct {
	pool *Pool
}

// NewJournal creates a new Journal.
func NewJournal(pool *Pool) *Journal {
	return &Journal{pool: pool}
}

var _ storage.TradeJournal = (*Journal)(nil)

const journalColumns = `
	signature, wallet, mint, op, amount, min_output,
	sol_amount, token_amount, status, submitted_at, resolved_at, error
`

// Insert adds a new entry. Returns ErrDuplicateKey if the signature exists.
func (j *Journal) Insert(ctx context.Context, e *domain.JournalEntry) error {
	if err := storage.ValidateEntry(e); err != nil {
		return err
	}

	query := `INSERT INTO trade_journal (` + journalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := j.pool.Exec(ctx, query,
		e.Signature, e.Wallet, e.Mint, e.Op, e.Amount, e.MinOutput,
		nullDecimal(e.SolAmount), nullDecimal(e.TokenAmount),
		string(e.Status), e.SubmittedAt, e.ResolvedAt, e.Error,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// Resolve moves a pending or timed-out entry to status. The status check and
// the update run in one statement so concurrent resolvers cannot both win.
func (j *Journal) Resolve(ctx context.Context, signature string, status domain.JournalStatus, resolvedAt int64, errMsg string) error {
	if signature == "" || !status.Valid() || status == domain.JournalPending {
		return storage.ErrInvalidInput
	}

	tag, err := j.pool.Exec(ctx, `
		UPDATE trade_journal
		SET status = $2, resolved_at = $3, error = $4
		WHERE signature = $1 AND status IN ('pending', 'timeout')
	`, signature, string(status), resolvedAt, errMsg)
	if err != nil {
		return fmt.Errorf("resolve journal entry: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = j.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM trade_journal WHERE signature = $1)`, signature,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check journal entry: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrAlreadyResolved
}

// GetBySignature retrieves an entry. Returns ErrNotFound if not exists.
func (j *Journal) GetBySignature(ctx context.Context, signature string) (*domain.JournalEntry, error) {
	row := j.pool.QueryRow(ctx,
		`SELECT `+journalColumns+` FROM trade_journal WHERE signature = $1`, signature)

	e, err := scanEntry(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get journal entry: %w", err)
	}
	return e, nil
}

// ListUnresolved returns pending and timed-out entries of wallet.
func (j *Journal) ListUnresolved(ctx context.Context, wallet string) ([]*domain.JournalEntry, error) {
	return j.list(ctx, `
		SELECT `+journalColumns+` FROM trade_journal
		WHERE wallet = $1 AND status IN ('pending', 'timeout')
		ORDER BY submitted_at ASC, signature ASC
	`, wallet)
}

// ListByMint returns all entries for mint.
func (j *Journal) ListByMint(ctx context.Context, mint string) ([]*domain.JournalEntry, error) {
	return j.list(ctx, `
		SELECT `+journalColumns+` FROM trade_journal
		WHERE mint = $1
		ORDER BY submitted_at ASC, signature ASC
	`, mint)
}

func (j *Journal) list(ctx context.Context, query string, arg string) ([]*domain.JournalEntry, error) {
	rows, err := j.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var result []*domain.JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return result, nil
}

func scanEntry(row pgx.Row) (*domain.JournalEntry, error) {
	var (
		e                      domain.JournalEntry
		status                 string
		solAmount, tokenAmount decimal.NullDecimal
	)
	err := row.Scan(
		&e.Signature, &e.Wallet, &e.Mint, &e.Op, &e.Amount, &e.MinOutput,
		&solAmount, &tokenAmount, &status, &e.SubmittedAt, &e.ResolvedAt, &e.Error,
	)
	if err != nil {
		return nil, err
	}
	e.Status = domain.JournalStatus(status)
	if solAmount.Valid {
		e.SolAmount = &solAmount.Decimal
	}
	if tokenAmount.Valid {
		e.TokenAmount = &tokenAmount.Decimal
	}
	return &e, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
