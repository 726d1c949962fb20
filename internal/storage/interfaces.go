package storage

import (
	"context"

	"github.com/inavhq/clawdvault-sdk/internal/domain"
)

// TradeJournal records submitted transactions and their outcome.
type TradeJournal interface {
	// Insert adds a pending entry. Returns ErrDuplicateKey if the signature exists.
	Insert(ctx context.Context, e *domain.JournalEntry) error

	// Resolve sets the status of an entry. Pending and timed-out entries may be
	// resolved; confirmed and failed ones return ErrAlreadyResolved.
	// Returns ErrNotFound if the signature is unknown.
	Resolve(ctx context.Context, signature string, status domain.JournalStatus, resolvedAt int64, errMsg string) error

	// GetBySignature retrieves an entry. Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, signature string) (*domain.JournalEntry, error)

	// ListUnresolved returns pending and timed-out entries of wallet,
	// ordered by submitted_at ASC.
	ListUnresolved(ctx context.Context, wallet string) ([]*domain.JournalEntry, error)

	// ListByMint returns all entries for mint, ordered by submitted_at ASC.
	ListByMint(ctx context.Context, mint string) ([]*domain.JournalEntry, error)
}

// PriceTickStore provides access to price_ticks storage.
type PriceTickStore interface {
	// InsertBulk adds multiple ticks. Fails entire batch on duplicate (mint, timestamp_ms).
	InsertBulk(ctx context.Context, ticks []*domain.PriceTick) error

	// GetByTimeRange retrieves ticks for a mint within [start, end] (inclusive),
	// ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.PriceTick, error)
}

// ValidateEntry checks the fields every journal entry must carry.
func ValidateEntry(e *domain.JournalEntry) error {
	if e == nil || e.Signature == "" || e.Wallet == "" || e.Op == "" {
		return ErrInvalidInput
	}
	if !e.Status.Valid() {
		return ErrInvalidInput
	}
	return nil
}
