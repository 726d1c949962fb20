package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/inavhq/clawdvault-sdk/internal/domain"
	"github.com/inavhq/clawdvault-sdk/internal/storage"
)

// Journal is an in-memory implementation of storage.TradeJournal.
type Journal struct {
	mu   sync.RWMutex
	data map[string]*domain.JournalEntry // keyed by signature
}

// NewJournal creates a new in-memory trade journal.
func NewJournal() *Journal {
	return &Journal{
		data: make(map[string]*domain.JournalEntry),
	}
}

var _ storage.TradeJournal = (*Journal)(nil)

// Insert adds a new entry. Returns ErrDuplicateKey if the signature exists.
func (j *Journal) Insert(_ context.Context, e *domain.JournalEntry) error {
	if err := storage.ValidateEntry(e); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.data[e.Signature]; exists {
		return storage.ErrDuplicateKey
	}
	j.data[e.Signature] = cloneEntry(e)
	return nil
}

// Resolve moves a pending or timed-out entry to status.
func (j *Journal) Resolve(_ context.Context, signature string, status domain.JournalStatus, resolvedAt int64, errMsg string) error {
	if signature == "" || !status.Valid() || status == domain.JournalPending {
		return storage.ErrInvalidInput
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	e, ok := j.data[signature]
	if !ok {
		return storage.ErrNotFound
	}
	if e.Status.Final() {
		return storage.ErrAlreadyResolved
	}
	e.Status = status
	e.ResolvedAt = &resolvedAt
	e.Error = errMsg
	return nil
}

// GetBySignature retrieves an entry. Returns ErrNotFound if not exists.
func (j *Journal) GetBySignature(_ context.Context, signature string) (*domain.JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	e, ok := j.data[signature]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneEntry(e), nil
}

// ListUnresolved returns pending and timed-out entries of wallet.
func (j *Journal) ListUnresolved(_ context.Context, wallet string) ([]*domain.JournalEntry, error) {
	return j.filter(func(e *domain.JournalEntry) bool {
		return e.Wallet == wallet && !e.Status.Final()
	}), nil
}

// ListByMint returns all entries for mint.
func (j *Journal) ListByMint(_ context.Context, mint string) ([]*domain.JournalEntry, error) {
	return j.filter(func(e *domain.JournalEntry) bool {
		return e.Mint == mint
	}), nil
}

func (j *Journal) filter(keep func(*domain.JournalEntry) bool) []*domain.JournalEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []*domain.JournalEntry
	for _, e := range j.data {
		if keep(e) {
			result = append(result, cloneEntry(e))
		}
	}

	// Sort by submitted_at ASC, signature as tiebreaker
	sort.Slice(result, func(a, b int) bool {
		if result[a].SubmittedAt != result[b].SubmittedAt {
			return result[a].SubmittedAt < result[b].SubmittedAt
		}
		return result[a].Signature < result[b].Signature
	})
	return result
}

func cloneEntry(e *domain.JournalEntry) *domain.JournalEntry {
	c := *e
	if e.SolAmount != nil {
		v := *e.SolAmount
		c.SolAmount = &v
	}
	if e.TokenAmount != nil {
		v := *e.TokenAmount
		c.TokenAmount = &v
	}
	if e.ResolvedAt != nil {
		v := *e.ResolvedAt
		c.ResolvedAt = &v
	}
	return &c
}
