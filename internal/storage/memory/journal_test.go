package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/inavhq/clawdvault-sdk/internal/domain"
	"github.com/inavhq/clawdvault-sdk/internal/storage"
)

func entry(sig, wallet, mint string, submittedAt int64) *domain.JournalEntry {
	return &domain.JournalEntry{
		Signature:   sig,
		Wallet:      wallet,
		Mint:        mint,
		Op:          domain.OpBuy,
		Amount:      decimal.RequireFromString("0.05"),
		MinOutput:   decimal.RequireFromString("1500000"),
		Status:      domain.JournalPending,
		SubmittedAt: submittedAt,
	}
}

func TestJournal_InsertAndGet(t *testing.T) {
	j := NewJournal()
	ctx := context.Background()

	e := entry("sig1", "w1", "m1", 1000)
	if err := j.Insert(ctx, e); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := j.GetBySignature(ctx, "sig1")
	if err != nil {
		t.Fatalf("GetBySignature failed: %v", err)
	}
	if got.Mint != "m1" || !got.Amount.Equal(e.Amount) {
		t.Errorf("unexpected entry: %+v", got)
	}

	// Returned entries are copies
	got.Mint = "changed"
	again, _ := j.GetBySignature(ctx, "sig1")
	if again.Mint != "m1" {
		t.Errorf("store was mutated through returned entry")
	}

	if err := j.Insert(ctx, e); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	if _, err := j.GetBySignature(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestJournal_InvalidInput(t *testing.T) {
	j := NewJournal()
	ctx := context.Background()

	bad := entry("", "w1", "m1", 1000)
	if err := j.Insert(ctx, bad); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty signature, got %v", err)
	}
	if err := j.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil entry, got %v", err)
	}
	if err := j.Resolve(ctx, "sig1", domain.JournalPending, 0, ""); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for pending resolve, got %v", err)
	}
}

func TestJournal_Resolve(t *testing.T) {
	j := NewJournal()
	ctx := context.Background()

	if err := j.Insert(ctx, entry("sig1", "w1", "m1", 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// timeout is not final
	if err := j.Resolve(ctx, "sig1", domain.JournalTimeout, 2000, ""); err != nil {
		t.Fatalf("Resolve timeout failed: %v", err)
	}
	if err := j.Resolve(ctx, "sig1", domain.JournalFailed, 3000, "custom program error: 0x1771"); err != nil {
		t.Fatalf("Resolve failed failed: %v", err)
	}

	got, _ := j.GetBySignature(ctx, "sig1")
	if got.Status != domain.JournalFailed || got.ResolvedAt == nil || *got.ResolvedAt != 3000 {
		t.Errorf("unexpected resolution: %+v", got)
	}
	if got.Error != "custom program error: 0x1771" {
		t.Errorf("Expected error message, got %q", got.Error)
	}

	if err := j.Resolve(ctx, "sig1", domain.JournalConfirmed, 4000, ""); !errors.Is(err, storage.ErrAlreadyResolved) {
		t.Errorf("Expected ErrAlreadyResolved, got %v", err)
	}
	if err := j.Resolve(ctx, "missing", domain.JournalConfirmed, 4000, ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestJournal_ListUnresolvedAndByMint(t *testing.T) {
	j := NewJournal()
	ctx := context.Background()

	for _, e := range []*domain.JournalEntry{
		entry("sig3", "w1", "m1", 3000),
		entry("sig1", "w1", "m1", 1000),
		entry("sig2", "w1", "m2", 2000),
		entry("sig4", "w2", "m1", 500),
	} {
		if err := j.Insert(ctx, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if err := j.Resolve(ctx, "sig2", domain.JournalConfirmed, 2500, ""); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := j.Resolve(ctx, "sig3", domain.JournalTimeout, 3500, ""); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	unresolved, err := j.ListUnresolved(ctx, "w1")
	if err != nil {
		t.Fatalf("ListUnresolved failed: %v", err)
	}
	if len(unresolved) != 2 || unresolved[0].Signature != "sig1" || unresolved[1].Signature != "sig3" {
		t.Errorf("unexpected unresolved entries: %v", signatures(unresolved))
	}

	byMint, err := j.ListByMint(ctx, "m1")
	if err != nil {
		t.Fatalf("ListByMint failed: %v", err)
	}
	want := []string{"sig4", "sig1", "sig3"}
	got := signatures(byMint)
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
			break
		}
	}
}

func signatures(entries []*domain.JournalEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Signature
	}
	return out
}
