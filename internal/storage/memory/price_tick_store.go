package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/inavhq/clawdvault-sdk/internal/domain"
	"github.com/inavhq/clawdvault-sdk/internal/storage"
)

// PriceTickStore is an in-memory implementation of storage.PriceTickStore.
type PriceTickStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PriceTick // keyed by (mint, timestamp_ms)
}

// NewPriceTickStore creates a new in-memory price tick store.
func NewPriceTickStore() *PriceTickStore {
	return &PriceTickStore{
		data: make(map[string]*domain.PriceTick),
	}
}

var _ storage.PriceTickStore = (*PriceTickStore)(nil)

func tickKey(mint string, timestampMs int64) string {
	return fmt.Sprintf("%s|%d", mint, timestampMs)
}

// InsertBulk adds multiple ticks. Fails entire batch on duplicate.
func (s *PriceTickStore) InsertBulk(_ context.Context, ticks []*domain.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(ticks))
	for _, t := range ticks {
		if t == nil || t.Mint == "" {
			return storage.ErrInvalidInput
		}
		key := tickKey(t.Mint, t.TimestampMs)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, t := range ticks {
		c := *t
		s.data[tickKey(t.Mint, t.TimestampMs)] = &c
	}
	return nil
}

// GetByTimeRange retrieves ticks for mint within [start, end], ordered by timestamp ASC.
func (s *PriceTickStore) GetByTimeRange(_ context.Context, mint string, start, end int64) ([]*domain.PriceTick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceTick
	for _, t := range s.data {
		if t.Mint == mint && t.TimestampMs >= start && t.TimestampMs <= end {
			c := *t
			result = append(result, &c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})
	return result, nil
}
