package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/inavhq/clawdvault-sdk/internal/domain"
	"github.com/inavhq/clawdvault-sdk/internal/storage"
	"github.com/inavhq/clawdvault-sdk/pkg/stream"
)

// TickSource tags ticks recorded from the stream.
const TickSource = "stream"

// DefaultTickBatch is the number of ticks buffered before a write.
const DefaultTickBatch = 100

// TickSink records token update events as price ticks. Other events are
// ignored. Ticks are buffered and written in batches.
type TickSink struct {
	store storage.PriceTickStore
	batch int

	mu  sync.Mutex
	buf []*domain.PriceTick
}

var (
	_ Sink    = (*TickSink)(nil)
	_ Flusher = (*TickSink)(nil)
)

// NewTickSink creates a TickSink. batch <= 0 uses DefaultTickBatch.
func NewTickSink(store storage.PriceTickStore, batch int) *TickSink {
	if batch <= 0 {
		batch = DefaultTickBatch
	}
	return &TickSink{store: store, batch: batch}
}

// Write implements Sink.
func (s *TickSink) Write(ctx context.Context, r Record) error {
	if r.Event != stream.EventUpdate {
		return nil
	}
	var ev stream.TokenUpdateEvent
	if err := json.Unmarshal(r.Payload, &ev); err != nil {
		return fmt.Errorf("decode update: %w", err)
	}

	ts := ev.UpdatedAt
	if ts.IsZero() {
		ts = r.ReceivedAt
	}
	mint := ev.Mint
	if mint == "" {
		mint = r.Mint
	}
	tick := &domain.PriceTick{
		Mint:         mint,
		TimestampMs:  ts.UnixMilli(),
		PriceSol:     ev.PriceSol.InexactFloat64(),
		MarketCapSol: ev.MarketCapSol.InexactFloat64(),
		Source:       TickSource,
	}

	s.mu.Lock()
	s.buf = append(s.buf, tick)
	full := len(s.buf) >= s.batch
	s.mu.Unlock()

	if full {
		return s.Flush(ctx)
	}
	return nil
}

// Flush writes buffered ticks. Ticks sharing a (mint, millisecond) key keep
// the latest value.
func (s *TickSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	buf := s.buf
	s.buf = nil
	s.mu.Unlock()

	if len(buf) == 0 {
		return nil
	}

	type key struct {
		mint string
		ts   int64
	}
	idx := make(map[key]int, len(buf))
	ticks := make([]*domain.PriceTick, 0, len(buf))
	for _, t := range buf {
		k := key{t.Mint, t.TimestampMs}
		if i, ok := idx[k]; ok {
			ticks[i] = t
			continue
		}
		idx[k] = len(ticks)
		ticks = append(ticks, t)
	}

	err := s.store.InsertBulk(ctx, ticks)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return s.insertEach(ctx, ticks)
	}
	if err != nil {
		return fmt.Errorf("insert %d ticks: %w", len(ticks), err)
	}
	return nil
}

// insertEach writes ticks one at a time, skipping those an earlier batch
// already recorded.
func (s *TickSink) insertEach(ctx context.Context, ticks []*domain.PriceTick) error {
	var errs []error
	for _, t := range ticks {
		err := s.store.InsertBulk(ctx, []*domain.PriceTick{t})
		if err == nil || errors.Is(err, storage.ErrDuplicateKey) {
			continue
		}
		errs = append(errs, fmt.Errorf("insert tick %s@%d: %w", t.Mint, t.TimestampMs, err))
	}
	return errors.Join(errs...)
}

// Close flushes what is left.
func (s *TickSink) Close() error {
	return s.Flush(context.Background())
}
