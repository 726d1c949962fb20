package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inavhq/clawdvault-sdk/internal/launchpadtest"
	"github.com/inavhq/clawdvault-sdk/internal/storage/memory"
	"github.com/inavhq/clawdvault-sdk/pkg/api"
	"github.com/inavhq/clawdvault-sdk/pkg/signer"
	"github.com/inavhq/clawdvault-sdk/pkg/stream"
	"github.com/inavhq/clawdvault-sdk/pkg/trade"
)

type recordingSink struct {
	mu      sync.Mutex
	records []Record
	err     error
	closed  bool
}

func (s *recordingSink) Write(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return s.err
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

func updateRecord(mint string, price string, at time.Time) Record {
	payload, _ := json.Marshal(stream.TokenUpdateEvent{
		Mint:         mint,
		PriceSol:     decimal.RequireFromString(price),
		MarketCapSol: decimal.RequireFromString(price).Mul(decimal.NewFromInt(1_000_000_000)),
		UpdatedAt:    at,
	})
	return Record{Topic: stream.TopicToken, Mint: mint, Event: stream.EventUpdate, Payload: payload, ReceivedAt: at}
}

func TestRelay_CloseDrainsQueue(t *testing.T) {
	sink := &recordingSink{}
	r := New(sink, Config{Buffer: 16, FlushInterval: time.Hour}, nil, nil)

	for i := 0; i < 10; i++ {
		require.NoError(t, r.Enqueue(Record{Mint: "M", Event: stream.EventTrade}))
	}
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.Len(t, sink.snapshot(), 10)
	assert.True(t, sink.closed)
	assert.ErrorIs(t, r.Enqueue(Record{}), ErrClosed)
}

type blockingSink struct {
	recordingSink
	release chan struct{}
}

func (s *blockingSink) Write(ctx context.Context, r Record) error {
	<-s.release
	return s.recordingSink.Write(ctx, r)
}

func TestRelay_FullQueueDrops(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	r := New(sink, Config{Buffer: 1, FlushInterval: time.Hour}, nil, nil)

	var dropped int
	for i := 0; i < 5; i++ {
		if err := r.Enqueue(Record{Mint: "M"}); err != nil {
			dropped++
		}
	}
	assert.GreaterOrEqual(t, dropped, 3)
	assert.Equal(t, int64(dropped), r.Dropped())

	close(sink.release)
	require.NoError(t, r.Close())
}

func TestFanout_JoinsErrors(t *testing.T) {
	ok := &recordingSink{}
	bad := &recordingSink{err: errors.New("broker down")}
	f := NewFanout(nil, Named{Name: "ok", Sink: ok}, Named{Name: "kafka", Sink: bad})

	err := f.Write(context.Background(), Record{Mint: "M"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka: broker down")
	assert.Len(t, ok.snapshot(), 1)
	assert.Len(t, bad.snapshot(), 1)

	require.NoError(t, f.Close())
	assert.True(t, ok.closed)
	assert.True(t, bad.closed)
}

func TestTickSink_BatchesUpdates(t *testing.T) {
	store := memory.NewPriceTickStore()
	s := NewTickSink(store, 3)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000).UTC()

	require.NoError(t, s.Write(ctx, Record{Mint: "M", Event: stream.EventTrade, Payload: json.RawMessage(`{}`)}))
	require.NoError(t, s.Write(ctx, updateRecord("M", "0.00000003", base)))
	require.NoError(t, s.Write(ctx, updateRecord("M", "0.00000004", base.Add(time.Second))))

	got, err := store.GetByTimeRange(ctx, "M", 0, base.Add(time.Hour).UnixMilli())
	require.NoError(t, err)
	assert.Empty(t, got, "below batch size")

	// same millisecond as the previous one: last value wins
	require.NoError(t, s.Write(ctx, updateRecord("M", "0.00000005", base.Add(time.Second))))

	got, err = store.GetByTimeRange(ctx, "M", 0, base.Add(time.Hour).UnixMilli())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 0.00000003, got[0].PriceSol, 1e-15)
	assert.InDelta(t, 0.00000005, got[1].PriceSol, 1e-15)
	assert.Equal(t, TickSource, got[1].Source)

	require.NoError(t, s.Write(ctx, updateRecord("M", "0.00000006", base.Add(2*time.Second))))
	require.NoError(t, s.Close())
	got, err = store.GetByTimeRange(ctx, "M", 0, base.Add(time.Hour).UnixMilli())
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestTickSink_DuplicateBatchIgnored(t *testing.T) {
	store := memory.NewPriceTickStore()
	s := NewTickSink(store, 1)
	at := time.UnixMilli(1_700_000_000_000).UTC()

	require.NoError(t, s.Write(context.Background(), updateRecord("M", "0.1", at)))
	require.NoError(t, s.Write(context.Background(), updateRecord("M", "0.2", at)))

	got, err := store.GetByTimeRange(context.Background(), "M", 0, at.UnixMilli())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.1, got[0].PriceSol, 1e-12)
}

func TestTickSink_ReplayedTickKeepsRestOfBatch(t *testing.T) {
	store := memory.NewPriceTickStore()
	s := NewTickSink(store, 3)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000).UTC()
	at := func(i int) time.Time { return base.Add(time.Duration(i) * time.Second) }

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Write(ctx, updateRecord("M", "0.1", at(i))))
	}

	// the server replays its latest state after a reconnect
	require.NoError(t, s.Write(ctx, updateRecord("M", "0.1", at(2))))
	require.NoError(t, s.Write(ctx, updateRecord("M", "0.2", at(3))))
	require.NoError(t, s.Write(ctx, updateRecord("M", "0.3", at(4))))

	got, err := store.GetByTimeRange(ctx, "M", 0, at(10).UnixMilli())
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, at(3).UnixMilli(), got[3].TimestampMs)
	assert.InDelta(t, 0.3, got[4].PriceSol, 1e-12)
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink_KeysByMint(t *testing.T) {
	w := &fakeWriter{}
	s := newKafkaSink(w, nil)
	at := time.Now().UTC()

	require.NoError(t, s.Write(context.Background(), updateRecord("Mint1", "0.1", at)))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "Mint1", string(msg.Key))

	var got Record
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, stream.EventUpdate, got.Event)
	assert.Equal(t, stream.TopicToken, got.Topic)

	require.NoError(t, s.Close())
	assert.True(t, w.closed)
}

func TestNewKafkaSink_Validates(t *testing.T) {
	_, err := NewKafkaSink(nil, "events", nil)
	assert.Error(t, err)
	_, err = NewKafkaSink([]string{"localhost:9092"}, "", nil)
	assert.Error(t, err)
}

func TestRelay_AttachRecordsLiveEvents(t *testing.T) {
	srv := launchpadtest.NewServer()
	defer srv.Close()
	mint := srv.SeedToken("Claw", "CLAW", "creator").Mint

	key, err := signer.GenerateKeypair()
	require.NoError(t, err)
	client := api.NewClient(api.NewTransport(srv.URL))
	engine := trade.NewEngine(client, key, trade.NewAPIConfirmer(client),
		trade.WithConfig(trade.Config{PollInterval: 5 * time.Millisecond, ConfirmTimeout: time.Second}))

	m := stream.NewManager(stream.NewWSDialer(srv.StreamURL, nil))
	defer m.Close()
	conn, err := m.StreamToken(mint)
	require.NoError(t, err)

	sink := &recordingSink{}
	r := New(sink, DefaultConfig(), nil, nil)
	detach := r.Attach(conn)
	defer detach()

	require.NoError(t, conn.Connect())
	require.Eventually(t, func() bool { return srv.Subscribers(stream.TopicToken) == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err = engine.Buy(context.Background(), trade.Request{
		Mint:        mint,
		Amount:      decimal.RequireFromString("0.5"),
		MaxSlippage: decimal.RequireFromString("0.05"),
		Token:       srv.IssueSession(key.PublicKey()),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)
	recs := sink.snapshot()
	assert.Equal(t, stream.EventTrade, recs[0].Event)
	assert.Equal(t, stream.EventUpdate, recs[1].Event)
	for _, rec := range recs {
		assert.Equal(t, mint, rec.Mint)
		assert.Equal(t, stream.TopicToken, rec.Topic)
	}
	require.NoError(t, r.Close())
}
