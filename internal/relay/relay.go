// Package relay forwards stream events to external sinks.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inavhq/clawdvault-sdk/internal/logging"
	"github.com/inavhq/clawdvault-sdk/internal/observability"
	"github.com/inavhq/clawdvault-sdk/pkg/stream"
)

// Record is one stream event as delivered to sinks.
type Record struct {
	Topic      stream.Topic     `json:"topic"`
	Mint       string           `json:"mint"`
	Event      stream.EventKind `json:"event"`
	Payload    json.RawMessage  `json:"payload"`
	ReceivedAt time.Time        `json:"received_at"`
}

// Sink consumes records.
type Sink interface {
	Write(ctx context.Context, r Record) error
	Close() error
}

// Flusher is a Sink that buffers and can be asked to drain.
type Flusher interface {
	Flush(ctx context.Context) error
}

// ErrClosed is returned by Relay.Enqueue after Close.
var ErrClosed = errors.New("relay: closed")

// Config controls the relay worker.
type Config struct {
	// Buffer is the queue size between stream readers and the sink.
	Buffer int
	// FlushInterval drains buffering sinks periodically.
	FlushInterval time.Duration
	// WriteTimeout bounds one sink write.
	WriteTimeout time.Duration
}

// DefaultConfig returns default relay settings.
func DefaultConfig() Config {
	return Config{
		Buffer:        1024,
		FlushInterval: time.Second,
		WriteTimeout:  5 * time.Second,
	}
}

// Relay queues stream events and writes them to a sink on its own
// goroutine, so slow sinks never stall stream dispatch.
type Relay struct {
	sink    Sink
	cfg     Config
	logger  *logrus.Entry
	metrics *observability.Metrics

	queue chan Record
	done  chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// New creates a Relay and starts its worker. Logger and metrics may be nil.
func New(sink Sink, cfg Config, logger *logrus.Entry, metrics *observability.Metrics) *Relay {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultConfig().Buffer
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if logger == nil {
		logger = logging.Discard()
	}
	r := &Relay{
		sink:    sink,
		cfg:     cfg,
		logger:  logger.WithField("component", "relay"),
		metrics: metrics,
		queue:   make(chan Record, cfg.Buffer),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Attach forwards every event of c, except the connected hello, to the
// relay. The returned func detaches.
func (r *Relay) Attach(c *stream.Connection) (detach func()) {
	var offs []func()
	for _, kind := range []stream.EventKind{stream.EventTrade, stream.EventUpdate, stream.EventMessage, stream.EventReaction} {
		offs = append(offs, c.On(kind, func(ev stream.Event) {
			r.forward(c, ev)
		}))
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func (r *Relay) forward(c *stream.Connection, ev stream.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.WithError(err).WithField("event", ev.Kind()).Warn("encode event")
		return
	}
	mint := eventMint(ev)
	if mint == "" {
		mint = c.Mint()
	}
	if err := r.Enqueue(Record{
		Topic:      c.Topic(),
		Mint:       mint,
		Event:      ev.Kind(),
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}); err != nil && !errors.Is(err, ErrClosed) {
		r.logger.WithError(err).WithField("mint", mint).Warn("record dropped")
	}
}

func eventMint(ev stream.Event) string {
	switch e := ev.(type) {
	case *stream.TradeEvent:
		return e.Mint
	case *stream.TokenUpdateEvent:
		return e.Mint
	case *stream.ChatMessageEvent:
		return e.Mint
	case *stream.ReactionEvent:
		return e.Mint
	}
	return ""
}

var errQueueFull = errors.New("relay: queue full")

// Enqueue queues rec without blocking. A full queue drops the record.
func (r *Relay) Enqueue(rec Record) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	select {
	case r.queue <- rec:
		return nil
	default:
		r.dropped.Add(1)
		return errQueueFull
	}
}

// Dropped returns how many records were lost to a full queue.
func (r *Relay) Dropped() int64 {
	return r.dropped.Load()
}

func (r *Relay) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-r.queue:
			if !ok {
				r.flush()
				return
			}
			r.write(rec)
		case <-ticker.C:
			r.flush()
		}
	}
}

func (r *Relay) write(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()
	if err := r.sink.Write(ctx, rec); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{"mint": rec.Mint, "event": rec.Event}).Warn("sink write failed")
	}
}

func (r *Relay) flush() {
	f, ok := r.sink.(Flusher)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()
	if err := f.Flush(ctx); err != nil {
		r.logger.WithError(err).Warn("sink flush failed")
	}
}

// Close drains the queue, flushes and closes the sink. Safe to call twice.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	return r.sink.Close()
}
