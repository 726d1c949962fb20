package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/inavhq/clawdvault-sdk/internal/observability"
)

// Named gives a sink a label for metrics and errors.
type Named struct {
	Name string
	Sink Sink
}

// Fanout writes every record to all sinks. One failing sink does not stop
// the others; their errors are joined.
type Fanout struct {
	sinks   []Named
	metrics *observability.Metrics
}

var (
	_ Sink    = (*Fanout)(nil)
	_ Flusher = (*Fanout)(nil)
)

// NewFanout creates a Fanout. Metrics may be nil.
func NewFanout(metrics *observability.Metrics, sinks ...Named) *Fanout {
	return &Fanout{sinks: sinks, metrics: metrics}
}

// Write implements Sink.
func (f *Fanout) Write(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range f.sinks {
		err := s.Sink.Write(ctx, r)
		f.metrics.RecordRelayWrite(s.Name, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Flush drains every buffering sink.
func (f *Fanout) Flush(ctx context.Context) error {
	var errs []error
	for _, s := range f.sinks {
		if fl, ok := s.Sink.(Flusher); ok {
			if err := fl.Flush(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
