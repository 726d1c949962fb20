package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.RecordSession("ok")
	m.RecordOutcome("buy", "confirmed")
	m.RecordRelayWrite("kafka", errors.New("boom"))
	m.ObserveRequest("quote", 200, 10*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsCreated.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradeOutcomes.WithLabelValues("buy", "confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayWrites.WithLabelValues("kafka", "error")))
}

func TestNewMetrics_NilRegistererDoesNotPanicOnDuplicates(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics("dup", nil)
		NewMetrics("dup", nil)
	})
}

func TestNilMetrics_RecordsNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordQuote()
		m.RecordSubmitted("sell")
		m.ObserveConfirmation(time.Second)
		m.RecordTransition("chat", "connected")
		m.RecordReconnect("chat")
		m.AddActiveStreams(1)
		m.RecordRPCLatency("getSlot", time.Millisecond)
	})
}

func TestStreamsActiveGauge(t *testing.T) {
	m := NewMetrics("gauge", nil)
	m.AddActiveStreams(2)
	m.AddActiveStreams(-1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamsActive))
}
