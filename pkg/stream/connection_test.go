package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inavhq/clawdvault-sdk/internal/observability"
	"github.com/inavhq/clawdvault-sdk/pkg/api"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type fakeConn struct {
	frames chan Frame
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan Frame, 64), closed: make(chan struct{})}
}

func (c *fakeConn) ReadFrame() (Frame, error) {
	select {
	case <-c.closed:
		return Frame{}, io.EOF
	default:
	}
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.closed:
		return Frame{}, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(kind EventKind, data any) {
	raw, _ := json.Marshal(data)
	c.frames <- Frame{Event: kind, Data: raw}
}

type fakeDialer struct {
	// gate, when set, holds every Dial until it is closed or ctx ends.
	gate chan struct{}

	mu      sync.Mutex
	fail    bool
	dials   int
	current *fakeConn
	dialed  chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, topic Topic, mint string) (Conn, error) {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail {
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.current = c
	d.dialed <- c
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) setFail(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = v
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.dialed:
		return c
	case <-time.After(waitFor):
		t.Fatal("no dial")
		return nil
	}
}

func fastOptions(auto bool, max int) Options {
	return Options{
		AutoReconnect:        auto,
		MaxReconnectAttempts: max,
		InitialDelay:         time.Millisecond,
		MaxDelay:             5 * time.Millisecond,
		DialTimeout:          time.Second,
	}
}

func update(price string) map[string]any {
	return map[string]any{"mint": "Mint1", "price_sol": price}
}

func TestConnection_ConnectFiresBeforeEventsInOrder(t *testing.T) {
	d := newFakeDialer()
	c := NewConnection(TopicToken, "Mint1", d, fastOptions(false, 0))

	var mu sync.Mutex
	var seen []string
	c.OnConnect(func() {
		mu.Lock()
		seen = append(seen, "connect")
		mu.Unlock()
	})
	c.OnUpdate(func(e *TokenUpdateEvent) {
		mu.Lock()
		seen = append(seen, e.PriceSol.String())
		mu.Unlock()
	})

	require.NoError(t, c.Connect())
	conn := d.next(t)
	for _, p := range []string{"0.1", "0.2", "0.3"} {
		conn.send(EventUpdate, update(p))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 4
	}, waitFor, tick)

	mu.Lock()
	assert.Equal(t, []string{"connect", "0.1", "0.2", "0.3"}, seen)
	mu.Unlock()
	assert.Equal(t, StateConnected, c.State())

	c.Disconnect()
}

func TestConnection_DisconnectFromCallbackSilencesStream(t *testing.T) {
	d := newFakeDialer()
	c := NewConnection(TopicToken, "Mint1", d, fastOptions(true, 5))

	var calls atomic.Int32
	c.OnUpdate(func(*TokenUpdateEvent) {
		calls.Add(1)
		c.Disconnect()
	})
	c.OnUpdate(func(*TokenUpdateEvent) {
		calls.Add(100)
	})

	require.NoError(t, c.Connect())
	conn := d.next(t)
	conn.send(EventUpdate, update("0.1"))
	conn.send(EventUpdate, update("0.2"))

	select {
	case <-c.Done():
	case <-time.After(waitFor):
		t.Fatal("run loop did not exit")
	}

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 1, d.dialCount(), "explicit disconnect must not reconnect")
	assert.ErrorIs(t, c.Connect(), ErrStreamClosed)
}

func TestConnection_DisconnectRightAfterConnect(t *testing.T) {
	d := newFakeDialer()
	d.gate = make(chan struct{})
	c := NewConnection(TopicToken, "Mint1", d, fastOptions(true, 5))

	var calls atomic.Int32
	c.OnUpdate(func(*TokenUpdateEvent) { calls.Add(1) })
	c.OnConnect(func() { calls.Add(1) })

	require.NoError(t, c.Connect())
	c.Disconnect()
	c.Disconnect()

	<-c.Done()
	assert.Zero(t, calls.Load())
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConnection_ExternalDisconnectStopsDelivery(t *testing.T) {
	d := newFakeDialer()
	c := NewConnection(TopicChat, "Mint1", d, fastOptions(true, 5))

	var calls atomic.Int32
	c.OnMessage(func(*ChatMessageEvent) { calls.Add(1) })

	connected := make(chan struct{})
	c.OnConnect(func() { close(connected) })
	require.NoError(t, c.Connect())
	conn := d.next(t)
	<-connected

	conn.send(EventMessage, map[string]any{"id": "m1", "message": "gm"})
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, tick)

	c.Disconnect()
	for i := 0; i < 5; i++ {
		select {
		case conn.frames <- Frame{Event: EventMessage, Data: json.RawMessage(`{"id":"late"}`)}:
		default:
		}
	}
	<-c.Done()
	assert.Equal(t, int32(1), calls.Load())
}

func TestConnection_NoReconnectWhenDisabled(t *testing.T) {
	d := newFakeDialer()
	metrics := observability.NewMetrics("noreconnect", nil)
	c := newConnection(TopicTrades, "Mint1", d, fastOptions(false, 0), nil, metrics)

	var dropped, failed atomic.Int32
	var gotErr atomic.Value
	c.OnDisconnect(func(error) { dropped.Add(1) })
	c.OnError(func(err error) {
		failed.Add(1)
		gotErr.Store(err)
	})

	require.NoError(t, c.Connect())
	conn := d.next(t)
	conn.Close()

	<-c.Done()
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 1, d.dialCount())
	assert.Equal(t, int32(1), dropped.Load())
	assert.Equal(t, int32(1), failed.Load())
	assert.ErrorIs(t, gotErr.Load().(error), api.ErrStreamConnection)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StreamTransitions.WithLabelValues("trades", "connecting")))
}

func TestConnection_ReconnectsAndResetsAttempts(t *testing.T) {
	d := newFakeDialer()
	c := NewConnection(TopicToken, "Mint1", d, fastOptions(true, 3))

	var connects atomic.Int32
	c.OnConnect(func() { connects.Add(1) })

	require.NoError(t, c.Connect())
	first := d.next(t)
	assert.Eventually(t, func() bool { return connects.Load() == 1 }, waitFor, tick)

	first.Close()
	second := d.next(t)
	assert.Eventually(t, func() bool { return connects.Load() == 2 }, waitFor, tick)
	assert.Equal(t, StateConnected, c.State())
	assert.Zero(t, c.ReconnectAttempts())

	var got atomic.Value
	c.OnUpdate(func(e *TokenUpdateEvent) { got.Store(e.PriceSol.String()) })
	first.send(EventUpdate, update("9.9"))
	second.send(EventUpdate, update("0.5"))
	assert.Eventually(t, func() bool { return got.Load() == "0.5" }, waitFor, tick)

	c.Disconnect()
}

func TestConnection_GivesUpAfterMaxAttempts(t *testing.T) {
	d := newFakeDialer()
	d.setFail(true)
	c := NewConnection(TopicChat, "Mint1", d, fastOptions(true, 2))

	var errs atomic.Int32
	c.OnError(func(err error) {
		assert.ErrorIs(t, err, api.ErrStreamConnection)
		errs.Add(1)
	})
	var connects atomic.Int32
	c.OnConnect(func() { connects.Add(1) })

	require.NoError(t, c.Connect())
	<-c.Done()

	assert.Equal(t, 3, d.dialCount())
	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, 2, c.ReconnectAttempts())
	assert.Equal(t, int32(1), errs.Load())
	assert.Zero(t, connects.Load())

	// a fresh Connect starts a new attempt cycle
	d.setFail(false)
	require.NoError(t, c.Connect())
	d.next(t)
	assert.Eventually(t, func() bool { return connects.Load() == 1 }, waitFor, tick)
	c.Disconnect()
}

func TestConnection_ConnectFromErrorHandlerRestarts(t *testing.T) {
	d := newFakeDialer()
	d.setFail(true)
	c := NewConnection(TopicChat, "Mint1", d, fastOptions(true, 1))

	var restarted atomic.Bool
	c.OnError(func(error) {
		if restarted.Swap(true) {
			return
		}
		d.setFail(false)
		assert.NoError(t, c.Connect())
	})

	require.NoError(t, c.Connect())
	first := c.Done()
	<-first

	d.next(t)
	assert.Eventually(t, func() bool { return c.State() == StateConnected }, waitFor, tick)
	assert.True(t, restarted.Load())
	assert.Zero(t, c.ReconnectAttempts())

	// the finished run must not mark the new one as stopped
	dials := d.dialCount()
	require.NoError(t, c.Connect())
	assert.Equal(t, dials, d.dialCount())
	select {
	case <-c.Done():
		t.Fatal("restarted run exited")
	default:
	}

	c.Disconnect()
}

func TestConnection_ConnectIsNoOpWhileActive(t *testing.T) {
	d := newFakeDialer()
	c := NewConnection(TopicTrades, "", d, fastOptions(false, 0))

	require.NoError(t, c.Connect())
	d.next(t)
	assert.Eventually(t, func() bool { return c.State() == StateConnected }, waitFor, tick)

	require.NoError(t, c.Connect())
	require.NoError(t, c.Connect())
	assert.Equal(t, 1, d.dialCount())

	c.Disconnect()
}

func TestConnection_Unsubscribe(t *testing.T) {
	d := newFakeDialer()
	c := NewConnection(TopicTrades, "Mint1", d, fastOptions(false, 0))

	var a, b atomic.Int32
	unsubA := c.OnTrade(func(*TradeEvent) { a.Add(1) })
	c.OnTrade(func(*TradeEvent) { b.Add(1) })

	require.NoError(t, c.Connect())
	conn := d.next(t)
	conn.send(EventTrade, map[string]any{"signature": "s1", "type": "buy"})
	assert.Eventually(t, func() bool { return b.Load() == 1 }, waitFor, tick)

	unsubA()
	unsubA()
	conn.send(EventTrade, map[string]any{"signature": "s2", "type": "sell"})
	assert.Eventually(t, func() bool { return b.Load() == 2 }, waitFor, tick)
	assert.Equal(t, int32(1), a.Load())

	c.Disconnect()
}

func TestConnection_SkipsUndecodableEvents(t *testing.T) {
	d := newFakeDialer()
	c := NewConnection(TopicChat, "Mint1", d, fastOptions(false, 0))

	var got []string
	var mu sync.Mutex
	c.OnReaction(func(e *ReactionEvent) {
		mu.Lock()
		got = append(got, e.Emoji)
		mu.Unlock()
	})

	require.NoError(t, c.Connect())
	conn := d.next(t)
	conn.frames <- Frame{Event: EventReaction, Data: json.RawMessage(`{"emoji": 5}`)}
	conn.frames <- Frame{Event: EventUpdate, Data: json.RawMessage(`{}`)}
	conn.send(EventReaction, map[string]any{"message_id": "m1", "emoji": "🔥", "count": 1})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, waitFor, tick)
	assert.Equal(t, StateConnected, c.State())

	c.Disconnect()
}

func TestDecodeEvent(t *testing.T) {
	ev, err := decodeEvent(TopicTrades, Frame{Event: EventMessage, Data: json.RawMessage(`{}`)})
	assert.NoError(t, err)
	assert.Nil(t, ev, "chat events are not emitted on the trades topic")

	ev, err = decodeEvent(TopicToken, Frame{Event: "mystery"})
	assert.NoError(t, err)
	assert.Nil(t, ev)

	ev, err = decodeEvent(TopicChat, Frame{Event: EventConnected, Data: json.RawMessage(`{"topic":"chat","mint":"M"}`)})
	require.NoError(t, err)
	hello, ok := ev.(*ConnectedEvent)
	require.True(t, ok)
	assert.Equal(t, "M", hello.Mint)

	ev, err = decodeEvent(TopicToken, Frame{Event: EventTrade, Data: json.RawMessage(`{"signature":"s","sol_amount":"0.05"}`)})
	require.NoError(t, err)
	trade := ev.(*TradeEvent)
	assert.Equal(t, "s", trade.Signature)
	assert.Equal(t, "0.05", trade.SolAmount.String())

	_, err = decodeEvent(TopicToken, Frame{Event: EventUpdate, Data: json.RawMessage(`[1]`)})
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "state(42)", State(42).String())
}
