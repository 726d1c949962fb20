// Package stream maintains real-time launchpad subscriptions. Each
// Connection is an independent state machine with its own reconnect policy.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/inavhq/clawdvault-sdk/internal/logging"
	"github.com/inavhq/clawdvault-sdk/internal/observability"
	"github.com/inavhq/clawdvault-sdk/pkg/api"
)

// State is the lifecycle state of a Connection.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// ErrStreamClosed is returned by Connect after an explicit Disconnect.
var ErrStreamClosed = errors.New("stream: connection closed")

// Options is the reconnect policy of a Connection.
type Options struct {
	AutoReconnect        bool
	MaxReconnectAttempts int
	// InitialDelay and MaxDelay bound the exponential reconnect backoff.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// DialTimeout bounds one connection attempt.
	DialTimeout time.Duration
}

// DefaultOptions returns auto-reconnect with 5 attempts, backing off 1s to 30s.
func DefaultOptions() Options {
	return Options{
		AutoReconnect:        true,
		MaxReconnectAttempts: 5,
		InitialDelay:         1 * time.Second,
		MaxDelay:             30 * time.Second,
		DialTimeout:          10 * time.Second,
	}
}

type handler struct {
	id   uint64
	kind EventKind
	fn   func(Event)
}

type errHandler struct {
	id uint64
	fn func(error)
}

type hook struct {
	id uint64
	fn func()
}

// Connection is one subscription to (topic, mint).
//
// A single reader goroutine dispatches events in arrival order. Callbacks
// run on that goroutine and may call any Connection method, including
// Disconnect. Once Disconnect returns no further callback is started.
type Connection struct {
	topic   Topic
	mint    string
	dialer  Dialer
	opts    Options
	logger  *logrus.Entry
	metrics *observability.Metrics
	onClose func(*Connection)

	mu       sync.Mutex
	state    State
	closed   bool
	running  bool
	attempts int
	gen      uint64
	conn     Conn
	cancel   context.CancelFunc
	done     chan struct{}
	bo       backoff.BackOff

	nextID       uint64
	handlers     []handler
	connectHooks []hook
	dropHooks    []errHandler
	errHooks     []errHandler
}

func newConnection(topic Topic, mint string, dialer Dialer, opts Options, logger *logrus.Entry, metrics *observability.Metrics) *Connection {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = opts.InitialDelay
	exp.MaxInterval = opts.MaxDelay
	exp.MaxElapsedTime = 0
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultOptions().DialTimeout
	}
	if logger == nil {
		logger = logging.Discard()
	}

	done := make(chan struct{})
	close(done)

	return &Connection{
		topic:   topic,
		mint:    mint,
		dialer:  dialer,
		opts:    opts,
		logger:  logger.WithFields(logrus.Fields{"component": "stream", "topic": topic, "mint": mint}),
		metrics: metrics,
		state:   StateIdle,
		bo:      exp,
		done:    done,
	}
}

// NewConnection creates an unmanaged connection. Most callers use Manager.
func NewConnection(topic Topic, mint string, dialer Dialer, opts Options) *Connection {
	return newConnection(topic, mint, dialer, opts, nil, nil)
}

// Topic returns the subscribed topic.
func (c *Connection) Topic() Topic { return c.topic }

// Mint returns the subscribed mint, empty for the global trade feed.
func (c *Connection) Mint() string { return c.mint }

// State returns the current state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReconnectAttempts returns reconnects scheduled since the last establishment.
func (c *Connection) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Done is closed when the connection's background loop has exited.
func (c *Connection) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Connect starts connecting in the background. It is a no-op while
// connecting or connected and fails with ErrStreamClosed after Disconnect.
func (c *Connection) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrStreamClosed
	}
	if c.running {
		return nil
	}

	c.attempts = 0
	c.bo.Reset()
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	c.setStateLocked(StateConnecting)

	go c.run(ctx, c.done)
	return nil
}

// Disconnect closes the connection for good. It suppresses reconnects,
// drops every handler and is idempotent. Safe to call from a callback.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.setStateLocked(StateDisconnected)
	c.handlers = nil
	c.connectHooks = nil
	c.dropHooks = nil
	c.errHooks = nil
	conn := c.conn
	c.conn = nil
	cancel := c.cancel
	onClose := c.onClose
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if onClose != nil {
		onClose(c)
	}
	c.logger.Debug("disconnected")
}

// On registers fn for events of kind. The returned func unregisters it.
func (c *Connection) On(kind EventKind, fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	c.nextID++
	id := c.nextID
	c.handlers = append(c.handlers, handler{id: id, kind: kind, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, h := range c.handlers {
			if h.id == id {
				c.handlers = append(c.handlers[:i:i], c.handlers[i+1:]...)
				return
			}
		}
	}
}

// OnConnected registers fn for the server hello.
func (c *Connection) OnConnected(fn func(*ConnectedEvent)) func() {
	return c.On(EventConnected, func(e Event) { fn(e.(*ConnectedEvent)) })
}

// OnTrade registers fn for trade events.
func (c *Connection) OnTrade(fn func(*TradeEvent)) func() {
	return c.On(EventTrade, func(e Event) { fn(e.(*TradeEvent)) })
}

// OnUpdate registers fn for token state updates.
func (c *Connection) OnUpdate(fn func(*TokenUpdateEvent)) func() {
	return c.On(EventUpdate, func(e Event) { fn(e.(*TokenUpdateEvent)) })
}

// OnMessage registers fn for chat messages.
func (c *Connection) OnMessage(fn func(*ChatMessageEvent)) func() {
	return c.On(EventMessage, func(e Event) { fn(e.(*ChatMessageEvent)) })
}

// OnReaction registers fn for chat reactions.
func (c *Connection) OnReaction(fn func(*ReactionEvent)) func() {
	return c.On(EventReaction, func(e Event) { fn(e.(*ReactionEvent)) })
}

// OnConnect registers fn to run once per successful establishment.
func (c *Connection) OnConnect(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	c.nextID++
	id := c.nextID
	c.connectHooks = append(c.connectHooks, hook{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, h := range c.connectHooks {
			if h.id == id {
				c.connectHooks = append(c.connectHooks[:i:i], c.connectHooks[i+1:]...)
				return
			}
		}
	}
}

// OnDisconnect registers fn to run when an established connection drops
// unexpectedly. It does not run for Disconnect.
func (c *Connection) OnDisconnect(fn func(error)) func() {
	return c.addErrHandler(&c.dropHooks, fn)
}

// OnError registers fn to run when the connection gives up. The error is
// an *api.Error of kind KindStreamConnection. fn may call Connect to
// start a fresh run with the attempt count reset.
func (c *Connection) OnError(fn func(error)) func() {
	return c.addErrHandler(&c.errHooks, fn)
}

func (c *Connection) addErrHandler(list *[]errHandler, fn func(error)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	c.nextID++
	id := c.nextID
	*list = append(*list, errHandler{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, h := range *list {
			if h.id == id {
				*list = append((*list)[:i:i], (*list)[i+1:]...)
				return
			}
		}
	}
}

func (c *Connection) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.metrics.RecordTransition(string(c.topic), s.String())
}

// run dials, reads and reconnects until the policy gives up or the
// connection is closed.
func (c *Connection) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		c.mu.Lock()
		c.releaseLocked(done)
		c.mu.Unlock()
	}()

	for {
		dctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
		conn, err := c.dialer.Dial(dctx, c.topic, c.mint)
		cancel()
		if err != nil {
			if !c.enter(StateFailed) {
				return
			}
			c.logger.WithError(err).Warn("dial failed")
			if c.retry(ctx) {
				continue
			}
			c.giveUp(err, done)
			return
		}

		gen, ok := c.establish(conn)
		if !ok {
			conn.Close()
			return
		}
		c.logger.Debug("connected")
		c.fireConnect(gen)

		err = c.read(conn, gen)
		conn.Close()
		if !c.drop(gen) {
			return
		}
		c.logger.WithError(err).Warn("connection dropped")
		c.fireDrop(err)
		if c.retry(ctx) {
			continue
		}
		c.giveUp(err, done)
		return
	}
}

func (c *Connection) enter(s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.setStateLocked(s)
	return true
}

func (c *Connection) establish(conn Conn) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, false
	}
	c.gen++
	c.conn = conn
	c.attempts = 0
	c.bo.Reset()
	c.setStateLocked(StateConnected)
	return c.gen, true
}

func (c *Connection) drop(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.gen != gen {
		return false
	}
	c.conn = nil
	c.setStateLocked(StateDisconnected)
	return true
}

// retry waits out the next backoff delay if the policy allows another
// attempt. It reports whether the caller should dial again.
func (c *Connection) retry(ctx context.Context) bool {
	c.mu.Lock()
	if c.closed || !c.opts.AutoReconnect || c.attempts >= c.opts.MaxReconnectAttempts {
		c.mu.Unlock()
		return false
	}
	c.attempts++
	attempt := c.attempts
	delay := c.bo.NextBackOff()
	c.mu.Unlock()

	c.metrics.RecordReconnect(string(c.topic))
	c.logger.WithFields(logrus.Fields{"attempt": attempt, "delay": delay}).Info("reconnecting")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}

	return c.enter(StateConnecting)
}

func (c *Connection) read(conn Conn, gen uint64) error {
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			var fe *FrameError
			if errors.As(err, &fe) {
				c.logger.WithError(err).Warn("skipping frame")
				continue
			}
			return err
		}

		ev, err := decodeEvent(c.topic, f)
		if err != nil {
			c.logger.WithError(err).Warn("skipping event")
			continue
		}
		if ev == nil {
			continue
		}
		c.dispatch(gen, ev)
	}
}

// live reports whether callbacks for establishment gen may still run.
func (c *Connection) live(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.state == StateConnected && c.gen == gen
}

func (c *Connection) dispatch(gen uint64, ev Event) {
	c.mu.Lock()
	if c.closed || c.state != StateConnected || c.gen != gen {
		c.mu.Unlock()
		return
	}
	var fns []func(Event)
	for _, h := range c.handlers {
		if h.kind == ev.Kind() {
			fns = append(fns, h.fn)
		}
	}
	c.mu.Unlock()

	for i, fn := range fns {
		if i > 0 && !c.live(gen) {
			return
		}
		fn(ev)
	}
}

func (c *Connection) fireConnect(gen uint64) {
	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		return
	}
	fns := make([]func(), len(c.connectHooks))
	for i, h := range c.connectHooks {
		fns[i] = h.fn
	}
	c.mu.Unlock()

	for i, fn := range fns {
		if i > 0 && !c.live(gen) {
			return
		}
		fn()
	}
}

func (c *Connection) snapshotErr(list []errHandler) []func(error) {
	fns := make([]func(error), len(list))
	for i, h := range list {
		fns[i] = h.fn
	}
	return fns
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// releaseLocked clears running unless a newer run has replaced the one
// owning done.
func (c *Connection) releaseLocked(done chan struct{}) {
	if c.done == done {
		c.running = false
	}
}

func (c *Connection) fireDrop(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fns := c.snapshotErr(c.dropHooks)
	c.mu.Unlock()

	for _, fn := range fns {
		if c.isClosed() {
			return
		}
		fn(err)
	}
}

// giveUp ends the run owning done and fires the error handlers. The run
// is released first so a handler may call Connect to start over.
func (c *Connection) giveUp(cause error, done chan struct{}) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.releaseLocked(done)
	fns := c.snapshotErr(c.errHooks)
	attempts := c.attempts
	state := c.state
	c.mu.Unlock()

	err := &api.Error{
		Kind:    api.KindStreamConnection,
		Op:      "stream_" + string(c.topic),
		Mint:    c.mint,
		Message: fmt.Sprintf("%s after %d reconnect attempts", state, attempts),
		Err:     cause,
	}
	c.logger.WithError(cause).Error("stream gave up")

	for _, fn := range fns {
		if c.isClosed() {
			return
		}
		fn(err)
	}
}
