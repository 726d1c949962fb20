package stream

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inavhq/clawdvault-sdk/internal/logging"
	"github.com/inavhq/clawdvault-sdk/internal/observability"
)

var (
	// ErrManagerClosed is returned when opening a stream on a closed Manager.
	ErrManagerClosed = errors.New("stream: manager closed")
	// ErrMissingMint is returned when a per-token topic is opened without a mint.
	ErrMissingMint = errors.New("stream: mint is required")
)

// Manager creates independent connections and tracks them for bulk teardown.
type Manager struct {
	dialer  Dialer
	opts    Options
	logger  *logrus.Entry
	metrics *observability.Metrics

	mu     sync.Mutex
	conns  map[*Connection]struct{}
	closed bool
}

// ManagerOption configures Manager.
type ManagerOption func(*Manager)

// WithOptions sets the reconnect policy of new connections.
func WithOptions(o Options) ManagerOption {
	return func(m *Manager) {
		m.opts = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *observability.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager creates a Manager dialing through d.
func NewManager(d Dialer, opts ...ManagerOption) *Manager {
	m := &Manager{
		dialer: d,
		opts:   DefaultOptions(),
		logger: logging.Discard(),
		conns:  make(map[*Connection]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StreamTrades opens a trade feed for mint, or for all tokens when mint is empty.
func (m *Manager) StreamTrades(mint string) (*Connection, error) {
	return m.open(TopicTrades, mint)
}

// StreamToken opens the state feed of mint.
func (m *Manager) StreamToken(mint string) (*Connection, error) {
	if mint == "" {
		return nil, ErrMissingMint
	}
	return m.open(TopicToken, mint)
}

// StreamChat opens the chat feed of mint.
func (m *Manager) StreamChat(mint string) (*Connection, error) {
	if mint == "" {
		return nil, ErrMissingMint
	}
	return m.open(TopicChat, mint)
}

func (m *Manager) open(topic Topic, mint string) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}

	c := newConnection(topic, mint, m.dialer, m.opts, m.logger, m.metrics)
	c.onClose = m.release
	m.conns[c] = struct{}{}
	m.metrics.AddActiveStreams(1)
	return c, nil
}

func (m *Manager) release(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[c]; ok {
		delete(m.conns, c)
		m.metrics.AddActiveStreams(-1)
	}
}

// Active returns the number of connections not yet disconnected.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// DisconnectAll disconnects every live connection. The manager stays usable.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.Disconnect()
	}
}

// Close disconnects everything and refuses new connections.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.DisconnectAll()
}
