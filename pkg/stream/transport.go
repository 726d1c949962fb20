package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn is an established stream transport.
type Conn interface {
	// ReadFrame blocks for the next frame. A *FrameError means the frame
	// was unreadable but the connection is still usable.
	ReadFrame() (Frame, error)
	Close() error
}

// Dialer opens stream transports.
type Dialer interface {
	Dial(ctx context.Context, topic Topic, mint string) (Conn, error)
}

// FrameError reports a frame that could not be decoded.
type FrameError struct {
	Err error
}

func (e *FrameError) Error() string { return "bad frame: " + e.Err.Error() }
func (e *FrameError) Unwrap() error { return e.Err }

// WSConfig configures WebSocket transport behavior.
type WSConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the longest silence (no frame, no pong) tolerated.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing control frames.
	WriteTimeout time.Duration
	// HandshakeTimeout bounds the opening handshake.
	HandshakeTimeout time.Duration
	// Header is sent with the handshake.
	Header http.Header
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// WSDialer dials {baseURL}/{topic}?mint= over gorilla/websocket.
type WSDialer struct {
	baseURL string
	config  WSConfig
	dialer  *websocket.Dialer
}

var _ Dialer = (*WSDialer)(nil)

// NewWSDialer creates a dialer for baseURL (ws:// or wss://). A nil config
// uses DefaultWSConfig.
func NewWSDialer(baseURL string, config *WSConfig) *WSDialer {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	return &WSDialer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		config:  cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// URL returns the stream endpoint for topic and mint.
func (d *WSDialer) URL(topic Topic, mint string) string {
	u := d.baseURL + "/" + string(topic)
	if mint != "" {
		u += "?mint=" + url.QueryEscape(mint)
	}
	return u
}

// Dial opens a stream and starts its keepalive loop.
func (d *WSDialer) Dial(ctx context.Context, topic Topic, mint string) (Conn, error) {
	header := d.config.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("X-Request-ID", uuid.NewString())

	conn, resp, err := d.dialer.DialContext(ctx, d.URL(topic, mint), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: status %d: %w", topic, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", topic, err)
	}

	c := &wsConn{
		conn:   conn,
		config: d.config,
		done:   make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

type wsConn struct {
	conn   *websocket.Conn
	config WSConfig

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (c *wsConn) ReadFrame() (Frame, error) {
	if c.config.ReadTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}
	_, message, err := c.conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}

	var f Frame
	if err := json.Unmarshal(message, &f); err != nil {
		return Frame{}, &FrameError{Err: err}
	}
	return f, nil
}

// Close sends a normal closure and releases the socket. Safe to call
// concurrently with ReadFrame and more than once.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.config.WriteTimeout))
		err = c.conn.Close()
		c.wg.Wait()
	})
	return err
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *wsConn) pingLoop() {
	defer c.wg.Done()
	if c.config.PingInterval <= 0 {
		<-c.done
		return
	}

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				// reader sees the failure and reports the drop
				return
			}
		}
	}
}
