package clawdvault

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/inavhq/clawdvault-sdk/pkg/api"
	"github.com/inavhq/clawdvault-sdk/pkg/stream"
	"github.com/inavhq/clawdvault-sdk/pkg/trade"
)

// DefaultAPIURL is the hosted launchpad API.
const DefaultAPIURL = "https://clawdvault.com/api"

// Config configures a Client.
type Config struct {
	// APIURL is the launchpad API base, including the /api prefix.
	APIURL string
	// StreamURL is the WebSocket stream base. Empty derives it from APIURL
	// as ws(s)://host/api/stream.
	StreamURL string
	// RPCURL, when set, confirms trades against a Solana node instead of
	// the launchpad status endpoint.
	RPCURL string

	HTTPTimeout time.Duration
	MaxRetries  int

	Trade     trade.Config
	Reconnect stream.Options
	WS        stream.WSConfig
}

// DefaultConfig returns the hosted endpoints with default timeouts.
func DefaultConfig() Config {
	return Config{
		APIURL:      DefaultAPIURL,
		HTTPTimeout: api.DefaultTimeout,
		MaxRetries:  api.DefaultMaxRetries,
		Trade:       trade.DefaultConfig(),
		Reconnect:   stream.DefaultOptions(),
		WS:          stream.DefaultWSConfig(),
	}
}

// StreamBase returns StreamURL or the one derived from APIURL.
func (c Config) StreamBase() (string, error) {
	if c.StreamURL != "" {
		return c.StreamURL, nil
	}
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("api url scheme %q is not http or https", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/stream"
	u.RawQuery = ""
	return u.String(), nil
}

func (c Config) validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api url is required")
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid api url %q", c.APIURL)
	}
	if _, err := c.StreamBase(); err != nil {
		return err
	}
	if c.Reconnect.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max reconnect attempts must not be negative")
	}
	return nil
}
