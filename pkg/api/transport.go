package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/inavhq/clawdvault-sdk/internal/logging"
	"github.com/inavhq/clawdvault-sdk/internal/observability"
)

// Default transport configuration.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = 1 * time.Second
	DefaultMaxRetryDelay = 10 * time.Second
	DefaultUserAgent     = "clawdvault-sdk-go"

	HeaderRequestID = "X-Request-ID"
)

// Transport performs launchpad HTTP calls and maps failures onto Error.
// Only GET requests are retried.
type Transport struct {
	client  *resty.Client
	logger  *logrus.Entry
	metrics *observability.Metrics
}

// TransportOption configures Transport.
type TransportOption func(*Transport)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) TransportOption {
	return func(t *Transport) {
		t.client.SetTimeout(d)
	}
}

// WithMaxRetries sets the retry count for idempotent requests.
func WithMaxRetries(n int) TransportOption {
	return func(t *Transport) {
		t.client.SetRetryCount(n)
	}
}

// WithRetryDelay sets the initial and maximum retry wait.
func WithRetryDelay(initial, max time.Duration) TransportOption {
	return func(t *Transport) {
		t.client.SetRetryWaitTime(initial)
		t.client.SetRetryMaxWaitTime(max)
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *Transport) {
		t.client = resty.NewWithClient(c).
			SetBaseURL(t.client.BaseURL).
			SetHeader("User-Agent", DefaultUserAgent).
			SetHeader("Accept", "application/json")
		configureRetry(t.client)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) TransportOption {
	return func(t *Transport) {
		t.client.SetHeader("User-Agent", ua)
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) TransportOption {
	return func(t *Transport) {
		t.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) TransportOption {
	return func(t *Transport) {
		t.metrics = m
	}
}

// NewTransport creates a Transport rooted at baseURL, e.g. https://host/api.
func NewTransport(baseURL string, opts ...TransportOption) *Transport {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(DefaultTimeout).
		SetHeader("User-Agent", DefaultUserAgent).
		SetHeader("Accept", "application/json")
	configureRetry(client)

	t := &Transport{
		client: client,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.WithField("component", "transport")
	return t
}

func configureRetry(c *resty.Client) {
	c.SetRetryCount(DefaultMaxRetries).
		SetRetryWaitTime(DefaultRetryDelay).
		SetRetryMaxWaitTime(DefaultMaxRetryDelay).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			if err != nil {
				return true
			}
			code := r.StatusCode()
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		}).
		SetRetryAfter(func(_ *resty.Client, r *resty.Response) (time.Duration, error) {
			if r == nil || r.StatusCode() != http.StatusTooManyRequests {
				return 0, nil
			}
			if ra := r.Header().Get("Retry-After"); ra != "" {
				if d, err := time.ParseDuration(ra + "s"); err == nil {
					return d, nil
				}
			}
			return 0, nil
		})
}

// Request describes one launchpad call. Mint, Amount and Signature only
// enrich errors.
type Request struct {
	Op     string
	Method string
	Path   string
	Query  map[string]string
	Body   any
	// Token is the session token to send, empty for public endpoints.
	Token string

	Mint      string
	Amount    string
	Signature string
}

// Do executes req and decodes a 2xx JSON body into out (if non-nil).
func (t *Transport) Do(ctx context.Context, req Request, out any) error {
	requestID := uuid.NewString()
	r := t.client.R().
		SetContext(ctx).
		SetHeader(HeaderRequestID, requestID)
	if req.Token != "" {
		r.SetAuthToken(req.Token)
	}
	for k, v := range req.Query {
		if v != "" {
			r.SetQueryParam(k, v)
		}
	}
	if req.Body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}

	log := t.logger.WithFields(logrus.Fields{
		"op":         req.Op,
		"request_id": requestID,
	})

	start := time.Now()
	resp, err := r.Execute(req.Method, req.Path)
	status := 0
	if resp != nil && resp.RawResponse != nil {
		status = resp.StatusCode()
	}
	t.metrics.ObserveRequest(req.Op, status, time.Since(start))

	if err != nil {
		log.WithError(err).Debug("request failed")
		return t.fail(req, KindNetwork, status, "", "", err)
	}

	if !resp.IsSuccess() {
		var body errorBody
		_ = json.Unmarshal(resp.Body(), &body)
		msg := body.Error
		if msg == "" {
			msg = http.StatusText(status)
		}
		kind := kindFor(status, body.Code, req.Mint != "")
		log.WithFields(logrus.Fields{"status": status, "code": body.Code}).Debug("request rejected")
		return t.fail(req, kind, status, body.Code, msg, nil)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return t.fail(req, KindNetwork, status, "", "malformed response",
			errors.Wrapf(err, "decode %s %s", req.Method, req.Path))
	}
	return nil
}

func (t *Transport) fail(req Request, kind Kind, status int, code, msg string, err error) *Error {
	return &Error{
		Kind:      kind,
		Op:        req.Op,
		Mint:      req.Mint,
		Amount:    req.Amount,
		Signature: req.Signature,
		Status:    status,
		Code:      code,
		Message:   msg,
		Err:       err,
	}
}

// Malformed reports a 2xx response that lacks a required field.
func Malformed(op, field string) *Error {
	return &Error{Kind: KindNetwork, Op: op, Message: "malformed response: missing " + field}
}
