// Package session obtains and holds the bearer session of a wallet.
package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/inavhq/clawdvault-sdk/internal/logging"
	"github.com/inavhq/clawdvault-sdk/internal/observability"
	"github.com/inavhq/clawdvault-sdk/pkg/api"
	"github.com/inavhq/clawdvault-sdk/pkg/signer"
)

// AuthAPI is the subset of the launchpad API used for sessions.
// *api.Client satisfies it.
type AuthAPI interface {
	Challenge(ctx context.Context, wallet string) (*api.Challenge, error)
	CreateSession(ctx context.Context, req api.SessionRequest) (*api.SessionGrant, error)
	ValidateSession(ctx context.Context, token string) (*api.SessionInfo, error)
	DeleteSession(ctx context.Context, token string) error
}

var _ AuthAPI = (*api.Client)(nil)

// Session is an issued bearer token. Values are immutable once installed.
type Session struct {
	Token  string
	Wallet string
	// ValidatedAt is when the server last accepted the token. Zero for
	// tokens installed with SetSessionToken and not yet validated.
	ValidatedAt time.Time
	ExpiresAt   time.Time
}

// Validation is the outcome of ValidateSession.
type Validation struct {
	Valid  bool
	Wallet string
}

// Manager holds at most one current Session. All methods are safe for
// concurrent use; readers always see a whole Session.
type Manager struct {
	api     AuthAPI
	logger  *logrus.Entry
	metrics *observability.Metrics
	now     func() time.Time

	current atomic.Pointer[Session]
}

// Option configures Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// New creates a Manager with no session.
func New(a AuthAPI, opts ...Option) *Manager {
	m := &Manager{
		api:    a,
		logger: logging.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithField("component", "session")
	return m
}

const opCreateSession = "create_session"

// CreateSession signs a server challenge with s and installs the issued
// session as current. Failures are KindAuthChallenge (challenge retrieval),
// KindSignature (signing) or KindAuthRejected (server refused the signature).
// A transport fault while submitting the signature stays KindNetwork.
func (m *Manager) CreateSession(ctx context.Context, s signer.Signer) (*Session, error) {
	if s == nil {
		m.metrics.RecordSession("signature_failed")
		return nil, &api.Error{Kind: api.KindSignature, Op: opCreateSession, Message: "no signer configured"}
	}
	wallet := s.PublicKey()

	ch, err := m.api.Challenge(ctx, wallet)
	if err != nil {
		m.metrics.RecordSession("challenge_failed")
		return nil, &api.Error{Kind: api.KindAuthChallenge, Op: opCreateSession, Message: "wallet " + wallet, Err: err}
	}

	sig, err := s.SignMessage(ctx, []byte(ch.Message))
	if err != nil {
		m.metrics.RecordSession("signature_failed")
		msg := "wallet " + wallet
		if errors.Is(err, signer.ErrRejected) {
			msg += ": rejected by user"
		}
		return nil, &api.Error{Kind: api.KindSignature, Op: opCreateSession, Message: msg, Err: err}
	}

	grant, err := m.api.CreateSession(ctx, api.SessionRequest{
		Wallet:    wallet,
		Message:   ch.Message,
		Signature: base58.Encode(sig),
	})
	if err != nil {
		if api.KindOf(err) == api.KindNetwork {
			m.metrics.RecordSession("error")
			return nil, err
		}
		m.metrics.RecordSession("rejected")
		return nil, &api.Error{Kind: api.KindAuthRejected, Op: opCreateSession, Message: "wallet " + wallet, Err: err}
	}

	sess := &Session{
		Token:       grant.Token,
		Wallet:      grant.Wallet,
		ValidatedAt: m.now(),
		ExpiresAt:   grant.ExpiresAt,
	}
	if sess.Wallet == "" {
		sess.Wallet = wallet
	}
	m.current.Store(sess)
	m.metrics.RecordSession("created")
	m.logger.WithField("wallet", sess.Wallet).Info("session created")
	return sess, nil
}

// ValidateSession asks the server whether s is still accepted. A nil or
// empty session is invalid without a request. A rejected token is reported
// as Valid=false with a nil error; transport faults are returned.
func (m *Manager) ValidateSession(ctx context.Context, s *Session) (Validation, error) {
	if s == nil || s.Token == "" {
		return Validation{}, nil
	}

	info, err := m.api.ValidateSession(ctx, s.Token)
	if err != nil {
		if api.KindOf(err) == api.KindAuthRejected {
			return Validation{}, nil
		}
		return Validation{}, err
	}
	if !info.Valid {
		return Validation{}, nil
	}

	wallet := info.Wallet
	if wallet == "" {
		wallet = s.Wallet
	}
	refreshed := *s
	refreshed.Wallet = wallet
	refreshed.ValidatedAt = m.now()
	// only refresh if nobody replaced the session meanwhile
	m.current.CompareAndSwap(s, &refreshed)

	return Validation{Valid: true, Wallet: wallet}, nil
}

// SetSessionToken replaces the current session with an externally obtained
// token. An empty token clears the session.
func (m *Manager) SetSessionToken(token string) *Session {
	if token == "" {
		m.ClearSession()
		return nil
	}
	s := &Session{Token: token}
	m.current.Store(s)
	return s
}

// ClearSession drops the current session.
func (m *Manager) ClearSession() {
	m.current.Store(nil)
}

// Current returns the current session or nil.
func (m *Manager) Current() *Session {
	return m.current.Load()
}

// Token returns the current token or "".
func (m *Manager) Token() string {
	if s := m.current.Load(); s != nil {
		return s.Token
	}
	return ""
}

// InvalidateIfCurrent clears the session only if its token is still token.
// It reports whether a session was cleared.
func (m *Manager) InvalidateIfCurrent(token string) bool {
	for {
		s := m.current.Load()
		if s == nil || s.Token != token {
			return false
		}
		if m.current.CompareAndSwap(s, nil) {
			m.logger.Warn("session rejected by server, cleared")
			return true
		}
	}
}

// Logout revokes the current session on the server and clears it locally.
// The local clear happens even when revocation fails; that failure is
// still returned.
func (m *Manager) Logout(ctx context.Context) error {
	s := m.current.Load()
	if s == nil {
		return nil
	}
	err := m.api.DeleteSession(ctx, s.Token)
	m.current.CompareAndSwap(s, nil)
	if err != nil && api.KindOf(err) != api.KindAuthRejected {
		m.logger.WithError(err).Warn("session revocation failed")
		return err
	}
	return nil
}
