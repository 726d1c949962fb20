// Package clawdvault is the SDK entry point: one Client per wallet, holding
// its session, trade engine and stream connections.
package clawdvault

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/inavhq/clawdvault-sdk/internal/domain"
	"github.com/inavhq/clawdvault-sdk/internal/logging"
	"github.com/inavhq/clawdvault-sdk/internal/observability"
	"github.com/inavhq/clawdvault-sdk/internal/solana"
	"github.com/inavhq/clawdvault-sdk/internal/storage"
	"github.com/inavhq/clawdvault-sdk/pkg/api"
	"github.com/inavhq/clawdvault-sdk/pkg/session"
	"github.com/inavhq/clawdvault-sdk/pkg/signer"
	"github.com/inavhq/clawdvault-sdk/pkg/stream"
	"github.com/inavhq/clawdvault-sdk/pkg/trade"
)

// Client talks to the launchpad on behalf of one wallet. It is safe for
// concurrent use.
type Client struct {
	cfg      Config
	api      *api.Client
	sessions *session.Manager
	engine   *trade.Engine
	streams  *stream.Manager
	signer   signer.Signer
	rpc      solana.RPCClient
	logger   *logrus.Entry
}

type options struct {
	signer     signer.Signer
	logger     *logrus.Entry
	metrics    *observability.Metrics
	journal    storage.TradeJournal
	dialer     stream.Dialer
	confirmer  trade.Confirmer
	httpClient *http.Client
	rpc        solana.RPCClient
}

// Option configures New.
type Option func(*options)

// WithSigner sets the wallet. Without one the client can query and stream
// but not authenticate or trade.
func WithSigner(s signer.Signer) Option {
	return func(o *options) { o.signer = s }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithJournal records submitted transactions.
func WithJournal(j storage.TradeJournal) Option {
	return func(o *options) { o.journal = j }
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d stream.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithConfirmer replaces the confirmation strategy.
func WithConfirmer(c trade.Confirmer) Option {
	return func(o *options) { o.confirmer = c }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithRPCClient sets the Solana RPC client used for confirmation and
// network health, overriding Config.RPCURL.
func WithRPCClient(c solana.RPCClient) Option {
	return func(o *options) { o.rpc = c }
}

// New builds a Client from cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("clawdvault config: %w", err)
	}
	o := options{logger: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	var topts []api.TransportOption
	// replaces the resty client, so it must come before the other options
	if o.httpClient != nil {
		topts = append(topts, api.WithHTTPClient(o.httpClient))
	}
	topts = append(topts,
		api.WithLogger(o.logger),
		api.WithMetrics(o.metrics),
		api.WithMaxRetries(cfg.MaxRetries),
	)
	if cfg.HTTPTimeout > 0 {
		topts = append(topts, api.WithTimeout(cfg.HTTPTimeout))
	}
	apiClient := api.NewClient(api.NewTransport(cfg.APIURL, topts...))

	rpc := o.rpc
	if rpc == nil && cfg.RPCURL != "" {
		rpc = solana.NewHTTPClient(cfg.RPCURL, solana.WithMetrics(o.metrics))
	}

	confirmer := o.confirmer
	if confirmer == nil {
		if rpc != nil {
			confirmer = trade.NewRPCConfirmer(rpc)
		} else {
			confirmer = trade.NewAPIConfirmer(apiClient)
		}
	}

	dialer := o.dialer
	if dialer == nil {
		base, _ := cfg.StreamBase()
		ws := cfg.WS
		dialer = stream.NewWSDialer(base, &ws)
	}

	engineOpts := []trade.Option{
		trade.WithConfig(cfg.Trade),
		trade.WithLogger(o.logger),
		trade.WithMetrics(o.metrics),
	}
	if o.journal != nil {
		engineOpts = append(engineOpts, trade.WithJournal(o.journal))
	}

	return &Client{
		cfg:      cfg,
		api:      apiClient,
		sessions: session.New(apiClient, session.WithLogger(o.logger), session.WithMetrics(o.metrics)),
		engine:   trade.NewEngine(apiClient, o.signer, confirmer, engineOpts...),
		streams: stream.NewManager(dialer,
			stream.WithOptions(cfg.Reconnect),
			stream.WithLogger(o.logger),
			stream.WithMetrics(o.metrics)),
		signer: o.signer,
		rpc:    rpc,
		logger: o.logger.WithField("component", "client"),
	}, nil
}

// Wallet returns the signer's public key, or "" without a signer.
func (c *Client) Wallet() string {
	if c.signer == nil {
		return ""
	}
	return c.signer.PublicKey()
}

// authed runs fn with the current session token. A rejection of that token
// clears the session unless it was replaced meanwhile.
func (c *Client) authed(op string, fn func(token string) error) error {
	token := c.sessions.Token()
	if token == "" {
		return &api.Error{Kind: api.KindAuthRejected, Op: op, Message: "no active session"}
	}
	err := fn(token)
	if api.KindOf(err) == api.KindAuthRejected {
		c.sessions.InvalidateIfCurrent(token)
	}
	return err
}

// Session

// CreateSession signs in with the configured signer.
func (c *Client) CreateSession(ctx context.Context) (*session.Session, error) {
	return c.sessions.CreateSession(ctx, c.signer)
}

// ValidateSession checks the current session with the server. No session
// is reported as invalid without a request.
func (c *Client) ValidateSession(ctx context.Context) (session.Validation, error) {
	cur := c.sessions.Current()
	v, err := c.sessions.ValidateSession(ctx, cur)
	if err == nil && !v.Valid && cur != nil {
		c.sessions.InvalidateIfCurrent(cur.Token)
	}
	return v, err
}

// SetSessionToken installs an externally obtained token. Empty clears.
func (c *Client) SetSessionToken(token string) {
	c.sessions.SetSessionToken(token)
}

// ClearSession drops the session locally.
func (c *Client) ClearSession() {
	c.sessions.ClearSession()
}

// Logout revokes the session on the server and clears it.
func (c *Client) Logout(ctx context.Context) error {
	return c.sessions.Logout(ctx)
}

// Session returns the current session or nil.
func (c *Client) Session() *session.Session {
	return c.sessions.Current()
}

// Queries

// ListTokens lists tokens matching f.
func (c *Client) ListTokens(ctx context.Context, f api.TokenFilter) (*api.TokenList, error) {
	return c.api.ListTokens(ctx, f)
}

// GetToken returns a token with its recent trades.
func (c *Client) GetToken(ctx context.Context, mint string) (*api.TokenDetail, error) {
	return c.api.GetToken(ctx, mint)
}

// GetStats returns market statistics of mint.
func (c *Client) GetStats(ctx context.Context, mint string) (*api.TokenStats, error) {
	return c.api.GetStats(ctx, mint)
}

// GetQuote prices a trade. Quotes are never cached.
func (c *Client) GetQuote(ctx context.Context, p api.QuoteParams) (*api.Quote, error) {
	return c.engine.GetQuote(ctx, p)
}

// GetTrades pages through the trades of a token.
func (c *Client) GetTrades(ctx context.Context, p api.TradeHistoryParams) (*api.TradeHistory, error) {
	return c.api.GetTrades(ctx, p)
}

// GetChat pages through a token's chat.
func (c *Client) GetChat(ctx context.Context, p api.ChatHistoryParams) (*api.ChatHistory, error) {
	return c.api.GetChat(ctx, p)
}

// GetMyBalance returns the session wallet's balance of mint, or its SOL
// balance when mint is empty. With an RPC client configured the SOL
// balance is read from the node.
func (c *Client) GetMyBalance(ctx context.Context, mint string) (*api.Balance, error) {
	var out *api.Balance
	err := c.authed("get_balance", func(token string) error {
		var err error
		if mint == "" && c.rpc != nil {
			out, err = c.nodeBalance(ctx)
			return err
		}
		out, err = c.api.Balance(ctx, token, mint)
		return err
	})
	return out, err
}

func (c *Client) nodeBalance(ctx context.Context) (*api.Balance, error) {
	wallet := c.Wallet()
	if s := c.sessions.Current(); s != nil {
		wallet = s.Wallet
	}
	lamports, err := c.rpc.GetBalance(ctx, wallet)
	if err != nil {
		return nil, &api.Error{Kind: api.KindNetwork, Op: "get_balance", Err: err}
	}
	return &api.Balance{
		Wallet:  wallet,
		Balance: decimal.NewFromInt(int64(lamports)).Div(decimal.NewFromInt(solana.LamportsPerSOL)),
	}, nil
}

// GetSolPrice returns the SOL/USD price.
func (c *Client) GetSolPrice(ctx context.Context) (*api.SolPrice, error) {
	return c.api.SolPrice(ctx)
}

// GetNetworkStatus returns the launchpad's cluster status. With an RPC
// client configured, RPC health and slot come from the node.
func (c *Client) GetNetworkStatus(ctx context.Context) (*api.NetworkStatus, error) {
	st, err := c.api.Network(ctx)
	if err != nil {
		return nil, err
	}
	if c.rpc == nil {
		return st, nil
	}
	slot, err := c.rpc.GetSlot(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("rpc health check failed")
		st.RPCHealthy = false
		return st, nil
	}
	st.RPCHealthy = true
	st.Slot = slot
	return st, nil
}

// Mutations

// CreateToken launches a token from the session wallet.
func (c *Client) CreateToken(ctx context.Context, p api.CreateTokenParams) (*api.CreatedToken, error) {
	var out *api.CreatedToken
	err := c.authed("create_token", func(token string) error {
		var err error
		out, err = c.engine.CreateToken(ctx, token, p)
		return err
	})
	return out, err
}

// Buy spends solAmount SOL on mint, tolerating maxSlippage (a fraction).
func (c *Client) Buy(ctx context.Context, mint string, solAmount, maxSlippage decimal.Decimal) (*trade.Trade, error) {
	return c.trade(ctx, api.TradeBuy, mint, solAmount, maxSlippage)
}

// Sell sells tokenAmount of mint, tolerating maxSlippage (a fraction).
func (c *Client) Sell(ctx context.Context, mint string, tokenAmount, maxSlippage decimal.Decimal) (*trade.Trade, error) {
	return c.trade(ctx, api.TradeSell, mint, tokenAmount, maxSlippage)
}

func (c *Client) trade(ctx context.Context, typ api.TradeType, mint string, amount, maxSlippage decimal.Decimal) (*trade.Trade, error) {
	var out *trade.Trade
	err := c.authed(string(typ), func(token string) error {
		req := trade.Request{Mint: mint, Amount: amount, MaxSlippage: maxSlippage, Token: token}
		var err error
		if typ == api.TradeBuy {
			out, err = c.engine.Buy(ctx, req)
		} else {
			out, err = c.engine.Sell(ctx, req)
		}
		return err
	})
	return out, err
}

// Reconcile checks a timed-out trade again and records the outcome.
func (c *Client) Reconcile(ctx context.Context, signature string) (trade.Status, error) {
	return c.engine.Reconcile(ctx, signature)
}

// Unresolved lists journaled trades of the wallet still awaiting an outcome.
func (c *Client) Unresolved(ctx context.Context) ([]*domain.JournalEntry, error) {
	return c.engine.Unresolved(ctx)
}

// SendChat posts message to the chat of mint.
func (c *Client) SendChat(ctx context.Context, p api.SendChatParams) (*api.ChatMessage, error) {
	var out *api.ChatMessage
	err := c.authed("send_chat", func(token string) error {
		var err error
		out, err = c.api.SendChat(ctx, token, p)
		return err
	})
	return out, err
}

// AddReaction reacts to a chat message.
func (c *Client) AddReaction(ctx context.Context, messageID, emoji string) error {
	return c.authed("add_reaction", func(token string) error {
		return c.api.AddReaction(ctx, token, api.ReactionRequest{MessageID: messageID, Emoji: emoji})
	})
}

// RemoveReaction withdraws a reaction.
func (c *Client) RemoveReaction(ctx context.Context, messageID, emoji string) error {
	return c.authed("remove_reaction", func(token string) error {
		return c.api.RemoveReaction(ctx, token, api.ReactionRequest{MessageID: messageID, Emoji: emoji})
	})
}

// Streaming

// StreamTrades opens a trade feed of mint, or of every token when empty.
func (c *Client) StreamTrades(mint string) (*stream.Connection, error) {
	return c.streams.StreamTrades(mint)
}

// StreamToken opens the price and trade feed of mint.
func (c *Client) StreamToken(mint string) (*stream.Connection, error) {
	return c.streams.StreamToken(mint)
}

// StreamChat opens the chat feed of mint.
func (c *Client) StreamChat(mint string) (*stream.Connection, error) {
	return c.streams.StreamChat(mint)
}

// DisconnectAll closes every open stream. The client stays usable.
func (c *Client) DisconnectAll() {
	c.streams.DisconnectAll()
}

// Close disconnects all streams and refuses new ones. The session is kept
// on the server; call Logout first to revoke it.
func (c *Client) Close() error {
	c.streams.Close()
	return nil
}
