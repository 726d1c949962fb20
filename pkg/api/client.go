package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Endpoint paths relative to the API base URL.
const (
	PathAuthChallenge = "/auth/challenge"
	PathAuthSession   = "/auth/session"
	PathTokens        = "/tokens"
	PathStats         = "/stats"
	PathQuote         = "/trade/quote"
	PathTradePrepare  = "/trade/prepare"
	PathTradeExecute  = "/trade/execute"
	PathTradeStatus   = "/trade/status"
	PathTrades        = "/trades"
	PathCreatePrepare = "/token/prepare-create"
	PathCreateExecute = "/token/execute-create"
	PathChat          = "/chat"
	PathReactions     = "/reactions"
	PathBalance       = "/balance"
	PathSolPrice      = "/sol-price"
	PathNetwork       = "/network"
)

// Client is a typed wrapper over the launchpad endpoints. Authenticated
// methods take the session token explicitly.
type Client struct {
	t *Transport
}

// NewClient creates a Client on t.
func NewClient(t *Transport) *Client {
	return &Client{t: t}
}

// Challenge fetches a sign-in challenge for wallet.
func (c *Client) Challenge(ctx context.Context, wallet string) (*Challenge, error) {
	var out Challenge
	err := c.t.Do(ctx, Request{
		Op:     "auth_challenge",
		Method: http.MethodGet,
		Path:   PathAuthChallenge,
		Query:  map[string]string{"wallet": wallet},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Message == "" {
		return nil, Malformed("auth_challenge", "message")
	}
	return &out, nil
}

// CreateSession exchanges a signed challenge for a session token.
func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (*SessionGrant, error) {
	var out SessionGrant
	err := c.t.Do(ctx, Request{
		Op:     "create_session",
		Method: http.MethodPost,
		Path:   PathAuthSession,
		Body:   req,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, Malformed("create_session", "token")
	}
	return &out, nil
}

// ValidateSession checks token with the server.
func (c *Client) ValidateSession(ctx context.Context, token string) (*SessionInfo, error) {
	var out SessionInfo
	err := c.t.Do(ctx, Request{
		Op:     "validate_session",
		Method: http.MethodGet,
		Path:   PathAuthSession,
		Token:  token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession revokes token on the server.
func (c *Client) DeleteSession(ctx context.Context, token string) error {
	return c.t.Do(ctx, Request{
		Op:     "delete_session",
		Method: http.MethodDelete,
		Path:   PathAuthSession,
		Token:  token,
	}, nil)
}

// ListTokens lists tokens matching f.
func (c *Client) ListTokens(ctx context.Context, f TokenFilter) (*TokenList, error) {
	q := map[string]string{
		"sort":    f.Sort,
		"creator": f.Creator,
		"search":  f.Search,
	}
	if f.Limit > 0 {
		q["limit"] = strconv.Itoa(f.Limit)
	}
	if f.Page > 0 {
		q["page"] = strconv.Itoa(f.Page)
	}
	if f.Graduated != nil {
		q["graduated"] = strconv.FormatBool(*f.Graduated)
	}
	var out TokenList
	if err := c.t.Do(ctx, Request{Op: "list_tokens", Method: http.MethodGet, Path: PathTokens, Query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetToken fetches one token and its recent trades.
func (c *Client) GetToken(ctx context.Context, mint string) (*TokenDetail, error) {
	var out TokenDetail
	err := c.t.Do(ctx, Request{
		Op:     "get_token",
		Method: http.MethodGet,
		Path:   PathTokens + "/" + url.PathEscape(mint),
		Mint:   mint,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Token.Mint == "" {
		return nil, Malformed("get_token", "token.mint")
	}
	return &out, nil
}

// GetStats fetches market statistics of mint.
func (c *Client) GetStats(ctx context.Context, mint string) (*TokenStats, error) {
	var out TokenStats
	err := c.t.Do(ctx, Request{
		Op:     "get_stats",
		Method: http.MethodGet,
		Path:   PathStats,
		Query:  map[string]string{"mint": mint},
		Mint:   mint,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Quote asks the server to price a trade.
func (c *Client) Quote(ctx context.Context, p QuoteParams) (*Quote, error) {
	var out Quote
	err := c.t.Do(ctx, Request{
		Op:     "quote",
		Method: http.MethodGet,
		Path:   PathQuote,
		Query: map[string]string{
			"mint":   p.Mint,
			"type":   string(p.Type),
			"amount": p.Amount.String(),
		},
		Mint:   p.Mint,
		Amount: p.Amount.String(),
	}, &out)
	if err != nil {
		return nil, err
	}
	if !out.Output.IsPositive() {
		return nil, Malformed("quote", "output")
	}
	if out.Mint == "" {
		out.Mint = p.Mint
	}
	if out.Type == "" {
		out.Type = p.Type
	}
	return &out, nil
}

// PrepareTrade asks for an unsigned trade transaction.
func (c *Client) PrepareTrade(ctx context.Context, token string, req PrepareTradeRequest) (*PreparedTransaction, error) {
	var out PreparedTransaction
	err := c.t.Do(ctx, Request{
		Op:     "prepare_" + string(req.Type),
		Method: http.MethodPost,
		Path:   PathTradePrepare,
		Body:   req,
		Token:  token,
		Mint:   req.Mint,
		Amount: req.Amount.String(),
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Transaction == "" {
		return nil, Malformed("prepare_"+string(req.Type), "transaction")
	}
	return &out, nil
}

// ExecuteTrade submits a signed trade transaction.
func (c *Client) ExecuteTrade(ctx context.Context, token string, req ExecuteTradeRequest) (*ExecutionResult, error) {
	var out ExecutionResult
	err := c.t.Do(ctx, Request{
		Op:     "execute_" + string(req.Type),
		Method: http.MethodPost,
		Path:   PathTradeExecute,
		Body:   req,
		Token:  token,
		Mint:   req.Mint,
		Amount: req.Amount.String(),
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Signature == "" {
		return nil, Malformed("execute_"+string(req.Type), "signature")
	}
	return &out, nil
}

// TransactionStatus reports the confirmation state of signature.
func (c *Client) TransactionStatus(ctx context.Context, signature string) (*TransactionStatus, error) {
	var out TransactionStatus
	err := c.t.Do(ctx, Request{
		Op:        "trade_status",
		Method:    http.MethodGet,
		Path:      PathTradeStatus,
		Query:     map[string]string{"signature": signature},
		Signature: signature,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTrades pages through trades of a token.
func (c *Client) GetTrades(ctx context.Context, p TradeHistoryParams) (*TradeHistory, error) {
	q := map[string]string{"mint": p.Mint, "before": p.Before}
	if p.Limit > 0 {
		q["limit"] = strconv.Itoa(p.Limit)
	}
	var out TradeHistory
	err := c.t.Do(ctx, Request{Op: "get_trades", Method: http.MethodGet, Path: PathTrades, Query: q, Mint: p.Mint}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PrepareCreate asks for an unsigned token creation transaction.
func (c *Client) PrepareCreate(ctx context.Context, token string, req PrepareCreateRequest) (*PreparedCreate, error) {
	var out PreparedCreate
	err := c.t.Do(ctx, Request{
		Op:     "prepare_create",
		Method: http.MethodPost,
		Path:   PathCreatePrepare,
		Body:   req,
		Token:  token,
		Amount: req.InitialBuy.String(),
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Transaction == "" {
		return nil, Malformed("prepare_create", "transaction")
	}
	if out.Mint == "" {
		return nil, Malformed("prepare_create", "mint")
	}
	return &out, nil
}

// ExecuteCreate submits a signed token creation transaction.
func (c *Client) ExecuteCreate(ctx context.Context, token string, req ExecuteCreateRequest) (*CreatedToken, error) {
	var out CreatedToken
	err := c.t.Do(ctx, Request{
		Op:     "execute_create",
		Method: http.MethodPost,
		Path:   PathCreateExecute,
		Body:   req,
		Token:  token,
		Mint:   req.Mint,
		Amount: req.InitialBuy.String(),
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Signature == "" {
		return nil, Malformed("execute_create", "signature")
	}
	if out.Mint == "" {
		out.Mint = req.Mint
	}
	return &out, nil
}

// GetChat pages through a token's chat room.
func (c *Client) GetChat(ctx context.Context, p ChatHistoryParams) (*ChatHistory, error) {
	q := map[string]string{"mint": p.Mint, "before": p.Before}
	if p.Limit > 0 {
		q["limit"] = strconv.Itoa(p.Limit)
	}
	var out ChatHistory
	err := c.t.Do(ctx, Request{Op: "get_chat", Method: http.MethodGet, Path: PathChat, Query: q, Mint: p.Mint}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SendChat posts a chat message.
func (c *Client) SendChat(ctx context.Context, token string, p SendChatParams) (*ChatMessage, error) {
	var out ChatMessage
	err := c.t.Do(ctx, Request{
		Op:     "send_chat",
		Method: http.MethodPost,
		Path:   PathChat,
		Body:   p,
		Token:  token,
		Mint:   p.Mint,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, Malformed("send_chat", "id")
	}
	return &out, nil
}

// AddReaction adds an emoji reaction to a message.
func (c *Client) AddReaction(ctx context.Context, token string, r ReactionRequest) error {
	return c.t.Do(ctx, Request{
		Op:     "add_reaction",
		Method: http.MethodPost,
		Path:   PathReactions,
		Body:   r,
		Token:  token,
	}, nil)
}

// RemoveReaction removes the caller's emoji reaction from a message.
func (c *Client) RemoveReaction(ctx context.Context, token string, r ReactionRequest) error {
	return c.t.Do(ctx, Request{
		Op:     "remove_reaction",
		Method: http.MethodDelete,
		Path:   PathReactions,
		Query:  map[string]string{"messageId": r.MessageID, "emoji": r.Emoji},
		Token:  token,
	}, nil)
}

// Balance returns the session wallet's balance of mint.
func (c *Client) Balance(ctx context.Context, token, mint string) (*Balance, error) {
	var out Balance
	err := c.t.Do(ctx, Request{
		Op:     "get_balance",
		Method: http.MethodGet,
		Path:   PathBalance,
		Query:  map[string]string{"mint": mint},
		Token:  token,
		Mint:   mint,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SolPrice returns the SOL/USD price.
func (c *Client) SolPrice(ctx context.Context) (*SolPrice, error) {
	var out SolPrice
	if err := c.t.Do(ctx, Request{Op: "sol_price", Method: http.MethodGet, Path: PathSolPrice}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Network returns the launchpad's cluster status.
func (c *Client) Network(ctx context.Context) (*NetworkStatus, error) {
	var out NetworkStatus
	if err := c.t.Do(ctx, Request{Op: "network", Method: http.MethodGet, Path: PathNetwork}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
