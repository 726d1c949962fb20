// Package api holds the launchpad wire types, the error taxonomy and the
// HTTP transport shared by the session, trade and client packages.
package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeType is the side of a trade.
type TradeType string

const (
	TradeBuy  TradeType = "buy"
	TradeSell TradeType = "sell"
)

// Valid reports whether t is buy or sell.
func (t TradeType) Valid() bool {
	return t == TradeBuy || t == TradeSell
}

// Token is the bonding-curve state of a launched token.
type Token struct {
	Mint        string `json:"mint"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Creator     string `json:"creator"`
	CreatorName string `json:"creator_name,omitempty"`

	PriceSol     decimal.Decimal `json:"price_sol"`
	MarketCapSol decimal.Decimal `json:"market_cap_sol"`
	TotalSupply  decimal.Decimal `json:"total_supply"`

	VirtualSolReserves   decimal.Decimal `json:"virtual_sol_reserves"`
	VirtualTokenReserves decimal.Decimal `json:"virtual_token_reserves"`
	RealSolReserves      decimal.Decimal `json:"real_sol_reserves"`
	RealTokenReserves    decimal.Decimal `json:"real_token_reserves"`

	Graduated bool   `json:"graduated"`
	Twitter   string `json:"twitter,omitempty"`
	Telegram  string `json:"telegram,omitempty"`
	Website   string `json:"website,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TokenFilter narrows ListTokens.
type TokenFilter struct {
	Sort      string // created, market_cap, volume, price
	Limit     int
	Page      int
	Graduated *bool
	Creator   string
	Search    string
}

// TokenList is one page of tokens.
type TokenList struct {
	Tokens  []Token `json:"tokens"`
	Total   int     `json:"total"`
	Page    int     `json:"page"`
	PerPage int     `json:"per_page"`
}

// TokenDetail is a token with its most recent trades.
type TokenDetail struct {
	Token  Token         `json:"token"`
	Trades []TradeRecord `json:"trades"`
}

// TokenStats are the rolling market statistics of a token.
type TokenStats struct {
	Mint           string          `json:"mint"`
	Holders        int             `json:"holders"`
	Volume24hSol   decimal.Decimal `json:"volume_24h_sol"`
	Trades24h      int             `json:"trades_24h"`
	PriceChange24h decimal.Decimal `json:"price_change_24h"`
	HighSol        decimal.Decimal `json:"high_sol"`
	LowSol         decimal.Decimal `json:"low_sol"`
}

// QuoteParams asks for a quote.
type QuoteParams struct {
	Mint   string
	Type   TradeType
	Amount decimal.Decimal
}

// Quote is a point-in-time price computation from the server. Never cached.
type Quote struct {
	Type         TradeType       `json:"type"`
	Mint         string          `json:"mint"`
	Input        decimal.Decimal `json:"input"`
	Output       decimal.Decimal `json:"output"`
	PriceImpact  decimal.Decimal `json:"price_impact"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Fee          decimal.Decimal `json:"fee"`
}

// TradeRecord is a historical trade as reported by the server.
type TradeRecord struct {
	ID          string          `json:"id"`
	Signature   string          `json:"signature"`
	Mint        string          `json:"mint"`
	Type        TradeType       `json:"type"`
	Trader      string          `json:"trader"`
	SolAmount   decimal.Decimal `json:"sol_amount"`
	TokenAmount decimal.Decimal `json:"token_amount"`
	PriceSol    decimal.Decimal `json:"price_sol"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TradeHistoryParams pages through trades of a token.
type TradeHistoryParams struct {
	Mint   string
	Limit  int
	Before string
}

// TradeHistory is one page of trades.
type TradeHistory struct {
	Trades  []TradeRecord `json:"trades"`
	HasMore bool          `json:"has_more"`
}

// PrepareTradeRequest asks the server for an unsigned trade transaction.
type PrepareTradeRequest struct {
	Mint        string          `json:"mint"`
	Type        TradeType       `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Wallet      string          `json:"wallet"`
	SlippageBps int64           `json:"slippage_bps"`
	MinOutput   decimal.Decimal `json:"min_output"`
}

// PreparedTransaction is an unsigned, base64-encoded Solana transaction.
type PreparedTransaction struct {
	Transaction    string          `json:"transaction"`
	ExpectedOutput decimal.Decimal `json:"expected_output"`
	MinOutput      decimal.Decimal `json:"min_output"`
}

// ExecuteTradeRequest submits a signed trade transaction.
type ExecuteTradeRequest struct {
	Mint              string          `json:"mint"`
	Type              TradeType       `json:"type"`
	Amount            decimal.Decimal `json:"amount"`
	Wallet            string          `json:"wallet"`
	SignedTransaction string          `json:"signed_transaction"`
}

// ExecutionResult is the server's view of a submitted trade. Amounts are
// nil when the server did not report them.
type ExecutionResult struct {
	Signature   string           `json:"signature"`
	SolAmount   *decimal.Decimal `json:"sol_amount,omitempty"`
	TokenAmount *decimal.Decimal `json:"token_amount,omitempty"`
}

// Confirmation states reported by the status endpoint.
const (
	ConfirmationPending   = "pending"
	ConfirmationConfirmed = "confirmed"
	ConfirmationFailed    = "failed"
)

// TransactionStatus is the launchpad view of a signature.
type TransactionStatus struct {
	Signature string `json:"signature"`
	Status    string `json:"status"`
	Slot      int64  `json:"slot,omitempty"`
	Err       string `json:"err,omitempty"`
}

// CreateTokenParams describes a token to launch. InitialBuy is in SOL.
type CreateTokenParams struct {
	Name        string          `json:"name"`
	Symbol      string          `json:"symbol"`
	Description string          `json:"description,omitempty"`
	Image       string          `json:"image,omitempty"`
	Twitter     string          `json:"twitter,omitempty"`
	Telegram    string          `json:"telegram,omitempty"`
	Website     string          `json:"website,omitempty"`
	InitialBuy  decimal.Decimal `json:"initial_buy"`
}

// PrepareCreateRequest asks for an unsigned token creation transaction.
type PrepareCreateRequest struct {
	CreateTokenParams
	Wallet string `json:"wallet"`
}

// PreparedCreate is the unsigned creation transaction and the new mint.
type PreparedCreate struct {
	Transaction string `json:"transaction"`
	Mint        string `json:"mint"`
}

// ExecuteCreateRequest submits a signed creation transaction.
type ExecuteCreateRequest struct {
	CreateTokenParams
	Wallet            string `json:"wallet"`
	Mint              string `json:"mint"`
	SignedTransaction string `json:"signed_transaction"`
}

// CreatedToken is the result of a token launch.
type CreatedToken struct {
	Signature string `json:"signature"`
	Mint      string `json:"mint"`
	Token     *Token `json:"token,omitempty"`
}

// ChatMessage is a message in a token's chat room.
type ChatMessage struct {
	ID        string         `json:"id"`
	Mint      string         `json:"mint"`
	Sender    string         `json:"sender"`
	Username  string         `json:"username,omitempty"`
	Message   string         `json:"message"`
	ReplyTo   string         `json:"reply_to,omitempty"`
	Reactions map[string]int `json:"reactions,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ChatHistoryParams pages through a chat room.
type ChatHistoryParams struct {
	Mint   string
	Limit  int
	Before string
}

// ChatHistory is one page of chat messages.
type ChatHistory struct {
	Messages []ChatMessage `json:"messages"`
	HasMore  bool          `json:"has_more"`
}

// SendChatParams is a new chat message.
type SendChatParams struct {
	Mint    string `json:"mint"`
	Message string `json:"message"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// ReactionRequest adds an emoji reaction to a message.
type ReactionRequest struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// Balance is the wallet's holding of a token.
type Balance struct {
	Mint    string          `json:"mint"`
	Wallet  string          `json:"wallet"`
	Balance decimal.Decimal `json:"balance"`
}

// SolPrice is the SOL/USD reference price.
type SolPrice struct {
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NetworkStatus describes the Solana cluster the launchpad uses.
type NetworkStatus struct {
	Network    string `json:"network"`
	RPCHealthy bool   `json:"rpc_healthy"`
	Slot       int64  `json:"slot"`
	ProgramID  string `json:"program_id"`
}

// Challenge is a message the wallet must sign to open a session.
type Challenge struct {
	Message   string    `json:"message"`
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionRequest submits a signed challenge. Signature is base58.
type SessionRequest struct {
	Wallet    string `json:"wallet"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// SessionGrant is the server's reply to a signed challenge.
type SessionGrant struct {
	Token     string    `json:"token"`
	Wallet    string    `json:"wallet"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionInfo is the validation reply for a session token.
type SessionInfo struct {
	Valid  bool   `json:"valid"`
	Wallet string `json:"wallet"`
}

// errorBody is the error envelope of every non-2xx response.
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}
