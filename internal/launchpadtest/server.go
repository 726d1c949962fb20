// Package launchpadtest is an in-process fake of the launchpad HTTP and
// stream API. It keeps real bonding-curve state, verifies wallet signatures
// and exposes knobs for the failure modes clients must handle.
package launchpadtest

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/inavhq/clawdvault-sdk/pkg/api"
	"github.com/inavhq/clawdvault-sdk/pkg/signer"
)

// DefaultSolBalance is the SOL balance of a wallet the server has not seen.
var DefaultSolBalance = decimal.NewFromInt(10)

// ConfirmMode selects how submitted transactions resolve.
type ConfirmMode int

const (
	// ConfirmSuccess confirms after the configured delay.
	ConfirmSuccess ConfirmMode = iota
	// ConfirmFailure fails after the configured delay.
	ConfirmFailure
	// ConfirmNever keeps every transaction pending.
	ConfirmNever
)

// FailedTxError is the on-chain error reported under ConfirmFailure.
const FailedTxError = "custom program error: 0x1771"

type tokenState struct {
	token   api.Token
	curve   curve
	holders map[string]decimal.Decimal
}

type pendingTx struct {
	status  string
	readyAt time.Time
	slot    int64
}

// prepared is a transaction handed out but not executed yet, keyed by message.
type prepared struct {
	wallet    string
	mint      string
	typ       api.TradeType
	amount    decimal.Decimal
	minOutput decimal.Decimal
	create    *api.CreateTokenParams
}

type failure struct {
	status int
	code   string
	msg    string
}

// Server is a running fake launchpad.
type Server struct {
	// URL is the API base, e.g. http://127.0.0.1:1234/api.
	URL string
	// StreamURL is the stream base, e.g. ws://127.0.0.1:1234/api/stream.
	StreamURL string

	http *httptest.Server

	mu          sync.Mutex
	challenges  map[string]string // wallet -> message
	sessions    map[string]string // token -> wallet
	tokens      map[string]*tokenState
	order       []string // mints, oldest first
	sol         map[string]decimal.Decimal
	trades      []api.TradeRecord
	chat        map[string][]*chatEntry
	txs         map[string]*pendingTx
	prepared    map[string]*prepared
	failures    map[string][]failure
	requests    map[string]int
	impact      map[string]decimal.Decimal
	drift       decimal.Decimal
	omitAmounts bool
	confirm     ConfirmMode
	delay       time.Duration
	slot        int64
	seq         int
	subs        map[*subscriber]struct{}
}

type chatEntry struct {
	msg       api.ChatMessage
	reactions map[string]map[string]struct{} // emoji -> wallets
}

// NewServer starts a fake launchpad. Call Close when done.
func NewServer() *Server {
	s := &Server{
		challenges: make(map[string]string),
		sessions:   make(map[string]string),
		tokens:     make(map[string]*tokenState),
		sol:        make(map[string]decimal.Decimal),
		chat:       make(map[string][]*chatEntry),
		txs:        make(map[string]*pendingTx),
		prepared:   make(map[string]*prepared),
		failures:   make(map[string][]failure),
		requests:   make(map[string]int),
		impact:     make(map[string]decimal.Decimal),
		subs:       make(map[*subscriber]struct{}),
		slot:       250_000_000,
	}
	s.http = httptest.NewServer(s.router())
	s.URL = s.http.URL + "/api"
	s.StreamURL = "ws" + strings.TrimPrefix(s.http.URL, "http") + "/api/stream"
	return s
}

// Close drops every stream and shuts the server down.
func (s *Server) Close() {
	s.DropStreams()
	s.http.Close()
}

func (s *Server) router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	g := r.Group("/api", s.intercept)
	g.GET("/auth/challenge", s.handleChallenge)
	g.POST("/auth/session", s.handleCreateSession)
	g.GET("/auth/session", s.auth, s.handleValidateSession)
	g.DELETE("/auth/session", s.auth, s.handleDeleteSession)

	g.GET("/tokens", s.handleListTokens)
	g.GET("/tokens/:mint", s.handleGetToken)
	g.GET("/stats", s.handleStats)
	g.GET("/trades", s.handleTrades)

	g.GET("/trade/quote", s.handleQuote)
	g.POST("/trade/prepare", s.auth, s.handlePrepareTrade)
	g.POST("/trade/execute", s.auth, s.handleExecuteTrade)
	g.GET("/trade/status", s.handleStatus)

	g.POST("/token/prepare-create", s.auth, s.handlePrepareCreate)
	g.POST("/token/execute-create", s.auth, s.handleExecuteCreate)

	g.GET("/chat", s.handleGetChat)
	g.POST("/chat", s.auth, s.handleSendChat)
	g.POST("/reactions", s.auth, s.handleAddReaction)
	g.DELETE("/reactions", s.auth, s.handleRemoveReaction)

	g.GET("/balance", s.auth, s.handleBalance)
	g.GET("/sol-price", s.handleSolPrice)
	g.GET("/network", s.handleNetwork)

	g.GET("/stream/:topic", s.handleStream)
	return r
}

// intercept counts requests and serves injected failures.
func (s *Server) intercept(c *gin.Context) {
	key := c.Request.Method + " " + strings.TrimPrefix(c.Request.URL.Path, "/api")

	s.mu.Lock()
	s.requests[key]++
	var f *failure
	if q := s.failures[key]; len(q) > 0 {
		f = &q[0]
		s.failures[key] = q[1:]
	}
	s.mu.Unlock()

	if f != nil {
		abortError(c, f.status, f.code, f.msg)
		return
	}
	c.Next()
}

const walletKey = "wallet"

// auth resolves the bearer token to a wallet.
func (s *Server) auth(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")

	s.mu.Lock()
	wallet, ok := s.sessions[token]
	s.mu.Unlock()

	if token == "" || !ok {
		abortError(c, http.StatusUnauthorized, api.CodeUnauthorized, "invalid or missing session")
		return
	}
	c.Set(walletKey, wallet)
	c.Next()
}

func abortError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg, "code": code})
}

// FailNext makes the next request to method+path (without the /api prefix)
// fail with status and code. Calls queue up.
func (s *Server) FailNext(method, path string, status int, code, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], failure{status: status, code: code, msg: msg})
}

// Requests returns how many requests reached method+path.
func (s *Server) Requests(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+path]
}

// SetPriceImpact overrides the price impact quoted for mint.
func (s *Server) SetPriceImpact(mint string, impact decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.impact[mint] = impact
}

// SetExecutionDrift makes executions deliver output × (1 − drift), as if the
// price moved between quote and execution. The fake does not enforce
// min_output; clients must check the reported amounts.
func (s *Server) SetExecutionDrift(drift decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drift = drift
}

// OmitAmounts makes execution responses leave out the realized amounts.
func (s *Server) OmitAmounts(omit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitAmounts = omit
}

// SetConfirmation selects how new transactions resolve and after how long.
func (s *Server) SetConfirmation(mode ConfirmMode, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirm = mode
	s.delay = delay
}

// FundWallet sets the SOL balance of wallet.
func (s *Server) FundWallet(wallet string, sol decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sol[wallet] = sol
}

// IssueSession creates a session for wallet without a challenge.
func (s *Server) IssueSession(wallet string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := randomHex(16)
	s.sessions[token] = wallet
	return token
}

// SeedToken creates a token directly, without a transaction.
func (s *Server) SeedToken(name, symbol, creator string) api.Token {
	mintKey, err := signer.GenerateKeypair()
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.addToken(mintKey.PublicKey(), api.CreateTokenParams{Name: name, Symbol: symbol}, creator)
	return ts.token
}

// TokenBalance returns the token holding of wallet.
func (s *Server) TokenBalance(mint, wallet string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts, ok := s.tokens[mint]; ok {
		return ts.holders[wallet]
	}
	return decimal.Zero
}

func (s *Server) addToken(mint string, p api.CreateTokenParams, creator string) *tokenState {
	c := newCurve()
	ts := &tokenState{
		token: api.Token{
			Mint:        mint,
			Name:        p.Name,
			Symbol:      p.Symbol,
			Description: p.Description,
			Image:       p.Image,
			Creator:     creator,
			TotalSupply: TotalSupply,
			Twitter:     p.Twitter,
			Telegram:    p.Telegram,
			Website:     p.Website,
			CreatedAt:   time.Now().UTC(),
		},
		curve:   c,
		holders: make(map[string]decimal.Decimal),
	}
	ts.sync()
	s.tokens[mint] = ts
	s.order = append(s.order, mint)
	return ts
}

// sync copies curve state into the token snapshot.
func (ts *tokenState) sync() {
	ts.token.PriceSol = ts.curve.price()
	ts.token.MarketCapSol = ts.curve.marketCap()
	ts.token.VirtualSolReserves = ts.curve.virtualSol
	ts.token.VirtualTokenReserves = ts.curve.virtualTokens
	ts.token.RealSolReserves = ts.curve.realSol
	ts.token.RealTokenReserves = ts.curve.realTokens
}

// solBalance must be called with s.mu held.
func (s *Server) solBalance(wallet string) decimal.Decimal {
	if b, ok := s.sol[wallet]; ok {
		return b
	}
	return DefaultSolBalance
}

// track registers a submitted signature under the current confirm mode.
// Must be called with s.mu held.
func (s *Server) track(signature string) {
	s.slot++
	status := api.ConfirmationConfirmed
	switch s.confirm {
	case ConfirmFailure:
		status = api.ConfirmationFailed
	case ConfirmNever:
		status = api.ConfirmationPending
	}
	s.txs[signature] = &pendingTx{status: status, readyAt: time.Now().Add(s.delay), slot: s.slot}
}

func (s *Server) nextID(prefix string) string {
	s.seq++
	return prefix + "-" + strconv.Itoa(s.seq)
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
