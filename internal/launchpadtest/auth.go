package launchpadtest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mr-tron/base58"

	"github.com/inavhq/clawdvault-sdk/pkg/api"
	"github.com/inavhq/clawdvault-sdk/pkg/signer"
)

func (s *Server) handleChallenge(c *gin.Context) {
	wallet := c.Query("wallet")
	if _, err := signer.ParsePublicKey(wallet); err != nil {
		abortError(c, http.StatusBadRequest, "INVALID_WALLET", "invalid wallet address")
		return
	}

	nonce := randomHex(8)
	msg := "Sign in to ClawdVault\nWallet: " + wallet + "\nNonce: " + nonce

	s.mu.Lock()
	s.challenges[wallet] = msg
	s.mu.Unlock()

	c.JSON(http.StatusOK, api.Challenge{Message: msg, Nonce: nonce, ExpiresAt: time.Now().Add(5 * time.Minute).UTC()})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req api.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "", "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	want, ok := s.challenges[req.Wallet]
	if !ok || want != req.Message {
		abortError(c, http.StatusUnauthorized, api.CodeUnauthorized, "unknown or expired challenge")
		return
	}
	sig, err := base58.Decode(req.Signature)
	if err != nil || !signer.VerifyMessage(req.Wallet, []byte(req.Message), sig) {
		abortError(c, http.StatusUnauthorized, api.CodeUnauthorized, "invalid signature")
		return
	}
	delete(s.challenges, req.Wallet)

	token := randomHex(16)
	s.sessions[token] = req.Wallet
	c.JSON(http.StatusOK, api.SessionGrant{Token: token, Wallet: req.Wallet, ExpiresAt: time.Now().Add(24 * time.Hour).UTC()})
}

func (s *Server) handleValidateSession(c *gin.Context) {
	c.JSON(http.StatusOK, api.SessionInfo{Valid: true, Wallet: c.GetString(walletKey)})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	token := c.GetHeader("Authorization")[len("Bearer "):]
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleBalance(c *gin.Context) {
	wallet := c.GetString(walletKey)
	mint := c.Query("mint")

	s.mu.Lock()
	defer s.mu.Unlock()

	if mint == "" {
		c.JSON(http.StatusOK, api.Balance{Wallet: wallet, Balance: s.solBalance(wallet)})
		return
	}
	ts, ok := s.tokens[mint]
	if !ok {
		abortError(c, http.StatusNotFound, api.CodeTokenNotFound, "token not found")
		return
	}
	c.JSON(http.StatusOK, api.Balance{Mint: mint, Wallet: wallet, Balance: ts.holders[wallet]})
}

func (s *Server) handleSolPrice(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"price": "150.25", "updated_at": time.Now().UTC()})
}

func (s *Server) handleNetwork(c *gin.Context) {
	s.mu.Lock()
	slot := s.slot
	s.mu.Unlock()
	c.JSON(http.StatusOK, api.NetworkStatus{
		Network:    "devnet",
		RPCHealthy: true,
		Slot:       slot,
		ProgramID:  ProgramID.String(),
	})
}
