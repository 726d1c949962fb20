package launchpadtest

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/inavhq/clawdvault-sdk/pkg/api"
	"github.com/inavhq/clawdvault-sdk/pkg/stream"
)

const maxChatMessage = 500

func (e *chatEntry) snapshot() api.ChatMessage {
	m := e.msg
	if len(e.reactions) > 0 {
		m.Reactions = make(map[string]int, len(e.reactions))
		for emoji, wallets := range e.reactions {
			if len(wallets) > 0 {
				m.Reactions[emoji] = len(wallets)
			}
		}
	}
	return m
}

// findMessage must be called with s.mu held.
func (s *Server) findMessage(id string) *chatEntry {
	for _, entries := range s.chat {
		for _, e := range entries {
			if e.msg.ID == id {
				return e
			}
		}
	}
	return nil
}

func (s *Server) handleGetChat(c *gin.Context) {
	mint := c.Query("mint")
	limit := queryInt(c, "limit", 50)
	before := c.Query("before")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[mint]; !ok {
		abortError(c, http.StatusNotFound, api.CodeTokenNotFound, "token not found")
		return
	}

	entries := s.chat[mint]
	out := make([]api.ChatMessage, 0, limit)
	skipping := before != ""
	hasMore := false
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if skipping {
			if e.msg.ID == before {
				skipping = false
			}
			continue
		}
		if len(out) == limit {
			hasMore = true
			break
		}
		out = append(out, e.snapshot())
	}
	c.JSON(http.StatusOK, api.ChatHistory{Messages: out, HasMore: hasMore})
}

func (s *Server) handleSendChat(c *gin.Context) {
	var req api.SendChatParams
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "", "invalid body")
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" || len(text) > maxChatMessage {
		abortError(c, http.StatusBadRequest, "INVALID_MESSAGE", "message must be 1-500 characters")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[req.Mint]; !ok {
		abortError(c, http.StatusNotFound, api.CodeTokenNotFound, "token not found")
		return
	}
	if req.ReplyTo != "" && s.findMessage(req.ReplyTo) == nil {
		abortError(c, http.StatusBadRequest, "INVALID_REPLY", "reply target not found")
		return
	}

	e := &chatEntry{
		msg: api.ChatMessage{
			ID:        s.nextID("msg"),
			Mint:      req.Mint,
			Sender:    c.GetString(walletKey),
			Message:   text,
			ReplyTo:   req.ReplyTo,
			CreatedAt: time.Now().UTC(),
		},
		reactions: make(map[string]map[string]struct{}),
	}
	s.chat[req.Mint] = append(s.chat[req.Mint], e)

	msg := e.snapshot()
	s.broadcast(stream.TopicChat, req.Mint, stream.EventMessage, stream.ChatMessageEvent{ChatMessage: msg})
	c.JSON(http.StatusOK, msg)
}

func (s *Server) handleAddReaction(c *gin.Context) {
	var req api.ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "", "invalid body")
		return
	}
	s.react(c, req.MessageID, req.Emoji, false)
}

func (s *Server) handleRemoveReaction(c *gin.Context) {
	s.react(c, c.Query("messageId"), c.Query("emoji"), true)
}

func (s *Server) react(c *gin.Context, id, emoji string, remove bool) {
	if id == "" || emoji == "" {
		abortError(c, http.StatusBadRequest, "", "message id and emoji are required")
		return
	}
	wallet := c.GetString(walletKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.findMessage(id)
	if e == nil {
		abortError(c, http.StatusNotFound, "MESSAGE_NOT_FOUND", "message not found")
		return
	}
	wallets := e.reactions[emoji]
	if remove {
		delete(wallets, wallet)
	} else {
		if wallets == nil {
			wallets = make(map[string]struct{})
			e.reactions[emoji] = wallets
		}
		wallets[wallet] = struct{}{}
	}

	s.broadcast(stream.TopicChat, e.msg.Mint, stream.EventReaction, stream.ReactionEvent{
		MessageID: id,
		Mint:      e.msg.Mint,
		Emoji:     emoji,
		Wallet:    wallet,
		Count:     len(wallets),
		Removed:   remove,
	})
	c.JSON(http.StatusOK, gin.H{"success": true})
}
