package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/inavhq/clawdvault-sdk/pkg/api"
)

// Topic is a stream channel.
type Topic string

const (
	TopicTrades Topic = "trades"
	TopicToken  Topic = "token"
	TopicChat   Topic = "chat"
)

// EventKind names an event within a topic.
type EventKind string

const (
	EventConnected EventKind = "connected"
	EventTrade     EventKind = "trade"
	EventUpdate    EventKind = "update"
	EventMessage   EventKind = "message"
	EventReaction  EventKind = "reaction"
)

// accepts reports whether topic t emits events of kind k.
func (t Topic) accepts(k EventKind) bool {
	if k == EventConnected {
		return true
	}
	switch t {
	case TopicTrades:
		return k == EventTrade
	case TopicToken:
		return k == EventUpdate || k == EventTrade
	case TopicChat:
		return k == EventMessage || k == EventReaction
	}
	return false
}

// Event is a decoded stream event.
type Event interface {
	Kind() EventKind
}

// ConnectedEvent is the server hello sent after the socket opens.
type ConnectedEvent struct {
	Topic      Topic     `json:"topic"`
	Mint       string    `json:"mint"`
	ServerTime time.Time `json:"server_time"`
}

func (*ConnectedEvent) Kind() EventKind { return EventConnected }

// TradeEvent is a trade executed against a token's curve.
type TradeEvent struct {
	api.TradeRecord
}

func (*TradeEvent) Kind() EventKind { return EventTrade }

// TokenUpdateEvent carries new curve state after a trade.
type TokenUpdateEvent struct {
	Mint                 string          `json:"mint"`
	PriceSol             decimal.Decimal `json:"price_sol"`
	MarketCapSol         decimal.Decimal `json:"market_cap_sol"`
	VirtualSolReserves   decimal.Decimal `json:"virtual_sol_reserves"`
	VirtualTokenReserves decimal.Decimal `json:"virtual_token_reserves"`
	RealSolReserves      decimal.Decimal `json:"real_sol_reserves"`
	Graduated            bool            `json:"graduated"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func (*TokenUpdateEvent) Kind() EventKind { return EventUpdate }

// ChatMessageEvent is a new chat message.
type ChatMessageEvent struct {
	api.ChatMessage
}

func (*ChatMessageEvent) Kind() EventKind { return EventMessage }

// ReactionEvent reports a reaction added to or removed from a message.
type ReactionEvent struct {
	MessageID string `json:"message_id"`
	Mint      string `json:"mint"`
	Emoji     string `json:"emoji"`
	Wallet    string `json:"wallet"`
	Count     int    `json:"count"`
	Removed   bool   `json:"removed"`
}

func (*ReactionEvent) Kind() EventKind { return EventReaction }

// Frame is one message on the wire.
type Frame struct {
	Event EventKind       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// decodeEvent turns a frame into a typed event. Kinds the topic does not
// emit decode to nil.
func decodeEvent(topic Topic, f Frame) (Event, error) {
	if !topic.accepts(f.Event) {
		return nil, nil
	}

	var ev Event
	switch f.Event {
	case EventConnected:
		ev = &ConnectedEvent{}
	case EventTrade:
		ev = &TradeEvent{}
	case EventUpdate:
		ev = &TokenUpdateEvent{}
	case EventMessage:
		ev = &ChatMessageEvent{}
	case EventReaction:
		ev = &ReactionEvent{}
	}
	if len(f.Data) > 0 && string(f.Data) != "null" {
		if err := json.Unmarshal(f.Data, ev); err != nil {
			return nil, fmt.Errorf("decode %s event: %w", f.Event, err)
		}
	}
	return ev, nil
}
