package launchpadtest

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/inavhq/clawdvault-sdk/pkg/stream"
)

const streamWriteTimeout = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

type subscriber struct {
	conn  *websocket.Conn
	topic stream.Topic
	mint  string

	mu sync.Mutex
}

type outFrame struct {
	Event stream.EventKind `json:"event"`
	Data  any              `json:"data"`
}

func (sub *subscriber) send(event stream.EventKind, data any) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	// a failed write surfaces in the read loop
	_ = sub.conn.WriteJSON(outFrame{Event: event, Data: data})
}

func (sub *subscriber) wants(topic stream.Topic, mint string) bool {
	return sub.topic == topic && (sub.mint == "" || sub.mint == mint)
}

func (s *Server) handleStream(c *gin.Context) {
	topic := stream.Topic(c.Param("topic"))
	mint := c.Query("mint")
	switch topic {
	case stream.TopicTrades:
	case stream.TopicToken, stream.TopicChat:
		if mint == "" {
			abortError(c, http.StatusBadRequest, "", "mint is required")
			return
		}
	default:
		abortError(c, http.StatusNotFound, "", "unknown topic")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	sub := &subscriber{conn: conn, topic: topic, mint: mint}

	s.mu.Lock()
	sub.send(stream.EventConnected, stream.ConnectedEvent{Topic: topic, Mint: mint, ServerTime: time.Now().UTC()})
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
	conn.Close()
}

// broadcast must be called with s.mu held.
func (s *Server) broadcast(topic stream.Topic, mint string, event stream.EventKind, data any) {
	for sub := range s.subs {
		if sub.wants(topic, mint) {
			sub.send(event, data)
		}
	}
}

// publishTrade must be called with s.mu held.
func (s *Server) publishTrade(ts *tokenState, tr stream.TradeEvent) {
	mint := ts.token.Mint
	s.broadcast(stream.TopicTrades, mint, stream.EventTrade, tr)
	s.broadcast(stream.TopicToken, mint, stream.EventTrade, tr)
	s.broadcast(stream.TopicToken, mint, stream.EventUpdate, stream.TokenUpdateEvent{
		Mint:                 mint,
		PriceSol:             ts.token.PriceSol,
		MarketCapSol:         ts.token.MarketCapSol,
		VirtualSolReserves:   ts.token.VirtualSolReserves,
		VirtualTokenReserves: ts.token.VirtualTokenReserves,
		RealSolReserves:      ts.token.RealSolReserves,
		Graduated:            ts.token.Graduated,
		UpdatedAt:            time.Now().UTC(),
	})
}

// Subscribers returns how many streams are open on topic.
func (s *Server) Subscribers(topic stream.Topic) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for sub := range s.subs {
		if sub.topic == topic {
			n++
		}
	}
	return n
}

// DropStreams closes every open stream without a close frame, as a network
// failure would.
func (s *Server) DropStreams() {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
		delete(s.subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.conn.Close()
	}
}
