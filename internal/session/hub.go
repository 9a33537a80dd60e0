package session

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"loot-stix/internal/relay"
	"loot-stix/pkg"
)

// ChatKind tags session-log messages on the wire. Chat envelopes are
// broadcast only, never dispatched as mutations.
const ChatKind relay.OpKind = "chat"

// ChatSpeaker mirrors the session-log attribution of a pickup notice.
type ChatSpeaker struct {
	Alias   string `json:"alias"`
	SceneID string `json:"scene"`
	ActorID string `json:"actor"`
	TokenID string `json:"token"`
}

type ChatMessage struct {
	Content string      `json:"content"`
	Img     string      `json:"img,omitempty"`
	Speaker ChatSpeaker `json:"speaker"`
}

// EnvelopeHandler receives an inbound envelope from the perspective of
// one participant.
type EnvelopeHandler func(localID string, env relay.Envelope)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// Client is one websocket connection bound to a participant.
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	participantID string
	send          chan []byte
	closed        int32
}

func (c *Client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		_ = c.conn.Close()
	}
}

// Hub is the session's relay channel: every emitted envelope is
// broadcast to all connected clients and handed to each participant's
// server-side handler. Delivery is at-most-once, best-effort, with no
// ordering guarantee across envelopes.
type Hub struct {
	session *Session
	log     pkg.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	handler EnvelopeHandler

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
}

func NewHub(s *Session, log pkg.Logger) *Hub {
	return &Hub{
		session:    s,
		log:        log,
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan []byte, 256),
	}
}

// SetHandler wires the mutation dispatcher. Must be called before the
// first client connects.
func (h *Hub) SetHandler(fn EnvelopeHandler) {
	h.handler = fn
}

// Run owns the client registry; start it once in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[c.participantID]; ok {
				old.close()
				close(old.send)
			}
			h.clients[c.participantID] = c
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			current := h.clients[c.participantID] == c
			if current {
				delete(h.clients, c.participantID)
			}
			h.mu.Unlock()
			c.close()
			// A superseded connection tears down after its replacement
			// registered; only the current one may demote the
			// participant.
			if current {
				close(c.send)
				h.session.Leave(c.participantID)
			}
		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer: drop the frame, the channel is
					// best-effort.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Emit implements relay.Channel. The envelope reaches every connected
// client and every server-side participant perspective; recipients
// decide themselves whether to act (authority) or ignore it.
func (h *Hub) Emit(env relay.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	h.broadcast <- raw
	h.dispatch(env)
	return nil
}

func (h *Hub) dispatch(env relay.Envelope) {
	if env.Type == ChatKind || h.handler == nil {
		return
	}
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	for _, id := range ids {
		// Deliveries run concurrently, like socket events on separate
		// clients; ordering across envelopes is not guaranteed.
		go h.handler(id, env)
	}
}

// BroadcastChat pushes a pickup notice to the session log of every
// connected client.
func (h *Hub) BroadcastChat(sender string, msg ChatMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal chat message", zap.Error(err))
		return
	}
	env := relay.Envelope{Sender: sender, Type: ChatKind, Data: raw}
	out, err := json.Marshal(env)
	if err != nil {
		h.log.Error("failed to marshal chat envelope", zap.Error(err))
		return
	}
	h.broadcast <- out
}

// ServeClient runs the read/write pumps for an upgraded connection.
// It returns when the connection drops.
func (h *Hub) ServeClient(conn *websocket.Conn, participantID string) {
	client := &Client{
		hub:           h,
		conn:          conn,
		participantID: participantID,
		send:          make(chan []byte, 64),
	}
	h.register <- client
	go client.writePump()
	client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env relay.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.hub.log.Warn("dropping malformed envelope",
				zap.String("participant", c.participantID), zap.Error(err))
			continue
		}
		// The sender field is authoritative server-side; a client
		// cannot speak for someone else.
		env.Sender = c.participantID
		if err := c.hub.Emit(env); err != nil {
			c.hub.log.Error("failed to relay envelope",
				zap.String("participant", c.participantID), zap.Error(err))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
