package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"quickchat/internal/chat/presence"
	"quickchat/internal/config"
)

var (
	errConnClosed   = errors.New("connection closed")
	errSlowConsumer = errors.New("send buffer full")
)

// Identifier resolves the caller of an upgrade request, if any.
type Identifier interface {
	IdentifyRequest(r *http.Request) (uint64, bool)
}

// Presence is the registry surface the socket transport drives.
type Presence interface {
	Register(userID uint64, conn presence.Conn)
	Unregister(userID uint64, connID string) bool
	Watch(conn presence.Conn)
	Unwatch(connID string)
}

// SocketHandler upgrades GET /ws. Authenticated sockets join the presence
// registry; anonymous ones only watch the online set.
type SocketHandler struct {
	presence Presence
	auth     Identifier
	cfg      config.ChatConfig
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewSocketHandler(p Presence, auth Identifier, cfg *config.Config, log zerolog.Logger) *SocketHandler {
	origins := cfg.Server.AllowedOrigins
	return &SocketHandler{
		presence: p,
		auth:     auth,
		cfg:      cfg.Chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
			},
		},
		log: log.With().Str("component", "websocket").Logger(),
	}
}

func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	userID, authenticated := h.auth.IdentifyRequest(r)
	client := newSocketClient(conn, h.cfg, h.log)

	go client.writePump()

	if !authenticated {
		h.log.Debug().Str("conn_id", client.ID()).Msg("anonymous socket connected")
		h.presence.Watch(client)
		go client.readPump(func() {
			h.presence.Unwatch(client.ID())
		})
		return
	}

	h.presence.Register(userID, client)
	go client.readPump(func() {
		h.presence.Unregister(userID, client.ID())
	})
}

// socketClient is a presence.Conn over one websocket. Send only enqueues;
// writePump owns all writes to the socket.
type socketClient struct {
	id   string
	conn *websocket.Conn
	cfg  config.ChatConfig

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	log zerolog.Logger
}

func newSocketClient(conn *websocket.Conn, cfg config.ChatConfig, log zerolog.Logger) *socketClient {
	id := uuid.NewString()
	return &socketClient{
		id:   id,
		conn: conn,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendBuffer),
		done: make(chan struct{}),
		log:  log.With().Str("conn_id", id).Logger(),
	}
}

func (c *socketClient) ID() string { return c.id }

// Send never blocks. A client whose buffer is full is too slow to keep up and
// gets disconnected; it will reload history on reconnect.
func (c *socketClient) Send(evt presence.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		c.log.Warn().Msg("closing slow websocket client")
		_ = c.Close()
		return errSlowConsumer
	}
}

func (c *socketClient) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// readPump only exists to process control frames and notice the disconnect.
func (c *socketClient) readPump(onDisconnect func()) {
	defer func() {
		onDisconnect()
		_ = c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
	}
}

func (c *socketClient) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Debug().Err(err).Msg("websocket write failed")
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteWait))
			return
		}
	}
}
