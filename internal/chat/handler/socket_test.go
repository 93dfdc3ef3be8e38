package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickchat/internal/chat/delivery"
	"quickchat/internal/chat/presence"
	"quickchat/internal/config"
	"quickchat/internal/dbmysql"
)

type tokenIdentifier map[string]uint64

func (ti tokenIdentifier) IdentifyRequest(r *http.Request) (uint64, bool) {
	id, ok := ti[r.URL.Query().Get("token")]
	return id, ok
}

type wireEvent struct {
	Type presence.EventType `json:"type"`
	Data json.RawMessage    `json:"data"`
}

func testChatConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{AllowedOrigins: []string{"*"}},
		Chat: config.ChatConfig{
			SendBuffer:      16,
			WriteWait:       time.Second,
			PongWait:        time.Minute,
			MaxMessageBytes: 4096,
		},
	}
}

func setupSocketServer(t *testing.T) (*httptest.Server, *presence.Registry) {
	t.Helper()
	registry := presence.NewRegistry(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go registry.Run(ctx)

	ids := tokenIdentifier{"alice": 1, "bob": 2}
	srv := httptest.NewServer(NewSocketHandler(registry, ids, testChatConfig(), zerolog.Nop()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, registry
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads events until match returns true or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, match func(wireEvent) bool) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var evt wireEvent
		require.NoError(t, conn.ReadJSON(&evt))
		if match(evt) {
			return evt
		}
	}
}

func onlineSetIs(expected ...uint64) func(wireEvent) bool {
	return func(evt wireEvent) bool {
		if evt.Type != presence.EventOnlineUsers {
			return false
		}
		var ids []uint64
		if err := json.Unmarshal(evt.Data, &ids); err != nil {
			return false
		}
		if len(expected) == 0 {
			return len(ids) == 0
		}
		return assert.ObjectsAreEqual(expected, ids)
	}
}

func TestSocketHandler_PresenceBroadcast(t *testing.T) {
	srv, registry := setupSocketServer(t)

	alice := dial(t, srv, "alice")
	readUntil(t, alice, onlineSetIs(1))

	bob := dial(t, srv, "bob")
	readUntil(t, bob, onlineSetIs(1, 2))
	readUntil(t, alice, onlineSetIs(1, 2))

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	bob.Close()

	readUntil(t, alice, onlineSetIs(1))
	assert.Eventually(t, func() bool { return !registry.IsOnline(2) }, time.Second, 10*time.Millisecond)
}

func TestSocketHandler_DeliversNewMessage(t *testing.T) {
	srv, registry := setupSocketServer(t)

	bob := dial(t, srv, "bob")
	readUntil(t, bob, onlineSetIs(2))

	text := "hi"
	msg := &dbmysql.Message{ID: "m-1", SenderID: 1, ReceiverID: 2, Text: &text}
	router := delivery.NewRouter(registry, zerolog.Nop())
	require.True(t, router.Deliver(context.Background(), msg))

	evt := readUntil(t, bob, func(e wireEvent) bool { return e.Type == presence.EventNewMessage })
	var got dbmysql.Message
	require.NoError(t, json.Unmarshal(evt.Data, &got))
	assert.Equal(t, "m-1", got.ID)
	assert.Equal(t, uint64(1), got.SenderID)
	assert.Equal(t, "hi", *got.Text)
	assert.False(t, got.Seen)
}

func TestSocketHandler_ReconnectReplacesOldSocket(t *testing.T) {
	srv, registry := setupSocketServer(t)

	first := dial(t, srv, "alice")
	readUntil(t, first, onlineSetIs(1))
	firstConn, ok := registry.Lookup(1)
	require.True(t, ok)

	second := dial(t, srv, "alice")
	readUntil(t, second, onlineSetIs(1))

	// the replaced socket is closed by the server
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
	}

	// the stale socket's disconnect must not evict the new one
	time.Sleep(50 * time.Millisecond)
	current, ok := registry.Lookup(1)
	require.True(t, ok)
	assert.NotEqual(t, firstConn.ID(), current.ID())
}

func TestSocketHandler_AnonymousFollowsOnlineSet(t *testing.T) {
	srv, registry := setupSocketServer(t)

	anon := dial(t, srv, "")
	readUntil(t, anon, onlineSetIs())

	alice := dial(t, srv, "alice")
	readUntil(t, alice, onlineSetIs(1))
	readUntil(t, anon, onlineSetIs(1))
	assert.Equal(t, []uint64{1}, registry.SnapshotOnlineIDs())

	require.NoError(t, alice.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	alice.Close()
	readUntil(t, anon, onlineSetIs())
}

func TestSocketClient_SlowConsumerIsClosed(t *testing.T) {
	cfg := testChatConfig().Chat
	cfg.SendBuffer = 1
	client := &socketClient{
		id:   "slow",
		cfg:  cfg,
		send: make(chan []byte, cfg.SendBuffer),
		done: make(chan struct{}),
		log:  zerolog.Nop(),
	}

	evt := presence.Event{Type: presence.EventOnlineUsers, Data: []uint64{1}}
	require.NoError(t, client.Send(evt))
	assert.ErrorIs(t, client.Send(evt), errSlowConsumer)
	assert.ErrorIs(t, client.Send(evt), errConnClosed)
}
