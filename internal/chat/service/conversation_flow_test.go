package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"quickchat/internal/chat/delivery"
	"quickchat/internal/chat/presence"
	"quickchat/internal/chat/service/mocks"
	"quickchat/internal/common"
	"quickchat/internal/dbmysql"
)

// memoryStore is an in-process ChatRepository with the same seen semantics
// as the MySQL one.
type memoryStore struct {
	mu        sync.Mutex
	messages  []*dbmysql.Message
	now       time.Time
	afterList func()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (s *memoryStore) Append(ctx context.Context, senderID, receiverID uint64, text, image *string) (*dbmysql.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(time.Millisecond)
	msg := &dbmysql.Message{
		ID:         fmt.Sprintf("m-%d", len(s.messages)+1),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      image,
		CreatedAt:  s.now,
	}
	s.messages = append(s.messages, msg)
	copied := *msg
	return &copied, nil
}

func (s *memoryStore) ListConversation(ctx context.Context, userA, userB uint64) ([]*dbmysql.Message, error) {
	s.mu.Lock()
	var out []*dbmysql.Message
	for _, m := range s.messages {
		if (m.SenderID == userA && m.ReceiverID == userB) || (m.SenderID == userB && m.ReceiverID == userA) {
			copied := *m
			out = append(out, &copied)
		}
	}
	hook := s.afterList
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (s *memoryStore) FindByID(ctx context.Context, messageID string) (*dbmysql.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == messageID {
			copied := *m
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("message %s: %w", messageID, common.ErrNotFound)
}

func (s *memoryStore) MarkSeen(ctx context.Context, fromUserID, toUserID uint64, upTo time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.messages {
		if m.SenderID == fromUserID && m.ReceiverID == toUserID && !m.Seen && !m.CreatedAt.After(upTo) {
			m.Seen = true
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) MarkSeenByID(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == messageID {
			m.Seen = true
			return nil
		}
	}
	return fmt.Errorf("message %s: %w", messageID, common.ErrNotFound)
}

func (s *memoryStore) CountUnseenBySender(ctx context.Context, forUserID uint64) (map[uint64]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[uint64]int64)
	for _, m := range s.messages {
		if m.ReceiverID == forUserID && !m.Seen {
			counts[m.SenderID]++
		}
	}
	return counts, nil
}

type recordingConn struct {
	id     string
	mu     sync.Mutex
	events []presence.Event
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(evt presence.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) newMessages() []*dbmysql.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*dbmysql.Message
	for _, evt := range c.events {
		if evt.Type == presence.EventNewMessage {
			out = append(out, evt.Data.(*dbmysql.Message))
		}
	}
	return out
}

const (
	alice uint64 = 1
	bob   uint64 = 2
)

func newFlowService(t *testing.T, store *memoryStore) (ChatService, *presence.Registry) {
	t.Helper()
	ctrl := gomock.NewController(t)

	users := mocks.NewMockDirectory(ctrl)
	users.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(true, nil).AnyTimes()
	users.EXPECT().ListOthers(gomock.Any(), bob).Return([]*dbmysql.User{{UserID: alice, FullName: "Alice"}}, nil).AnyTimes()

	lastSeen := mocks.NewMockLastSeenReader(ctrl)
	lastSeen.EXPECT().LastSeen(gomock.Any(), gomock.Any()).Return(map[uint64]time.Time{}, nil).AnyTimes()

	registry := presence.NewRegistry(zerolog.Nop())
	router := delivery.NewRouter(registry, zerolog.Nop())
	svc := NewChatService(store, users, mocks.NewMockImageUploader(ctrl), router, registry, lastSeen, zerolog.Nop())
	return svc, registry
}

func TestConversationFlow_OfflineSendThenOpen(t *testing.T) {
	store := newMemoryStore()
	svc, registry := newFlowService(t, store)
	ctx := context.Background()

	// bob is offline: the message is stored but not pushed
	sent, err := svc.SendMessage(ctx, alice, bob, SendInput{Text: strPtr("hi")})
	require.NoError(t, err)
	assert.False(t, sent.Seen)

	sidebar, err := svc.SidebarSummary(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sidebar.Unseen[alice])
	require.Len(t, sidebar.Users, 1)
	assert.False(t, sidebar.Users[0].Online)

	conn := &recordingConn{id: "bob-socket"}
	registry.Register(bob, conn)
	assert.Equal(t, []uint64{bob}, registry.SnapshotOnlineIDs())
	assert.Empty(t, conn.newMessages(), "history is not replayed over the live connection")

	messages, err := svc.OpenConversation(ctx, bob, alice)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hi", *messages[0].Text)
	assert.True(t, messages[0].Seen)

	sidebar, err = svc.SidebarSummary(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sidebar.Unseen[alice])
	assert.NotContains(t, sidebar.Unseen, alice)

	// reopening changes nothing
	messages, err = svc.OpenConversation(ctx, bob, alice)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.True(t, messages[0].Seen)
}

func TestConversationFlow_OnlineReceiverGetsPush(t *testing.T) {
	store := newMemoryStore()
	svc, registry := newFlowService(t, store)
	ctx := context.Background()

	conn := &recordingConn{id: "bob-socket"}
	registry.Register(bob, conn)

	sent, err := svc.SendMessage(ctx, alice, bob, SendInput{Text: strPtr("ping")})
	require.NoError(t, err)

	pushed := conn.newMessages()
	require.Len(t, pushed, 1)
	assert.Equal(t, sent.ID, pushed[0].ID)
	assert.Equal(t, sent.CreatedAt, pushed[0].CreatedAt)
	assert.False(t, pushed[0].Seen)
}

func TestConversationFlow_MessageArrivingDuringOpenStaysUnseen(t *testing.T) {
	store := newMemoryStore()
	svc, _ := newFlowService(t, store)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, alice, bob, SendInput{Text: strPtr("first")})
	require.NoError(t, err)

	// alice sends again after bob's history was read but before it was marked
	store.afterList = func() {
		store.afterList = nil
		_, err := store.Append(ctx, alice, bob, strPtr("second"), nil)
		require.NoError(t, err)
	}

	messages, err := svc.OpenConversation(ctx, bob, alice)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.True(t, messages[0].Seen)

	unseen, err := store.CountUnseenBySender(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unseen[alice])
}
