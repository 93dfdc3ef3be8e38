//go:generate go run go.uber.org/mock/mockgen -source=chat_repository.go -destination=../service/mocks/mock_chat_repository.go -package=mocks
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"quickchat/internal/common"
	"quickchat/internal/dbmysql"
)

// ChatRepository is the message store: the durable, ordered record of
// messages between user pairs and the owner of their seen state.
type ChatRepository interface {
	Append(ctx context.Context, senderID, receiverID uint64, text, image *string) (*dbmysql.Message, error)
	ListConversation(ctx context.Context, userA, userB uint64) ([]*dbmysql.Message, error)
	FindByID(ctx context.Context, messageID string) (*dbmysql.Message, error)
	MarkSeen(ctx context.Context, fromUserID, toUserID uint64, upTo time.Time) (int64, error)
	MarkSeenByID(ctx context.Context, messageID string) error
	CountUnseenBySender(ctx context.Context, forUserID uint64) (map[uint64]int64, error)
}

type chatRepo struct {
	db    *gorm.DB
	clock *monotonicClock
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepo{
		db:    db,
		clock: &monotonicClock{now: time.Now},
	}
}

// Append validates and inserts a message. The creation timestamp is assigned
// here, strictly increasing within the process, so history order matches
// the order in which appends were issued.
func (r *chatRepo) Append(ctx context.Context, senderID, receiverID uint64, text, image *string) (*dbmysql.Message, error) {
	text, image = normalize(text), normalize(image)
	if text == nil && image == nil {
		return nil, fmt.Errorf("%w: message needs text or image", common.ErrValidation)
	}
	if senderID == 0 || receiverID == 0 {
		return nil, fmt.Errorf("%w: sender and receiver are required", common.ErrValidation)
	}

	msg := &dbmysql.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      image,
		Seen:       false,
		CreatedAt:  r.clock.Next(),
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

func (r *chatRepo) ListConversation(ctx context.Context, userA, userB uint64) ([]*dbmysql.Message, error) {
	var messages []*dbmysql.Message
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", userA, userB, userB, userA).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return messages, nil
}

func (r *chatRepo) FindByID(ctx context.Context, messageID string) (*dbmysql.Message, error) {
	var msg dbmysql.Message
	err := r.db.WithContext(ctx).Where("id = ?", messageID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("message %s: %w", messageID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	return &msg, nil
}

// MarkSeen flips every unseen message from -> to created at or before upTo.
// Zero matches is not an error.
func (r *chatRepo) MarkSeen(ctx context.Context, fromUserID, toUserID uint64, upTo time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&dbmysql.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND seen = ? AND created_at <= ?", fromUserID, toUserID, false, upTo).
		Update("seen", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark seen: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *chatRepo) MarkSeenByID(ctx context.Context, messageID string) error {
	res := r.db.WithContext(ctx).
		Model(&dbmysql.Message{}).
		Where("id = ?", messageID).
		Update("seen", true)
	if res.Error != nil {
		return fmt.Errorf("mark seen by id: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// MySQL reports 0 affected rows for an already-seen message.
	var count int64
	if err := r.db.WithContext(ctx).Model(&dbmysql.Message{}).Where("id = ?", messageID).Count(&count).Error; err != nil {
		return fmt.Errorf("mark seen by id: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("message %s: %w", messageID, common.ErrNotFound)
	}
	return nil
}

type unseenRow struct {
	SenderID uint64
	Count    int64
}

// CountUnseenBySender omits senders with nothing unseen.
func (r *chatRepo) CountUnseenBySender(ctx context.Context, forUserID uint64) (map[uint64]int64, error) {
	var rows []unseenRow
	err := r.db.WithContext(ctx).
		Model(&dbmysql.Message{}).
		Select("sender_id, COUNT(*) AS count").
		Where("receiver_id = ? AND seen = ?", forUserID, false).
		Group("sender_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count unseen: %w", err)
	}

	counts := make(map[uint64]int64, len(rows))
	for _, row := range rows {
		if row.Count > 0 {
			counts[row.SenderID] = row.Count
		}
	}
	return counts, nil
}

func normalize(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

// monotonicClock hands out strictly increasing UTC timestamps at microsecond
// resolution, matching the datetime(6) column.
type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func (c *monotonicClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
