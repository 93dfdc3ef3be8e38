package dbmysql

import (
	"time"
)

// Message is immutable after insert except for Seen, which only goes false -> true.
// idx_messages_pair serves conversation reads; idx_messages_unseen serves unseen counts.
type Message struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	SenderID   uint64    `gorm:"not null;index:idx_messages_pair,priority:1;index:idx_messages_unseen,priority:2" json:"senderId"`
	ReceiverID uint64    `gorm:"not null;index:idx_messages_pair,priority:2;index:idx_messages_unseen,priority:1" json:"receiverId"`
	Text       *string   `gorm:"type:text" json:"text,omitempty"`
	Image      *string   `gorm:"size:500" json:"image,omitempty"`
	Seen       bool      `gorm:"not null;index:idx_messages_unseen,priority:3" json:"seen"`
	CreatedAt  time.Time `gorm:"type:datetime(6);not null;index" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}
