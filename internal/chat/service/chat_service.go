//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../handler/mocks/mock_chat_service.go -package=mocks
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"quickchat/internal/chat/repository"
	"quickchat/internal/common"
	"quickchat/internal/dbmysql"
	"quickchat/internal/user"
)

// ChatService is the conversation sync API the transports call with an
// already authenticated user id.
type ChatService interface {
	OpenConversation(ctx context.Context, viewerID, peerID uint64) ([]*dbmysql.Message, error)
	SidebarSummary(ctx context.Context, viewerID uint64) (*Sidebar, error)
	SendMessage(ctx context.Context, senderID, receiverID uint64, in SendInput) (*dbmysql.Message, error)
	MarkSeen(ctx context.Context, viewerID uint64, messageID string) error
}

type SendInput struct {
	Text  *string `json:"text" validate:"omitempty,max=5000"`
	Image *string `json:"image" validate:"omitempty,startswith=data:"`
}

type SidebarUser struct {
	ID         uint64     `json:"id"`
	FullName   string     `json:"fullName"`
	ProfilePic string     `json:"profilePic"`
	Bio        string     `json:"bio"`
	Online     bool       `json:"online"`
	LastSeen   *time.Time `json:"lastSeen,omitempty"`
}

type Sidebar struct {
	Users  []SidebarUser    `json:"users"`
	Unseen map[uint64]int64 `json:"unseenMessages"`
}

type chatService struct {
	repo     repository.ChatRepository
	users    user.Directory
	uploader ImageUploader
	delivery Deliverer
	online   OnlineChecker
	lastSeen LastSeenReader
	log      zerolog.Logger
}

func NewChatService(
	repo repository.ChatRepository,
	users user.Directory,
	uploader ImageUploader,
	delivery Deliverer,
	online OnlineChecker,
	lastSeen LastSeenReader,
	log zerolog.Logger,
) ChatService {
	return &chatService{
		repo:     repo,
		users:    users,
		uploader: uploader,
		delivery: delivery,
		online:   online,
		lastSeen: lastSeen,
		log:      log.With().Str("component", "chat-service").Logger(),
	}
}

// OpenConversation returns the pair's history and then marks the peer's
// messages to the viewer as seen, bounded by the newest one listed so a
// message arriving in between stays unseen. A failed mark is logged and the
// history is still returned; the next open retries it.
func (s *chatService) OpenConversation(ctx context.Context, viewerID, peerID uint64) ([]*dbmysql.Message, error) {
	if viewerID == 0 {
		return nil, common.ErrUnauthorized
	}
	if peerID == 0 {
		return nil, fmt.Errorf("%w: peer id is required", common.ErrValidation)
	}

	messages, err := s.repo.ListConversation(ctx, viewerID, peerID)
	if err != nil {
		return nil, err
	}

	var upTo time.Time
	for _, m := range messages {
		if m.SenderID == peerID && m.ReceiverID == viewerID && m.CreatedAt.After(upTo) {
			upTo = m.CreatedAt
		}
	}
	if upTo.IsZero() {
		return messages, nil
	}

	marked, err := s.repo.MarkSeen(ctx, peerID, viewerID, upTo)
	if err != nil {
		s.log.Error().Err(err).Uint64("viewer_id", viewerID).Uint64("peer_id", peerID).Msg("mark conversation seen failed")
		return messages, nil
	}

	for _, m := range messages {
		if m.SenderID == peerID && m.ReceiverID == viewerID {
			m.Seen = true
		}
	}
	if marked > 0 {
		s.log.Debug().Uint64("viewer_id", viewerID).Uint64("peer_id", peerID).Int64("marked", marked).Msg("conversation marked seen")
	}
	return messages, nil
}

func (s *chatService) SidebarSummary(ctx context.Context, viewerID uint64) (*Sidebar, error) {
	if viewerID == 0 {
		return nil, common.ErrUnauthorized
	}

	users, err := s.users.ListOthers(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	unseen, err := s.repo.CountUnseenBySender(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	offline := lo.FilterMap(users, func(u *dbmysql.User, _ int) (uint64, bool) {
		return u.UserID, !s.online.IsOnline(u.UserID)
	})
	seen, err := s.lastSeen.LastSeen(ctx, offline)
	if err != nil {
		s.log.Warn().Err(err).Msg("last seen lookup failed")
		seen = nil
	}

	sidebar := &Sidebar{
		Users: lo.Map(users, func(u *dbmysql.User, _ int) SidebarUser {
			entry := SidebarUser{
				ID:         u.UserID,
				FullName:   u.FullName,
				ProfilePic: u.ProfilePic,
				Bio:        u.Bio,
				Online:     s.online.IsOnline(u.UserID),
			}
			if ts, ok := seen[u.UserID]; ok && !entry.Online {
				entry.LastSeen = &ts
			}
			return entry
		}),
		Unseen: unseen,
	}
	return sidebar, nil
}

// SendMessage persists first and only then attempts live delivery, so the
// returned message is durable whether or not the receiver got the push.
func (s *chatService) SendMessage(ctx context.Context, senderID, receiverID uint64, in SendInput) (*dbmysql.Message, error) {
	if senderID == 0 {
		return nil, common.ErrUnauthorized
	}
	if receiverID == 0 {
		return nil, fmt.Errorf("%w: receiver id is required", common.ErrValidation)
	}

	in.Text, in.Image = blankToNil(in.Text), blankToNil(in.Image)
	if in.Text == nil && in.Image == nil {
		return nil, fmt.Errorf("%w: message needs text or image", common.ErrValidation)
	}
	if err := common.ValidateStruct(in); err != nil {
		return nil, err
	}

	exists, err := s.users.Exists(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("receiver %d: %w", receiverID, common.ErrNotFound)
	}

	var imageURL *string
	if in.Image != nil {
		url, err := s.uploader.Upload(ctx, senderID, *in.Image)
		if err != nil {
			return nil, err
		}
		imageURL = &url
	}

	msg, err := s.repo.Append(ctx, senderID, receiverID, in.Text, imageURL)
	if err != nil {
		if imageURL != nil {
			s.discardImage(ctx, *imageURL)
		}
		return nil, err
	}

	delivered := s.delivery.Deliver(ctx, msg)
	s.log.Info().
		Str("message_id", msg.ID).
		Uint64("sender_id", senderID).
		Uint64("receiver_id", receiverID).
		Bool("has_image", imageURL != nil).
		Bool("delivered", delivered).
		Msg("message sent")

	return msg, nil
}

// discardImage removes an upload whose message was never stored. Runs on its
// own deadline since the request context may already be cancelled.
func (s *chatService) discardImage(ctx context.Context, url string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.uploader.Delete(ctx, url); err != nil {
		s.log.Warn().Err(err).Str("image_url", url).Msg("orphaned image cleanup failed")
	}
}

// MarkSeen flips a single message. Only its receiver may do that; anyone else
// gets ErrNotFound so message ids are not probeable.
func (s *chatService) MarkSeen(ctx context.Context, viewerID uint64, messageID string) error {
	if viewerID == 0 {
		return common.ErrUnauthorized
	}
	if strings.TrimSpace(messageID) == "" {
		return fmt.Errorf("%w: message id is required", common.ErrValidation)
	}

	msg, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.ReceiverID != viewerID {
		return fmt.Errorf("message %s: %w", messageID, common.ErrNotFound)
	}
	if msg.Seen {
		return nil
	}

	return s.repo.MarkSeenByID(ctx, messageID)
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
