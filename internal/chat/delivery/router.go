package delivery

import (
	"context"

	"github.com/rs/zerolog"

	"quickchat/internal/chat/presence"
	"quickchat/internal/dbmysql"
)

// Directory is the part of the presence registry the router needs.
type Directory interface {
	Lookup(userID uint64) (presence.Conn, bool)
}

// Router pushes freshly stored messages to the receiver's live connection.
// Delivery is best effort: the message is already durable, so an offline
// receiver or a failed push only costs the realtime copy.
type Router struct {
	dir Directory
	log zerolog.Logger
}

func NewRouter(dir Directory, log zerolog.Logger) *Router {
	return &Router{
		dir: dir,
		log: log.With().Str("component", "delivery").Logger(),
	}
}

// Deliver reports whether the event was handed to a live connection.
func (r *Router) Deliver(ctx context.Context, msg *dbmysql.Message) bool {
	if msg == nil {
		return false
	}
	conn, ok := r.dir.Lookup(msg.ReceiverID)
	if !ok {
		r.log.Debug().Str("message_id", msg.ID).Uint64("receiver_id", msg.ReceiverID).Msg("receiver offline, skipping push")
		return false
	}

	if err := conn.Send(presence.Event{Type: presence.EventNewMessage, Data: msg}); err != nil {
		r.log.Warn().Err(err).
			Str("message_id", msg.ID).
			Uint64("receiver_id", msg.ReceiverID).
			Str("conn_id", conn.ID()).
			Msg("push new message failed")
		return false
	}
	return true
}
