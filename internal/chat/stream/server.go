package stream

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"quickchat/internal/chat/presence"
	"quickchat/internal/common"
	"quickchat/internal/config"
)

var (
	errStreamClosed = errors.New("stream closed")
	errStreamFull   = errors.New("stream buffer full")
)

// Presence is the registry surface a live stream drives.
type Presence interface {
	Register(userID uint64, conn presence.Conn)
	Unregister(userID uint64, connID string) bool
}

type Server struct {
	presence Presence
	buffer   int
	log      zerolog.Logger
}

func NewServer(p Presence, cfg *config.Config, log zerolog.Logger) *Server {
	return &Server{
		presence: p,
		buffer:   cfg.Chat.SendBuffer,
		log:      log.With().Str("component", "grpc-stream").Logger(),
	}
}

// Subscribe registers the caller as online for the lifetime of the stream and
// forwards every event addressed to it.
func (s *Server) Subscribe(_ *SubscribeRequest, ss grpc.ServerStream) error {
	ctx := ss.Context()
	userID, ok := common.UserIDFromContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "authorization required")
	}

	conn := newStreamConn(s.buffer)
	s.presence.Register(userID, conn)
	defer s.presence.Unregister(userID, conn.ID())

	log := s.log.With().Uint64("user_id", userID).Str("conn_id", conn.ID()).Logger()
	log.Debug().Msg("stream subscribed")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("stream ended by client")
			return nil
		case <-conn.done:
			// drain what was queued before the close
			for {
				select {
				case evt := <-conn.events:
					if err := ss.SendMsg(&evt); err != nil {
						return err
					}
				default:
					return status.Error(codes.Aborted, "connection replaced or too slow")
				}
			}
		case evt := <-conn.events:
			if err := ss.SendMsg(&evt); err != nil {
				log.Debug().Err(err).Msg("stream send failed")
				return err
			}
		}
	}
}

// streamConn adapts a server stream to presence.Conn.
type streamConn struct {
	id        string
	events    chan presence.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newStreamConn(buffer int) *streamConn {
	return &streamConn{
		id:     uuid.NewString(),
		events: make(chan presence.Event, buffer),
		done:   make(chan struct{}),
	}
}

func (c *streamConn) ID() string { return c.id }

func (c *streamConn) Send(evt presence.Event) error {
	select {
	case <-c.done:
		return errStreamClosed
	default:
	}
	select {
	case c.events <- evt:
		return nil
	default:
		_ = c.Close()
		return errStreamFull
	}
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
