package presence

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Registry maps each online user to exactly one live connection.
//
// Mutations happen under mu and only mark the online set dirty; the Run loop
// reads the newest snapshot after every wake-up and pushes it to all
// connections. Broadcasts therefore coalesce, and the set a connection sees
// last always reflects the last mutation.
//
// Watchers are connections without a user. They receive every online-set
// broadcast but never count as online and cannot be looked up.
type Registry struct {
	mu        sync.RWMutex
	conns     map[uint64]Conn
	watchers  map[string]Conn
	observers []Observer

	dirty chan struct{}
	log   zerolog.Logger
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		conns:    make(map[uint64]Conn),
		watchers: make(map[string]Conn),
		dirty: make(chan struct{}, 1),
		log:   log.With().Str("component", "presence").Logger(),
	}
}

// Subscribe adds an observer. Call before Run.
func (r *Registry) Subscribe(observer Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, observer)
}

// Register inserts or replaces the entry for userID. A replaced connection is
// closed; its later Unregister is a no-op because it no longer owns the entry.
func (r *Registry) Register(userID uint64, conn Conn) {
	r.mu.Lock()
	prev, replaced := r.conns[userID]
	r.conns[userID] = conn
	observers := r.observers
	r.mu.Unlock()

	r.markDirty()

	if replaced && prev.ID() != conn.ID() {
		r.log.Info().Uint64("user_id", userID).Str("conn_id", prev.ID()).Msg("closing replaced connection")
		if err := prev.Close(); err != nil {
			r.log.Debug().Err(err).Str("conn_id", prev.ID()).Msg("close replaced connection")
		}
	}

	r.log.Info().Uint64("user_id", userID).Str("conn_id", conn.ID()).Msg("user connected")
	for _, o := range observers {
		o.Connected(userID)
	}
}

// Unregister removes userID only while connID still owns the entry, so a stale
// connection that disconnects late cannot evict a newer one. Reports whether
// anything was removed.
func (r *Registry) Unregister(userID uint64, connID string) bool {
	r.mu.Lock()
	current, ok := r.conns[userID]
	if !ok || current.ID() != connID {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, userID)
	observers := r.observers
	r.mu.Unlock()

	r.markDirty()

	r.log.Info().Uint64("user_id", userID).Str("conn_id", connID).Msg("user disconnected")
	for _, o := range observers {
		o.Disconnected(userID)
	}
	return true
}

// Watch adds an anonymous connection to the broadcast audience. The next
// broadcast carries the current online set to it.
func (r *Registry) Watch(conn Conn) {
	r.mu.Lock()
	r.watchers[conn.ID()] = conn
	r.mu.Unlock()

	r.markDirty()
	r.log.Debug().Str("conn_id", conn.ID()).Msg("watcher connected")
}

// Unwatch drops a watcher. Unknown ids are ignored.
func (r *Registry) Unwatch(connID string) {
	r.mu.Lock()
	delete(r.watchers, connID)
	r.mu.Unlock()
}

func (r *Registry) Lookup(userID uint64) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[userID]
	return conn, ok
}

func (r *Registry) IsOnline(userID uint64) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// SnapshotOnlineIDs returns the online user ids in ascending order.
func (r *Registry) SnapshotOnlineIDs() []uint64 {
	r.mu.RLock()
	ids := lo.Keys(r.conns)
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

func (r *Registry) snapshot() ([]uint64, []Conn) {
	r.mu.RLock()
	ids := lo.Keys(r.conns)
	conns := append(lo.Values(r.conns), lo.Values(r.watchers)...)
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids, conns
}

func (r *Registry) markDirty() {
	select {
	case r.dirty <- struct{}{}:
	default:
		// a broadcast is already pending and will read the newest state
	}
}

// Run pushes the online set to every registered connection after each batch of
// membership changes until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	r.log.Info().Msg("presence broadcaster started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("presence broadcaster stopped")
			return
		case <-r.dirty:
			r.broadcast()
		}
	}
}

func (r *Registry) broadcast() {
	ids, conns := r.snapshot()
	evt := Event{Type: EventOnlineUsers, Data: ids}

	for _, conn := range conns {
		if err := conn.Send(evt); err != nil {
			r.log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("online users push failed")
		}
	}
	r.log.Debug().Int("online", len(ids)).Int("pushed", len(conns)).Msg("online users broadcast")
}
