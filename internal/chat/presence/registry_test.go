package presence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []Event
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(evt Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection %s closed", c.id)
	}
	c.events = append(c.events, evt)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) lastOnline() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Type == EventOnlineUsers {
			return c.events[i].Data.([]uint64)
		}
	}
	return nil
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) Connected(userID uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, fmt.Sprintf("connected:%d", userID))
}

func (o *recordingObserver) Disconnected(userID uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, fmt.Sprintf("disconnected:%d", userID))
}

func runRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go reg.Run(ctx)
	return reg
}

func TestRegistry_RegisterThenUnregister(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	conn := newFakeConn("c1")

	reg.Register(7, conn)
	assert.Equal(t, []uint64{7}, reg.SnapshotOnlineIDs())
	assert.True(t, reg.IsOnline(7))

	assert.True(t, reg.Unregister(7, "c1"))
	assert.Empty(t, reg.SnapshotOnlineIDs())

	_, ok := reg.Lookup(7)
	assert.False(t, ok)
}

func TestRegistry_UnregisterUnknownIsNoop(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	assert.False(t, reg.Unregister(99, "ghost"))
	assert.Empty(t, reg.SnapshotOnlineIDs())
}

func TestRegistry_SecondConnectionReplacesFirst(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	first, second := newFakeConn("c1"), newFakeConn("c2")

	reg.Register(7, first)
	reg.Register(7, second)

	assert.Equal(t, []uint64{7}, reg.SnapshotOnlineIDs())
	conn, ok := reg.Lookup(7)
	require.True(t, ok)
	assert.Equal(t, "c2", conn.ID())
	assert.True(t, first.isClosed())
	assert.False(t, second.isClosed())
}

func TestRegistry_StaleUnregisterKeepsNewerConnection(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())

	reg.Register(7, newFakeConn("c1"))
	reg.Register(7, newFakeConn("c2"))

	assert.False(t, reg.Unregister(7, "c1"))

	conn, ok := reg.Lookup(7)
	require.True(t, ok)
	assert.Equal(t, "c2", conn.ID())
	assert.Equal(t, []uint64{7}, reg.SnapshotOnlineIDs())
}

func TestRegistry_BroadcastsOnlineSet(t *testing.T) {
	reg := runRegistry(t)
	a, b := newFakeConn("a"), newFakeConn("b")

	reg.Register(1, a)
	reg.Register(2, b)

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]uint64{1, 2}, a.lastOnline()) &&
			assert.ObjectsAreEqual([]uint64{1, 2}, b.lastOnline())
	}, time.Second, 5*time.Millisecond)

	reg.Unregister(1, "a")

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]uint64{2}, b.lastOnline())
	}, time.Second, 5*time.Millisecond)
}

func TestRegistry_ConcurrentMutationsConverge(t *testing.T) {
	reg := runRegistry(t)

	const users = 50
	conns := make([]*fakeConn, users+1)
	for i := 1; i <= users; i++ {
		conns[i] = newFakeConn(fmt.Sprintf("c%d", i))
	}

	var wg sync.WaitGroup
	for i := 1; i <= users; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			uid := uint64(id)
			reg.Register(uid, conns[id])
			if id%2 == 0 {
				reg.Unregister(uid, conns[id].ID())
			}
		}(i)
	}
	wg.Wait()

	var expected []uint64
	for i := 1; i <= users; i += 2 {
		expected = append(expected, uint64(i))
	}
	assert.Equal(t, expected, reg.SnapshotOnlineIDs())

	for i := 1; i <= users; i += 2 {
		conn := conns[i]
		assert.Eventually(t, func() bool {
			return assert.ObjectsAreEqual(expected, conn.lastOnline())
		}, 2*time.Second, 5*time.Millisecond, "connection %s never saw the final set", conn.ID())
	}
}

func TestRegistry_NotifiesObservers(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	obs := &recordingObserver{}
	reg.Subscribe(obs)

	reg.Register(3, newFakeConn("c1"))
	reg.Unregister(3, "stale")
	reg.Unregister(3, "c1")

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []string{"connected:3", "disconnected:3"}, obs.events)
}

func TestRegistry_WatchersFollowOnlineSet(t *testing.T) {
	reg := runRegistry(t)
	watcher := newFakeConn("anon")

	reg.Watch(watcher)
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]uint64{}, watcher.lastOnline())
	}, time.Second, 5*time.Millisecond)

	reg.Register(1, newFakeConn("a"))
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]uint64{1}, watcher.lastOnline())
	}, time.Second, 5*time.Millisecond)

	// a watcher is an audience member, never an online user
	assert.Equal(t, []uint64{1}, reg.SnapshotOnlineIDs())
	_, ok := reg.Lookup(0)
	assert.False(t, ok)

	reg.Unwatch("anon")
	reg.Register(2, newFakeConn("b"))
	assert.Never(t, func() bool {
		return !assert.ObjectsAreEqual([]uint64{1}, watcher.lastOnline())
	}, 100*time.Millisecond, 10*time.Millisecond)
}
