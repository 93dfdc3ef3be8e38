package presence

// EventType names a server push
type EventType string

const (
	EventNewMessage  EventType = "newMessage"
	EventOnlineUsers EventType = "getOnlineUsers"
)

// Event is the envelope every live connection receives.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// Conn is a live connection handle. Send must not block on network I/O; the
// transport queues the event and writes it from its own goroutine.
type Conn interface {
	ID() string
	Send(evt Event) error
	Close() error
}

// Observer is told about membership changes after the registry lock is released.
type Observer interface {
	Connected(userID uint64)
	Disconnected(userID uint64)
}
