//go:generate go run go.uber.org/mock/mockgen -source=collaborators.go -destination=mocks/mock_collaborators.go -package=mocks
package service

import (
	"context"
	"time"

	"quickchat/internal/dbmysql"
)

// ImageUploader stores raw image data and returns its public URL. Delete
// takes a URL that Upload returned.
type ImageUploader interface {
	Upload(ctx context.Context, uploaderID uint64, dataURI string) (string, error)
	Delete(ctx context.Context, url string) error
}

// Deliverer pushes a stored message to its receiver when they are connected.
type Deliverer interface {
	Deliver(ctx context.Context, msg *dbmysql.Message) bool
}

type OnlineChecker interface {
	IsOnline(userID uint64) bool
}

type LastSeenReader interface {
	LastSeen(ctx context.Context, userIDs []uint64) (map[uint64]time.Time, error)
}
