//go:generate go run go.uber.org/mock/mockgen -source=user_repository.go -destination=../chat/service/mocks/mock_user_directory.go -package=mocks
package user

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"quickchat/internal/dbmysql"
)

const statusActive = "active"

// sidebarColumns never includes password_hash.
var sidebarColumns = []string{"user_id", "email", "full_name", "profile_pic", "bio", "status", "created_at", "updated_at"}

// Directory is a read-only view over the accounts table.
type Directory interface {
	ListOthers(ctx context.Context, viewerID uint64) ([]*dbmysql.User, error)
	Exists(ctx context.Context, userID uint64) (bool, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) Directory {
	return &userRepository{db: db}
}

// ListOthers returns every active user except the viewer, ordered by name.
func (r *userRepository) ListOthers(ctx context.Context, viewerID uint64) ([]*dbmysql.User, error) {
	var users []*dbmysql.User
	err := r.db.WithContext(ctx).
		Select(sidebarColumns).
		Where("user_id <> ? AND status = ?", viewerID, statusActive).
		Order("full_name ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (r *userRepository) Exists(ctx context.Context, userID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&dbmysql.User{}).
		Where("user_id = ? AND status = ?", userID, statusActive).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check user %d: %w", userID, err)
	}
	return count > 0, nil
}
