package dbmysql

import (
	"time"

	"gorm.io/gorm"
)

// User rows are owned by the account service; chat only reads them.
type User struct {
	UserID       uint64         `gorm:"primaryKey;column:user_id;autoIncrement" json:"id"`
	Email        string         `gorm:"column:email;uniqueIndex;size:255;not null" json:"email"`
	FullName     string         `gorm:"column:full_name;size:100;not null" json:"fullName"`
	PasswordHash string         `gorm:"column:password_hash;size:255;not null" json:"-"`
	ProfilePic   string         `gorm:"column:profile_pic;size:500" json:"profilePic"`
	Bio          string         `gorm:"column:bio;type:text" json:"bio"`
	Status       string         `gorm:"column:status;type:enum('active','banned','deleted');default:'active'" json:"status"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}
