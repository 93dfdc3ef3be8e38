package dbmysql

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"quickchat/internal/config"
)

// NewMySQL returns a GORM DB instance connected to MySQL
func NewMySQL(cnf *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	dsn := cnf.DSN()

	dbLog := log.With().Str("component", "gorm").Logger()
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.New(&dbLog, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot connect to MySQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql.DB error: %w", err)
	}
	sqlDB.SetMaxOpenConns(cnf.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cnf.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	log.Info().
		Str("host", cnf.Database.Host).
		Str("database", cnf.Database.DatabaseName).
		Msg("connected to MySQL")

	return db, nil
}

// Migrate creates or updates the tables this service reads and writes.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}, &Message{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
