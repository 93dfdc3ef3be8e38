package wire

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"quickchat/internal/cache"
	"quickchat/internal/chat/handler"
	"quickchat/internal/chat/presence"
	"quickchat/internal/chat/stream"
	"quickchat/internal/common"
	"quickchat/internal/config"
	"quickchat/internal/dbmongo"
	"quickchat/internal/dbmysql"
)

// Application is everything cmd/chat-svc needs to serve.
type Application struct {
	Config   *config.Config
	Log      zerolog.Logger
	DB       *gorm.DB
	Registry *presence.Registry
	JWT      *common.JWTManager
	HTTP     *handler.ChatHandler
	Socket   *handler.SocketHandler
	Stream   *stream.Server
}

func ProvideDatabaseConnection(cfg *config.Config, log zerolog.Logger) (*gorm.DB, func(), error) {
	db, err := dbmysql.NewMySQL(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, cleanup, nil
}

func ProvideMongoConnection(cfg *config.Config, log zerolog.Logger) (*dbmongo.MongoClient, func(), error) {
	client, err := dbmongo.NewMongoConnection(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(ctx)
	}
	return client, cleanup, nil
}

// ProvideRedisClient returns a nil client when the last-seen cache is disabled.
func ProvideRedisClient(cfg *config.Config, log zerolog.Logger) (*redis.Client, func(), error) {
	if !cfg.Redis.Enabled {
		log.Info().Msg("redis disabled, last seen tracking off")
		return nil, func() {}, nil
	}
	client, err := cache.NewRedisClient(cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Msg("connected to Redis")
	return client, func() { _ = client.Close() }, nil
}

// ProvideRegistry wires the last-seen cache in as a presence observer.
func ProvideRegistry(log zerolog.Logger, lastSeen *cache.LastSeenCache) *presence.Registry {
	registry := presence.NewRegistry(log)
	if lastSeen.Enabled() {
		registry.Subscribe(lastSeen)
	}
	return registry
}
