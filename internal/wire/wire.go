//go:build wireinject
// +build wireinject

package wire

import (
	"github.com/google/wire"
	"github.com/rs/zerolog"

	"quickchat/internal/cache"
	"quickchat/internal/chat/delivery"
	"quickchat/internal/chat/handler"
	"quickchat/internal/chat/presence"
	"quickchat/internal/chat/repository"
	"quickchat/internal/chat/service"
	"quickchat/internal/chat/stream"
	"quickchat/internal/common"
	"quickchat/internal/config"
	"quickchat/internal/dbmongo"
	"quickchat/internal/media"
	"quickchat/internal/user"
)

var presenceSet = wire.NewSet(
	ProvideRedisClient,
	cache.NewLastSeenCache,
	ProvideRegistry,
	wire.Bind(new(delivery.Directory), new(*presence.Registry)),
	wire.Bind(new(service.OnlineChecker), new(*presence.Registry)),
	wire.Bind(new(handler.Presence), new(*presence.Registry)),
	wire.Bind(new(stream.Presence), new(*presence.Registry)),
	wire.Bind(new(service.LastSeenReader), new(*cache.LastSeenCache)),
)

var mediaSet = wire.NewSet(
	ProvideMongoConnection,
	dbmongo.NewMediaStorage,
	wire.Bind(new(media.FileStore), new(*dbmongo.MediaStorage)),
)

func InitializeApplication(cfg *config.Config, log zerolog.Logger) (*Application, func(), error) {
	wire.Build(
		ProvideDatabaseConnection,
		repository.NewChatRepository,
		user.NewUserRepository,
		presenceSet,
		mediaSet,
		media.NewImageUploader,
		wire.Bind(new(service.ImageUploader), new(*media.ImageUploader)),
		delivery.NewRouter,
		wire.Bind(new(service.Deliverer), new(*delivery.Router)),
		service.NewChatService,
		common.NewJWTManager,
		wire.Bind(new(handler.Identifier), new(*common.JWTManager)),
		handler.NewChatHandler,
		handler.NewSocketHandler,
		stream.NewServer,
		wire.Struct(new(Application), "*"),
	)
	return nil, nil, nil
}

func InitializeMediaServer(cfg *config.Config, log zerolog.Logger) (*media.HTTPServer, func(), error) {
	wire.Build(
		mediaSet,
		media.NewHTTPServer,
	)
	return nil, nil, nil
}
