// Package dbmongo keeps uploaded chat images in a GridFS bucket.
package dbmongo

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"quickchat/internal/config"
)

const defaultBucket = "media_files"

type MongoClient struct {
	Client   *mongo.Client
	Database *mongo.Database
	GridFS   *gridfs.Bucket
}

func NewMongoConnection(c *config.Config, log zerolog.Logger) (*MongoClient, error) {
	clientOptions := options.Client().ApplyURI(c.GetMongoURI())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	database := client.Database(c.MongoDB.Database)
	bucket, err := gridfs.NewBucket(database, options.GridFSBucket().SetName(bucketName(c)))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create GridFSBucket: %w", err)
	}

	log.Info().
		Str("host", c.MongoDB.Host).
		Str("database", c.MongoDB.Database).
		Str("bucket", bucketName(c)).
		Msg("connected to MongoDB")

	return &MongoClient{
		Client:   client,
		Database: database,
		GridFS:   bucket,
	}, nil
}

func bucketName(c *config.Config) string {
	if c.MongoDB.Bucket == "" {
		return defaultBucket
	}
	return c.MongoDB.Bucket
}

func (mc *MongoClient) Close(ctx context.Context) error {
	return mc.Client.Disconnect(ctx)
}
