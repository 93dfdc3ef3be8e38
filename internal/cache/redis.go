// Package cache keeps per-user last-seen timestamps in Redis so the sidebar can
// show when an offline peer was last connected.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"quickchat/internal/config"
)

const (
	// Format: presence:last_seen:<userID>, value is unix milliseconds.
	lastSeenKeyPrefix = "presence:last_seen:%d"

	observerTimeout = 2 * time.Second
)

// NewRedisClient parses redisURL and pings the server before returning.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL cannot be empty")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// LastSeenCache observes presence changes. A cache built with a nil client is
// disabled: writes are dropped and reads return an empty map.
type LastSeenCache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

func NewLastSeenCache(client *redis.Client, cfg *config.Config, log zerolog.Logger) *LastSeenCache {
	return &LastSeenCache{
		client: client,
		ttl:    cfg.Redis.LastSeenTTL,
		now:    time.Now,
		log:    log.With().Str("component", "last-seen").Logger(),
	}
}

func (c *LastSeenCache) Enabled() bool {
	return c != nil && c.client != nil
}

func (c *LastSeenCache) Connected(userID uint64) {
	c.touch(userID)
}

func (c *LastSeenCache) Disconnected(userID uint64) {
	c.touch(userID)
}

func (c *LastSeenCache) touch(userID uint64) {
	if !c.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
	defer cancel()

	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	if err := c.client.Set(ctx, lastSeenKey(userID), ts, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Uint64("user_id", userID).Msg("failed to record last seen")
	}
}

// LastSeen returns the recorded timestamp for each id that has one.
func (c *LastSeenCache) LastSeen(ctx context.Context, userIDs []uint64) (map[uint64]time.Time, error) {
	result := make(map[uint64]time.Time)
	if !c.Enabled() || len(userIDs) == 0 {
		return result, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = lastSeenKey(id)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read last seen: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			c.log.Debug().Str("key", keys[i]).Str("value", s).Msg("skipping malformed last seen value")
			continue
		}
		result[userIDs[i]] = time.UnixMilli(ms).UTC()
	}
	return result, nil
}

func lastSeenKey(userID uint64) string {
	return fmt.Sprintf(lastSeenKeyPrefix, userID)
}
