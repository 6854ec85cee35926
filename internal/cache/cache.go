package cache

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/trello-talk/tacows/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("cache",
	fx.Provide(NewClient),
	fx.Provide(NewDiscordCache),
)

// NewClient builds the shared redis client and closes it on shutdown.
func NewClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
			OnStop: func(ctx context.Context) error {
				_ = ctx
				return client.Close()
			},
		})
	}
	return client
}

// DiscordCache invalidates the cached Discord entity lists shared with the
// interaction frontend. Keys match the frontend's cache layout.
type DiscordCache struct {
	client *redis.Client
	log    *zap.Logger
}

func NewDiscordCache(client *redis.Client, log *zap.Logger) *DiscordCache {
	return &DiscordCache{
		client: client,
		log:    log.Named("cache"),
	}
}

func (c *DiscordCache) InvalidateWebhooks(ctx context.Context, guildID string) {
	c.del(ctx, fmt.Sprintf("discord.webhooks:%s", guildID))
}

func (c *DiscordCache) InvalidateChannels(ctx context.Context, guildID string) {
	c.del(ctx, fmt.Sprintf("discord.channels:%s", guildID))
}

func (c *DiscordCache) del(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.Warn("cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}
