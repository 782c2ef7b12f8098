package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/partsregistry/registry/internal/config"
	"github.com/partsregistry/registry/internal/metrics"
	"github.com/partsregistry/registry/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// FolderSizes caches the live-entry count of folders. Every content mutation
// must invalidate the folders it touched.
type FolderSizes interface {
	Get(ctx context.Context, folderID uuid.UUID) (int64, bool)
	Set(ctx context.Context, folderID uuid.UUID, size int64)
	Invalidate(ctx context.Context, folderIDs ...uuid.UUID)
}

// New returns a redis-backed cache when an address is configured, otherwise a no-op.
func New(cfg config.RedisConfig) FolderSizes {
	if cfg.Addr == "" {
		return Noop{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedis(client, cfg.FolderSizeTTL)
}

type Noop struct{}

func (Noop) Get(context.Context, uuid.UUID) (int64, bool) { return 0, false }
func (Noop) Set(context.Context, uuid.UUID, int64)        {}
func (Noop) Invalidate(context.Context, ...uuid.UUID)     {}

type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{client: client, ttl: ttl}
}

func key(folderID uuid.UUID) string {
	return "registry:folder-size:" + folderID.String()
}

func (r *Redis) Get(ctx context.Context, folderID uuid.UUID) (int64, bool) {
	raw, err := r.client.Get(ctx, key(folderID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("folder_size_cache_get_failed", map[string]interface{}{
				"folder_id": folderID.String(),
				"error":     err.Error(),
			})
		}
		metrics.FolderSizeCache.WithLabelValues("miss").Inc()
		return 0, false
	}
	size, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		metrics.FolderSizeCache.WithLabelValues("miss").Inc()
		return 0, false
	}
	metrics.FolderSizeCache.WithLabelValues("hit").Inc()
	return size, true
}

func (r *Redis) Set(ctx context.Context, folderID uuid.UUID, size int64) {
	if err := r.client.Set(ctx, key(folderID), size, r.ttl).Err(); err != nil {
		logger.Warn("folder_size_cache_set_failed", map[string]interface{}{
			"folder_id": folderID.String(),
			"error":     err.Error(),
		})
	}
}

func (r *Redis) Invalidate(ctx context.Context, folderIDs ...uuid.UUID) {
	if len(folderIDs) == 0 {
		return
	}
	keys := make([]string, len(folderIDs))
	for i, id := range folderIDs {
		keys[i] = key(id)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		logger.Warn("folder_size_cache_invalidate_failed", map[string]interface{}{
			"count": len(keys),
			"error": err.Error(),
		})
	}
}
