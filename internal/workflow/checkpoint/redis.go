package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/redis/go-redis/v9"

	errx "github.com/luminalab/datagen/internal/core/error"
	logx "github.com/luminalab/datagen/pkg/logger"
)

// RedisStore persists graph checkpoints in Redis so a run suspended at a
// human-in-the-loop gate survives process restarts and can be resumed later.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) checkpointKey(id string) string {
	return fmt.Sprintf("workflow:checkpoint:%s", id)
}

// Get returns the stored checkpoint and whether it exists.
func (s *RedisStore) Get(ctx context.Context, checkPointID string) ([]byte, bool, error) {
	key := s.checkpointKey(checkPointID)
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load checkpoint")
		return nil, false, errx.WrapRedis(err)
	}
	return b, true, nil
}

// Set stores the checkpoint, refreshing the TTL on every write.
func (s *RedisStore) Set(ctx context.Context, checkPointID string, checkPoint []byte) error {
	key := s.checkpointKey(checkPointID)
	if err := s.rdb.Set(ctx, key, checkPoint, s.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to store checkpoint")
		return errx.WrapRedis(err)
	}
	logx.Debug().Str("key", key).Int("bytes", len(checkPoint)).Msg("Checkpoint stored")
	return nil
}

var _ compose.CheckPointStore = (*RedisStore)(nil)
