package artifacts

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	errx "github.com/luminalab/datagen/internal/core/error"
	logx "github.com/luminalab/datagen/pkg/logger"
)

// StoredFile is a persisted report attachment.
type StoredFile struct {
	Filename string
	Format   string
	Data     []byte
}

// Store persists refined-report attachments beyond the ephemeral sandbox
// workspace. File identifiers are opaque content-addressed tokens.
type Store interface {
	PutFile(ctx context.Context, userID, fileID string, data []byte, filename, format string) error
	GetFile(ctx context.Context, userID, fileID string) (*StoredFile, error)
}

// RedisStore keeps each attachment in a Redis hash with a TTL.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) fileKey(userID, fileID string) string {
	return fmt.Sprintf("artifact:%s:%s", userID, fileID)
}

func (s *RedisStore) PutFile(ctx context.Context, userID, fileID string, data []byte, filename, format string) error {
	key := s.fileKey(userID, fileID)
	fields := map[string]any{
		"filename": filename,
		"format":   format,
		"data":     data,
	}
	if err := s.rdb.HSet(ctx, key, fields).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to persist artifact")
		return errx.WrapRedis(err)
	}
	if s.ttl > 0 {
		if err := s.rdb.Expire(ctx, key, s.ttl).Err(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set artifact TTL")
			return errx.WrapRedis(err)
		}
	}
	logx.Debug().Str("key", key).Str("filename", filename).Int("bytes", len(data)).Msg("Artifact persisted")
	return nil
}

func (s *RedisStore) GetFile(ctx context.Context, userID, fileID string) (*StoredFile, error) {
	key := s.fileKey(userID, fileID)
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to load artifact")
		return nil, errx.WrapRedis(err)
	}
	if len(fields) == 0 {
		return nil, errx.WrapRedis(redis.Nil)
	}
	return &StoredFile{
		Filename: fields["filename"],
		Format:   fields["format"],
		Data:     []byte(fields["data"]),
	}, nil
}

var _ Store = (*RedisStore)(nil)
