package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	errx "github.com/luminalab/datagen/internal/core/error"
	logx "github.com/luminalab/datagen/pkg/logger"
)

// TranscriptRepository persists the frontend-visible message stream of a run
// so clients can re-render a conversation without replaying the graph.
type TranscriptRepository interface {
	// AppendMessages adds a batch of frontend messages to the run transcript.
	AppendMessages(ctx context.Context, runID string, messages []*schema.Message) error

	// LoadTranscript retrieves all persisted frontend messages for a run.
	LoadTranscript(ctx context.Context, runID string) ([]*schema.Message, error)

	// ClearTranscript removes the persisted transcript for a run.
	ClearTranscript(ctx context.Context, runID string) error

	// MessageCount returns the number of persisted messages for a run.
	MessageCount(ctx context.Context, runID string) (int, error)
}

// RedisTranscriptRepository stores each message as a JSON entry in a Redis
// list, extending the TTL on every touch.
type RedisTranscriptRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisTranscriptRepository(rdb redis.Cmdable, ttl time.Duration) *RedisTranscriptRepository {
	return &RedisTranscriptRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisTranscriptRepository) transcriptKey(runID string) string {
	return fmt.Sprintf("run:%s:frontend", runID)
}

func (r *RedisTranscriptRepository) AppendMessages(ctx context.Context, runID string, messages []*schema.Message) error {
	if len(messages) == 0 {
		return nil
	}
	key := r.transcriptKey(runID)
	rows := make([]any, 0, len(messages))
	for _, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			logx.Error().Err(err).Str("run_id", runID).Msg("failed to marshal transcript message")
			return fmt.Errorf("marshal transcript message: %w", err)
		}
		rows = append(rows, b)
	}
	if err := r.rdb.RPush(ctx, key, rows...).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push transcript messages")
		return errx.WrapRedis(err)
	}
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set transcript TTL")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on transcript key")
		}
	}
	return nil
}

func (r *RedisTranscriptRepository) LoadTranscript(ctx context.Context, runID string) ([]*schema.Message, error) {
	key := r.transcriptKey(runID)
	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*schema.Message{}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load transcript")
		return nil, errx.WrapRedis(err)
	}
	msgs := make([]*schema.Message, 0, len(rows))
	for i, row := range rows {
		var m schema.Message
		if err := json.Unmarshal([]byte(row), &m); err != nil {
			logx.Error().Err(err).Str("run_id", runID).Int("index", i).Msg("failed to unmarshal transcript message")
			return nil, fmt.Errorf("unmarshal transcript message at index %d: %w", i, err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, nil
}

func (r *RedisTranscriptRepository) ClearTranscript(ctx context.Context, runID string) error {
	key := r.transcriptKey(runID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete transcript")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisTranscriptRepository) MessageCount(ctx context.Context, runID string) (int, error) {
	key := r.transcriptKey(runID)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to count transcript messages")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

var _ TranscriptRepository = (*RedisTranscriptRepository)(nil)
