// Package audience resolves send targets into concrete recipient lists and
// maintains the cached audience index that makes the "all users" case cheap.
package audience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/trybemarket/bulkmail/internal/models"
)

// ErrIndexMissing is returned when the "all users" selector is used before
// the audience index has ever been built. The caller must trigger a sync.
var ErrIndexMissing = errors.New("audience index not built yet")

// ErrNoRecipients is returned when resolution produces an empty list.
var ErrNoRecipients = errors.New("no recipients resolved")

// IndexStore persists the single cached audience index document.
type IndexStore interface {
	Load(ctx context.Context) (*models.AudienceIndex, error)
	Save(ctx context.Context, idx *models.AudienceIndex) error
}

const indexKey = "bulkmail:audience_index"

// RedisIndexStore keeps the audience index as one JSON document under a
// single Redis key, overwritten wholesale on every sync.
type RedisIndexStore struct {
	client *redis.Client
}

func NewRedisIndexStore(client *redis.Client) *RedisIndexStore {
	return &RedisIndexStore{client: client}
}

func (s *RedisIndexStore) Load(ctx context.Context) (*models.AudienceIndex, error) {
	raw, err := s.client.Get(ctx, indexKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrIndexMissing
	}
	if err != nil {
		return nil, fmt.Errorf("load audience index: %w", err)
	}

	var idx models.AudienceIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("decode audience index: %w", err)
	}

	return &idx, nil
}

func (s *RedisIndexStore) Save(ctx context.Context, idx *models.AudienceIndex) error {
	raw, err := json.Marshal(idx)
	if err != nil {
		return err
	}

	// The index is a point-in-time snapshot; last writer wins and no TTL is
	// set so a stale index beats no index.
	if err := s.client.Set(ctx, indexKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("save audience index: %w", err)
	}

	return nil
}
