package botstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/scriptvox/pkg/types"
)

// redisKeyPrefix namespaces bot keys.
const redisKeyPrefix = "scriptvox:bot:"

// Compile-time interface check.
var _ Store = (*RedisStore)(nil)

// RedisStore is a [Store] that keeps each bot as one JSON value. Writes use
// WATCH/MULTI/EXEC so a concurrent modification aborts the transaction.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisStore creates a RedisStore over client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Close closes the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) key(id string) string { return redisKeyPrefix + id }

// Get implements [Store].
func (s *RedisStore) Get(ctx context.Context, id string) (*Bot, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound("botstore.get", id)
	}
	if err != nil {
		return nil, fmt.Errorf("botstore: get %q: %w", id, err)
	}
	var b Bot
	if err := json.Unmarshal(val, &b); err != nil {
		return nil, fmt.Errorf("botstore: decode %q: %w", id, err)
	}
	return &b, nil
}

// Create implements [Store].
func (s *RedisStore) Create(ctx context.Context, bot *Bot) error {
	const op = "botstore.create"
	if err := bot.Validate(); err != nil {
		return invalid(op, err)
	}
	now := s.now()
	bot.CreatedAt, bot.UpdatedAt = now, now
	val, err := json.Marshal(bot)
	if err != nil {
		return fmt.Errorf("botstore: encode %q: %w", bot.ID, err)
	}
	ok, err := s.client.SetNX(ctx, s.key(bot.ID), val, 0).Result()
	if err != nil {
		return fmt.Errorf("botstore: create %q: %w", bot.ID, err)
	}
	if !ok {
		return types.NewError(types.KindConflict, op, fmt.Sprintf("bot %q already exists", bot.ID), nil)
	}
	return nil
}

// modify runs fn against the stored bot inside an optimistic transaction and
// writes the result back. A concurrent write to the key surfaces as a
// Conflict error.
func (s *RedisStore) modify(ctx context.Context, op, id string, fn func(*Bot) error) (*Bot, error) {
	key := s.key(id)
	var out *Bot
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return notFound(op, id)
		}
		if err != nil {
			return err
		}
		var b Bot
		if err := json.Unmarshal(val, &b); err != nil {
			return fmt.Errorf("botstore: decode %q: %w", id, err)
		}
		if err := fn(&b); err != nil {
			return err
		}
		newVal, err := json.Marshal(&b)
		if err != nil {
			return fmt.Errorf("botstore: encode %q: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, 0)
			return nil
		})
		if err == nil {
			out = &b
		}
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return nil, types.NewError(types.KindConflict, op, fmt.Sprintf("bot %q was modified concurrently", id), err)
	}
	if err != nil {
		var te *types.Error
		if errors.As(err, &te) {
			return nil, err
		}
		return nil, fmt.Errorf("botstore: update %q: %w", id, err)
	}
	return out, nil
}

// UpdateProgress implements [Store].
func (s *RedisStore) UpdateProgress(ctx context.Context, id string, expected, next int) error {
	const op = "botstore.update_progress"
	_, err := s.modify(ctx, op, id, func(b *Bot) error {
		if err := checkProgress(op, b, expected, next); err != nil {
			return err
		}
		b.Progress.CurrentLine = next
		b.UpdatedAt = s.now()
		return nil
	})
	return err
}

// SetArchived implements [Store].
func (s *RedisStore) SetArchived(ctx context.Context, id string, isArchived bool) (*Bot, error) {
	return s.modify(ctx, "botstore.set_archived", id, func(b *Bot) error {
		stampArchived(b, isArchived, s.now())
		return nil
	})
}

// Ping implements [Store].
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("botstore: ping: %w", err)
	}
	return nil
}
