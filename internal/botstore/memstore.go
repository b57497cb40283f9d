package botstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/scriptvox/pkg/types"
)

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// MemStore is an in-memory [Store]. Every read returns a copy, so callers may
// mutate the returned bot freely.
type MemStore struct {
	mu   sync.RWMutex
	bots map[string]*Bot
	now  func() time.Time
}

// NewMemStore returns an empty MemStore seeded with bots, if any.
func NewMemStore(seed ...*Bot) (*MemStore, error) {
	s := &MemStore{bots: make(map[string]*Bot), now: time.Now}
	for _, b := range seed {
		if err := s.Create(context.Background(), b); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Get implements [Store].
func (s *MemStore) Get(ctx context.Context, id string) (*Bot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bots[id]
	if !ok {
		return nil, notFound("botstore.get", id)
	}
	return b.Clone(), nil
}

// Create implements [Store].
func (s *MemStore) Create(ctx context.Context, bot *Bot) error {
	const op = "botstore.create"
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := bot.Validate(); err != nil {
		return invalid(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bots[bot.ID]; exists {
		return types.NewError(types.KindConflict, op, fmt.Sprintf("bot %q already exists", bot.ID), nil)
	}
	now := s.now()
	bot.CreatedAt, bot.UpdatedAt = now, now
	s.bots[bot.ID] = bot.Clone()
	return nil
}

// UpdateProgress implements [Store].
func (s *MemStore) UpdateProgress(ctx context.Context, id string, expected, next int) error {
	const op = "botstore.update_progress"
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bots[id]
	if !ok {
		return notFound(op, id)
	}
	if err := checkProgress(op, b, expected, next); err != nil {
		return err
	}
	b.Progress.CurrentLine = next
	b.UpdatedAt = s.now()
	return nil
}

// SetArchived implements [Store].
func (s *MemStore) SetArchived(ctx context.Context, id string, isArchived bool) (*Bot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bots[id]
	if !ok {
		return nil, notFound("botstore.set_archived", id)
	}
	stampArchived(b, isArchived, s.now())
	return b.Clone(), nil
}

// Ping implements [Store]. It always succeeds.
func (s *MemStore) Ping(ctx context.Context) error { return ctx.Err() }
