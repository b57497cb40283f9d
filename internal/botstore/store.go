// Package botstore persists scripted bots and their script position.
//
// A [Bot] owns an ordered script and a [Progress] index into it. Progress is
// only ever advanced through [Store.UpdateProgress], a compare-and-set keyed on
// the index the caller last read. Concurrent advances therefore cannot skip or
// repeat a line: the loser gets a Conflict error and the stored index reflects
// exactly one of the writes.
//
// Three implementations are provided: [MemStore] for tests and single-process
// deployments, [PostgresStore] backed by a bots table, and [RedisStore] using
// optimistic WATCH/MULTI/EXEC transactions.
package botstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/scriptvox/pkg/types"
)

// DefaultVoice is applied to bots created without a voice selector.
const DefaultVoice = "en-US-Wavenet-F"

// Progress is a bot's position in its script. CurrentLine is the index of
// the next line to speak; len(Script) means the script is exhausted.
type Progress struct {
	CurrentLine int `json:"currentLine"`
}

// Bot is a scripted voice bot.
type Bot struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Script     []string  `json:"script"`
	Voice      string    `json:"voice"`
	IsActive   bool      `json:"isActive"`
	IsArchived bool      `json:"isArchived"`
	Progress   Progress  `json:"progress"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	// ArchivedAt and RestoredAt record the most recent archive transitions.
	ArchivedAt *time.Time `json:"archivedAt,omitempty"`
	RestoredAt *time.Time `json:"restoredAt,omitempty"`
}

// Exhausted reports whether every script line has been spoken.
func (b *Bot) Exhausted() bool { return b.Progress.CurrentLine >= len(b.Script) }

// Line returns the script line at index i and whether it exists.
func (b *Bot) Line(i int) (string, bool) {
	if i < 0 || i >= len(b.Script) {
		return "", false
	}
	return b.Script[i], true
}

// Clone returns a deep copy of b.
func (b *Bot) Clone() *Bot {
	cp := *b
	cp.Script = append([]string(nil), b.Script...)
	if b.ArchivedAt != nil {
		t := *b.ArchivedAt
		cp.ArchivedAt = &t
	}
	if b.RestoredAt != nil {
		t := *b.RestoredAt
		cp.RestoredAt = &t
	}
	return &cp
}

// Validate checks that b can be persisted. It returns a joined error
// describing every violation found, or nil if the bot is valid.
func (b *Bot) Validate() error {
	var errs []error
	if strings.TrimSpace(b.ID) == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if strings.ContainsAny(b.ID, "/ \t\n") {
		errs = append(errs, fmt.Errorf("id %q must not contain slashes or whitespace", b.ID))
	}
	if len(b.Script) == 0 {
		errs = append(errs, errors.New("script must contain at least one line"))
	}
	for i, line := range b.Script {
		if strings.TrimSpace(line) == "" {
			errs = append(errs, fmt.Errorf("script line %d must not be empty", i))
		}
	}
	if p := b.Progress.CurrentLine; p < 0 || p > len(b.Script) {
		errs = append(errs, fmt.Errorf("progress %d out of range [0, %d]", p, len(b.Script)))
	}
	return errors.Join(errs...)
}

// Store is the persistence contract for bots. All implementations must be
// safe for concurrent use.
type Store interface {
	// Get returns the bot with id or a NotFound error.
	Get(ctx context.Context, id string) (*Bot, error)

	// Create inserts bot. It returns Invalid if the bot fails validation and
	// Conflict if a bot with the same id already exists. CreatedAt and
	// UpdatedAt are set by the store.
	Create(ctx context.Context, bot *Bot) error

	// UpdateProgress sets the bot's index to next if and only if it is
	// currently expected. It returns NotFound for unknown bots, Forbidden
	// if the bot is archived, Conflict if the index is no longer expected,
	// and Invalid if next is outside [0, len(script)].
	UpdateProgress(ctx context.Context, id string, expected, next int) error

	// SetArchived flips the archived flag and stamps ArchivedAt or
	// RestoredAt. It returns the updated bot.
	SetArchived(ctx context.Context, id string, archived bool) (*Bot, error)

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}

func notFound(op, id string) error {
	return types.NewError(types.KindNotFound, op, fmt.Sprintf("bot %q not found", id), nil)
}

func conflict(op, id string, expected, actual int) error {
	return types.NewError(types.KindConflict, op,
		fmt.Sprintf("bot %q progress is %d, expected %d", id, actual, expected), nil)
}

func archived(op, id string) error {
	return types.NewError(types.KindForbidden, op, fmt.Sprintf("bot %q is archived", id), nil)
}

func outOfRange(op, id string, next, length int) error {
	return types.NewError(types.KindInvalid, op,
		fmt.Sprintf("bot %q progress %d out of range [0, %d]", id, next, length), nil)
}

func invalid(op string, err error) error {
	return types.NewError(types.KindInvalid, op, err.Error(), err)
}

// checkProgress applies the UpdateProgress rules to the bot as currently
// stored.
func checkProgress(op string, b *Bot, expected, next int) error {
	if b.IsArchived {
		return archived(op, b.ID)
	}
	if next < 0 || next > len(b.Script) {
		return outOfRange(op, b.ID, next, len(b.Script))
	}
	if b.Progress.CurrentLine != expected {
		return conflict(op, b.ID, expected, b.Progress.CurrentLine)
	}
	return nil
}

// stampArchived applies an archive transition at now.
func stampArchived(b *Bot, isArchived bool, now time.Time) {
	b.IsArchived = isArchived
	b.UpdatedAt = now
	if isArchived {
		b.ArchivedAt = &now
	} else {
		b.RestoredAt = &now
	}
}
