package botstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/scriptvox/pkg/types"
)

// ---------------------------------------------------------------------------
// Test helpers: mock DB types
// ---------------------------------------------------------------------------

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockDB implements the DB interface for testing.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	execSQL      []string
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execSQL = append(m.execSQL, sql)
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.NewCommandTag("UPDATE 0"), nil
}

// botRow returns a row whose Scan fills botColumns from b.
func botRow(b *Bot, script string) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		if len(dest) != 11 {
			return errors.New("scan: unexpected column count")
		}
		*dest[0].(*string) = b.ID
		*dest[1].(*string) = b.Name
		*dest[2].(*[]byte) = []byte(script)
		*dest[3].(*string) = b.Voice
		*dest[4].(*bool) = b.IsActive
		*dest[5].(*bool) = b.IsArchived
		*dest[6].(*int) = b.Progress.CurrentLine
		*dest[7].(**time.Time) = b.ArchivedAt
		*dest[8].(**time.Time) = b.RestoredAt
		*dest[9].(*time.Time) = b.CreatedAt
		*dest[10].(*time.Time) = b.UpdatedAt
		return nil
	}}
}

const threeLines = `["one","two","three"]`

func storedBot(line int, isArchived bool) *Bot {
	return &Bot{ID: "b1", Name: "Survey", Voice: DefaultVoice, IsActive: true, IsArchived: isArchived,
		Progress: Progress{CurrentLine: line}, CreatedAt: time.Unix(1, 0), UpdatedAt: time.Unix(2, 0)}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestPostgresStore_Migrate(t *testing.T) {
	db := &mockDB{execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, nil
	}}
	if err := NewPostgresStore(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(db.execSQL) != 1 || !strings.Contains(db.execSQL[0], "CREATE TABLE IF NOT EXISTS bots") {
		t.Errorf("executed %v", db.execSQL)
	}

	failing := &mockDB{execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, errors.New("permission denied")
	}}
	if err := NewPostgresStore(failing).Migrate(context.Background()); err == nil {
		t.Fatal("expected migrate error")
	}
}

func TestPostgresStore_Get(t *testing.T) {
	db := &mockDB{queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
		if args[0] != "b1" {
			return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
		}
		return botRow(storedBot(1, false), threeLines)
	}}
	s := NewPostgresStore(db)

	b, err := s.Get(context.Background(), "b1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(b.Script) != 3 || b.Script[2] != "three" || b.Progress.CurrentLine != 1 {
		t.Errorf("Get = %+v", b)
	}

	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestPostgresStore_Get_BadScript(t *testing.T) {
	db := &mockDB{queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
		return botRow(storedBot(0, false), `{not json`)
	}}
	if _, err := NewPostgresStore(db).Get(context.Background(), "b1"); err == nil {
		t.Fatal("expected unmarshal error")
	}
}

func TestPostgresStore_Create(t *testing.T) {
	var gotArgs []any
	db := &mockDB{queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
		gotArgs = args
		return &mockRow{scanFunc: func(dest ...any) error {
			*dest[0].(*time.Time) = time.Unix(10, 0)
			*dest[1].(*time.Time) = time.Unix(10, 0)
			return nil
		}}
	}}
	b := testBot("new")
	if err := NewPostgresStore(db).Create(context.Background(), b); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.CreatedAt != time.Unix(10, 0) {
		t.Errorf("CreatedAt = %v", b.CreatedAt)
	}
	if gotArgs[0] != "new" || !strings.HasPrefix(string(gotArgs[2].([]byte)), `["Hello`) {
		t.Errorf("args = %v", gotArgs)
	}
}

func TestPostgresStore_Create_Errors(t *testing.T) {
	t.Run("duplicate", func(t *testing.T) {
		db := &mockDB{queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error { return &pgconn.PgError{Code: "23505"} }}
		}}
		err := NewPostgresStore(db).Create(context.Background(), testBot("dup"))
		if !errors.Is(err, types.ErrConflict) {
			t.Fatalf("err = %v, want conflict", err)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		b := testBot("")
		err := NewPostgresStore(&mockDB{}).Create(context.Background(), b)
		if !errors.Is(err, types.ErrInvalid) {
			t.Fatalf("err = %v, want invalid", err)
		}
	})
}

func TestPostgresStore_UpdateProgress(t *testing.T) {
	tests := []struct {
		name     string
		affected string
		stored   *Bot
		expected int
		next     int
		want     error
	}{
		{name: "applied", affected: "UPDATE 1", expected: 0, next: 1},
		{name: "missing bot", affected: "UPDATE 0", stored: nil, expected: 0, next: 1, want: types.ErrNotFound},
		{name: "stale index", affected: "UPDATE 0", stored: storedBot(2, false), expected: 0, next: 1, want: types.ErrConflict},
		{name: "archived", affected: "UPDATE 0", stored: storedBot(0, true), expected: 0, next: 1, want: types.ErrForbidden},
		{name: "out of range", affected: "UPDATE 0", stored: storedBot(2, false), expected: 2, next: 5, want: types.ErrInvalid},
		{name: "moved and back", affected: "UPDATE 0", stored: storedBot(0, false), expected: 0, next: 1, want: types.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var execArgs []any
			db := &mockDB{
				execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
					execArgs = args
					return pgconn.NewCommandTag(tt.affected), nil
				},
				queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
					if tt.stored == nil {
						return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
					}
					return botRow(tt.stored, threeLines)
				},
			}
			err := NewPostgresStore(db).UpdateProgress(context.Background(), "b1", tt.expected, tt.next)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("UpdateProgress: %v", err)
				}
			} else if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if execArgs[0] != "b1" || execArgs[1] != tt.expected || execArgs[2] != tt.next {
				t.Errorf("exec args = %v", execArgs)
			}
		})
	}
}

func TestPostgresStore_UpdateProgress_ExecError(t *testing.T) {
	db := &mockDB{execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, errors.New("connection reset")
	}}
	err := NewPostgresStore(db).UpdateProgress(context.Background(), "b1", 0, 1)
	if err == nil || types.KindOf(err) != types.KindInternal {
		t.Fatalf("err = %v (kind %q), want internal", err, types.KindOf(err))
	}
}

func TestPostgresStore_SetArchived(t *testing.T) {
	now := time.Unix(50, 0)
	db := &mockDB{queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
		if args[0] != "b1" {
			return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
		}
		b := storedBot(1, args[1].(bool))
		b.ArchivedAt = &now
		return botRow(b, threeLines)
	}}
	s := NewPostgresStore(db)

	b, err := s.SetArchived(context.Background(), "b1", true)
	if err != nil {
		t.Fatalf("SetArchived: %v", err)
	}
	if !b.IsArchived || b.ArchivedAt == nil || !b.ArchivedAt.Equal(now) {
		t.Errorf("SetArchived = %+v", b)
	}

	if _, err := s.SetArchived(context.Background(), "ghost", true); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestPostgresStore_Ping(t *testing.T) {
	db := &mockDB{execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		if sql != "SELECT 1" {
			t.Errorf("ping sql = %q", sql)
		}
		return pgconn.NewCommandTag("SELECT 1"), nil
	}}
	if err := NewPostgresStore(db).Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
