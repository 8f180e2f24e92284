package session

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open() error: %v", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := NewSQLStore(db, WithSQLDialect(DialectSQLite), WithSQLCleanupInterval(time.Hour))
	t.Cleanup(func() { store.Close() })
	if err := store.CreateTable(context.Background()); err != nil {
		t.Fatalf("CreateTable() error: %v", err)
	}
	return store
}

// storeContract runs the behaviour every Store shares.
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	t.Run("SaveLoad", func(t *testing.T) {
		data := []byte(`{"id":"a"}`)
		if err := store.Save(ctx, "a", data, future); err != nil {
			t.Fatalf("Save() error: %v", err)
		}
		data[0] = 'X'
		got, err := store.Load(ctx, "a")
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if !bytes.Equal(got, []byte(`{"id":"a"}`)) {
			t.Errorf("Load() = %q", got)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		if err := store.Save(ctx, "b", []byte("one"), future); err != nil {
			t.Fatal(err)
		}
		if err := store.Save(ctx, "b", []byte("two"), future); err != nil {
			t.Fatal(err)
		}
		got, _ := store.Load(ctx, "b")
		if string(got) != "two" {
			t.Errorf("Load() = %q, want two", got)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		got, err := store.Load(ctx, "missing")
		if err != nil || got != nil {
			t.Errorf("Load(missing) = %q, %v; want nil, nil", got, err)
		}
	})

	t.Run("Expired", func(t *testing.T) {
		if err := store.Save(ctx, "old", []byte("x"), time.Now().Add(-time.Minute)); err != nil {
			t.Fatal(err)
		}
		got, err := store.Load(ctx, "old")
		if err != nil || got != nil {
			t.Errorf("Load(expired) = %q, %v; want nil, nil", got, err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := store.Save(ctx, "d", []byte("x"), future); err != nil {
			t.Fatal(err)
		}
		if err := store.Delete(ctx, "d"); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}
		if err := store.Delete(ctx, "d"); err != nil {
			t.Fatalf("Delete() of missing entry error: %v", err)
		}
		if got, _ := store.Load(ctx, "d"); got != nil {
			t.Errorf("Load() after Delete = %q", got)
		}
	})

	t.Run("SaveAll", func(t *testing.T) {
		records := map[string]Record{
			"x": {Data: []byte("1"), ExpiresAt: future},
			"y": {Data: []byte("2"), ExpiresAt: future},
		}
		if err := store.SaveAll(ctx, records); err != nil {
			t.Fatalf("SaveAll() error: %v", err)
		}
		got := map[string]string{}
		for id := range records {
			data, err := store.Load(ctx, id)
			if err != nil {
				t.Fatal(err)
			}
			got[id] = string(data)
		}
		if diff := cmp.Diff(map[string]string{"x": "1", "y": "2"}, got); diff != "" {
			t.Errorf("SaveAll mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	store := newTestMemoryStore(t)
	storeContract(t, store)

	store.cleanup()
	if _, ok := store.records["old"]; ok {
		t.Error("cleanup() kept an expired snapshot")
	}
}

func TestSQLStore(t *testing.T) {
	store := newTestSQLStore(t)
	storeContract(t, store)

	n, err := store.DeleteExpired(context.Background())
	if err != nil {
		t.Fatalf("DeleteExpired() error: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired() = %d, want 1", n)
	}
}

func TestStoreClosed(t *testing.T) {
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"sql":    newTestSQLStore(t),
	}
	ctx := context.Background()
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			if err := store.Close(); err != nil {
				t.Fatalf("Close() error: %v", err)
			}
			if err := store.Close(); err != nil {
				t.Fatalf("second Close() error: %v", err)
			}
			if err := store.Save(ctx, "a", nil, time.Now()); !errors.Is(err, ErrStoreClosed) {
				t.Errorf("Save() after Close = %v", err)
			}
			if _, err := store.Load(ctx, "a"); !errors.Is(err, ErrStoreClosed) {
				t.Errorf("Load() after Close = %v", err)
			}
		})
	}
}

func TestSQLPlaceholders(t *testing.T) {
	tests := []struct {
		dialect SQLDialect
		want    string
	}{
		{DialectSQLite, "?"},
		{DialectMySQL, "?"},
		{DialectPostgreSQL, "$2"},
	}
	for _, tt := range tests {
		s := &SQLStore{dialect: tt.dialect}
		if got := s.placeholder(2); got != tt.want {
			t.Errorf("%s placeholder(2) = %q, want %q", tt.dialect, got, tt.want)
		}
	}
}

func TestParseDialect(t *testing.T) {
	for name, want := range map[string]SQLDialect{
		"sqlite":     DialectSQLite,
		"SQLite3":    DialectSQLite,
		"postgres":   DialectPostgreSQL,
		"postgresql": DialectPostgreSQL,
		"mysql":      DialectMySQL,
	} {
		got, err := ParseDialect(name)
		if err != nil || got != want {
			t.Errorf("ParseDialect(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := ParseDialect("oracle"); err == nil {
		t.Error("ParseDialect(oracle) should fail")
	}
}

func TestSnapshotCodec(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := &Snapshot{
		ID:         "s1",
		CreatedAt:  created,
		LastActive: created.Add(time.Minute),
		Query:      "foo=2",
		ExportAll:  true,
		Version:    999, // overwritten
	}
	data, err := EncodeSnapshot(snap)
	if err != nil {
		t.Fatalf("EncodeSnapshot() error: %v", err)
	}
	got, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot() error: %v", err)
	}
	if diff := cmp.Diff(snap, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	for name, raw := range map[string]string{
		"garbage": `not json`,
		"future":  `{"id":"s1","version":99}`,
		"no id":   `{"version":1}`,
	} {
		if _, err := DecodeSnapshot([]byte(raw)); err == nil {
			t.Errorf("DecodeSnapshot(%s) should fail", name)
		}
	}
}
