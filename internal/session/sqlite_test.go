package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestNewSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore(:memory:) returned error: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Fatal("NewSQLiteStore(:memory:) db field is nil")
	}
}

func TestSQLiteStore_SaveAndLoad(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	sc := &Context{Token: "tok-123", Email: "a@b.com", Username: "Alice"}
	if err := store.Save(ctx, sc); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Token != "tok-123" {
		t.Errorf("Token = %q, want %q", loaded.Token, "tok-123")
	}
	if loaded.Email != "a@b.com" {
		t.Errorf("Email = %q, want %q", loaded.Email, "a@b.com")
	}
	if loaded.Username != "Alice" {
		t.Errorf("Username = %q, want %q", loaded.Username, "Alice")
	}
	if loaded.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
}

func TestSQLiteStore_SaveOverwrites(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	_ = store.Save(ctx, &Context{Token: "first", Email: "a@b.com", Username: "Alice"})
	if err := store.Save(ctx, &Context{Token: "second", Email: "c@d.com", Username: "Carol"}); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Token != "second" || loaded.Username != "Carol" {
		t.Errorf("loaded = %+v, want second/Carol", loaded)
	}
}

func TestSQLiteStore_LoadEmpty(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	_, err = store.Load(context.Background())
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("Load on empty store: err = %v, want ErrNoSession", err)
	}
}

func TestSQLiteStore_Clear(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	_ = store.Save(ctx, &Context{Token: "tok", Email: "a@b.com", Username: "Alice"})
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if _, err := store.Load(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("Load after Clear: err = %v, want ErrNoSession", err)
	}
	var n int
	if err := store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM client_state`).Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if n != 0 {
		t.Errorf("%d rows left after Clear, want 0", n)
	}
}

func TestSQLiteStore_RejectsEmptyToken(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Save(context.Background(), &Context{Email: "a@b.com"}); !errors.Is(err, ErrNoSession) {
		t.Errorf("Save without token: err = %v, want ErrNoSession", err)
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := store.Save(ctx, &Context{Token: "tok", Email: "a@b.com", Username: "Alice"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("Load after reopen: %v", err)
	}
	if loaded.Token != "tok" {
		t.Errorf("Token = %q, want %q", loaded.Token, "tok")
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	if _, err := m.Load(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Load on empty: %v", err)
	}
	sc := &Context{Token: "tok", Email: "a@b.com"}
	if err := m.Save(ctx, sc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	sc.Token = "mutated"
	got, _ := m.Load(ctx)
	if got.Token != "tok" {
		t.Errorf("stored context aliased caller value: %q", got.Token)
	}
	_ = m.Clear(ctx)
	if _, err := m.Load(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("Load after Clear: %v", err)
	}
}

func TestRedactToken(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"abc", "***"},
		{"abcdefgh", "abcd***"},
	}
	for _, tt := range tests {
		if got := RedactToken(tt.in); got != tt.want {
			t.Errorf("RedactToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
