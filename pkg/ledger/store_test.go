package ledger

import (
	"context"
	"testing"
)

// runStoreSuite exercises the Store contract against any implementation.
// The store must be empty when passed in.
func runStoreSuite(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get_unknown", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "https://api.example.com/missing")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if ok {
			t.Error("Expected unknown key to be absent")
		}
	})

	t.Run("put_keeps_first_insertion_order", func(t *testing.T) {
		if err := store.Clear(ctx); err != nil {
			t.Fatalf("Clear failed: %v", err)
		}

		must(t, store.Put(ctx, "https://api.example.com/books", 1000))
		must(t, store.Put(ctx, "https://api.example.com/books/1", 2000))
		must(t, store.Put(ctx, "https://api.example.com/books/2", 3000))
		// Refreshing an existing key must not move it.
		must(t, store.Put(ctx, "https://api.example.com/books", 4000))

		entries, err := store.Entries(ctx)
		if err != nil {
			t.Fatalf("Entries failed: %v", err)
		}

		want := []Entry{
			{Key: "https://api.example.com/books", LastFetchedAt: 4000},
			{Key: "https://api.example.com/books/1", LastFetchedAt: 2000},
			{Key: "https://api.example.com/books/2", LastFetchedAt: 3000},
		}
		if len(entries) != len(want) {
			t.Fatalf("Entries length = %d, want %d", len(entries), len(want))
		}
		for i := range want {
			if entries[i] != want[i] {
				t.Errorf("Entries[%d] = %+v, want %+v", i, entries[i], want[i])
			}
		}
	})

	t.Run("order_ignores_timestamps", func(t *testing.T) {
		must(t, store.Clear(ctx))

		// Parallel pre-warm records list and book in the same millisecond;
		// a writer with a lagging clock records an older timestamp later.
		must(t, store.Put(ctx, "https://api.example.com/books/42", 1000))
		must(t, store.Put(ctx, "https://api.example.com/books", 1000))
		must(t, store.Put(ctx, "https://api.example.com/z", 2000))
		must(t, store.Put(ctx, "https://api.example.com/a", 1500))

		entries, err := store.Entries(ctx)
		if err != nil {
			t.Fatalf("Entries failed: %v", err)
		}

		want := []string{
			"https://api.example.com/books/42",
			"https://api.example.com/books",
			"https://api.example.com/z",
			"https://api.example.com/a",
		}
		if len(entries) != len(want) {
			t.Fatalf("Entries length = %d, want %d", len(entries), len(want))
		}
		for i := range want {
			if entries[i].Key != want[i] {
				t.Errorf("Entries[%d].Key = %s, want %s", i, entries[i].Key, want[i])
			}
		}
	})

	t.Run("put_never_lowers_timestamp", func(t *testing.T) {
		must(t, store.Clear(ctx))

		key := "https://api.example.com/books"
		must(t, store.Put(ctx, key, 2000))
		must(t, store.Put(ctx, key, 1000))

		ts, ok, err := store.Get(ctx, key)
		if err != nil || !ok {
			t.Fatalf("Get = (%d, %v, %v), want present", ts, ok, err)
		}
		if ts != 2000 {
			t.Errorf("Timestamp = %d, want 2000", ts)
		}

		must(t, store.Put(ctx, key, 3000))
		if ts, _, _ := store.Get(ctx, key); ts != 3000 {
			t.Errorf("Timestamp = %d, want 3000", ts)
		}
	})

	t.Run("delete_is_idempotent", func(t *testing.T) {
		must(t, store.Clear(ctx))
		must(t, store.Put(ctx, "https://api.example.com/books", 1000))
		must(t, store.Put(ctx, "https://api.example.com/books/1", 2000))

		key := "https://api.example.com/books/1"
		must(t, store.Delete(ctx, key))
		must(t, store.Delete(ctx, key))
		must(t, store.Delete(ctx, "https://api.example.com/never-seen"))

		if _, ok, _ := store.Get(ctx, key); ok {
			t.Errorf("Key %s still present after Delete", key)
		}
	})

	t.Run("reinsert_after_delete_moves_to_end", func(t *testing.T) {
		must(t, store.Put(ctx, "https://api.example.com/books/1", 5000))

		entries, err := store.Entries(ctx)
		if err != nil {
			t.Fatalf("Entries failed: %v", err)
		}
		last := entries[len(entries)-1]
		if last.Key != "https://api.example.com/books/1" {
			t.Errorf("Last key = %s, want re-inserted key at the end", last.Key)
		}
	})

	t.Run("clear", func(t *testing.T) {
		must(t, store.Clear(ctx))

		entries, err := store.Entries(ctx)
		if err != nil {
			t.Fatalf("Entries failed: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("Expected empty store after Clear, got %d entries", len(entries))
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := store.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}
