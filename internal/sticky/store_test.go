package sticky

import (
	"context"
	"testing"
)

func TestStoreInsertListClear(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Insert(ctx, 501, 1, 1000, []byte("new mail")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Insert(ctx, 501, 2, 1001, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	notices, err := store.Notices(ctx)
	if err != nil {
		t.Fatalf("Notices: %v", err)
	}
	if len(notices) != 2 {
		t.Fatalf("len(notices) = %d, want 2", len(notices))
	}

	if err := store.ClearType(ctx, 501, 1); err != nil {
		t.Fatalf("ClearType: %v", err)
	}
	notices, err = store.Notices(ctx)
	if err != nil {
		t.Fatalf("Notices: %v", err)
	}
	if len(notices) != 1 || notices[0].Type != 2 {
		t.Fatalf("unexpected notices after ClearType: %+v", notices)
	}

	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Fatalf("Count after Flush = %d, want 0", count)
	}
}
