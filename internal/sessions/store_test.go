package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/thesecretlab-dev/anima-dashboard/pkg/models"
)

func TestMemoryStore_GetOrCreateStable(t *testing.T) {
	store := NewMemoryStore("main")
	ctx := context.Background()

	first, err := store.GetOrCreate(ctx, "main")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if first.CanonicalKey != "agent:main:main" {
		t.Errorf("CanonicalKey = %q", first.CanonicalKey)
	}
	if first.SessionID == "" {
		t.Error("SessionID not assigned")
	}

	second, err := store.GetOrCreate(ctx, "main")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Error("SessionID not stable across lookups")
	}
}

func TestMemoryStore_AppendAndHistory(t *testing.T) {
	store := NewMemoryStore("main")
	ctx := context.Background()

	if err := store.AppendMessage(ctx, "main", models.Message{
		Role:    models.RoleUser,
		Content: []models.ContentBlock{models.TextBlock("hi")},
	}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := store.AppendMessage(ctx, "main", models.Message{
		Role:    models.RoleAssistant,
		Content: []models.ContentBlock{models.TextBlock("hello")},
	}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	_, messages, err := store.History(ctx, "main")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("history has %d messages, want 2", len(messages))
	}
	if messages[0].Role != models.RoleUser || messages[1].Role != models.RoleAssistant {
		t.Error("history order wrong")
	}
	if messages[0].Timestamp == 0 {
		t.Error("timestamp not assigned on append")
	}

	// The returned slice is a copy; appending to it must not grow the store.
	_ = append(messages, models.Message{Role: models.RoleSystem})
	_, fresh, _ := store.History(ctx, "main")
	if len(fresh) != 2 {
		t.Errorf("store history grew to %d after caller append", len(fresh))
	}
}

func TestMemoryStore_ListOrder(t *testing.T) {
	store := NewMemoryStore("main")
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	clock := base
	store.now = func() time.Time { return clock }

	for _, key := range []string{"old", "mid", "new"} {
		clock = clock.Add(time.Hour)
		if err := store.AppendMessage(ctx, key, models.Message{Role: models.RoleUser, Content: []models.ContentBlock{models.TextBlock("x")}}); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	entries, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("List returned %d entries, want 3", len(entries))
	}
	if entries[0].Key != "new" || entries[2].Key != "old" {
		t.Errorf("order = [%s %s %s], want newest first", entries[0].Key, entries[1].Key, entries[2].Key)
	}

	limited, _ := store.List(ctx, 2)
	if len(limited) != 2 {
		t.Errorf("List(2) returned %d entries", len(limited))
	}
}
