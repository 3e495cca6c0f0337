package memory

import (
	"context"
	"testing"
)

func TestLobbyPresenceLifecycle(t *testing.T) {
	ctx := context.Background()
	presence := NewLobbyPresence()

	if n, _ := presence.Enter(ctx, 1); n != 1 {
		t.Fatalf("expected 1 watcher, got %d", n)
	}
	if n, _ := presence.Enter(ctx, 1); n != 2 {
		t.Fatalf("expected 2 watchers, got %d", n)
	}
	if n, _ := presence.Leave(ctx, 1); n != 1 {
		t.Fatalf("expected 1 watcher after leave, got %d", n)
	}
	_, _ = presence.Leave(ctx, 1)
	if n, _ := presence.Leave(ctx, 1); n != 0 {
		t.Fatalf("count must not go negative, got %d", n)
	}
	if len(presence.counts) != 0 {
		t.Fatalf("expected empty exams to be dropped")
	}
}
