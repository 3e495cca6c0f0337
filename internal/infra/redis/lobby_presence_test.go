package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestLobbyPresenceSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	presence := NewLobbyPresence(newClient(mr), time.Minute)

	if n, err := presence.Enter(ctx, 5); err != nil || n != 1 {
		t.Fatalf("enter: %d %v", n, err)
	}
	if n, _ := presence.Enter(ctx, 5); n != 2 {
		t.Fatalf("expected 2 watchers, got %d", n)
	}
	if !mr.Exists("exam:5:lobby") || mr.TTL("exam:5:lobby") != time.Minute {
		t.Fatalf("expected redis key with ttl")
	}

	_, _ = presence.Leave(ctx, 5)
	if n, _ := presence.Leave(ctx, 5); n != 0 {
		t.Fatalf("expected 0 watchers, got %d", n)
	}
	if mr.Exists("exam:5:lobby") {
		t.Fatalf("expected redis key to be removed")
	}
}
