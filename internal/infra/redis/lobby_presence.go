package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// LobbyPresence counts open lobby sockets per exam across instances. The key
// expires after ttl so a crashed instance cannot pin the count forever.
type LobbyPresence struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLobbyPresence(client *redis.Client, ttl time.Duration) *LobbyPresence {
	return &LobbyPresence{client: client, ttl: ttl}
}

func (p *LobbyPresence) Enter(ctx context.Context, examID int64) (int, error) {
	key := p.key(examID)
	pipe := p.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	if p.ttl > 0 {
		pipe.Expire(ctx, key, p.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (p *LobbyPresence) Leave(ctx context.Context, examID int64) (int, error) {
	key := p.key(examID)
	n, err := p.client.Decr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		// best-effort cleanup
		_ = p.client.Del(ctx, key).Err()
		return 0, nil
	}
	return int(n), nil
}

func (p *LobbyPresence) key(examID int64) string {
	return "exam:" + strconv.FormatInt(examID, 10) + ":lobby"
}
