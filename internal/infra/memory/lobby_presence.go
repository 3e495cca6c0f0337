package memory

import (
	"context"
	"sync"
)

// LobbyPresence counts open lobby sockets per exam in-process.
type LobbyPresence struct {
	mu     sync.Mutex
	counts map[int64]int
}

func NewLobbyPresence() *LobbyPresence {
	return &LobbyPresence{counts: make(map[int64]int)}
}

func (p *LobbyPresence) Enter(_ context.Context, examID int64) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[examID]++
	return p.counts[examID], nil
}

func (p *LobbyPresence) Leave(_ context.Context, examID int64) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.counts[examID] - 1
	if n <= 0 {
		delete(p.counts, examID)
		return 0, nil
	}
	p.counts[examID] = n
	return n, nil
}
