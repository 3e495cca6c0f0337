package app

import (
	"context"
	"sync"

	"scheduled-exam-service/internal/domain"
)

// Hub is the in-process EventBus: one subscriber set per exam.
type Hub struct {
	mu          sync.Mutex
	subscribers map[int64]map[chan domain.ExamEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[int64]map[chan domain.ExamEvent]struct{})}
}

// Publish delivers event to every subscriber of its exam without blocking.
func (h *Hub) Publish(_ context.Context, event domain.ExamEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[event.ExamID] {
		Deliver(ch, event)
	}
	return nil
}

// Subscribe registers a buffered channel for examID.
func (h *Hub) Subscribe(_ context.Context, examID int64) (<-chan domain.ExamEvent, func(), error) {
	ch := make(chan domain.ExamEvent, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[examID]
	if !ok {
		subs = make(map[chan domain.ExamEvent]struct{})
		h.subscribers[examID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs, ok := h.subscribers[examID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, examID)
		}
	}
	return ch, cancel, nil
}

// subscriberCount reports how many channels watch examID.
func (h *Hub) subscriberCount(examID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[examID])
}

// Deliver sends event on ch, dropping the oldest queued event when ch is full so a
// slow reader never blocks the publisher. Callers must be the only sender on ch.
func Deliver(ch chan domain.ExamEvent, event domain.ExamEvent) {
	select {
	case ch <- event:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- event:
	default:
	}
}
