package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"scheduled-exam-service/internal/domain"
)

type pairKey struct {
	examID int64
	userID int64
}

// ParticipationLedger is an in-memory implementation of app.ParticipationLedger.
type ParticipationLedger struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*domain.ExamParticipant
	byPair map[pairKey]int64
}

func NewParticipationLedger() *ParticipationLedger {
	return &ParticipationLedger{
		byID:   make(map[int64]*domain.ExamParticipant),
		byPair: make(map[pairKey]int64),
	}
}

func (l *ParticipationLedger) Register(_ context.Context, examID, userID int64, joinedAt time.Time) (domain.ExamParticipant, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := pairKey{examID: examID, userID: userID}
	if _, exists := l.byPair[key]; exists {
		return domain.ExamParticipant{}, domain.ErrAlreadyRegistered
	}
	l.nextID++
	p := &domain.ExamParticipant{
		ID:       l.nextID,
		ExamID:   examID,
		UserID:   userID,
		Status:   domain.StatusRegistered,
		JoinedAt: joinedAt,
	}
	l.byID[p.ID] = p
	l.byPair[key] = p.ID
	return p.Clone(), nil
}

// remove drops a registration when a surrounding transaction fails.
func (l *ParticipationLedger) remove(participantID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.byID[participantID]; ok {
		delete(l.byPair, pairKey{examID: p.ExamID, userID: p.UserID})
		delete(l.byID, participantID)
	}
}

func (l *ParticipationLedger) Find(_ context.Context, examID, userID int64) (domain.ExamParticipant, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.byPair[pairKey{examID: examID, userID: userID}]
	if !ok {
		return domain.ExamParticipant{}, domain.Errorf(domain.ErrNotFound, "user %d is not registered for exam %d", userID, examID)
	}
	return l.byID[id].Clone(), nil
}

func (l *ParticipationLedger) ListByExam(_ context.Context, examID int64) ([]domain.ExamParticipant, error) {
	return l.list(func(p *domain.ExamParticipant) bool { return p.ExamID == examID }, false), nil
}

func (l *ParticipationLedger) ListByUser(_ context.Context, userID int64) ([]domain.ExamParticipant, error) {
	return l.list(func(p *domain.ExamParticipant) bool { return p.UserID == userID }, true), nil
}

func (l *ParticipationLedger) list(match func(*domain.ExamParticipant) bool, newestFirst bool) []domain.ExamParticipant {
	l.mu.RLock()
	out := make([]domain.ExamParticipant, 0)
	for _, p := range l.byID {
		if match(p) {
			out = append(out, p.Clone())
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (l *ParticipationLedger) MarkStarted(_ context.Context, participantID int64, at time.Time) error {
	return l.update(participantID, func(p *domain.ExamParticipant) error {
		return p.Start(at)
	})
}

func (l *ParticipationLedger) MarkCompleted(_ context.Context, participantID int64, at time.Time, score int, quizAttemptID *int64) error {
	return l.update(participantID, func(p *domain.ExamParticipant) error {
		return p.Complete(at, score, quizAttemptID)
	})
}

// update applies fn to a copy and stores it only when the transition succeeds.
func (l *ParticipationLedger) update(participantID int64, fn func(*domain.ExamParticipant) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.byID[participantID]
	if !ok {
		return domain.Errorf(domain.ErrNotFound, "participant %d not found", participantID)
	}
	next := p.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	l.byID[participantID] = &next
	return nil
}
