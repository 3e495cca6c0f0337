package memory

import (
	"context"
	"sync"
	"time"

	"scheduled-exam-service/internal/app"
	"scheduled-exam-service/internal/domain"
)

// Store is an in-memory implementation of app.Store. Transactions are serialized and
// roll back participant increments and registrations made inside a failed callback.
type Store struct {
	txMu         sync.Mutex
	exams        *ExamRegistry
	participants *ParticipationLedger
}

func NewStore(exams *ExamRegistry, participants *ParticipationLedger) *Store {
	return &Store{exams: exams, participants: participants}
}

func (s *Store) Exams() app.ExamRegistry { return s.exams }

func (s *Store) Participants() app.ParticipationLedger { return s.participants }

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, exams app.ExamRegistry, participants app.ParticipationLedger) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	j := &journal{}
	err := fn(ctx, &txRegistry{ExamRegistry: s.exams, j: j}, &txLedger{ParticipationLedger: s.participants, j: j})
	if err != nil {
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
	}
	return err
}

type journal struct {
	undo []func()
}

type txRegistry struct {
	*ExamRegistry
	j *journal
}

func (r *txRegistry) IncrementParticipants(ctx context.Context, examID int64) (int, error) {
	n, err := r.ExamRegistry.IncrementParticipants(ctx, examID)
	if err == nil {
		r.j.undo = append(r.j.undo, func() { r.ExamRegistry.decrementParticipants(examID) })
	}
	return n, err
}

type txLedger struct {
	*ParticipationLedger
	j *journal
}

func (l *txLedger) Register(ctx context.Context, examID, userID int64, joinedAt time.Time) (domain.ExamParticipant, error) {
	p, err := l.ParticipationLedger.Register(ctx, examID, userID, joinedAt)
	if err == nil {
		l.j.undo = append(l.j.undo, func() { l.ParticipationLedger.remove(p.ID) })
	}
	return p, err
}
