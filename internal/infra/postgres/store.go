package postgres

import (
	"context"
	"database/sql"

	"scheduled-exam-service/internal/app"

	"github.com/uptrace/bun"
)

// Store implements app.Store on one bun.DB; RunInTx uses a real database transaction.
type Store struct {
	db           *bun.DB
	exams        *ExamRegistry
	participants *ParticipationLedger
}

func NewStore(db *bun.DB, opts ...RegistryOption) *Store {
	return &Store{
		db:           db,
		exams:        NewExamRegistry(db, opts...),
		participants: NewParticipationLedger(db),
	}
}

func (s *Store) Exams() app.ExamRegistry { return s.exams }

func (s *Store) Participants() app.ParticipationLedger { return s.participants }

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, exams app.ExamRegistry, participants app.ParticipationLedger) error) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, s.exams.with(tx), s.participants.with(tx))
	})
}
