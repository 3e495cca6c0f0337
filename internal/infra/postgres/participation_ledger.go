package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"scheduled-exam-service/internal/domain"

	"github.com/uptrace/bun"
)

// ParticipationLedger stores exam participants in Postgres via bun. The
// (exam_id, user_id) unique constraint is the final guard against double joins.
type ParticipationLedger struct {
	db bun.IDB
}

func NewParticipationLedger(db bun.IDB) *ParticipationLedger {
	return &ParticipationLedger{db: db}
}

func (l *ParticipationLedger) with(db bun.IDB) *ParticipationLedger {
	return &ParticipationLedger{db: db}
}

func (l *ParticipationLedger) Register(ctx context.Context, examID, userID int64, joinedAt time.Time) (domain.ExamParticipant, error) {
	row := &participantRow{
		ExamID:   examID,
		UserID:   userID,
		Status:   string(domain.StatusRegistered),
		JoinedAt: joinedAt.UTC(),
	}
	_, err := l.db.NewInsert().Model(row).ExcludeColumn("id").Returning("id").Exec(ctx)
	if isUniqueViolation(err, examParticipantConstraint) {
		return domain.ExamParticipant{}, domain.ErrAlreadyRegistered
	}
	if err != nil {
		return domain.ExamParticipant{}, fmt.Errorf("register participant: %w", err)
	}
	return row.toDomain()
}

func (l *ParticipationLedger) Find(ctx context.Context, examID, userID int64) (domain.ExamParticipant, error) {
	var row participantRow
	err := l.db.NewSelect().
		Model(&row).
		Where("exam_id = ?", examID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if isNoRows(err) {
		return domain.ExamParticipant{}, domain.Errorf(domain.ErrNotFound, "user %d is not registered for exam %d", userID, examID)
	}
	if err != nil {
		return domain.ExamParticipant{}, fmt.Errorf("find participant: %w", err)
	}
	return row.toDomain()
}

func (l *ParticipationLedger) ListByExam(ctx context.Context, examID int64) ([]domain.ExamParticipant, error) {
	var rows []participantRow
	if err := l.db.NewSelect().Model(&rows).Where("exam_id = ?", examID).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list participants by exam: %w", err)
	}
	return participantsToDomain(rows)
}

func (l *ParticipationLedger) ListByUser(ctx context.Context, userID int64) ([]domain.ExamParticipant, error) {
	var rows []participantRow
	if err := l.db.NewSelect().Model(&rows).Where("user_id = ?", userID).Order("id DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list participants by user: %w", err)
	}
	return participantsToDomain(rows)
}

func (l *ParticipationLedger) MarkStarted(ctx context.Context, participantID int64, at time.Time) error {
	res, err := l.db.NewUpdate().
		TableExpr("exam_participants").
		Set("status = ?", string(domain.StatusStarted)).
		Set("started_at = ?", at.UTC()).
		Where("id = ?", participantID).
		Where("status = ?", string(domain.StatusRegistered)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark started: %w", err)
	}
	return l.checkTransition(ctx, res, participantID, domain.StatusStarted)
}

func (l *ParticipationLedger) MarkCompleted(ctx context.Context, participantID int64, at time.Time, score int, quizAttemptID *int64) error {
	res, err := l.db.NewUpdate().
		TableExpr("exam_participants").
		Set("status = ?", string(domain.StatusCompleted)).
		Set("completed_at = ?", at.UTC()).
		Set("score = ?", score).
		Set("quiz_attempt_id = COALESCE(?, quiz_attempt_id)", quizAttemptID).
		Where("id = ?", participantID).
		Where("status = ?", string(domain.StatusStarted)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return l.checkTransition(ctx, res, participantID, domain.StatusCompleted)
}

// checkTransition turns a zero-row guarded update into NotFound or InvalidTransition.
func (l *ParticipationLedger) checkTransition(ctx context.Context, res sql.Result, participantID int64, to domain.ParticipantStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = l.db.NewSelect().
		TableExpr("exam_participants").
		Column("status").
		Where("id = ?", participantID).
		Scan(ctx, &status)
	if isNoRows(err) {
		return domain.Errorf(domain.ErrNotFound, "participant %d not found", participantID)
	}
	if err != nil {
		return fmt.Errorf("load participant status: %w", err)
	}
	return domain.ParticipantStatus(status).Transition(to)
}
