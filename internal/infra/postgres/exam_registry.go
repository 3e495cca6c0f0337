package postgres

import (
	"context"
	"fmt"
	"time"

	"scheduled-exam-service/internal/domain"

	"github.com/uptrace/bun"
)

// ExamRegistry stores scheduled exams in Postgres via bun.
type ExamRegistry struct {
	db       bun.IDB
	codes    domain.CodeGenerator
	attempts int
}

// RegistryOption customizes an ExamRegistry.
type RegistryOption func(*ExamRegistry)

// WithCodeGenerator replaces the random exam code source.
func WithCodeGenerator(gen domain.CodeGenerator, attempts int) RegistryOption {
	return func(r *ExamRegistry) {
		r.codes = gen
		if attempts > 0 {
			r.attempts = attempts
		}
	}
}

func NewExamRegistry(db bun.IDB, opts ...RegistryOption) *ExamRegistry {
	r := &ExamRegistry{
		db:       db,
		codes:    domain.GenerateExamCode,
		attempts: domain.DefaultCodeAttempts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// with returns a registry bound to a transaction.
func (r *ExamRegistry) with(db bun.IDB) *ExamRegistry {
	clone := *r
	clone.db = db
	return &clone
}

// Create inserts the exam, re-rolling the code when it collides with an existing one.
// ON CONFLICT keeps a surrounding transaction usable after a collision.
func (r *ExamRegistry) Create(ctx context.Context, exam *domain.ScheduledExam) error {
	if err := exam.Validate(); err != nil {
		return err
	}
	if exam.CreatedAt.IsZero() {
		exam.CreatedAt = time.Now()
	}

	for i := 0; i < r.attempts; i++ {
		code, err := r.codes()
		if err != nil {
			return fmt.Errorf("generate exam code: %w", err)
		}
		exam.ExamCode = code
		row := newExamRow(*exam)

		res, err := r.db.NewInsert().
			Model(row).
			ExcludeColumn("id").
			On("CONFLICT (exam_code) DO NOTHING").
			Returning("id").
			Exec(ctx)
		switch {
		case isNoRows(err):
			continue
		case isUniqueViolation(err, examCodeConstraint):
			continue
		case err != nil:
			return fmt.Errorf("insert exam: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			continue
		}
		exam.ID = row.ID
		return nil
	}
	return fmt.Errorf("no free exam code after %d attempts", r.attempts)
}

func (r *ExamRegistry) FindByCode(ctx context.Context, code string) (domain.ScheduledExam, error) {
	var row examRow
	err := r.db.NewSelect().Model(&row).Where("exam_code = ?", code).Scan(ctx)
	if isNoRows(err) {
		return domain.ScheduledExam{}, domain.Errorf(domain.ErrNotFound, "no exam with code %q", code)
	}
	if err != nil {
		return domain.ScheduledExam{}, fmt.Errorf("find exam by code: %w", err)
	}
	return row.toDomain(), nil
}

func (r *ExamRegistry) FindByID(ctx context.Context, id int64) (domain.ScheduledExam, error) {
	var row examRow
	err := r.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if isNoRows(err) {
		return domain.ScheduledExam{}, domain.Errorf(domain.ErrNotFound, "exam %d not found", id)
	}
	if err != nil {
		return domain.ScheduledExam{}, fmt.Errorf("find exam: %w", err)
	}
	return row.toDomain(), nil
}

func (r *ExamRegistry) ListByCreator(ctx context.Context, creatorID int64) ([]domain.ScheduledExam, error) {
	var rows []examRow
	err := r.db.NewSelect().
		Model(&rows).
		Where("creator_id = ?", creatorID).
		Order("created_at DESC", "id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list exams by creator: %w", err)
	}
	return examsToDomain(rows), nil
}

func (r *ExamRegistry) ListUpcoming(ctx context.Context, now time.Time) ([]domain.ScheduledExam, error) {
	var rows []examRow
	err := r.db.NewSelect().
		Model(&rows).
		Where("is_active").
		Where("start_time > ?", now.UTC()).
		Order("start_time ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list upcoming exams: %w", err)
	}
	return examsToDomain(rows), nil
}

// IncrementParticipants is one conditional UPDATE; the row lock serializes concurrent
// joins and the WHERE clause is re-checked against the committed count.
func (r *ExamRegistry) IncrementParticipants(ctx context.Context, examID int64) (int, error) {
	var count int
	err := r.db.NewUpdate().
		TableExpr("scheduled_exams").
		Set("current_participants = current_participants + 1").
		Where("id = ?", examID).
		Where("is_active").
		Where("(max_participants IS NULL OR current_participants < max_participants)").
		Returning("current_participants").
		Scan(ctx, &count)
	if err == nil {
		return count, nil
	}
	if !isNoRows(err) {
		return 0, fmt.Errorf("increment participants: %w", err)
	}

	exam, err := r.FindByID(ctx, examID)
	if err != nil {
		return 0, err
	}
	if !exam.IsActive {
		return 0, domain.ErrExamCancelled
	}
	return 0, domain.ErrExamFull
}

func (r *ExamRegistry) Deactivate(ctx context.Context, examID int64) error {
	res, err := r.db.NewUpdate().
		TableExpr("scheduled_exams").
		Set("is_active = FALSE").
		Where("id = ?", examID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("deactivate exam: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Errorf(domain.ErrNotFound, "exam %d not found", examID)
	}
	return nil
}

func examsToDomain(rows []examRow) []domain.ScheduledExam {
	out := make([]domain.ScheduledExam, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}
