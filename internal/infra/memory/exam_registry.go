package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"scheduled-exam-service/internal/domain"
)

// ExamRegistry is an in-memory implementation of app.ExamRegistry.
type ExamRegistry struct {
	codes    domain.CodeGenerator
	attempts int

	mu     sync.RWMutex
	nextID int64
	exams  map[int64]*domain.ScheduledExam
	byCode map[string]int64
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

func NewExamRegistry(opts ...RegistryOption) *ExamRegistry {
	r := &ExamRegistry{
		codes:    domain.GenerateExamCode,
		attempts: domain.DefaultCodeAttempts,
		exams:    make(map[int64]*domain.ScheduledExam),
		byCode:   make(map[string]int64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ExamRegistry) Create(_ context.Context, exam *domain.ScheduledExam) error {
	if err := exam.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := r.freeCodeLocked()
	if err != nil {
		return err
	}
	r.nextID++
	exam.ID = r.nextID
	exam.ExamCode = code
	if exam.CreatedAt.IsZero() {
		exam.CreatedAt = time.Now()
	}

	stored := exam.Clone()
	r.exams[stored.ID] = &stored
	r.byCode[code] = stored.ID
	return nil
}

// freeCodeLocked re-rolls until a code is unused or attempts run out.
func (r *ExamRegistry) freeCodeLocked() (string, error) {
	for i := 0; i < r.attempts; i++ {
		code, err := r.codes()
		if err != nil {
			return "", fmt.Errorf("generate exam code: %w", err)
		}
		if _, taken := r.byCode[code]; !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free exam code after %d attempts", r.attempts)
}

func (r *ExamRegistry) FindByCode(_ context.Context, code string) (domain.ScheduledExam, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byCode[code]
	if !ok {
		return domain.ScheduledExam{}, domain.Errorf(domain.ErrNotFound, "no exam with code %q", code)
	}
	return r.exams[id].Clone(), nil
}

func (r *ExamRegistry) FindByID(_ context.Context, id int64) (domain.ScheduledExam, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exam, ok := r.exams[id]
	if !ok {
		return domain.ScheduledExam{}, domain.Errorf(domain.ErrNotFound, "exam %d not found", id)
	}
	return exam.Clone(), nil
}

func (r *ExamRegistry) ListByCreator(_ context.Context, creatorID int64) ([]domain.ScheduledExam, error) {
	r.mu.RLock()
	out := make([]domain.ScheduledExam, 0)
	for _, exam := range r.exams {
		if exam.CreatorID == creatorID {
			out = append(out, exam.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *ExamRegistry) ListUpcoming(_ context.Context, now time.Time) ([]domain.ScheduledExam, error) {
	r.mu.RLock()
	out := make([]domain.ScheduledExam, 0)
	for _, exam := range r.exams {
		if exam.IsActive && exam.StartTime.After(now) {
			out = append(out, exam.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// IncrementParticipants checks capacity and increments under one lock.
func (r *ExamRegistry) IncrementParticipants(_ context.Context, examID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exam, ok := r.exams[examID]
	switch {
	case !ok:
		return 0, domain.Errorf(domain.ErrNotFound, "exam %d not found", examID)
	case !exam.IsActive:
		return 0, domain.ErrExamCancelled
	case exam.IsFull():
		return 0, domain.ErrExamFull
	}
	exam.CurrentParticipants++
	return exam.CurrentParticipants, nil
}

// decrementParticipants undoes an increment when a surrounding transaction fails.
func (r *ExamRegistry) decrementParticipants(examID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if exam, ok := r.exams[examID]; ok && exam.CurrentParticipants > 0 {
		exam.CurrentParticipants--
	}
}

func (r *ExamRegistry) Deactivate(_ context.Context, examID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	exam, ok := r.exams[examID]
	if !ok {
		return domain.Errorf(domain.ErrNotFound, "exam %d not found", examID)
	}
	exam.IsActive = false
	return nil
}
