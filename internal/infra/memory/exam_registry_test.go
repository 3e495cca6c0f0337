package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"scheduled-exam-service/internal/domain"
)

func TestExamRegistryRerollsTakenCode(t *testing.T) {
	codes := []string{"AAAA1111", "AAAA1111", "BBBB2222"}
	gen := func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}
	registry := NewExamRegistry(WithCodeGenerator(gen, 3))
	ctx := context.Background()

	first := newExam(1, nil)
	if err := registry.Create(ctx, &first); err != nil {
		t.Fatalf("create first: %v", err)
	}
	second := newExam(1, nil)
	if err := registry.Create(ctx, &second); err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first.ExamCode != "AAAA1111" || second.ExamCode != "BBBB2222" {
		t.Fatalf("expected colliding code to be re-rolled, got %s and %s", first.ExamCode, second.ExamCode)
	}
	if first.ID == second.ID {
		t.Fatalf("expected distinct ids")
	}
}

func TestExamRegistryGivesUpAfterAttempts(t *testing.T) {
	gen := func() (string, error) { return "SAMECODE", nil }
	registry := NewExamRegistry(WithCodeGenerator(gen, 2))
	ctx := context.Background()

	first := newExam(1, nil)
	if err := registry.Create(ctx, &first); err != nil {
		t.Fatalf("create first: %v", err)
	}
	second := newExam(1, nil)
	if err := registry.Create(ctx, &second); err == nil {
		t.Fatalf("expected create to fail once every attempt collides")
	}
}

func TestExamRegistryCodesAreDistinct(t *testing.T) {
	registry := NewExamRegistry()
	ctx := context.Background()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		exam := newExam(1, nil)
		if err := registry.Create(ctx, &exam); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if !domain.ValidExamCode(exam.ExamCode) {
			t.Fatalf("malformed code %q", exam.ExamCode)
		}
		if seen[exam.ExamCode] {
			t.Fatalf("duplicate code %q", exam.ExamCode)
		}
		seen[exam.ExamCode] = true
	}
}

func TestExamRegistryCreateValidates(t *testing.T) {
	registry := NewExamRegistry()
	exam := newExam(1, nil)
	exam.DurationMinutes = 0
	if err := registry.Create(context.Background(), &exam); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	exam = newExam(1, nil)
	exam.QuestionIDs = nil
	if err := registry.Create(context.Background(), &exam); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for empty question set, got %v", err)
	}
}

func TestExamRegistryIncrementRespectsCapacity(t *testing.T) {
	registry := NewExamRegistry()
	ctx := context.Background()
	limit := 2
	exam := newExam(1, &limit)
	if err := registry.Create(ctx, &exam); err != nil {
		t.Fatalf("create: %v", err)
	}

	for want := 1; want <= 2; want++ {
		got, err := registry.IncrementParticipants(ctx, exam.ID)
		if err != nil {
			t.Fatalf("increment %d: %v", want, err)
		}
		if got != want {
			t.Fatalf("expected count %d, got %d", want, got)
		}
	}
	if _, err := registry.IncrementParticipants(ctx, exam.ID); !errors.Is(err, domain.ErrExamFull) {
		t.Fatalf("expected exam full, got %v", err)
	}

	stored, _ := registry.FindByID(ctx, exam.ID)
	if stored.CurrentParticipants != 2 {
		t.Fatalf("expected counter to stay at capacity, got %d", stored.CurrentParticipants)
	}
}

func TestExamRegistryDeactivateIsIdempotent(t *testing.T) {
	registry := NewExamRegistry()
	ctx := context.Background()
	exam := newExam(1, nil)
	_ = registry.Create(ctx, &exam)

	for i := 0; i < 2; i++ {
		if err := registry.Deactivate(ctx, exam.ID); err != nil {
			t.Fatalf("deactivate %d: %v", i, err)
		}
	}
	stored, _ := registry.FindByID(ctx, exam.ID)
	if stored.IsActive {
		t.Fatalf("expected exam inactive")
	}
	if _, err := registry.IncrementParticipants(ctx, exam.ID); !errors.Is(err, domain.ErrExamCancelled) {
		t.Fatalf("expected cancelled exam to refuse increments, got %v", err)
	}
	if err := registry.Deactivate(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExamRegistryListings(t *testing.T) {
	registry := NewExamRegistry()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	older := newExam(7, nil)
	older.CreatedAt = base
	older.StartTime = base.Add(48 * time.Hour)
	newer := newExam(7, nil)
	newer.CreatedAt = base.Add(time.Hour)
	newer.StartTime = base.Add(24 * time.Hour)
	other := newExam(8, nil)
	other.CreatedAt = base
	other.StartTime = base.Add(-time.Hour)
	for _, e := range []*domain.ScheduledExam{&older, &newer, &other} {
		if err := registry.Create(ctx, e); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	mine, _ := registry.ListByCreator(ctx, 7)
	if len(mine) != 2 || mine[0].ID != newer.ID || mine[1].ID != older.ID {
		t.Fatalf("expected newest first, got %+v", mine)
	}

	upcoming, _ := registry.ListUpcoming(ctx, base)
	if len(upcoming) != 2 || upcoming[0].ID != newer.ID {
		t.Fatalf("expected soonest upcoming first and past exam excluded, got %+v", upcoming)
	}
}

func TestExamRegistryReturnsCopies(t *testing.T) {
	registry := NewExamRegistry()
	ctx := context.Background()
	exam := newExam(1, nil)
	_ = registry.Create(ctx, &exam)

	found, _ := registry.FindByID(ctx, exam.ID)
	found.QuestionIDs[0] = 42
	again, _ := registry.FindByID(ctx, exam.ID)
	if again.QuestionIDs[0] == 42 {
		t.Fatalf("expected frozen question set to be immune to caller mutation")
	}
}

func newExam(creatorID int64, maxParticipants *int) domain.ScheduledExam {
	return domain.ScheduledExam{
		Title:           "Fiqh basics",
		StartTime:       time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		QuestionIDs:     []int64{1, 2, 3},
		TotalQuestions:  3,
		MaxParticipants: maxParticipants,
		IsActive:        true,
		CreatorID:       creatorID,
	}
}
