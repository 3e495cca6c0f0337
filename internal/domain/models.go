package domain

import (
	"strings"
	"time"
)

// ScheduledExam is an organizer-created exam that users join by code.
type ScheduledExam struct {
	ID                  int64
	ExamCode            string
	Title               string
	Description         string
	StartTime           time.Time
	DurationMinutes     int
	TotalQuestions      int
	QuestionIDs         []int64 // frozen at creation
	CategoryIDs         []int64 // informational once QuestionIDs is frozen
	MaxParticipants     *int
	CurrentParticipants int
	IsActive            bool
	CreatorID           int64
	CreatedAt           time.Time
}

// EndTime is the instant the exam window closes.
func (e ScheduledExam) EndTime() time.Time {
	return e.StartTime.Add(time.Duration(e.DurationMinutes) * time.Minute)
}

// IsStarted reports now >= startTime.
func (e ScheduledExam) IsStarted(now time.Time) bool {
	return !now.Before(e.StartTime)
}

// IsExpired reports now >= startTime + duration.
func (e ScheduledExam) IsExpired(now time.Time) bool {
	return !now.Before(e.EndTime())
}

// IsFull reports whether a capacity is set and reached.
func (e ScheduledExam) IsFull() bool {
	return e.MaxParticipants != nil && e.CurrentParticipants >= *e.MaxParticipants
}

// CanJoin is isActive && !isExpired && !isFull.
func (e ScheduledExam) CanJoin(now time.Time) bool {
	return e.IsActive && !e.IsExpired(now) && !e.IsFull()
}

// Validate checks the invariants a registry enforces on create.
func (e ScheduledExam) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return Errorf(ErrValidation, "title is required")
	}
	if e.DurationMinutes <= 0 {
		return Errorf(ErrValidation, "durationMinutes must be positive")
	}
	if len(e.QuestionIDs) == 0 && len(e.CategoryIDs) == 0 {
		return Errorf(ErrValidation, "either questionIds or categoryIds is required")
	}
	if e.MaxParticipants != nil && *e.MaxParticipants <= 0 {
		return Errorf(ErrValidation, "maxParticipants must be positive when set")
	}
	if e.StartTime.IsZero() {
		return Errorf(ErrValidation, "startTime is required")
	}
	return nil
}

// Clone returns a deep copy so stores never hand out shared slices or pointers.
func (e ScheduledExam) Clone() ScheduledExam {
	out := e
	out.QuestionIDs = append([]int64(nil), e.QuestionIDs...)
	out.CategoryIDs = append([]int64(nil), e.CategoryIDs...)
	if e.MaxParticipants != nil {
		limit := *e.MaxParticipants
		out.MaxParticipants = &limit
	}
	return out
}

// ExamParticipant is one user's registration against one exam.
type ExamParticipant struct {
	ID            int64
	ExamID        int64
	UserID        int64
	Status        ParticipantStatus
	JoinedAt      time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	Score         *int
	QuizAttemptID *int64
}

// Start moves REGISTERED -> STARTED.
func (p *ExamParticipant) Start(at time.Time) error {
	if err := p.Status.Transition(StatusStarted); err != nil {
		return err
	}
	p.Status = StatusStarted
	p.StartedAt = &at
	return nil
}

// Complete moves STARTED -> COMPLETED and records the result.
func (p *ExamParticipant) Complete(at time.Time, score int, quizAttemptID *int64) error {
	if err := p.Status.Transition(StatusCompleted); err != nil {
		return err
	}
	p.Status = StatusCompleted
	p.CompletedAt = &at
	p.Score = &score
	if quizAttemptID != nil {
		id := *quizAttemptID
		p.QuizAttemptID = &id
	}
	return nil
}

// EffectiveStatus reports MISSED for a participant who never started an expired exam.
func (p ExamParticipant) EffectiveStatus(exam ScheduledExam, now time.Time) ParticipantStatus {
	if p.Status == StatusRegistered && exam.IsExpired(now) {
		return StatusMissed
	}
	return p.Status
}

// Clone returns a deep copy.
func (p ExamParticipant) Clone() ExamParticipant {
	out := p
	if p.StartedAt != nil {
		t := *p.StartedAt
		out.StartedAt = &t
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		out.CompletedAt = &t
	}
	if p.Score != nil {
		s := *p.Score
		out.Score = &s
	}
	if p.QuizAttemptID != nil {
		id := *p.QuizAttemptID
		out.QuizAttemptID = &id
	}
	return out
}

// User is the slice of a user profile this service needs.
type User struct {
	ID       int64
	FullName string
}

// Question is a question bank record.
type Question struct {
	ID            int64
	CategoryID    int64
	CategoryName  string
	PromptAr      string
	PromptEn      string
	OptionsAr     []string
	OptionsEn     []string
	Difficulty    string
	CorrectAnswer int
}
