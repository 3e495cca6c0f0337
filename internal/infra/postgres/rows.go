package postgres

import (
	"time"

	"scheduled-exam-service/internal/domain"

	"github.com/uptrace/bun"
)

type examRow struct {
	bun.BaseModel `bun:"table:scheduled_exams,alias:se"`

	ID                  int64     `bun:"id,pk,autoincrement"`
	ExamCode            string    `bun:"exam_code,notnull"`
	Title               string    `bun:"title,notnull"`
	Description         string    `bun:"description,notnull"`
	StartTime           time.Time `bun:"start_time,notnull"`
	DurationMinutes     int       `bun:"duration_minutes,notnull"`
	TotalQuestions      int       `bun:"total_questions,notnull"`
	QuestionIDs         []int64   `bun:"question_ids,array"`
	CategoryIDs         []int64   `bun:"category_ids,array"`
	MaxParticipants     *int      `bun:"max_participants"`
	CurrentParticipants int       `bun:"current_participants,notnull"`
	IsActive            bool      `bun:"is_active,notnull"`
	CreatorID           int64     `bun:"creator_id,notnull"`
	CreatedAt           time.Time `bun:"created_at,notnull"`
}

func newExamRow(e domain.ScheduledExam) *examRow {
	e = e.Clone()
	row := &examRow{
		ID:                  e.ID,
		ExamCode:            e.ExamCode,
		Title:               e.Title,
		Description:         e.Description,
		StartTime:           e.StartTime.UTC(),
		DurationMinutes:     e.DurationMinutes,
		TotalQuestions:      e.TotalQuestions,
		QuestionIDs:         e.QuestionIDs,
		CategoryIDs:         e.CategoryIDs,
		MaxParticipants:     e.MaxParticipants,
		CurrentParticipants: e.CurrentParticipants,
		IsActive:            e.IsActive,
		CreatorID:           e.CreatorID,
		CreatedAt:           e.CreatedAt.UTC(),
	}
	// nil slices would be written as NULL
	if row.QuestionIDs == nil {
		row.QuestionIDs = []int64{}
	}
	if row.CategoryIDs == nil {
		row.CategoryIDs = []int64{}
	}
	return row
}

func (r examRow) toDomain() domain.ScheduledExam {
	return domain.ScheduledExam{
		ID:                  r.ID,
		ExamCode:            r.ExamCode,
		Title:               r.Title,
		Description:         r.Description,
		StartTime:           r.StartTime,
		DurationMinutes:     r.DurationMinutes,
		TotalQuestions:      r.TotalQuestions,
		QuestionIDs:         r.QuestionIDs,
		CategoryIDs:         r.CategoryIDs,
		MaxParticipants:     r.MaxParticipants,
		CurrentParticipants: r.CurrentParticipants,
		IsActive:            r.IsActive,
		CreatorID:           r.CreatorID,
		CreatedAt:           r.CreatedAt,
	}
}

type participantRow struct {
	bun.BaseModel `bun:"table:exam_participants,alias:ep"`

	ID            int64      `bun:"id,pk,autoincrement"`
	ExamID        int64      `bun:"exam_id,notnull"`
	UserID        int64      `bun:"user_id,notnull"`
	Status        string     `bun:"status,notnull"`
	JoinedAt      time.Time  `bun:"joined_at,notnull"`
	StartedAt     *time.Time `bun:"started_at"`
	CompletedAt   *time.Time `bun:"completed_at"`
	Score         *int       `bun:"score"`
	QuizAttemptID *int64     `bun:"quiz_attempt_id"`
}

func (r participantRow) toDomain() (domain.ExamParticipant, error) {
	status, err := domain.ParseStatus(r.Status)
	if err != nil {
		return domain.ExamParticipant{}, err
	}
	return domain.ExamParticipant{
		ID:            r.ID,
		ExamID:        r.ExamID,
		UserID:        r.UserID,
		Status:        status,
		JoinedAt:      r.JoinedAt,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
		Score:         r.Score,
		QuizAttemptID: r.QuizAttemptID,
	}, nil
}

func participantsToDomain(rows []participantRow) ([]domain.ExamParticipant, error) {
	out := make([]domain.ExamParticipant, 0, len(rows))
	for _, r := range rows {
		p, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
