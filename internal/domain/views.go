package domain

import "time"

// ScheduledExamView is an exam plus the fields derived for one caller at one instant.
type ScheduledExamView struct {
	ID                  int64     `json:"id"`
	ExamCode            string    `json:"examCode"`
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	StartTime           time.Time `json:"startTime"`
	DurationMinutes     int       `json:"durationMinutes"`
	TotalQuestions      int       `json:"totalQuestions"`
	CategoryIDs         []int64   `json:"categoryIds,omitempty"`
	IsActive            bool      `json:"isActive"`
	MaxParticipants     *int      `json:"maxParticipants"`
	CurrentParticipants int       `json:"currentParticipants"`
	IsStarted           bool      `json:"isStarted"`
	IsExpired           bool      `json:"isExpired"`
	CanJoin             bool      `json:"canJoin"`
	IsRegistered        bool      `json:"isRegistered"`
	CreatorID           int64     `json:"creatorId"`
	CreatorName         string    `json:"creatorName"`
	CreatedAt           time.Time `json:"createdAt"`
}

// NewScheduledExamView derives isStarted/isExpired/canJoin at now.
func NewScheduledExamView(exam ScheduledExam, creator User, registered bool, now time.Time) ScheduledExamView {
	exam = exam.Clone()
	return ScheduledExamView{
		ID:                  exam.ID,
		ExamCode:            exam.ExamCode,
		Title:               exam.Title,
		Description:         exam.Description,
		StartTime:           exam.StartTime,
		DurationMinutes:     exam.DurationMinutes,
		TotalQuestions:      exam.TotalQuestions,
		CategoryIDs:         exam.CategoryIDs,
		IsActive:            exam.IsActive,
		MaxParticipants:     exam.MaxParticipants,
		CurrentParticipants: exam.CurrentParticipants,
		IsStarted:           exam.IsStarted(now),
		IsExpired:           exam.IsExpired(now),
		CanJoin:             exam.CanJoin(now),
		IsRegistered:        registered,
		CreatorID:           exam.CreatorID,
		CreatorName:         creator.FullName,
		CreatedAt:           exam.CreatedAt,
	}
}

// ParticipantView is a participant row as shown to clients.
type ParticipantView struct {
	ID            int64             `json:"id"`
	UserID        int64             `json:"userId"`
	UserName      string            `json:"userName"`
	Status        ParticipantStatus `json:"status"`
	Score         *int              `json:"score"`
	JoinedAt      time.Time         `json:"joinedAt"`
	StartedAt     *time.Time        `json:"startedAt"`
	CompletedAt   *time.Time        `json:"completedAt"`
	QuizAttemptID *int64            `json:"quizAttemptId,omitempty"`
}

// NewParticipantView reports the effective (possibly MISSED) status.
func NewParticipantView(p ExamParticipant, user User, exam ScheduledExam, now time.Time) ParticipantView {
	p = p.Clone()
	return ParticipantView{
		ID:            p.ID,
		UserID:        p.UserID,
		UserName:      user.FullName,
		Status:        p.EffectiveStatus(exam, now),
		Score:         p.Score,
		JoinedAt:      p.JoinedAt,
		StartedAt:     p.StartedAt,
		CompletedAt:   p.CompletedAt,
		QuizAttemptID: p.QuizAttemptID,
	}
}

// ExamDetailsView is the exam, every participant, and the caller's own registration.
type ExamDetailsView struct {
	Exam           ScheduledExamView  `json:"exam"`
	Participants   []ParticipantView  `json:"participants"`
	UserRegistered bool               `json:"userRegistered"`
	UserStatus     *ParticipantStatus `json:"userStatus"`
}

// QuestionView is a question without its answer key.
type QuestionView struct {
	ID           int64    `json:"id"`
	CategoryID   int64    `json:"categoryId"`
	CategoryName string   `json:"categoryName"`
	QuestionAr   string   `json:"questionAr"`
	QuestionEn   string   `json:"questionEn"`
	OptionsAr    []string `json:"optionsAr"`
	OptionsEn    []string `json:"optionsEn"`
	Difficulty   string   `json:"difficulty"`
}

// NewQuestionView strips the correct answer.
func NewQuestionView(q Question) QuestionView {
	return QuestionView{
		ID:           q.ID,
		CategoryID:   q.CategoryID,
		CategoryName: q.CategoryName,
		QuestionAr:   q.PromptAr,
		QuestionEn:   q.PromptEn,
		OptionsAr:    append([]string(nil), q.OptionsAr...),
		OptionsEn:    append([]string(nil), q.OptionsEn...),
		Difficulty:   q.Difficulty,
	}
}
