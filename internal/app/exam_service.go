package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"scheduled-exam-service/internal/domain"

	"github.com/sirupsen/logrus"
)

// ExamRegistry stores scheduled exams (in-memory, Postgres).
type ExamRegistry interface {
	// Create validates exam, assigns ID and a unique ExamCode, and persists it.
	Create(ctx context.Context, exam *domain.ScheduledExam) error
	FindByCode(ctx context.Context, code string) (domain.ScheduledExam, error)
	FindByID(ctx context.Context, id int64) (domain.ScheduledExam, error)
	// ListByCreator returns newest first.
	ListByCreator(ctx context.Context, creatorID int64) ([]domain.ScheduledExam, error)
	// ListUpcoming returns active exams with startTime > now, soonest first.
	ListUpcoming(ctx context.Context, now time.Time) ([]domain.ScheduledExam, error)
	// IncrementParticipants is a single compare-and-increment guarded by capacity and
	// isActive. It returns the new count, or ErrExamFull / ErrExamCancelled / ErrNotFound.
	IncrementParticipants(ctx context.Context, examID int64) (int, error)
	// Deactivate is idempotent.
	Deactivate(ctx context.Context, examID int64) error
}

// ParticipationLedger stores one participant per (exam, user).
type ParticipationLedger interface {
	// Register fails with ErrAlreadyRegistered when the pair exists.
	Register(ctx context.Context, examID, userID int64, joinedAt time.Time) (domain.ExamParticipant, error)
	Find(ctx context.Context, examID, userID int64) (domain.ExamParticipant, error)
	ListByExam(ctx context.Context, examID int64) ([]domain.ExamParticipant, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.ExamParticipant, error)
	MarkStarted(ctx context.Context, participantID int64, at time.Time) error
	MarkCompleted(ctx context.Context, participantID int64, at time.Time, score int, quizAttemptID *int64) error
}

// Store groups the registry and the ledger so a join can write both atomically.
type Store interface {
	Exams() ExamRegistry
	Participants() ParticipationLedger
	RunInTx(ctx context.Context, fn func(ctx context.Context, exams ExamRegistry, participants ParticipationLedger) error) error
}

// QuestionBank loads question content (cache, Postgres, static).
type QuestionBank interface {
	FetchByIDs(ctx context.Context, ids []int64) ([]domain.Question, error)
	RandomIDs(ctx context.Context, categoryIDs []int64, limit int) ([]int64, error)
}

// UserDirectory resolves user profiles.
type UserDirectory interface {
	FindByIDs(ctx context.Context, ids []int64) (map[int64]domain.User, error)
}

// EventBus fans exam events out to lobby subscribers.
type EventBus interface {
	Publish(ctx context.Context, event domain.ExamEvent) error
	// Subscribe returns a channel of events for one exam. The caller must invoke the
	// returned cancel function to avoid leaks.
	Subscribe(ctx context.Context, examID int64) (<-chan domain.ExamEvent, func(), error)
}

const (
	defaultQuestionCount = 10
	maxQuestionCount     = 200
)

// CreateExamInput is what an organizer submits.
type CreateExamInput struct {
	Title           string
	Description     string
	StartTime       time.Time
	DurationMinutes int
	QuestionIDs     []int64
	CategoryIDs     []int64
	// QuestionCount is how many questions to draw for a category-based exam.
	QuestionCount   int
	MaxParticipants *int
}

// CreatorCapability proves the holder created an exam. Only Authorize mints one.
type CreatorCapability struct {
	examID    int64
	creatorID int64
}

// ExamID is the exam the capability applies to.
func (c CreatorCapability) ExamID() int64 { return c.examID }

// ExamService contains the scheduled exam use cases.
type ExamService struct {
	store         Store
	questions     QuestionBank
	users         UserDirectory
	events        EventBus
	log           logrus.FieldLogger
	now           func() time.Time
	questionCount int
}

// Option customizes an ExamService.
type Option func(*ExamService)

// WithClock is used by tests for deterministic time windows.
func WithClock(now func() time.Time) Option {
	return func(s *ExamService) { s.now = now }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *ExamService) { s.log = log }
}

func WithEventBus(bus EventBus) Option {
	return func(s *ExamService) { s.events = bus }
}

// WithDefaultQuestionCount sets the draw size for category exams that omit QuestionCount.
func WithDefaultQuestionCount(n int) Option {
	return func(s *ExamService) {
		if n > 0 {
			s.questionCount = n
		}
	}
}

func NewExamService(store Store, questions QuestionBank, users UserDirectory, opts ...Option) *ExamService {
	s := &ExamService{
		store:         store,
		questions:     questions,
		users:         users,
		events:        NewHub(),
		log:           logrus.StandardLogger(),
		now:           time.Now,
		questionCount: defaultQuestionCount,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateExam freezes the question set and registers a new exam.
func (s *ExamService) CreateExam(ctx context.Context, creatorID int64, in CreateExamInput) (domain.ScheduledExamView, error) {
	creator, err := s.user(ctx, creatorID)
	if err != nil {
		return domain.ScheduledExamView{}, err
	}

	exam := domain.ScheduledExam{
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		StartTime:       in.StartTime,
		DurationMinutes: in.DurationMinutes,
		QuestionIDs:     uniqueIDs(in.QuestionIDs),
		CategoryIDs:     uniqueIDs(in.CategoryIDs),
		IsActive:        true,
		CreatorID:       creatorID,
		CreatedAt:       s.now(),
	}
	if in.MaxParticipants != nil {
		limit := *in.MaxParticipants
		exam.MaxParticipants = &limit
	}
	if err := exam.Validate(); err != nil {
		return domain.ScheduledExamView{}, err
	}

	frozen, err := s.freezeQuestionSet(ctx, exam, in.QuestionCount)
	if err != nil {
		return domain.ScheduledExamView{}, err
	}
	exam.QuestionIDs = frozen
	exam.TotalQuestions = len(frozen)

	if err := s.store.Exams().Create(ctx, &exam); err != nil {
		return domain.ScheduledExamView{}, err
	}

	s.log.WithFields(logrus.Fields{
		"exam_id":         exam.ID,
		"exam_code":       exam.ExamCode,
		"user_id":         creatorID,
		"total_questions": exam.TotalQuestions,
	}).Info("exam created")

	return domain.NewScheduledExamView(exam, creator, false, s.now()), nil
}

// freezeQuestionSet resolves the concrete question ids once, at creation.
func (s *ExamService) freezeQuestionSet(ctx context.Context, exam domain.ScheduledExam, count int) ([]int64, error) {
	if len(exam.QuestionIDs) > 0 {
		found, err := s.questions.FetchByIDs(ctx, exam.QuestionIDs)
		if err != nil {
			return nil, fmt.Errorf("fetch questions: %w", err)
		}
		if len(found) != len(exam.QuestionIDs) {
			return nil, domain.Errorf(domain.ErrValidation, "one or more questionIds do not exist")
		}
		return exam.QuestionIDs, nil
	}

	if count <= 0 {
		count = s.questionCount
	}
	if count > maxQuestionCount {
		return nil, domain.Errorf(domain.ErrValidation, "questionCount must be at most %d", maxQuestionCount)
	}
	ids, err := s.questions.RandomIDs(ctx, exam.CategoryIDs, count)
	if err != nil {
		return nil, fmt.Errorf("draw questions: %w", err)
	}
	return ids, nil
}

// GetExamByCode looks an exam up by its public code.
func (s *ExamService) GetExamByCode(ctx context.Context, code string, userID int64) (domain.ScheduledExamView, error) {
	exam, err := s.store.Exams().FindByCode(ctx, domain.NormalizeExamCode(code))
	if err != nil {
		return domain.ScheduledExamView{}, err
	}
	registered, err := s.isRegistered(ctx, exam.ID, userID)
	if err != nil {
		return domain.ScheduledExamView{}, err
	}
	creator, err := s.userOrBlank(ctx, exam.CreatorID)
	if err != nil {
		return domain.ScheduledExamView{}, err
	}
	return domain.NewScheduledExamView(exam, creator, registered, s.now()), nil
}

// JoinExam registers userID for the exam behind code.
func (s *ExamService) JoinExam(ctx context.Context, userID int64, code string) (domain.ExamDetailsView, error) {
	if _, err := s.user(ctx, userID); err != nil {
		return domain.ExamDetailsView{}, err
	}

	exam, err := s.store.Exams().FindByCode(ctx, domain.NormalizeExamCode(code))
	if err != nil {
		return domain.ExamDetailsView{}, err
	}

	now := s.now()
	switch {
	case !exam.IsActive:
		return domain.ExamDetailsView{}, domain.ErrExamCancelled
	case exam.IsExpired(now):
		return domain.ExamDetailsView{}, domain.ErrExamExpired
	case exam.IsFull():
		return domain.ExamDetailsView{}, domain.ErrExamFull
	}

	var current int
	err = s.store.RunInTx(ctx, func(ctx context.Context, exams ExamRegistry, participants ParticipationLedger) error {
		if _, err := participants.Find(ctx, exam.ID, userID); err == nil {
			return domain.ErrAlreadyJoined
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		count, err := exams.IncrementParticipants(ctx, exam.ID)
		if err != nil {
			return err
		}
		// A concurrent join for the same pair trips the unique index here and
		// rolls the increment back with the transaction.
		if _, err := participants.Register(ctx, exam.ID, userID, now); err != nil {
			return err
		}
		current = count
		return nil
	})
	if err != nil {
		return domain.ExamDetailsView{}, err
	}

	s.log.WithFields(logrus.Fields{
		"exam_id":      exam.ID,
		"exam_code":    exam.ExamCode,
		"user_id":      userID,
		"participants": current,
	}).Info("participant joined")
	s.publish(ctx, domain.ExamEvent{
		Type:                domain.EventParticipantJoined,
		ExamID:              exam.ID,
		UserID:              userID,
		CurrentParticipants: current,
		At:                  now,
	})

	return s.GetExamDetails(ctx, exam.ID, userID)
}

// StartExam moves the caller's participation to STARTED inside the exam window.
func (s *ExamService) StartExam(ctx context.Context, userID, examID int64) (domain.ParticipantView, error) {
	participant, err := s.participant(ctx, examID, userID)
	if err != nil {
		return domain.ParticipantView{}, err
	}
	exam, err := s.store.Exams().FindByID(ctx, examID)
	if err != nil {
		return domain.ParticipantView{}, err
	}

	now := s.now()
	switch {
	case !exam.IsStarted(now):
		return domain.ParticipantView{}, domain.ErrNotYetOpen
	case exam.IsExpired(now):
		return domain.ParticipantView{}, domain.ErrExamExpired
	case participant.Status != domain.StatusRegistered:
		return domain.ParticipantView{}, domain.ErrAlreadyStartedOrCompleted
	}

	if err := s.store.Participants().MarkStarted(ctx, participant.ID, now); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return domain.ParticipantView{}, domain.ErrAlreadyStartedOrCompleted
		}
		return domain.ParticipantView{}, err
	}
	if err := participant.Start(now); err != nil {
		return domain.ParticipantView{}, err
	}

	s.log.WithFields(logrus.Fields{"exam_id": examID, "user_id": userID}).Info("participant started")
	s.publish(ctx, domain.ExamEvent{
		Type:                domain.EventParticipantStarted,
		ExamID:              examID,
		UserID:              userID,
		CurrentParticipants: exam.CurrentParticipants,
		At:                  now,
	})

	user, err := s.userOrBlank(ctx, userID)
	if err != nil {
		return domain.ParticipantView{}, err
	}
	return domain.NewParticipantView(participant, user, exam, now), nil
}

// CompleteExam records the result of a started participation.
func (s *ExamService) CompleteExam(ctx context.Context, userID, examID int64, score int, quizAttemptID *int64) (domain.ParticipantView, error) {
	if score < 0 {
		return domain.ParticipantView{}, domain.Errorf(domain.ErrValidation, "score must not be negative")
	}
	participant, err := s.participant(ctx, examID, userID)
	if err != nil {
		return domain.ParticipantView{}, err
	}
	exam, err := s.store.Exams().FindByID(ctx, examID)
	if err != nil {
		return domain.ParticipantView{}, err
	}

	now := s.now()
	if err := participant.Complete(now, score, quizAttemptID); err != nil {
		return domain.ParticipantView{}, err
	}
	if err := s.store.Participants().MarkCompleted(ctx, participant.ID, now, score, quizAttemptID); err != nil {
		return domain.ParticipantView{}, err
	}

	s.log.WithFields(logrus.Fields{"exam_id": examID, "user_id": userID, "score": score}).Info("participant completed")
	s.publish(ctx, domain.ExamEvent{
		Type:                domain.EventParticipantCompleted,
		ExamID:              examID,
		UserID:              userID,
		CurrentParticipants: exam.CurrentParticipants,
		At:                  now,
	})

	user, err := s.userOrBlank(ctx, userID)
	if err != nil {
		return domain.ParticipantView{}, err
	}
	return domain.NewParticipantView(participant, user, exam, now), nil
}

// GetExamQuestions returns the frozen question set, without answers, to a registered user.
func (s *ExamService) GetExamQuestions(ctx context.Context, userID, examID int64) ([]domain.QuestionView, error) {
	if _, err := s.participant(ctx, examID, userID); err != nil {
		return nil, err
	}
	exam, err := s.store.Exams().FindByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if len(exam.QuestionIDs) == 0 {
		return nil, domain.ErrNoQuestionsConfigured
	}

	questions, err := s.questions.FetchByIDs(ctx, exam.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	byID := make(map[int64]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	views := make([]domain.QuestionView, 0, len(exam.QuestionIDs))
	for _, id := range exam.QuestionIDs {
		if q, ok := byID[id]; ok {
			views = append(views, domain.NewQuestionView(q))
		}
	}
	return views, nil
}

// Authorize mints a creator capability for examID if userID created it.
func (s *ExamService) Authorize(ctx context.Context, userID, examID int64) (CreatorCapability, error) {
	exam, err := s.store.Exams().FindByID(ctx, examID)
	if err != nil {
		return CreatorCapability{}, err
	}
	if exam.CreatorID != userID {
		return CreatorCapability{}, domain.ErrForbidden
	}
	return CreatorCapability{examID: exam.ID, creatorID: exam.CreatorID}, nil
}

// CancelExam permanently deactivates the exam. Already-joined participants are untouched.
func (s *ExamService) CancelExam(ctx context.Context, capability CreatorCapability) error {
	if capability.examID == 0 {
		return domain.ErrForbidden
	}
	if err := s.store.Exams().Deactivate(ctx, capability.examID); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{"exam_id": capability.examID, "user_id": capability.creatorID}).Info("exam cancelled")
	s.publish(ctx, domain.ExamEvent{
		Type:   domain.EventExamCancelled,
		ExamID: capability.examID,
		UserID: capability.creatorID,
		At:     s.now(),
	})
	return nil
}

// GetExamDetails assembles the exam, all participants and the caller's own status.
func (s *ExamService) GetExamDetails(ctx context.Context, examID, userID int64) (domain.ExamDetailsView, error) {
	exam, err := s.store.Exams().FindByID(ctx, examID)
	if err != nil {
		return domain.ExamDetailsView{}, err
	}
	participants, err := s.store.Participants().ListByExam(ctx, examID)
	if err != nil {
		return domain.ExamDetailsView{}, err
	}

	ids := make([]int64, 0, len(participants)+1)
	ids = append(ids, exam.CreatorID)
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	users, err := s.users.FindByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return domain.ExamDetailsView{}, fmt.Errorf("load users: %w", err)
	}

	now := s.now()
	details := domain.ExamDetailsView{Participants: make([]domain.ParticipantView, 0, len(participants))}
	for _, p := range participants {
		view := domain.NewParticipantView(p, users[p.UserID], exam, now)
		details.Participants = append(details.Participants, view)
		if p.UserID == userID {
			status := view.Status
			details.UserRegistered = true
			details.UserStatus = &status
		}
	}
	details.Exam = domain.NewScheduledExamView(exam, users[exam.CreatorID], details.UserRegistered, now)
	return details, nil
}

// MyExams lists exams the user joined, most recent join first.
func (s *ExamService) MyExams(ctx context.Context, userID int64) ([]domain.ScheduledExamView, error) {
	participants, err := s.store.Participants().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	exams := make([]domain.ScheduledExam, 0, len(participants))
	for _, p := range participants {
		exam, err := s.store.Exams().FindByID(ctx, p.ExamID)
		if err != nil {
			return nil, err
		}
		exams = append(exams, exam)
	}
	return s.views(ctx, userID, exams)
}

// CreatedExams lists exams the user created, newest first.
func (s *ExamService) CreatedExams(ctx context.Context, userID int64) ([]domain.ScheduledExamView, error) {
	exams, err := s.store.Exams().ListByCreator(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, userID, exams)
}

// UpcomingExams lists active exams that have not started yet.
func (s *ExamService) UpcomingExams(ctx context.Context, userID int64) ([]domain.ScheduledExamView, error) {
	exams, err := s.store.Exams().ListUpcoming(ctx, s.now())
	if err != nil {
		return nil, err
	}
	return s.views(ctx, userID, exams)
}

// Subscribe streams lobby events for an existing exam.
func (s *ExamService) Subscribe(ctx context.Context, examID int64) (<-chan domain.ExamEvent, func(), error) {
	if _, err := s.store.Exams().FindByID(ctx, examID); err != nil {
		return nil, nil, err
	}
	return s.events.Subscribe(ctx, examID)
}

func (s *ExamService) views(ctx context.Context, userID int64, exams []domain.ScheduledExam) ([]domain.ScheduledExamView, error) {
	joined, err := s.store.Participants().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	registered := make(map[int64]bool, len(joined))
	for _, p := range joined {
		registered[p.ExamID] = true
	}

	creatorIDs := make([]int64, 0, len(exams))
	for _, e := range exams {
		creatorIDs = append(creatorIDs, e.CreatorID)
	}
	creators, err := s.users.FindByIDs(ctx, uniqueIDs(creatorIDs))
	if err != nil {
		return nil, fmt.Errorf("load creators: %w", err)
	}

	now := s.now()
	views := make([]domain.ScheduledExamView, 0, len(exams))
	for _, e := range exams {
		views = append(views, domain.NewScheduledExamView(e, creators[e.CreatorID], registered[e.ID], now))
	}
	return views, nil
}

func (s *ExamService) participant(ctx context.Context, examID, userID int64) (domain.ExamParticipant, error) {
	p, err := s.store.Participants().Find(ctx, examID, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ExamParticipant{}, domain.ErrNotRegistered
	}
	return p, err
}

func (s *ExamService) isRegistered(ctx context.Context, examID, userID int64) (bool, error) {
	_, err := s.store.Participants().Find(ctx, examID, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *ExamService) user(ctx context.Context, id int64) (domain.User, error) {
	users, err := s.users.FindByIDs(ctx, []int64{id})
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	u, ok := users[id]
	if !ok {
		return domain.User{}, domain.Errorf(domain.ErrNotFound, "user %d not found", id)
	}
	return u, nil
}

func (s *ExamService) userOrBlank(ctx context.Context, id int64) (domain.User, error) {
	users, err := s.users.FindByIDs(ctx, []int64{id})
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	return users[id], nil
}

// publish never fails the operation; the lobby is best effort.
func (s *ExamService) publish(ctx context.Context, event domain.ExamEvent) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.WithError(err).WithField("exam_id", event.ExamID).Warn("publish exam event")
	}
}

func uniqueIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
