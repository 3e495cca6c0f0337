package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"scheduled-exam-service/internal/app"
	"scheduled-exam-service/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// ExamHandler exposes the scheduled exam use cases over REST.
type ExamHandler struct {
	service  *app.ExamService
	validate *validator.Validate
	log      logrus.FieldLogger
}

func NewExamHandler(service *app.ExamService, log logrus.FieldLogger) *ExamHandler {
	return &ExamHandler{service: service, validate: validator.New(), log: log}
}

type createExamRequest struct {
	Title           string    `json:"title" validate:"required,max=200"`
	Description     string    `json:"description" validate:"max=2000"`
	StartTime       time.Time `json:"startTime" validate:"required"`
	DurationMinutes int       `json:"durationMinutes" validate:"required,gt=0,lte=1440"`
	QuestionIDs     []int64   `json:"questionIds" validate:"omitempty,max=200,dive,gt=0"`
	CategoryIDs     []int64   `json:"categoryIds" validate:"omitempty,dive,gt=0"`
	QuestionCount   int       `json:"questionCount" validate:"gte=0,lte=200"`
	MaxParticipants *int      `json:"maxParticipants" validate:"omitempty,gt=0"`
}

type joinExamRequest struct {
	ExamCode string `json:"examCode" validate:"required,len=8,alphanum"`
}

type completeExamRequest struct {
	Score         *int   `json:"score" validate:"required,gte=0"`
	QuizAttemptID *int64 `json:"quizAttemptId" validate:"omitempty,gt=0"`
}

// Register mounts every exam route behind auth. lobby serves GET /exams/{id}/lobby.
func (h *ExamHandler) Register(mux *http.ServeMux, auth func(http.Handler) http.Handler, lobby http.Handler) {
	routes := map[string]http.HandlerFunc{
		"POST /exams":               h.create,
		"POST /exams/join":          h.join,
		"GET /exams/{id}/{view}":    h.view(lobby),
		"POST /exams/{id}/start":    h.start,
		"POST /exams/{id}/complete": h.complete,
		"GET /exams/my-exams":       h.myExams,
		"GET /exams/created":        h.createdExams,
		"GET /exams/upcoming":       h.upcoming,
		"DELETE /exams/{id}/cancel": h.cancel,
	}
	for pattern, handler := range routes {
		mux.Handle(pattern, auth(handler))
	}
}

// view dispatches the GET /exams/{id}/... reads. /exams/code/{code} shares the
// pattern because the mux cannot register it beside /exams/{id}/details.
func (h *ExamHandler) view(lobby http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "code" {
			h.getByCode(w, r)
			return
		}
		switch r.PathValue("view") {
		case "details":
			h.details(w, r)
		case "questions":
			h.questions(w, r)
		case "lobby":
			lobby.ServeHTTP(w, r)
		default:
			writeError(w, r, h.log, domain.Errorf(domain.ErrNotFound, "no route for %s", r.URL.Path))
		}
	}
}

func (h *ExamHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, err := mustUserID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req createExamRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	view, err := h.service.CreateExam(r.Context(), userID, app.CreateExamInput{
		Title:           req.Title,
		Description:     req.Description,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		QuestionIDs:     req.QuestionIDs,
		CategoryIDs:     req.CategoryIDs,
		QuestionCount:   req.QuestionCount,
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ExamHandler) getByCode(w http.ResponseWriter, r *http.Request) {
	userID, err := mustUserID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	view, err := h.service.GetExamByCode(r.Context(), r.PathValue("view"), userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ExamHandler) join(w http.ResponseWriter, r *http.Request) {
	userID, err := mustUserID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req joinExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.log, domain.Errorf(domain.ErrValidation, "invalid JSON body"))
		return
	}
	req.ExamCode = domain.NormalizeExamCode(req.ExamCode)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, h.log, validationError(err))
		return
	}
	details, err := h.service.JoinExam(r.Context(), userID, req.ExamCode)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *ExamHandler) details(w http.ResponseWriter, r *http.Request) {
	userID, examID, err := userAndExam(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	details, err := h.service.GetExamDetails(r.Context(), examID, userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *ExamHandler) start(w http.ResponseWriter, r *http.Request) {
	userID, examID, err := userAndExam(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	view, err := h.service.StartExam(r.Context(), userID, examID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ExamHandler) complete(w http.ResponseWriter, r *http.Request) {
	userID, examID, err := userAndExam(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req completeExamRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	view, err := h.service.CompleteExam(r.Context(), userID, examID, *req.Score, req.QuizAttemptID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ExamHandler) questions(w http.ResponseWriter, r *http.Request) {
	userID, examID, err := userAndExam(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	questions, err := h.service.GetExamQuestions(r.Context(), userID, examID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *ExamHandler) myExams(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.MyExams)
}

func (h *ExamHandler) createdExams(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.CreatedExams)
}

func (h *ExamHandler) upcoming(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.UpcomingExams)
}

func (h *ExamHandler) cancel(w http.ResponseWriter, r *http.Request) {
	userID, examID, err := userAndExam(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	capability, err := h.service.Authorize(r.Context(), userID, examID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.service.CancelExam(r.Context(), capability); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "exam cancelled"})
}

func (h *ExamHandler) list(w http.ResponseWriter, r *http.Request, fetch func(ctx context.Context, userID int64) ([]domain.ScheduledExamView, error)) {
	userID, err := mustUserID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	views, err := fetch(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *ExamHandler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.Errorf(domain.ErrValidation, "invalid JSON body")
	}
	if err := h.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func userAndExam(r *http.Request) (int64, int64, error) {
	userID, err := mustUserID(r)
	if err != nil {
		return 0, 0, err
	}
	examID, err := pathID(r)
	if err != nil {
		return 0, 0, err
	}
	return userID, examID, nil
}

func pathID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.PathValue("id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Errorf(domain.ErrValidation, "invalid exam id %q", raw)
	}
	return id, nil
}
