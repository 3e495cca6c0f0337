package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"scheduled-exam-service/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

type errorResponse struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeNotFound, domain.CodeNotRegistered:
		return http.StatusNotFound
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeAlreadyJoined,
		domain.CodeExamFull,
		domain.CodeExamCancelled,
		domain.CodeExamExpired,
		domain.CodeNotYetOpen,
		domain.CodeAlreadyStartedOrCompleted,
		domain.CodeNoQuestionsConfigured,
		domain.CodeInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps business errors to their status; anything else is logged and hidden.
func writeError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	code, ok := domain.CodeOf(err)
	if !ok {
		log.WithError(err).WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": RequestIDFrom(r.Context()),
		}).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "INTERNAL", Message: "internal error"})
		return
	}
	writeJSON(w, statusFor(code), errorResponse{Code: code, Message: err.Error()})
}

// validationError flattens validator output into one VALIDATION_ERROR.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.Errorf(domain.ErrValidation, "%v", err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" failed "+fe.Tag())
	}
	return domain.Errorf(domain.ErrValidation, "%s", strings.Join(parts, "; "))
}
