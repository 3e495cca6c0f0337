package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable, client-facing identifier of a business-rule failure.
type ErrorCode string

const (
	CodeNotFound                  ErrorCode = "NOT_FOUND"
	CodeValidation                ErrorCode = "VALIDATION_ERROR"
	CodeForbidden                 ErrorCode = "FORBIDDEN"
	CodeUnauthorized              ErrorCode = "UNAUTHORIZED"
	CodeAlreadyJoined             ErrorCode = "ALREADY_JOINED"
	CodeExamFull                  ErrorCode = "EXAM_FULL"
	CodeExamCancelled             ErrorCode = "EXAM_CANCELLED"
	CodeExamExpired               ErrorCode = "EXAM_EXPIRED"
	CodeNotYetOpen                ErrorCode = "NOT_YET_OPEN"
	CodeAlreadyStartedOrCompleted ErrorCode = "ALREADY_STARTED_OR_COMPLETED"
	CodeNotRegistered             ErrorCode = "NOT_REGISTERED"
	CodeNoQuestionsConfigured     ErrorCode = "NO_QUESTIONS_CONFIGURED"
	CodeInvalidTransition         ErrorCode = "INVALID_TRANSITION"
)

// Error is a typed business-rule failure. Sentinels below are compared with errors.Is.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	// ErrNotFound is returned when an exam, participant or user lookup misses.
	ErrNotFound = &Error{Code: CodeNotFound, Message: "not found"}
	// ErrValidation indicates a malformed create request.
	ErrValidation = &Error{Code: CodeValidation, Message: "validation failed"}
	// ErrForbidden is returned when a caller lacks the capability for an action.
	ErrForbidden = &Error{Code: CodeForbidden, Message: "only the exam creator may do this"}
	// ErrUnauthorized indicates a missing or invalid bearer token.
	ErrUnauthorized = &Error{Code: CodeUnauthorized, Message: "authentication required"}
	// ErrAlreadyJoined is returned when a user joins the same exam twice.
	ErrAlreadyJoined = &Error{Code: CodeAlreadyJoined, Message: "already registered for this exam"}
	// ErrAlreadyRegistered is the ledger's name for a duplicate (exam, user) pair.
	ErrAlreadyRegistered = ErrAlreadyJoined
	// ErrExamFull is returned when the exam reached maxParticipants.
	ErrExamFull = &Error{Code: CodeExamFull, Message: "exam is full"}
	// ErrExamCancelled is returned when the creator deactivated the exam.
	ErrExamCancelled = &Error{Code: CodeExamCancelled, Message: "exam is not active"}
	// ErrExamExpired is returned once startTime + duration has passed.
	ErrExamExpired = &Error{Code: CodeExamExpired, Message: "exam time is over"}
	// ErrNotYetOpen is returned when starting before startTime.
	ErrNotYetOpen = &Error{Code: CodeNotYetOpen, Message: "exam has not started yet"}
	// ErrAlreadyStartedOrCompleted is returned when starting twice.
	ErrAlreadyStartedOrCompleted = &Error{Code: CodeAlreadyStartedOrCompleted, Message: "exam already started"}
	// ErrNotRegistered is returned when a user acts on an exam they never joined.
	ErrNotRegistered = &Error{Code: CodeNotRegistered, Message: "not registered for this exam"}
	// ErrNoQuestionsConfigured is returned when the frozen question set is empty.
	ErrNoQuestionsConfigured = &Error{Code: CodeNoQuestionsConfigured, Message: "exam has no questions"}
	// ErrInvalidTransition is returned by the ledger when a status change is not allowed.
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition, Message: "invalid participant status transition"}
)

// detailedError carries a specific message while still matching its sentinel.
type detailedError struct {
	base *Error
	msg  string
}

func (e *detailedError) Error() string { return e.msg }

func (e *detailedError) Unwrap() error { return e.base }

// Errorf returns an error that matches base via errors.Is but reports a specific message.
func Errorf(base *Error, format string, args ...any) error {
	return &detailedError{base: base, msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the business code from err, if it carries one.
func CodeOf(err error) (ErrorCode, bool) {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Code, true
	}
	return "", false
}
