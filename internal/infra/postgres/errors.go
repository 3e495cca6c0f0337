package postgres

import (
	"database/sql"
	"errors"

	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	uniqueViolation = "23505"

	examCodeConstraint        = "uq_scheduled_exams_exam_code"
	examParticipantConstraint = "uq_exam_participants_exam_user"
)

// isUniqueViolation reports whether err is a unique violation on constraint
// (any constraint when constraint is empty).
func isUniqueViolation(err error, constraint string) bool {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) || pgErr.Field('C') != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.Field('n') == constraint
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
