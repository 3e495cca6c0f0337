package domain

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	// ExamCodeLength is the fixed length of a public exam code.
	ExamCodeLength = 8
	// DefaultCodeAttempts bounds how often a registry re-rolls a colliding code.
	DefaultCodeAttempts = 5

	examCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// CodeGenerator produces candidate exam codes.
type CodeGenerator func() (string, error)

// GenerateExamCode returns a random 8-character uppercase alphanumeric code.
func GenerateExamCode() (string, error) {
	var b strings.Builder
	b.Grow(ExamCodeLength)
	base := big.NewInt(int64(len(examCodeAlphabet)))
	for i := 0; i < ExamCodeLength; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		b.WriteByte(examCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeExamCode trims and upper-cases user input.
func NormalizeExamCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidExamCode reports whether code has the exam code shape.
func ValidExamCode(code string) bool {
	if len(code) != ExamCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(examCodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
