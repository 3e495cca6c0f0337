package domain

import "time"

// ExamEventType names a lobby notification.
type ExamEventType string

const (
	EventParticipantJoined    ExamEventType = "participant_joined"
	EventParticipantStarted   ExamEventType = "participant_started"
	EventParticipantCompleted ExamEventType = "participant_completed"
	EventExamCancelled        ExamEventType = "exam_cancelled"
)

// ExamEvent is broadcast to everyone watching an exam's lobby.
type ExamEvent struct {
	Type                ExamEventType `json:"type"`
	ExamID              int64         `json:"examId"`
	UserID              int64         `json:"userId"`
	CurrentParticipants int           `json:"currentParticipants"`
	At                  time.Time     `json:"at"`
}
