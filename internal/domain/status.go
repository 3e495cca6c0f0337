package domain

// ParticipantStatus is the participation state machine:
//
//	REGISTERED --start--> STARTED --complete--> COMPLETED
type ParticipantStatus string

const (
	StatusRegistered ParticipantStatus = "REGISTERED"
	StatusStarted    ParticipantStatus = "STARTED"
	StatusCompleted  ParticipantStatus = "COMPLETED"
	// StatusMissed is derived at read time and never stored.
	StatusMissed ParticipantStatus = "MISSED"
)

// ParseStatus accepts only the stored statuses.
func ParseStatus(raw string) (ParticipantStatus, error) {
	switch s := ParticipantStatus(raw); s {
	case StatusRegistered, StatusStarted, StatusCompleted:
		return s, nil
	default:
		return "", Errorf(ErrInvalidTransition, "unknown participant status %q", raw)
	}
}

// Next returns the single status reachable from s, if any.
func (s ParticipantStatus) Next() (ParticipantStatus, bool) {
	switch s {
	case StatusRegistered:
		return StatusStarted, true
	case StatusStarted:
		return StatusCompleted, true
	case StatusCompleted, StatusMissed:
		return "", false
	default:
		return "", false
	}
}

// Transition validates s -> to.
func (s ParticipantStatus) Transition(to ParticipantStatus) error {
	if next, ok := s.Next(); ok && next == to {
		return nil
	}
	return Errorf(ErrInvalidTransition, "cannot move participant from %s to %s", s, to)
}

// Rank orders statuses along the state machine; unknown values rank -1.
func (s ParticipantStatus) Rank() int {
	switch s {
	case StatusRegistered:
		return 0
	case StatusStarted:
		return 1
	case StatusCompleted:
		return 2
	default:
		return -1
	}
}
