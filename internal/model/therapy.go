package model

import "time"

type TherapyStatus string

const (
	TherapyRequested  TherapyStatus = "requested"
	TherapyAccepted   TherapyStatus = "accepted"
	TherapyInProgress TherapyStatus = "in_progress"
	TherapyEnded      TherapyStatus = "ended"
)

// TherapySession is a time-boxed conversation between a user and a
// therapist. Status only ever moves forward.
type TherapySession struct {
	ID                int64         `json:"id"`
	UserRef           string        `json:"user_session_id"`
	UserEmail         string        `json:"user_email"`
	TherapistID       string        `json:"therapist_id,omitempty"`
	Status            TherapyStatus `json:"status"`
	ScheduledDuration int           `json:"scheduled_duration"`
	CreatedAt         time.Time     `json:"created_at"`
	AcceptedAt        *time.Time    `json:"accepted_at"`
	StartedAt         *time.Time    `json:"started_at"`
	EndedAt           *time.Time    `json:"ended_at"`
	ActualDuration    *int          `json:"actual_duration"`
}
