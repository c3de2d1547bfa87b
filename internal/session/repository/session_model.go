package repository

import "time"

// Status is the session lifecycle state as persisted. Terminal states are
// never left once entered.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// Valid reports whether the status is one of the persisted values.
func (s Status) Valid() bool {
	switch s {
	case StatusInProgress, StatusCompleted, StatusAbandoned:
		return true
	}
	return false
}

type Visibility string

const (
	VisibilityPrivate  Visibility = "private"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPublic   Visibility = "public"
)

// Session is one interview session row. IDs are client-generated UUIDs.
type Session struct {
	ID         string
	UserID     int64
	QuestionID int64
	Status     Status
	StartedAt  time.Time
	EndedAt    *time.Time
	FinalCode  *string
	Transcript *string
	Events     *string // JSON blob: {"scorecard": ..., "testResults": ...}
	Visibility Visibility
}

// Patch is the set of fields a conditional update may write alongside the
// status transition. Nil fields are left untouched.
type Patch struct {
	Status     Status
	EndedAt    *time.Time
	FinalCode  *string
	Transcript *string
	Events     *string
}
