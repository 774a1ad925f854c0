package model

import (
	"time"

	"github.com/google/uuid"
)

// Violation is one persisted proctoring event.
type Violation struct {
	ID          int64     `json:"id"`
	InterviewID uuid.UUID `json:"interview_id"`
	Reason      string    `json:"reason"`
	Message     string    `json:"message"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// InterviewResult is what the results page receives once the interview ends.
type InterviewResult struct {
	InterviewID    uuid.UUID   `json:"interview_id"`
	Role           string      `json:"role"`
	ViolationCount int         `json:"violation_count"`
	IntegrityScore int         `json:"integrity_score"`
	FinishedAt     time.Time   `json:"finished_at"`
	Violations     []Violation `json:"violations"`
}

// ViolationMessage is queued for the violation worker.
type ViolationMessage struct {
	InterviewID string `json:"interview_id"`
	Reason      string `json:"reason"`
	Message     string `json:"message"`
	Timestamp   int64  `json:"timestamp"` // unix millis
}

// FinishMessage is queued for the result worker.
type FinishMessage struct {
	InterviewID    string `json:"interview_id"`
	ViolationCount int    `json:"violation_count"`
	IntegrityScore int    `json:"integrity_score"`
	FinishedAt     int64  `json:"finished_at"` // unix millis
}
