package model

import (
	"time"

	"github.com/google/uuid"
)

// InterviewStatus enumerates interview lifecycle states.
type InterviewStatus string

const (
	InterviewStatusCreated    InterviewStatus = "CREATED"
	InterviewStatusInProgress InterviewStatus = "IN_PROGRESS"
	InterviewStatusFinished   InterviewStatus = "FINISHED"
)

// Interview is one mock interview: the candidate's setup plus its fixed
// question set.
type Interview struct {
	ID             uuid.UUID       `json:"id"`
	Role           string          `json:"role"`
	Description    string          `json:"description,omitempty"`
	ResumeText     string          `json:"-"`
	Questions      []string        `json:"questions"`
	QuestionOrigin string          `json:"question_origin"`
	Status         InterviewStatus `json:"status"`
	ViolationCount int             `json:"violation_count"`
	IntegrityScore *int            `json:"integrity_score,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

// CreateInterviewRequest is the setup form payload.
type CreateInterviewRequest struct {
	Role        string `json:"role" binding:"omitempty,notblank,max=120"`
	Description string `json:"description" binding:"omitempty,maxrunes=2000"`
	ResumeText  string `json:"resume_text" binding:"omitempty,maxrunes=20000"`
}

// CreateInterviewResponse carries the new interview and its access tokens.
type CreateInterviewResponse struct {
	Interview    *Interview `json:"interview"`
	Token        string     `json:"token"`
	MonitorToken string     `json:"monitor_token"`
}
