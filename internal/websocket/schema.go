package websocket

import (
	"github.com/mockai/mockai-backend/internal/interview"
	"github.com/mockai/mockai-backend/internal/proctor"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionVoices           Action = "voices"
	ActionBegin            Action = "begin"
	ActionAdvance          Action = "advance"
	ActionVisibility       Action = "visibility"
	ActionFullscreen       Action = "fullscreen"
	ActionFullscreenDenied Action = "fullscreen_denied"
	ActionRetryFullscreen  Action = "retry_fullscreen"
	ActionNarrationStarted Action = "narration_started"
	ActionNarrationEnded   Action = "narration_ended"
	ActionPing             Action = "ping"
)

// RequestPayload is the single client message shape. Which fields are read
// depends on Action; visible and active are required for their actions:
//
//	voices             Voices
//	visibility         Visible
//	fullscreen         Active
//	fullscreen_denied  Reason
//	narration_*        Token
type RequestPayload struct {
	Action  Action   `json:"action"`
	Voices  []string `json:"voices,omitempty"`
	Visible *bool    `json:"visible,omitempty"`
	Active  *bool    `json:"active,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	Token   uint64   `json:"token,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState             Event = "state"
	EventNarrate           Event = "narrate"
	EventRequestFullscreen Event = "request_fullscreen"
	EventViolation         Event = "violation"
	EventLocked            Event = "locked"
	EventFinished          Event = "finished"
	EventError             Event = "error"
	EventPong              Event = "pong"
)

// ProctorSummary is the monitor state as shown to the candidate.
type ProctorSummary struct {
	ViolationCount    int  `json:"violation_count"`
	IntegrityScore    int  `json:"integrity_score"`
	IsInFullscreen    bool `json:"is_in_fullscreen"`
	FullscreenDenials int  `json:"fullscreen_denials"`
}

// SummarizeProctor converts a monitor snapshot for the wire.
func SummarizeProctor(s proctor.State) ProctorSummary {
	return ProctorSummary{
		ViolationCount:    s.ViolationCount,
		IntegrityScore:    proctor.IntegrityScore(s.ViolationCount),
		IsInFullscreen:    s.IsInFullscreen,
		FullscreenDenials: s.FullscreenDenials,
	}
}

type StateResponse struct {
	Event   Event           `json:"event"`
	Session interview.State `json:"session"`
	Proctor ProctorSummary  `json:"proctor"`
}

type NarrateResponse struct {
	Event     Event               `json:"event"`
	Utterance interview.Utterance `json:"utterance"`
}

type RequestFullscreenResponse struct {
	Event Event `json:"event"`
}

type ViolationResponse struct {
	Event     Event                  `json:"event"`
	Violation proctor.ViolationEvent `json:"violation"`
	Proctor   ProctorSummary         `json:"proctor"`
}

type LockedResponse struct {
	Event   Event  `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type FinishedResponse struct {
	Event          Event  `json:"event"`
	InterviewID    string `json:"interview_id"`
	ViolationCount int    `json:"violation_count"`
	IntegrityScore int    `json:"integrity_score"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
