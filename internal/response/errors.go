package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"
	ErrTokenMismatch ErrCode = "TOKEN_INTERVIEW_MISMATCH"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Interview ─────────────────────────────────────────────────────
	ErrInterviewFinished   ErrCode = "INTERVIEW_FINISHED"
	ErrInterviewNotStarted ErrCode = "INTERVIEW_NOT_STARTED"
	ErrInterviewStarted    ErrCode = "INTERVIEW_ALREADY_STARTED"
	ErrNarrationInProgress ErrCode = "NARRATION_IN_PROGRESS"
	ErrInterviewLive       ErrCode = "INTERVIEW_ALREADY_LIVE"
	ErrResultNotReady      ErrCode = "RESULT_NOT_READY"
	ErrFullscreenDenied    ErrCode = "FULLSCREEN_DENIED"
	ErrUnknownAction       ErrCode = "UNKNOWN_ACTION"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "An interview token is required."
	case ErrTokenInvalid:
		return "The interview token is invalid."
	case ErrTokenExpired:
		return "The interview token has expired."
	case ErrTokenMismatch:
		return "The token does not belong to this interview."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Interview ─────────────────────────────────────────────────────
	case ErrInterviewFinished:
		return "This interview has already finished."
	case ErrInterviewNotStarted:
		return "The interview has not started yet."
	case ErrInterviewStarted:
		return "The interview has already started."
	case ErrNarrationInProgress:
		return "Please wait until the question has been read out."
	case ErrInterviewLive:
		return "This interview is already open in another window."
	case ErrResultNotReady:
		return "The interview has not finished yet."
	case ErrFullscreenDenied:
		return "Fullscreen was denied. Click to retry."
	case ErrUnknownAction:
		return "Unknown action."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
