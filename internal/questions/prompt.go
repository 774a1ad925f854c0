package questions

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MaxResumeRunes caps the resume context sent to the model.
const MaxResumeRunes = 1000

const noResume = "No resume provided"

// ErrMalformed reports a model reply that is not a list of Count questions.
var ErrMalformed = errors.New("malformed question list")

const promptTemplate = `You are an expert technical interviewer.
Candidate applied for: %s.
Resume context: %s.

Generate exactly 3 interview questions.
1. One behavioral question.
2. One technical question specific to the role.
3. One situational question.

Return ONLY a JSON array of strings. Example: ["Question 1", "Question 2", "Question 3"].
Do not add markdown formatting like ` + "```json."

// BuildPrompt renders the generation prompt for role and resume.
func BuildPrompt(role, resume string) string {
	return fmt.Sprintf(promptTemplate, role, resumeContext(resume))
}

func resumeContext(resume string) string {
	if resume == "" {
		return noResume
	}
	r := []rune(resume)
	if len(r) > MaxResumeRunes {
		return string(r[:MaxResumeRunes])
	}
	return resume
}

// Parse extracts the question list from a model reply. Code fences are
// removed before decoding; the result must be exactly Count non-blank strings.
func Parse(reply string) ([]string, error) {
	cleaned := strings.ReplaceAll(reply, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var qs []string
	if err := json.Unmarshal([]byte(cleaned), &qs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(qs) != Count {
		return nil, fmt.Errorf("%w: got %d questions, want %d", ErrMalformed, len(qs), Count)
	}
	for i, q := range qs {
		q = strings.TrimSpace(q)
		if q == "" {
			return nil, fmt.Errorf("%w: question %d is blank", ErrMalformed, i+1)
		}
		qs[i] = q
	}
	return qs, nil
}

// FallbackFor returns the fixed list used for origin. OriginGenerated has no
// fallback and yields nil.
func FallbackFor(origin Origin, role string) []string {
	switch origin {
	case OriginNoCredential:
		return []string{
			"Describe a project you are proud of.",
			"How do you handle conflict?",
			"What are your strengths?",
		}
	case OriginRemoteFailure:
		return []string{
			"Tell me about a challenging project you worked on.",
			fmt.Sprintf("What are the key skills required for a %s?", role),
			"How do you handle tight deadlines?",
		}
	case OriginMalformed:
		return []string{
			fmt.Sprintf("Tell me about your experience as a %s.", role),
			"What is your biggest technical challenge?",
			"How do you prioritize tasks?",
		}
	}
	return nil
}
