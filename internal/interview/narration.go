package interview

import (
	"context"
	"strings"
)

// DefaultRate is the speaking rate multiplier used when none is configured.
const DefaultRate = 1.0

// Utterance is one request to narrate text.
// Token identifies it in the start/end notifications that come back.
type Utterance struct {
	Text  string  `json:"text"`
	Rate  float64 `json:"rate"`
	Voice string  `json:"voice,omitempty"`
	Token uint64  `json:"token"`
}

// Narrator turns text into speech somewhere outside the session.
//
// Speak must not block until the speech finishes: completion is reported
// later as a notify.KindNarrationEnded event carrying the utterance token.
// Starting a new utterance interrupts any that is still playing.
type Narrator interface {
	Speak(ctx context.Context, u Utterance) error
}

// VoicePreference describes which synthesized voice to prefer.
// A voice matches when its name contains at least one AnyOf keyword (if any
// are set) and every AllOf keyword. Matching is case-sensitive, like the
// browser voice names it is applied to.
type VoicePreference struct {
	AnyOf []string
	AllOf []string
}

// DefaultVoicePreference prefers a high-quality female voice.
var DefaultVoicePreference = VoicePreference{
	AnyOf: []string{"Google", "Premium"},
	AllOf: []string{"Female"},
}

// Matches reports whether name satisfies the preference.
func (p VoicePreference) Matches(name string) bool {
	if len(p.AnyOf) > 0 {
		found := false
		for _, kw := range p.AnyOf {
			if strings.Contains(name, kw) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, kw := range p.AllOf {
		if !strings.Contains(name, kw) {
			return false
		}
	}
	return true
}

// SelectVoice picks the first available voice matching pref, else the first
// available voice, else "" (let the client use its default).
func SelectVoice(available []string, pref VoicePreference) string {
	for _, v := range available {
		if pref.Matches(v) {
			return v
		}
	}
	if len(available) > 0 {
		return available[0]
	}
	return ""
}
