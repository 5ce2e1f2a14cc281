package domain

import "strings"

// Provider delivery statuses reported by the call provider webhook.
const (
	ProviderInitiated  = "initiated"
	ProviderQueued     = "queued"
	ProviderRinging    = "ringing"
	ProviderAnswered   = "answered"
	ProviderInProgress = "in-progress"
	ProviderCompleted  = "completed"
	ProviderNoAnswer   = "no-answer"
	ProviderBusy       = "busy"
	ProviderFailed     = "failed"
	ProviderCanceled   = "canceled"
)

const (
	// AnsweredMinSeconds is the duration a completed call must exceed to count as answered.
	AnsweredMinSeconds = 10
	// NoAnswerMaxSeconds is the longest completed call still treated as unanswered.
	NoAnswerMaxSeconds = 5
)

// ClassifyProviderStatus maps a provider delivery status and call duration to
// the call status it implies. ok is false when the callback carries no usable
// outcome: unknown statuses, intermediate states, and completed calls whose
// duration falls between the two thresholds.
func ClassifyProviderStatus(status string, durationSeconds *int) (CallStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case ProviderRinging:
		return CallRinging, true
	case ProviderNoAnswer, ProviderBusy, ProviderFailed, ProviderCanceled:
		return CallNoAnswer, true
	case ProviderCompleted:
		if durationSeconds == nil {
			return CallNoAnswer, true
		}
		switch d := *durationSeconds; {
		case d > AnsweredMinSeconds:
			return CallAnswered, true
		case d <= NoAnswerMaxSeconds:
			return CallNoAnswer, true
		default:
			return "", false
		}
	default:
		return "", false
	}
}
