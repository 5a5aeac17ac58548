package services

import (
	"time"

	"hirecorrecto/interview-orchestrator/internal/models"
)

const (
	thinkingCheckAfterMs = 5000
	suggestMoveOnAfterMs = 15000
	forceMoveAfterMs     = 30000
)

var interventionMessages = map[models.InterventionType]string{
	models.InterventionThinkingCheck: "Take your time. Are you still thinking, or would you like to continue with your answer?",
	models.InterventionSuggestMoveOn: "It's okay if you're not sure about this one. Would you like to move on to the next question?",
	models.InterventionForceMove:     "Let's move on to the next question.",
}

var intentAcknowledgments = map[models.CandidateIntent]string{
	models.IntentContinue:  "Sure, please continue.",
	models.IntentThinking:  "No problem, take your time.",
	models.IntentDone:      "Thank you. Let me review your answer.",
	models.IntentSkip:      "That's alright. Let's move on.",
	models.IntentAnswering: "Go ahead.",
}

func IntentAcknowledgment(intent models.CandidateIntent) string {
	return intentAcknowledgments[intent]
}

// ConversationState tracks silence and integrity for the current question.
// A fresh state is created with each question.
type ConversationState struct {
	Level            models.InterventionType
	SilenceMs        int64
	LastResponse     models.CandidateIntent
	Interventions    []models.InterventionRecord
	Deflections      []models.DeflectionRecord
	QuestionAttempts int
}

// ApplySilence escalates on an externally measured silence. It returns the
// intervention to emit, if any. The level never goes down here.
func (c *ConversationState) ApplySilence(silenceMs int64, now time.Time) (models.InterventionRecord, bool) {
	c.SilenceMs = silenceMs

	var next models.InterventionType
	switch {
	case silenceMs >= forceMoveAfterMs:
		if c.Level != models.InterventionForceMove {
			next = models.InterventionForceMove
		}
	case silenceMs >= suggestMoveOnAfterMs:
		if c.Level == models.InterventionThinkingCheck &&
			(c.LastResponse == models.IntentThinking || c.LastResponse == models.IntentContinue) {
			next = models.InterventionSuggestMoveOn
		}
	case silenceMs >= thinkingCheckAfterMs:
		if c.Level.Rank() == 0 {
			next = models.InterventionThinkingCheck
		}
	}

	if next == "" {
		return models.InterventionRecord{}, false
	}

	rec := models.InterventionRecord{
		Timestamp:  now,
		Type:       next,
		BotMessage: interventionMessages[next],
	}
	c.Level = next
	c.Interventions = append(c.Interventions, rec)
	return rec, true
}

type IntentTransition struct {
	ProcessAnswer bool
	Skip          bool
}

// ApplyIntent records the candidate's reply to the latest intervention and
// moves the state accordingly.
func (c *ConversationState) ApplyIntent(intent models.CandidateIntent, reply string, now time.Time) IntentTransition {
	if n := len(c.Interventions); n > 0 && c.Interventions[n-1].ResponseAt == nil {
		at := now
		c.Interventions[n-1].CandidateResponse = reply
		c.Interventions[n-1].ResponseAt = &at
	}
	c.LastResponse = intent

	var tr IntentTransition
	switch intent {
	case models.IntentContinue, models.IntentAnswering:
		c.SilenceMs = 0
		c.Level = models.InterventionNone
	case models.IntentThinking:
		c.SilenceMs = 0
	case models.IntentDone:
		tr.ProcessAnswer = true
	case models.IntentSkip:
		tr.Skip = true
	}
	return tr
}

// ApplyDeflection appends a deflection record. Clarifications are answered
// and do not count as an attempt.
func (c *ConversationState) ApplyDeflection(kind models.DeflectionType, candidateText, botResponse string, confidence float64, now time.Time) models.DeflectionRecord {
	rec := models.DeflectionRecord{
		Timestamp:     now,
		Type:          kind,
		CandidateText: candidateText,
		BotResponse:   botResponse,
		Confidence:    confidence,
	}
	c.Deflections = append(c.Deflections, rec)
	if kind != models.DeflectionLegitimateClarification {
		c.QuestionAttempts++
	}
	return rec
}

func IntegritySeverityFor(attempts int) models.IntegritySeverity {
	switch {
	case attempts >= 4:
		return models.SeverityHigh
	case attempts >= 2:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
