package models

import "time"

type QuestionKind string

const (
	KindMandatory QuestionKind = "mandatory"
	// KindOptional marks a generated question modelled on optional pool
	// references.
	KindOptional  QuestionKind = "optional"
	KindGenerated QuestionKind = "generated"
	KindFollowUp  QuestionKind = "follow_up"
)

type QuestionStatus string

const (
	QuestionPending  QuestionStatus = "pending"
	QuestionAnswered QuestionStatus = "answered"
	QuestionSkipped  QuestionStatus = "skipped"
)

type SkipReason string

const (
	SkipTimeout            SkipReason = "timeout"
	SkipCandidateRequested SkipReason = "candidate_requested"
)

type IntegritySeverity string

const (
	SeverityLow    IntegritySeverity = "low"
	SeverityMedium IntegritySeverity = "medium"
	SeverityHigh   IntegritySeverity = "high"
)

// QuestionRecord is one question asked in a session together with everything
// attached to it once it has been answered or skipped.
type QuestionRecord struct {
	ID             string         `json:"id"`
	Text           string         `json:"text"`
	Kind           QuestionKind   `json:"kind"`
	Order          int            `json:"order"`
	Skills         []string       `json:"skills,omitempty"`
	PoolQuestionID string         `json:"pool_question_id,omitempty"`
	Status         QuestionStatus `json:"status"`
	SkipReason     SkipReason     `json:"skip_reason,omitempty"`
	AskedAt        time.Time      `json:"asked_at"`
	Usage          *UsageCounter  `json:"usage,omitempty"`

	Transcript        string               `json:"transcript,omitempty"`
	Evaluation        *EvaluationResult    `json:"evaluation,omitempty"`
	Cheating          *CheatingAssessment  `json:"cheating,omitempty"`
	Turns             []ConversationTurn   `json:"turns,omitempty"`
	Interventions     []InterventionRecord `json:"interventions,omitempty"`
	Deflections       []DeflectionRecord   `json:"deflections,omitempty"`
	QuestionAttempts  int                  `json:"question_attempts"`
	IntegritySeverity IntegritySeverity    `json:"integrity_severity,omitempty"`
}

// AnsweredSummary is the short form of an answered question fed back into
// later prompts for continuity.
type AnsweredSummary struct {
	QuestionID string           `json:"question_id"`
	Question   string           `json:"question"`
	Skills     []string         `json:"skills,omitempty"`
	Transcript string           `json:"transcript"`
	Evaluation EvaluationResult `json:"evaluation"`
	NextAction NextAction       `json:"next_action"`
}
