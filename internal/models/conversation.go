package models

import "time"

type Speaker string

const (
	SpeakerBot       Speaker = "bot"
	SpeakerCandidate Speaker = "candidate"
)

type ConversationTurn struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	MediaRef  string    `json:"media_ref,omitempty"`
}

type InterventionType string

const (
	InterventionNone          InterventionType = "none"
	InterventionThinkingCheck InterventionType = "thinking_check"
	InterventionSuggestMoveOn InterventionType = "suggest_move_on"
	InterventionForceMove     InterventionType = "force_move"
)

// Rank orders intervention levels so escalation can be checked as monotonic.
func (t InterventionType) Rank() int {
	switch t {
	case InterventionThinkingCheck:
		return 1
	case InterventionSuggestMoveOn:
		return 2
	case InterventionForceMove:
		return 3
	}
	return 0
}

type InterventionRecord struct {
	Timestamp         time.Time        `json:"timestamp"`
	Type              InterventionType `json:"type"`
	BotMessage        string           `json:"bot_message"`
	CandidateResponse string           `json:"candidate_response,omitempty"`
	ResponseAt        *time.Time       `json:"response_at,omitempty"`
}

type CandidateIntent string

const (
	IntentNone      CandidateIntent = ""
	IntentContinue  CandidateIntent = "continue"
	IntentDone      CandidateIntent = "done"
	IntentThinking  CandidateIntent = "thinking"
	IntentSkip      CandidateIntent = "skip"
	IntentAnswering CandidateIntent = "answering"
)

func (i CandidateIntent) Valid() bool {
	switch i {
	case IntentContinue, IntentDone, IntentThinking, IntentSkip, IntentAnswering:
		return true
	}
	return false
}

type DeflectionType string

const (
	DeflectionNone                    DeflectionType = ""
	DeflectionAskingQuestion          DeflectionType = "asking_question"
	DeflectionRequestingAnswer        DeflectionType = "requesting_answer"
	DeflectionRoleReversal            DeflectionType = "role_reversal"
	DeflectionLegitimateClarification DeflectionType = "legitimate_clarification"
)

func (d DeflectionType) Valid() bool {
	switch d {
	case DeflectionAskingQuestion, DeflectionRequestingAnswer, DeflectionRoleReversal, DeflectionLegitimateClarification:
		return true
	}
	return false
}

type DeflectionRecord struct {
	Timestamp     time.Time      `json:"timestamp"`
	Type          DeflectionType `json:"type"`
	CandidateText string         `json:"candidate_text"`
	BotResponse   string         `json:"bot_response"`
	Confidence    float64        `json:"confidence"`
}
