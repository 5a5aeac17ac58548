package services

import (
	"sync"
	"time"

	"hirecorrecto/interview-orchestrator/internal/models"
)

// session is the live state of one interview attempt. Every field is guarded
// by mu; provider calls are never made while mu is held.
type session struct {
	mu sync.Mutex

	id          string
	interviewID string
	candidateID string
	ictx        models.InterviewContext
	model       string

	usage     models.UsageCounter
	questions []*questionState
	answered  []models.AnsweredSummary
	outcomes  map[string]*AnswerOutcome
	nextOrder int
	currentID string

	ended    bool
	complete bool

	createdAt    time.Time
	lastActivity time.Time
}

type questionState struct {
	record     models.QuestionRecord
	conv       ConversationState
	transcript transcriptBuffer
}

// SessionView is a read-only copy of the session handed to the engines while
// the session lock is released.
type SessionView struct {
	SessionID   string
	InterviewID string
	CandidateID string
	Context     models.InterviewContext
	Model       string
	Questions   []models.QuestionRecord
	Answered    []models.AnsweredSummary
	NextOrder   int
}

// SessionSnapshot is everything the caller persists for a session.
type SessionSnapshot struct {
	SessionID   string                  `json:"session_id"`
	InterviewID string                  `json:"interview_id"`
	CandidateID string                  `json:"candidate_id"`
	Model       string                  `json:"model"`
	Questions   []models.QuestionRecord `json:"questions"`
	Usage       models.UsageSummary     `json:"usage"`
	Complete    bool                    `json:"complete"`
	StartedAt   time.Time               `json:"started_at"`
}

func newSession(id, interviewID, candidateID string, ictx models.InterviewContext, model string, now time.Time) *session {
	return &session{
		id:           id,
		interviewID:  interviewID,
		candidateID:  candidateID,
		ictx:         ictx,
		model:        model,
		outcomes:     make(map[string]*AnswerOutcome),
		nextOrder:    1,
		createdAt:    now,
		lastActivity: now,
	}
}

func (s *session) question(id string) *questionState {
	for _, q := range s.questions {
		if q.record.ID == id {
			return q
		}
	}
	return nil
}

// questionAtOrLater returns the first question whose order is >= order.
func (s *session) questionAtOrLater(order int) *questionState {
	for _, q := range s.questions {
		if q.record.Order >= order {
			return q
		}
	}
	return nil
}

func (s *session) touch(now time.Time) {
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
}

func (s *session) reachedMax() bool {
	return s.ictx.MaxQuestions > 0 && len(s.questions) >= s.ictx.MaxQuestions
}

// appendQuestion assigns the next order index and makes rec the current
// question. Order indices are never reused.
func (s *session) appendQuestion(rec models.QuestionRecord, now time.Time) *questionState {
	if rec.Order < s.nextOrder {
		rec.Order = s.nextOrder
	}
	rec.Status = models.QuestionPending
	if rec.AskedAt.IsZero() {
		rec.AskedAt = now
	}

	q := &questionState{record: rec}
	q.transcript.addBotTurn(rec.Text, now)

	s.questions = append(s.questions, q)
	s.nextOrder = rec.Order + 1
	s.currentID = rec.ID
	return q
}

func (s *session) view() SessionView {
	v := SessionView{
		SessionID:   s.id,
		InterviewID: s.interviewID,
		CandidateID: s.candidateID,
		Context:     s.ictx,
		Model:       s.model,
		NextOrder:   s.nextOrder,
		Answered:    append([]models.AnsweredSummary(nil), s.answered...),
	}
	for _, q := range s.questions {
		v.Questions = append(v.Questions, q.record)
	}
	return v
}

// recordOf returns a deep copy of the question with its conversation state
// folded in.
func (q *questionState) recordOf() models.QuestionRecord {
	rec := q.record
	rec.Skills = append([]string(nil), q.record.Skills...)
	if q.record.Usage != nil {
		u := *q.record.Usage
		rec.Usage = &u
	}
	rec.Turns = q.transcript.sortedTurns()
	rec.Interventions = append([]models.InterventionRecord(nil), q.conv.Interventions...)
	rec.Deflections = append([]models.DeflectionRecord(nil), q.conv.Deflections...)
	rec.QuestionAttempts = q.conv.QuestionAttempts
	rec.IntegritySeverity = IntegritySeverityFor(q.conv.QuestionAttempts)
	return rec
}
