package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"hirecorrecto/interview-orchestrator/internal/metrics"
	"hirecorrecto/interview-orchestrator/internal/models"
)

type EventType string

const (
	EventAcknowledgment  EventType = "acknowledgment"
	EventDeflection      EventType = "deflection"
	EventClarification   EventType = "clarification"
	EventFollowUp        EventType = "follow_up"
	EventIntervention    EventType = "intervention"
	EventNextQuestion    EventType = "next_question"
	EventQuestionSkipped EventType = "question_skipped"
	EventProcessAnswer   EventType = "process_answer"
	EventInterviewEnd    EventType = "interview_end"
)

// Event is a side effect for the caller to dispatch to the candidate.
type Event struct {
	Type         EventType               `json:"type"`
	QuestionID   string                  `json:"question_id,omitempty"`
	Message      string                  `json:"message,omitempty"`
	Intervention models.InterventionType `json:"intervention,omitempty"`
	Deflection   models.DeflectionType   `json:"deflection,omitempty"`
	Intent       models.CandidateIntent  `json:"intent,omitempty"`
	SkipReason   models.SkipReason       `json:"skip_reason,omitempty"`
	Question     *models.QuestionRecord  `json:"question,omitempty"`
}

type TranscriptChunk struct {
	QuestionID string
	Text       string
	IsFinal    bool
	Timestamp  time.Time
}

type StartResult struct {
	SessionID     string                `json:"session_id"`
	Model         string                `json:"model"`
	FirstQuestion models.QuestionRecord `json:"first_question"`
}

// SessionRegistry owns every live interview session.
type SessionRegistry interface {
	StartSession(ctx context.Context, interviewID, candidateID string, ictx models.InterviewContext) (*StartResult, error)
	SubmitAnswer(ctx context.Context, sessionID string, sub AnswerSubmission) (*AnswerOutcome, error)
	TranscriptChunk(ctx context.Context, sessionID string, chunk TranscriptChunk) ([]Event, error)
	SilenceSignal(ctx context.Context, sessionID, questionID string, silenceMs int64) ([]Event, error)
	CandidateIntentReply(ctx context.Context, sessionID, questionID, text string) ([]Event, error)
	EndSession(sessionID string) (models.UsageSummary, error)
	Snapshot(sessionID string) (*SessionSnapshot, error)
	Recommend(ctx context.Context, sessionID string) (*models.Recommendation, error)
	EvictIdle(now time.Time) []SessionSnapshot
	ActiveSessions() int
}

type RegistryConfig struct {
	Models               []string
	Transcript           TranscriptConfig
	DeflectionModelCheck bool
	IdleTTL              time.Duration
}

type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	group    singleflight.Group

	engine      *QuestionEngine
	evaluator   *Evaluator
	aggregator  *TranscriptAggregator
	intents     *IntentClassifier
	deflections *DeflectionDetector
	recommender *Recommender
	usage       *UsageAccountant

	cfg RegistryConfig
	now func() time.Time
}

func NewSessionRegistry(cfg RegistryConfig, client ModelClient, engine *QuestionEngine, usage *UsageAccountant) SessionRegistry {
	if usage == nil {
		usage = NewUsageAccountant(nil)
	}
	if engine == nil {
		engine = NewQuestionEngine(client, cfg.Models)
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}

	aggregator := NewTranscriptAggregator(client, cfg.Models, cfg.Transcript)
	cfg.Transcript = aggregator.Config()

	return &sessionRegistry{
		sessions:    make(map[string]*session),
		engine:      engine,
		evaluator:   NewEvaluator(client, cfg.Models),
		aggregator:  aggregator,
		intents:     NewIntentClassifier(client, cfg.Models),
		deflections: NewDeflectionDetector(client, cfg.Models, cfg.DeflectionModelCheck),
		recommender: NewRecommender(client, cfg.Models),
		usage:       usage,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (r *sessionRegistry) get(sessionID string) (*session, error) {
	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSession, sessionID)
	}
	return s, nil
}

// lockQuestion locks s and returns the question. On error s is unlocked.
func (r *sessionRegistry) lockQuestion(s *session, questionID string) (*questionState, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInvalidSession, s.id)
	}
	q := s.question(questionID)
	if q == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	s.touch(r.now())
	return q, nil
}

// StartSession implements SessionRegistry.
func (r *sessionRegistry) StartSession(ctx context.Context, interviewID, candidateID string, ictx models.InterviewContext) (*StartResult, error) {
	if err := ictx.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContext, err)
	}

	model := ""
	if len(r.cfg.Models) > 0 {
		model = r.cfg.Models[0]
	}

	s := newSession(uuid.NewString(), interviewID, candidateID, ictx, model, r.now())

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	first, err := r.advance(ctx, s, 1, nil)
	if err != nil || first == nil {
		r.mu.Lock()
		delete(r.sessions, s.id)
		r.mu.Unlock()
		if err == nil {
			err = fmt.Errorf("%w: no first question", ErrQuestionGenerationFailed)
		}
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	metrics.SessionStarted()

	s.mu.Lock()
	model = s.model
	s.mu.Unlock()

	log.Printf("✅ Session %s started for interview %s (model %s)\n", s.id, interviewID, model)
	return &StartResult{SessionID: s.id, Model: model, FirstQuestion: *first}, nil
}

// advance makes sure a question with the given order exists and returns it.
// Concurrent callers for the same order share one provider call, and a
// question that already exists at or past order is returned instead of a
// new one. A nil record means the interview has no room for more questions.
func (r *sessionRegistry) advance(ctx context.Context, s *session, order int, prior *models.AnsweredSummary) (*models.QuestionRecord, error) {
	key := fmt.Sprintf("q:%s/%d", s.id, order)
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		s.mu.Lock()
		if s.ended {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrInvalidSession, s.id)
		}
		if existing := s.questionAtOrLater(order); existing != nil {
			rec := existing.recordOf()
			s.mu.Unlock()
			return &rec, nil
		}
		if s.reachedMax() {
			s.mu.Unlock()
			return (*models.QuestionRecord)(nil), nil
		}
		view := s.view()
		s.mu.Unlock()

		sel, err := r.engine.SelectOrGenerate(ctx, view, prior)

		s.mu.Lock()
		defer s.mu.Unlock()

		if sel != nil {
			r.usage.recordWasted(s, sel.Wasted)
		}
		if err != nil {
			return nil, err
		}
		if s.ended {
			return nil, fmt.Errorf("%w: %s ended while generating", ErrInvalidSession, s.id)
		}
		if existing := s.questionAtOrLater(order); existing != nil {
			r.usage.recordUsage(s, "", sel.Usage)
			rec := existing.recordOf()
			return &rec, nil
		}

		q := s.appendQuestion(sel.Record, r.now())
		if sel.Usage.Model != "" {
			r.usage.recordUsage(s, q.record.ID, sel.Usage)
			s.model = sel.Usage.Model
		}
		metrics.QuestionAsked(string(q.record.Kind))

		rec := q.recordOf()
		return &rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.QuestionRecord), nil
}

// moveOn advances past a skipped question and reports what happened.
func (r *sessionRegistry) moveOn(ctx context.Context, s *session, order int) ([]Event, error) {
	next, err := r.advance(ctx, s, order, nil)
	if err != nil {
		return nil, err
	}
	if next == nil {
		s.mu.Lock()
		s.complete = true
		s.mu.Unlock()
		return []Event{{Type: EventInterviewEnd, Message: "That was the last question. Thank you for your time."}}, nil
	}
	return []Event{{Type: EventNextQuestion, QuestionID: next.ID, Message: next.Text, Question: next}}, nil
}

// SubmitAnswer implements SessionRegistry.
func (r *sessionRegistry) SubmitAnswer(ctx context.Context, sessionID string, sub AnswerSubmission) (*AnswerOutcome, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("a:%s/%s", sessionID, sub.QuestionID)
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		return r.evaluateOnce(ctx, s, sub)
	})
	if err != nil {
		return nil, err
	}

	out, err := r.completeOutcome(ctx, s, v.(*AnswerOutcome))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// evaluateOnce evaluates a question's answer at most once per session. A
// repeated submission returns the stored outcome and records no usage.
func (r *sessionRegistry) evaluateOnce(ctx context.Context, s *session, sub AnswerSubmission) (*AnswerOutcome, error) {
	q, err := r.lockQuestion(s, sub.QuestionID)
	if err != nil {
		return nil, err
	}
	if out, ok := s.outcomes[sub.QuestionID]; ok {
		s.mu.Unlock()
		return out, nil
	}
	if len(sub.Media) == 0 && strings.TrimSpace(sub.LiveTranscript) == "" && q.transcript.candidateText() != "" {
		sub.LiveTranscript = AssembleTranscript(q.transcript.sortedTurns(), "")
	}
	view := s.view()
	rec := q.recordOf()
	s.mu.Unlock()

	ev, err := r.evaluator.Evaluate(ctx, view, rec, sub)

	s.mu.Lock()
	defer s.mu.Unlock()

	if ev != nil {
		r.usage.recordWasted(s, ev.Wasted)
	}
	if err != nil {
		log.Printf("❌ Evaluation failed for question %s in session %s: %v\n", sub.QuestionID, s.id, err)
		return nil, err
	}
	if s.ended {
		return nil, fmt.Errorf("%w: %s ended while evaluating", ErrInvalidSession, s.id)
	}
	if out, ok := s.outcomes[sub.QuestionID]; ok {
		return out, nil
	}

	r.usage.recordUsage(s, q.record.ID, ev.Usage)
	if ev.Model != "" {
		s.model = ev.Model
	}

	now := r.now()
	if len(q.transcript.turns) <= 1 && ev.Transcript != "" {
		q.transcript.addCandidate(ev.Transcript, now, 0, sub.MediaRef)
	}

	q.record.Transcript = ev.Transcript
	evaluation := ev.Evaluation
	cheating := ev.Cheating
	q.record.Evaluation = &evaluation
	q.record.Cheating = &cheating
	q.record.Status = models.QuestionAnswered
	q.record.SkipReason = ""

	summary := models.AnsweredSummary{
		QuestionID: q.record.ID,
		Question:   q.record.Text,
		Skills:     append([]string(nil), q.record.Skills...),
		Transcript: ev.Transcript,
		Evaluation: ev.Evaluation,
		NextAction: ev.NextAction,
	}
	s.answered = append(s.answered, summary)

	complete := ShouldEnd(ev.NextAction, len(s.answered), s.ictx.MaxQuestions)
	if !complete && s.reachedMax() && s.questionAtOrLater(q.record.Order+1) == nil {
		complete = true
	}
	if complete {
		s.complete = true
	}

	out := &AnswerOutcome{
		QuestionID:        q.record.ID,
		Transcript:        ev.Transcript,
		Evaluation:        ev.Evaluation,
		Cheating:          ev.Cheating,
		Usage:             ev.Usage,
		NextAction:        ev.NextAction,
		InterviewComplete: complete,
	}
	s.outcomes[sub.QuestionID] = out

	log.Printf("✅ Question %s evaluated: overall %.0f (%s), next %s\n", q.record.ID, ev.Evaluation.OverallScore, ev.Evaluation.ScoreLabel, ev.NextAction)
	return out, nil
}

// completeOutcome attaches the next question to a stored outcome, generating
// it if nobody has yet. It returns a copy safe to hand to the caller.
func (r *sessionRegistry) completeOutcome(ctx context.Context, s *session, stored *AnswerOutcome) (*AnswerOutcome, error) {
	s.mu.Lock()
	out := *stored
	q := s.question(out.QuestionID)
	var prior *models.AnsweredSummary
	order := 0
	if q != nil {
		order = q.record.Order + 1
	}
	if out.NextAction == models.ActionAskFollowUp {
		for i := range s.answered {
			if s.answered[i].QuestionID == out.QuestionID {
				p := s.answered[i]
				prior = &p
			}
		}
	}
	s.mu.Unlock()

	if out.InterviewComplete || out.NextQuestion != nil || q == nil {
		return &out, nil
	}

	next, err := r.advance(ctx, s, order, prior)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if next == nil {
		s.complete = true
		stored.InterviewComplete = true
	} else {
		stored.NextQuestion = next
	}
	out = *stored
	return &out, nil
}

// TranscriptChunk implements SessionRegistry.
func (r *sessionRegistry) TranscriptChunk(ctx context.Context, sessionID string, chunk TranscriptChunk) ([]Event, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}
	q, err := r.lockQuestion(s, chunk.QuestionID)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(chunk.Text)
	if q.record.Status != models.QuestionPending || (text == "" && !chunk.IsFinal) {
		s.mu.Unlock()
		return nil, nil
	}

	ts := chunk.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	if text != "" {
		q.transcript.addCandidate(text, ts, r.cfg.Transcript.CoalesceWindow, "")
		q.conv.SilenceMs = 0
	}

	questionText := q.record.Text
	partial := q.transcript.candidateText()
	analyze := r.aggregator.LongEnough(partial) && q.transcript.dueForAnalysis(ts, r.cfg.Transcript.Debounce, chunk.IsFinal)
	s.mu.Unlock()

	events := []Event{{Type: EventAcknowledgment, QuestionID: chunk.QuestionID}}

	if utf8.RuneCountInString(text) > deflectionMinChars {
		d, err := r.deflections.Detect(ctx, questionText, text)
		if err != nil {
			log.Printf("⚠️  Deflection check failed for question %s: %v\n", chunk.QuestionID, err)
		}

		s.mu.Lock()
		r.usage.recordWasted(s, d.Wasted)
		if d.Usage.Total() > 0 {
			r.usage.recordUsage(s, q.record.ID, d.Usage)
		}
		if d.Type != models.DeflectionNone && !s.ended && q.record.Status == models.QuestionPending {
			now := r.now()
			response := DeflectionResponse(d.Type, questionText)
			q.conv.ApplyDeflection(d.Type, text, response, d.Confidence, now)
			q.transcript.addBotTurn(response, now)
			metrics.Deflection(string(d.Type))

			kind := EventDeflection
			if d.Type == models.DeflectionLegitimateClarification {
				kind = EventClarification
			}
			events = append(events, Event{Type: kind, QuestionID: chunk.QuestionID, Message: response, Deflection: d.Type})
		}
		s.mu.Unlock()
	}

	if analyze {
		proposal, res, err := r.aggregator.AnalyzeFollowUp(ctx, questionText, partial)
		if err != nil {
			log.Printf("⚠️  Follow-up analysis failed for question %s: %v\n", chunk.QuestionID, err)
		}

		s.mu.Lock()
		if res != nil {
			r.usage.recordWasted(s, res.Wasted)
			if res.Usage.Total() > 0 {
				r.usage.recordUsage(s, q.record.ID, res.Usage)
			}
		}
		stillPending := !s.ended && q.record.Status == models.QuestionPending
		s.mu.Unlock()

		if proposal != nil && stillPending {
			events = append(events, Event{Type: EventFollowUp, QuestionID: chunk.QuestionID, Message: proposal.Question})
		}
	}

	return events, nil
}

// SilenceSignal implements SessionRegistry.
func (r *sessionRegistry) SilenceSignal(ctx context.Context, sessionID, questionID string, silenceMs int64) ([]Event, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}
	q, err := r.lockQuestion(s, questionID)
	if err != nil {
		return nil, err
	}
	if q.record.Status != models.QuestionPending || s.currentID != questionID {
		s.mu.Unlock()
		return nil, nil
	}

	now := r.now()
	rec, fired := q.conv.ApplySilence(silenceMs, now)
	if !fired {
		s.mu.Unlock()
		return nil, nil
	}
	q.transcript.addBotTurn(rec.BotMessage, now)
	metrics.Intervention(string(rec.Type))

	events := []Event{{Type: EventIntervention, QuestionID: questionID, Message: rec.BotMessage, Intervention: rec.Type}}
	if rec.Type != models.InterventionForceMove {
		s.mu.Unlock()
		return events, nil
	}

	q.record.Status = models.QuestionSkipped
	q.record.SkipReason = models.SkipTimeout
	order := q.record.Order + 1
	s.mu.Unlock()

	log.Printf("⚠️  Question %s skipped after %dms of silence\n", questionID, silenceMs)
	events = append(events, Event{Type: EventQuestionSkipped, QuestionID: questionID, SkipReason: models.SkipTimeout})

	more, err := r.moveOn(ctx, s, order)
	if err != nil {
		return events, err
	}
	return append(events, more...), nil
}

// CandidateIntentReply implements SessionRegistry.
func (r *sessionRegistry) CandidateIntentReply(ctx context.Context, sessionID, questionID, text string) ([]Event, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}
	q, err := r.lockQuestion(s, questionID)
	if err != nil {
		return nil, err
	}
	if q.record.Status != models.QuestionPending {
		s.mu.Unlock()
		return nil, nil
	}
	questionText := q.record.Text
	s.mu.Unlock()

	res := r.intents.Classify(ctx, questionText, text)

	s.mu.Lock()
	r.usage.recordWasted(s, res.Wasted)
	if res.ViaModel {
		r.usage.recordUsage(s, q.record.ID, res.Usage)
	}
	if s.ended || q.record.Status != models.QuestionPending {
		s.mu.Unlock()
		return nil, nil
	}

	now := r.now()
	tr := q.conv.ApplyIntent(res.Intent, text, now)
	if strings.TrimSpace(text) != "" {
		q.transcript.addCandidate(text, now, r.cfg.Transcript.CoalesceWindow, "")
	}
	ack := IntentAcknowledgment(res.Intent)
	q.transcript.addBotTurn(ack, now)

	events := []Event{{Type: EventAcknowledgment, QuestionID: questionID, Message: ack, Intent: res.Intent}}
	if tr.ProcessAnswer {
		events = append(events, Event{Type: EventProcessAnswer, QuestionID: questionID})
	}
	if !tr.Skip {
		s.mu.Unlock()
		return events, nil
	}

	q.record.Status = models.QuestionSkipped
	q.record.SkipReason = models.SkipCandidateRequested
	order := q.record.Order + 1
	s.mu.Unlock()

	events = append(events, Event{Type: EventQuestionSkipped, QuestionID: questionID, SkipReason: models.SkipCandidateRequested})
	more, err := r.moveOn(ctx, s, order)
	if err != nil {
		return events, err
	}
	return append(events, more...), nil
}

// EndSession implements SessionRegistry.
func (r *sessionRegistry) EndSession(sessionID string) (models.UsageSummary, error) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return models.UsageSummary{}, fmt.Errorf("%w: %s", ErrInvalidSession, sessionID)
	}

	s.mu.Lock()
	s.ended = true
	summary := r.usage.Summary(s)
	s.mu.Unlock()

	metrics.SessionEnded("ended")
	log.Printf("✅ Session %s ended: %d tokens, cost %.6f %s\n", sessionID, summary.Tokens.Total, summary.ConvertedCost, summary.Currency)
	return summary, nil
}

// Snapshot implements SessionRegistry.
func (r *sessionRegistry) Snapshot(sessionID string) (*SessionSnapshot, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := r.snapshotLocked(s)
	return &snap, nil
}

func (r *sessionRegistry) snapshotLocked(s *session) SessionSnapshot {
	snap := SessionSnapshot{
		SessionID:   s.id,
		InterviewID: s.interviewID,
		CandidateID: s.candidateID,
		Model:       s.model,
		Usage:       r.usage.Summary(s),
		Complete:    s.complete,
		StartedAt:   s.createdAt,
	}
	for _, q := range s.questions {
		snap.Questions = append(snap.Questions, q.recordOf())
	}
	return snap
}

// Recommend implements SessionRegistry.
func (r *sessionRegistry) Recommend(ctx context.Context, sessionID string) (*models.Recommendation, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.touch(r.now())
	view := s.view()
	s.mu.Unlock()

	res, err := r.recommender.Recommend(ctx, view)

	s.mu.Lock()
	defer s.mu.Unlock()
	if res != nil {
		r.usage.recordWasted(s, res.Wasted)
	}
	if err != nil {
		if !errors.Is(err, ErrInsufficientData) {
			log.Printf("❌ Recommendation failed for session %s: %v\n", sessionID, err)
		}
		return nil, err
	}

	rec := res.Recommendation
	in, out := res.Usage.InputTokens, res.Usage.OutputTokens
	cost := r.usage.Record(s, "", in, out, res.Usage.Model)
	rec.Usage.Add(in, out, cost)
	return &rec, nil
}

// EvictIdle implements SessionRegistry. Evicted sessions are returned so the
// caller can persist them.
func (r *sessionRegistry) EvictIdle(now time.Time) []SessionSnapshot {
	r.mu.Lock()
	var idle []*session
	for id, s := range r.sessions {
		s.mu.Lock()
		if now.Sub(s.lastActivity) >= r.cfg.IdleTTL {
			s.ended = true
			idle = append(idle, s)
			delete(r.sessions, id)
		}
		s.mu.Unlock()
	}
	r.mu.Unlock()

	var snaps []SessionSnapshot
	for _, s := range idle {
		s.mu.Lock()
		snaps = append(snaps, r.snapshotLocked(s))
		s.mu.Unlock()
		metrics.SessionEnded("idle")
		log.Printf("🧹 Session %s evicted after inactivity\n", s.id)
	}
	return snaps
}

// ActiveSessions implements SessionRegistry.
func (r *sessionRegistry) ActiveSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
