package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hirecorrecto/interview-orchestrator/internal/models"
)

func newTestRegistry(t *testing.T, client *fakeClient) (SessionRegistry, *StartResult) {
	t.Helper()

	client.reply("question generation", generatedQuestionJSON, 100, 50)
	reg := NewSessionRegistry(RegistryConfig{Models: []string{"gemini-2.5-flash"}}, client, nil, nil)

	res, err := reg.StartSession(context.Background(), "interview-1", "candidate-1", testContext())
	require.NoError(t, err)
	return reg, res
}

func TestRegistry_StartSession(t *testing.T) {
	client := newFakeClient()
	reg, res := newTestRegistry(t, client)

	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, "gemini-2.5-flash", res.Model)
	assert.Equal(t, 1, res.FirstQuestion.Order)
	assert.Equal(t, models.QuestionPending, res.FirstQuestion.Status)
	assert.Equal(t, []string{"Go"}, res.FirstQuestion.Skills)
	assert.Equal(t, 1, reg.ActiveSessions())

	snap, err := reg.Snapshot(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), snap.Usage.Tokens.Total)
	require.Len(t, snap.Questions, 1)
	require.Len(t, snap.Questions[0].Turns, 1)
	assert.Equal(t, models.SpeakerBot, snap.Questions[0].Turns[0].Speaker)
}

func TestRegistry_StartSessionRejectsInvalidContext(t *testing.T) {
	reg := NewSessionRegistry(RegistryConfig{Models: []string{"m"}}, newFakeClient(), nil, nil)

	ictx := testContext()
	ictx.MaxQuestions = 0
	_, err := reg.StartSession(context.Background(), "i", "c", ictx)
	assert.ErrorIs(t, err, ErrInvalidContext)
	assert.Zero(t, reg.ActiveSessions())
}

func TestRegistry_StartSessionFailsWhenGenerationFails(t *testing.T) {
	client := newFakeClient().reply("question generation", "{}", 1, 1)
	reg := NewSessionRegistry(RegistryConfig{Models: []string{"a", "b"}}, client, nil, nil)

	_, err := reg.StartSession(context.Background(), "i", "c", testContext())
	assert.ErrorIs(t, err, ErrQuestionGenerationFailed)
	assert.Zero(t, reg.ActiveSessions())
}

func TestRegistry_UnknownSessionAndQuestion(t *testing.T) {
	client := newFakeClient()
	reg, res := newTestRegistry(t, client)

	_, err := reg.SilenceSignal(context.Background(), "nope", res.FirstQuestion.ID, 6000)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = reg.SilenceSignal(context.Background(), res.SessionID, "nope", 6000)
	assert.ErrorIs(t, err, ErrUnknownQuestion)
}

func TestRegistry_ShortSilenceOnlyChecksIn(t *testing.T) {
	client := newFakeClient()
	reg, res := newTestRegistry(t, client)

	events, err := reg.SilenceSignal(context.Background(), res.SessionID, res.FirstQuestion.ID, 6000)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventIntervention, events[0].Type)
	assert.Equal(t, models.InterventionThinkingCheck, events[0].Intervention)

	events, err = reg.SilenceSignal(context.Background(), res.SessionID, res.FirstQuestion.ID, 7000)
	require.NoError(t, err)
	assert.Empty(t, events)

	assert.Equal(t, 1, client.count("question generation"))
}

func TestRegistry_ForceMoveAdvancesExactlyOnce(t *testing.T) {
	client := newFakeClient()
	reg, res := newTestRegistry(t, client)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		all []Event
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events, err := reg.SilenceSignal(context.Background(), res.SessionID, res.FirstQuestion.ID, 31000)
			assert.NoError(t, err)
			mu.Lock()
			all = append(all, events...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	counts := map[EventType]int{}
	for _, e := range all {
		counts[e.Type]++
	}
	assert.Equal(t, 1, counts[EventQuestionSkipped])
	assert.Equal(t, 1, counts[EventNextQuestion])
	assert.Equal(t, 2, client.count("question generation"))

	snap, err := reg.Snapshot(res.SessionID)
	require.NoError(t, err)
	require.Len(t, snap.Questions, 2)
	assert.Equal(t, models.QuestionSkipped, snap.Questions[0].Status)
	assert.Equal(t, models.SkipTimeout, snap.Questions[0].SkipReason)
	assert.Equal(t, 2, snap.Questions[1].Order)
}

func TestRegistry_DuplicateSubmissionIsEvaluatedOnce(t *testing.T) {
	client := newFakeClient().reply("answer evaluation", evaluationJSON, 1000, 200)
	reg, res := newTestRegistry(t, client)

	sub := AnswerSubmission{QuestionID: res.FirstQuestion.ID, Media: []byte("webm"), MediaMIMEType: "video/webm"}

	first, err := reg.SubmitAnswer(context.Background(), res.SessionID, sub)
	require.NoError(t, err)
	require.NotNil(t, first.NextQuestion)
	assert.Equal(t, models.LabelPass, first.Evaluation.ScoreLabel)
	assert.False(t, first.InterviewComplete)

	before, err := reg.Snapshot(res.SessionID)
	require.NoError(t, err)
	// question + evaluation + next question
	assert.Equal(t, int64(150+1200+150), before.Usage.Tokens.Total)

	second, err := reg.SubmitAnswer(context.Background(), res.SessionID, sub)
	require.NoError(t, err)
	assert.Equal(t, first.NextQuestion.ID, second.NextQuestion.ID)

	after, err := reg.Snapshot(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, before.Usage, after.Usage)
	assert.Len(t, after.Questions, 2)
	assert.Equal(t, 1, client.count("answer evaluation"))
	assert.Equal(t, 2, client.count("question generation"))

	answered := after.Questions[0]
	assert.Equal(t, models.QuestionAnswered, answered.Status)
	require.NotNil(t, answered.Usage)
	// its own generation + the evaluation
	assert.Equal(t, int64(150+1200), answered.Usage.TotalTokens)
}

func TestRegistry_FollowUpsWaitForMandatoryQuota(t *testing.T) {
	followUp := strings.Replace(evaluationJSON, `"next_action":"next_question"`, `"next_action":"ask_followup"`, 1)
	client := newFakeClient().
		reply("question generation", generatedQuestionJSON, 100, 50).
		reply("answer evaluation", followUp, 1000, 200)
	reg := NewSessionRegistry(RegistryConfig{Models: []string{"gemini-2.5-flash"}}, client, nil, nil)

	ictx := testContext()
	ictx.MandatoryWeightage = 40
	ictx.OptionalWeightage = 60
	ictx.MandatoryQuestions = mandatoryPool()

	res, err := reg.StartSession(context.Background(), "interview-1", "candidate-1", ictx)
	require.NoError(t, err)

	current := res.FirstQuestion
	for i := 0; i < ictx.MaxQuestions; i++ {
		out, err := reg.SubmitAnswer(context.Background(), res.SessionID, AnswerSubmission{QuestionID: current.ID, LiveTranscript: "Channels block."})
		require.NoError(t, err)
		assert.Equal(t, models.ActionAskFollowUp, out.NextAction)
		if out.InterviewComplete {
			break
		}
		require.NotNil(t, out.NextQuestion)
		current = *out.NextQuestion
	}

	snap, err := reg.Snapshot(res.SessionID)
	require.NoError(t, err)
	require.Len(t, snap.Questions, ictx.MaxQuestions)

	var kinds []models.QuestionKind
	for _, q := range snap.Questions {
		kinds = append(kinds, q.Kind)
	}
	assert.Equal(t, []models.QuestionKind{
		models.KindMandatory,
		models.KindMandatory,
		models.KindFollowUp,
		models.KindFollowUp,
		models.KindFollowUp,
	}, kinds)
	assert.Equal(t, 3, client.count("question generation"))
}

func TestRegistry_RecommendNeedsThreeAnswers(t *testing.T) {
	client := newFakeClient()
	reg, res := newTestRegistry(t, client)

	_, err := reg.Recommend(context.Background(), res.SessionID)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestRegistry_IntentReplyDoneAsksForProcessing(t *testing.T) {
	client := newFakeClient()
	reg, res := newTestRegistry(t, client)

	events, err := reg.CandidateIntentReply(context.Background(), res.SessionID, res.FirstQuestion.ID, "no, that's all")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventAcknowledgment, events[0].Type)
	assert.Equal(t, models.IntentDone, events[0].Intent)
	assert.Equal(t, EventProcessAnswer, events[1].Type)
}

func TestRegistry_IntentReplySkipMovesOn(t *testing.T) {
	client := newFakeClient()
	reg, res := newTestRegistry(t, client)

	events, err := reg.CandidateIntentReply(context.Background(), res.SessionID, res.FirstQuestion.ID, "skip this one please")
	require.NoError(t, err)

	types := make([]EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{EventAcknowledgment, EventQuestionSkipped, EventNextQuestion}, types)
	assert.Equal(t, models.SkipCandidateRequested, events[1].SkipReason)
}

func TestRegistry_TranscriptChunkDeflection(t *testing.T) {
	client := newFakeClient()
	reg, res := newTestRegistry(t, client)

	events, err := reg.TranscriptChunk(context.Background(), res.SessionID, TranscriptChunk{
		QuestionID: res.FirstQuestion.ID,
		Text:       "what's the answer?",
		Timestamp:  time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventAcknowledgment, events[0].Type)
	assert.Equal(t, EventDeflection, events[1].Type)
	assert.Equal(t, models.DeflectionRequestingAnswer, events[1].Deflection)

	snap, err := reg.Snapshot(res.SessionID)
	require.NoError(t, err)
	q := snap.Questions[0]
	assert.Equal(t, 1, q.QuestionAttempts)
	assert.Len(t, q.Deflections, 1)
	// question, candidate fragment, redirect
	assert.Len(t, q.Turns, 3)
}

func TestRegistry_EndSession(t *testing.T) {
	client := newFakeClient()
	reg, res := newTestRegistry(t, client)

	summary, err := reg.EndSession(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), summary.Tokens.Total)
	assert.Equal(t, "USD", summary.Currency)

	_, err = reg.EndSession(res.SessionID)
	assert.ErrorIs(t, err, ErrInvalidSession)
	_, err = reg.Snapshot(res.SessionID)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestRegistry_EvictIdle(t *testing.T) {
	client := newFakeClient()
	reg, res := newTestRegistry(t, client)

	assert.Empty(t, reg.EvictIdle(time.Now()))

	evicted := reg.EvictIdle(time.Now().Add(time.Hour))
	require.Len(t, evicted, 1)
	assert.Equal(t, res.SessionID, evicted[0].SessionID)
	assert.Zero(t, reg.ActiveSessions())
}
