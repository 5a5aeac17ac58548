package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hirecorrecto/interview-orchestrator/internal/models"
)

func TestApplySilence_Escalation(t *testing.T) {
	now := time.Now()
	var c ConversationState

	_, fired := c.ApplySilence(4000, now)
	assert.False(t, fired)

	rec, fired := c.ApplySilence(6000, now)
	require.True(t, fired)
	assert.Equal(t, models.InterventionThinkingCheck, rec.Type)

	_, fired = c.ApplySilence(8000, now)
	assert.False(t, fired, "thinking check fires once")

	// suggest_move_on needs the candidate to have answered the check
	_, fired = c.ApplySilence(16000, now)
	assert.False(t, fired)

	c.ApplyIntent(models.IntentThinking, "let me think", now)
	assert.Equal(t, models.InterventionThinkingCheck, c.Level)

	rec, fired = c.ApplySilence(16000, now)
	require.True(t, fired)
	assert.Equal(t, models.InterventionSuggestMoveOn, rec.Type)

	rec, fired = c.ApplySilence(31000, now)
	require.True(t, fired)
	assert.Equal(t, models.InterventionForceMove, rec.Type)

	_, fired = c.ApplySilence(45000, now)
	assert.False(t, fired)
	assert.Len(t, c.Interventions, 3)
}

func TestApplyIntent(t *testing.T) {
	now := time.Now()
	var c ConversationState
	c.ApplySilence(6000, now)

	tr := c.ApplyIntent(models.IntentContinue, "yes", now)
	assert.Equal(t, IntentTransition{}, tr)
	assert.Equal(t, models.InterventionNone, c.Level)
	assert.Zero(t, c.SilenceMs)
	require.NotNil(t, c.Interventions[0].ResponseAt)
	assert.Equal(t, "yes", c.Interventions[0].CandidateResponse)

	assert.True(t, c.ApplyIntent(models.IntentDone, "that's all", now).ProcessAnswer)
	assert.True(t, c.ApplyIntent(models.IntentSkip, "skip", now).Skip)
}

func TestApplyDeflection_ClarificationIsNotAnAttempt(t *testing.T) {
	var c ConversationState
	now := time.Now()

	c.ApplyDeflection(models.DeflectionLegitimateClarification, "can you repeat", "sure", 0.8, now)
	c.ApplyDeflection(models.DeflectionRequestingAnswer, "what's the answer", "no", 0.8, now)
	c.ApplyDeflection(models.DeflectionRoleReversal, "what would you do", "no", 0.8, now)

	assert.Len(t, c.Deflections, 3)
	assert.Equal(t, 2, c.QuestionAttempts)
	assert.Equal(t, models.SeverityMedium, IntegritySeverityFor(c.QuestionAttempts))
	assert.Equal(t, models.SeverityLow, IntegritySeverityFor(1))
	assert.Equal(t, models.SeverityHigh, IntegritySeverityFor(4))
}

func TestMatchIntent(t *testing.T) {
	cases := map[string]models.CandidateIntent{
		"No, that's all":                models.IntentDone,
		"I'm done":                      models.IntentDone,
		"not done yet":                  models.IntentContinue,
		"I'm not finished":              models.IntentContinue,
		"Yes":                           models.IntentContinue,
		"let me think":                  models.IntentThinking,
		"hmm":                           models.IntentThinking,
		"I don't know, skip":            models.IntentSkip,
		"Could we move on":              models.IntentSkip,
		"So basically, you would shard": models.IntentAnswering,
		"Pass":                          models.IntentSkip,
		"I'll pass on this one":         models.IntentSkip,
		"hmm, give me a second":         models.IntentThinking,
		"ok go on":                      models.IntentContinue,

		"So basically you pass the context down to every goroutine": models.IntentAnswering,
		"It is done with a mutex around the map":                    models.IntentAnswering,
		"you can continue the loop once the channel is closed":      models.IntentAnswering,
		"because it takes more time, I would batch the writes":      models.IntentAnswering,
	}
	for text, want := range cases {
		got, ok := MatchIntent(text)
		assert.True(t, ok, text)
		assert.Equal(t, want, got, text)
	}

	_, ok := MatchIntent("  ")
	assert.False(t, ok)
	_, ok = MatchIntent("purple elephants")
	assert.False(t, ok)
}

func TestIntentClassifier_ModelOnlyForLongReplies(t *testing.T) {
	client := newFakeClient().reply("intent classification", `{"intent":"thinking","confidence":0.9}`, 40, 5)
	c := NewIntentClassifier(client, []string{"m"})

	res := c.Classify(context.Background(), "Q?", "purple")
	assert.Equal(t, models.IntentAnswering, res.Intent)
	assert.False(t, res.ViaModel)

	res = c.Classify(context.Background(), "Q?", "purple elephants dancing slowly")
	assert.Equal(t, models.IntentThinking, res.Intent)
	assert.True(t, res.ViaModel)
	assert.Equal(t, int64(45), res.Usage.Total())

	res = c.Classify(context.Background(), "Q?", "no that's all")
	assert.Equal(t, models.IntentDone, res.Intent)
	assert.Equal(t, 1, client.count("intent classification"))
}

func TestDetectDeflectionHeuristic(t *testing.T) {
	cases := map[string]models.DeflectionType{
		"What's the correct answer?":         models.DeflectionRequestingAnswer,
		"is that correct? I think so":        models.DeflectionRequestingAnswer,
		"How would you solve this one":       models.DeflectionRoleReversal,
		"Could you repeat the question":      models.DeflectionLegitimateClarification,
		"Do you enjoy working here?":         models.DeflectionAskingQuestion,
		"I would use a mutex around the map": models.DeflectionNone,
		"answer?":                            models.DeflectionNone,
	}
	for text, want := range cases {
		assert.Equal(t, want, DetectDeflectionHeuristic(text), text)
	}
}

func TestDeflectionDetector_ModelNeverDowngrades(t *testing.T) {
	chunk := "what's the correct answer to this question please"

	client := newFakeClient().reply("deflection check", `{"intent":"answering","confidence":0.95}`, 20, 5)
	d := NewDeflectionDetector(client, []string{"m"}, true)
	res, err := d.Detect(context.Background(), "Q?", chunk)
	require.NoError(t, err)
	assert.Equal(t, models.DeflectionRequestingAnswer, res.Type)

	client = newFakeClient().reply("deflection check", `{"intent":"role_reversal","confidence":0.9}`, 20, 5)
	d = NewDeflectionDetector(client, []string{"m"}, true)
	res, err = d.Detect(context.Background(), "Q?", "honestly I am curious how this works for real")
	require.NoError(t, err)
	assert.Equal(t, models.DeflectionRoleReversal, res.Type)
	assert.Equal(t, 0.9, res.Confidence)
}

func TestDeflectionDetector_ShortChunksSkipModel(t *testing.T) {
	client := newFakeClient()
	d := NewDeflectionDetector(client, []string{"m"}, true)

	res, err := d.Detect(context.Background(), "Q?", "is it right?")
	require.NoError(t, err)
	assert.Equal(t, models.DeflectionRequestingAnswer, res.Type)
	assert.Zero(t, client.count("deflection check"))
}
