package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hirecorrecto/interview-orchestrator/internal/models"
)

func ptr(v float64) *float64 { return &v }

func TestNormalizeEvaluation_ClampsAndDerivesLabel(t *testing.T) {
	ev := normalizeEvaluation(rawScores{
		Relevance:         ptr(140),
		TechnicalAccuracy: ptr(-20),
		Fluency:           ptr(60),
		OverallScore:      ptr(70),
		ScoreLabel:        "fail",
	}, 70)

	assert.Equal(t, 100.0, ev.Relevance)
	assert.Equal(t, 0.0, ev.TechnicalAccuracy)
	assert.Equal(t, 60.0, ev.Fluency)
	assert.Equal(t, models.LabelPass, ev.ScoreLabel)
}

func TestNormalizeEvaluation_MissingScoresDefault(t *testing.T) {
	ev := normalizeEvaluation(rawScores{Relevance: ptr(90)}, 70)

	assert.Equal(t, 90.0, ev.Relevance)
	assert.Equal(t, 50.0, ev.TechnicalAccuracy)
	assert.Equal(t, 50.0, ev.Fluency)
	assert.InDelta(t, 0.4*90+0.4*50+0.2*50, ev.OverallScore, 1e-9)
}

func TestScoreLabelFor(t *testing.T) {
	assert.Equal(t, models.LabelPass, ScoreLabelFor(70, 70))
	assert.Equal(t, models.LabelWeak, ScoreLabelFor(69.9, 70))
	assert.Equal(t, models.LabelWeak, ScoreLabelFor(49, 70))
	assert.Equal(t, models.LabelFail, ScoreLabelFor(48.9, 70))
	assert.Equal(t, models.LabelPass, ScoreLabelFor(0, 0))
}

func TestNormalizeCheating(t *testing.T) {
	c := normalizeCheating(rawCheating{
		CheatScore: ptr(3),
		Flags:      []string{"Multi_Face", "multi_face", "phone", " looking_away "},
	})

	assert.Equal(t, 1.0, c.CheatScore)
	assert.Equal(t, []models.CheatFlag{models.FlagMultiFace, models.FlagLookingAway}, c.Flags)
}

func TestNormalizeNextAction(t *testing.T) {
	assert.Equal(t, models.ActionAskFollowUp, normalizeNextAction(" ASK_FOLLOWUP "))
	assert.Equal(t, models.ActionNextQuestion, normalizeNextAction("dance"))
}

func TestShouldEnd(t *testing.T) {
	assert.True(t, ShouldEnd(models.ActionEndInterview, 1, 5))
	assert.True(t, ShouldEnd(models.ActionNextQuestion, 5, 5))
	assert.False(t, ShouldEnd(models.ActionAskFollowUp, 4, 5))
}

func TestEvaluator_Evaluate(t *testing.T) {
	client := newFakeClient().reply("answer evaluation", evaluationJSON, 500, 120)
	ev := NewEvaluator(client, []string{"m"})

	view := SessionView{Context: testContext()}
	q := models.QuestionRecord{ID: "q1", Text: "How do channels work?", Skills: []string{"Go"}}

	out, err := ev.Evaluate(context.Background(), view, q, AnswerSubmission{
		QuestionID:    "q1",
		Media:         []byte("webm"),
		MediaMIMEType: "video/webm",
		Frames:        []Frame{{Data: []byte("jpg"), MIMEType: "image/jpeg", OffsetMs: 1000}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Channels block until both sides are ready.", out.Transcript)
	assert.Equal(t, 78.0, out.Evaluation.OverallScore)
	assert.Equal(t, models.LabelPass, out.Evaluation.ScoreLabel)
	assert.Empty(t, out.Cheating.Flags)
	assert.Equal(t, models.ActionNextQuestion, out.NextAction)
	assert.Equal(t, int64(620), out.Usage.Total())

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Len(t, req.Parts, 3)
	assert.Equal(t, "video/webm", req.Parts[1].MIMEType)
	assert.InDelta(t, 0.2, req.Temperature, 1e-6)
}

func TestEvaluator_RequiresMediaOrTranscript(t *testing.T) {
	ev := NewEvaluator(newFakeClient(), []string{"m"})
	_, err := ev.Evaluate(context.Background(), SessionView{Context: testContext()}, models.QuestionRecord{ID: "q1"}, AnswerSubmission{})
	assert.Error(t, err)
}

func TestParseAnswerEvaluation_RequiresEvaluationObject(t *testing.T) {
	_, err := parseAnswerEvaluation(`{"transcript":"hi","next_action":"next_question"}`, 70)
	assert.Error(t, err)
}

func TestRecommender_NeedsThreeAnswers(t *testing.T) {
	r := NewRecommender(newFakeClient(), []string{"m"})

	view := SessionView{Context: testContext()}
	for i := 0; i < 2; i++ {
		view.Questions = append(view.Questions, models.QuestionRecord{
			Status:     models.QuestionAnswered,
			Evaluation: &models.EvaluationResult{OverallScore: 80},
		})
	}

	_, err := r.Recommend(context.Background(), view)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestRecommender_FallsBackToWeightedScore(t *testing.T) {
	client := newFakeClient().reply("recommendation", `{"decision":"maybe","summary":"Mixed."}`, 100, 50)
	r := NewRecommender(client, []string{"m"})

	view := SessionView{Context: testContext()}
	for _, q := range []struct {
		skill string
		score float64
	}{{"Go", 90}, {"SQL", 40}, {"Kubernetes", 60}} {
		view.Questions = append(view.Questions, models.QuestionRecord{
			Status:     models.QuestionAnswered,
			Skills:     []string{q.skill},
			Evaluation: &models.EvaluationResult{OverallScore: q.score},
		})
	}

	res, err := r.Recommend(context.Background(), view)
	require.NoError(t, err)

	want := (90*50 + 40*30 + 60*20) / 100.0
	assert.InDelta(t, want, res.Recommendation.OverallScore, 1e-9)
	assert.Equal(t, models.DecisionConsider, res.Recommendation.Decision)
	assert.Equal(t, []string{}, res.Recommendation.Strengths)
}
