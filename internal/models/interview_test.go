package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolQuestion_DecodesBothShapes(t *testing.T) {
	var ictx InterviewContext
	err := json.Unmarshal([]byte(`{
		"job_title": "Backend Engineer",
		"max_questions": 5,
		"mandatory_questions": [
			"  Explain goroutine leaks.  ",
			{"id": "pq-2", "text": "How do you tune a query?", "skills": ["SQL", " "]}
		]
	}`), &ictx)
	require.NoError(t, err)
	require.Len(t, ictx.MandatoryQuestions, 2)

	legacy := ictx.MandatoryQuestions[0]
	assert.Equal(t, "Explain goroutine leaks.", legacy.Text)
	assert.NotEmpty(t, legacy.ID)
	assert.Empty(t, legacy.Skills)

	tagged := ictx.MandatoryQuestions[1]
	assert.Equal(t, "pq-2", tagged.ID)
	assert.Equal(t, []string{"SQL"}, tagged.Skills)
}

func TestNewPoolQuestion_StableDerivedID(t *testing.T) {
	a := NewPoolQuestion("", "Explain goroutine leaks.", nil)
	b := NewPoolQuestion("", "  explain GOROUTINE leaks. ", nil)
	c := NewPoolQuestion("", "Something else", nil)

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestPoolQuestion_RejectsNull(t *testing.T) {
	var q PoolQuestion
	assert.Error(t, json.Unmarshal([]byte(`null`), &q))
}

func TestInterviewContext_Validate(t *testing.T) {
	ok := InterviewContext{JobTitle: "Engineer", MaxQuestions: 3, MandatoryWeightage: 40, PassPercentage: 70}
	assert.NoError(t, ok.Validate())

	for name, mutate := range map[string]func(*InterviewContext){
		"title":     func(c *InterviewContext) { c.JobTitle = " " },
		"max":       func(c *InterviewContext) { c.MaxQuestions = 0 },
		"mandatory": func(c *InterviewContext) { c.MandatoryWeightage = 120 },
		"optional":  func(c *InterviewContext) { c.OptionalWeightage = -1 },
		"pass":      func(c *InterviewContext) { c.PassPercentage = 101 },
	} {
		c := ok
		mutate(&c)
		assert.Error(t, c.Validate(), name)
	}
}

func TestNewInterviewQuestion(t *testing.T) {
	rec := QuestionRecord{
		ID:     "q1",
		Text:   "Q?",
		Kind:   KindGenerated,
		Order:  2,
		Skills: []string{"Go"},
		Status: QuestionAnswered,
		Evaluation: &EvaluationResult{
			OverallScore: 81,
			ScoreLabel:   LabelPass,
		},
		Usage: &UsageCounter{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, Cost: 0.01},
	}

	row, err := NewInterviewQuestion(rec, "i1", "s1", "c1")
	require.NoError(t, err)

	assert.Equal(t, "i1", row.InterviewID)
	assert.Equal(t, 2, row.Order)
	require.NotNil(t, row.OverallScore)
	assert.Equal(t, 81.0, *row.OverallScore)
	assert.Equal(t, "pass", row.ScoreLabel)
	assert.JSONEq(t, `["Go"]`, string(row.Skills))
	assert.JSONEq(t, `[]`, string(row.Interventions))
	assert.JSONEq(t, `[]`, string(row.CheatFlags))
	assert.Nil(t, row.CheatScore)
	assert.Equal(t, int64(15), row.InputTokens+row.OutputTokens)
}

func TestUsageCounter_Add(t *testing.T) {
	var u UsageCounter
	u.Add(10, 5, 0.5)
	u.Add(1, 1, 0.25)

	assert.Equal(t, int64(17), u.TotalTokens)
	assert.InDelta(t, 0.75, u.Cost, 1e-12)
}
