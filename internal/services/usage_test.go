package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hirecorrecto/interview-orchestrator/internal/models"
)

func TestLoadPricing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_model: cheap
exchange_rate: 16000
currency: IDR
models:
  cheap:
    input_per_million: 1
    output_per_million: 2
`), 0o644))

	table, err := LoadPricing(path)
	require.NoError(t, err)

	assert.Equal(t, "IDR", table.Currency)
	assert.InDelta(t, 3.0, table.Cost("cheap", 1_000_000, 1_000_000), 1e-9)
	// unknown models are billed at the default model's rate
	assert.InDelta(t, 1.0, table.Cost("mystery", 1_000_000, 0), 1e-9)
	assert.InDelta(t, 16000.0, table.Convert(1), 1e-9)
}

func TestLoadPricing_DefaultModelMustBePriced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_model: missing
models:
  cheap:
    input_per_million: 1
`), 0o644))

	_, err := LoadPricing(path)
	assert.Error(t, err)
}

func TestUsageAccountant_TotalsEqualSumOfIncrements(t *testing.T) {
	acct := NewUsageAccountant(DefaultPricing())
	s := newSession("s1", "i1", "c1", testContext(), "gemini-2.5-flash", time.Now())
	q := s.appendQuestion(models.QuestionRecord{ID: "q1", Text: "Q?"}, time.Now())

	increments := []models.TokenUsage{
		{InputTokens: 1200, OutputTokens: 300, Model: "gemini-2.5-flash"},
		{InputTokens: 800, OutputTokens: 100, Model: "gemini-2.0-flash"},
		{InputTokens: 50, OutputTokens: 5},
	}

	var wantCost float64
	var wantTokens int64
	for _, u := range increments {
		wantCost += acct.Record(s, "q1", u.InputTokens, u.OutputTokens, u.Model)
		wantTokens += u.Total()
	}
	acct.recordWasted(s, []models.TokenUsage{{InputTokens: 10, OutputTokens: 10, Model: "gemini-2.5-flash"}})
	wantCost += DefaultPricing().Cost("gemini-2.5-flash", 10, 10)
	wantTokens += 20

	sum := acct.Summary(s)
	assert.Equal(t, wantTokens, sum.Tokens.Total)
	assert.Equal(t, sum.Tokens.Input+sum.Tokens.Output, sum.Tokens.Total)
	assert.InDelta(t, wantCost, sum.Cost, 1e-12)

	// wasted usage is charged to the session but not to the question
	require.NotNil(t, q.record.Usage)
	assert.Equal(t, wantTokens-20, q.record.Usage.TotalTokens)
}

func TestUsageAccountant_NegativeCountsClampToZero(t *testing.T) {
	acct := NewUsageAccountant(nil)
	s := newSession("s1", "i1", "c1", testContext(), "gemini-2.5-flash", time.Now())

	cost := acct.Record(s, "", -5, -5, "")
	assert.Zero(t, cost)
	assert.Zero(t, acct.Summary(s).Tokens.Total)
}

func TestUsageAccountant_EndedSessionIsNotCharged(t *testing.T) {
	a := NewUsageAccountant(nil)
	s := newSession("s1", "i1", "c1", testContext(), "gemini-2.5-flash", time.Now())
	a.Record(s, "", 100, 50, "")
	before := a.Summary(s)

	s.ended = true
	cost := a.Record(s, "", 1000, 200, "")

	assert.Zero(t, cost)
	assert.Equal(t, before, a.Summary(s))
	assert.Equal(t, int64(150), s.usage.TotalTokens)
}
