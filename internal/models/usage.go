package models

// TokenUsage is what a single provider response reported in its envelope.
type TokenUsage struct {
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	Model        string `json:"model,omitempty"`
}

func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

type UsageCounter struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalTokens  int64   `json:"total_tokens"`
	Cost         float64 `json:"cost"`
}

// Add applies one increment. Cost is accumulated, never recomputed.
func (u *UsageCounter) Add(input, output int64, cost float64) {
	u.InputTokens += input
	u.OutputTokens += output
	u.TotalTokens = u.InputTokens + u.OutputTokens
	u.Cost += cost
}

type TokenTotals struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

type UsageSummary struct {
	Tokens        TokenTotals `json:"tokens"`
	Cost          float64     `json:"cost"`
	ConvertedCost float64     `json:"converted_cost"`
	Currency      string      `json:"currency"`
	Model         string      `json:"model"`
}
