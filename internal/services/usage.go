package services

import (
	"log"

	"hirecorrecto/interview-orchestrator/internal/metrics"
	"hirecorrecto/interview-orchestrator/internal/models"
)

// UsageAccountant turns provider token counts into running totals and cost.
type UsageAccountant struct {
	pricing *PricingTable
}

func NewUsageAccountant(pricing *PricingTable) *UsageAccountant {
	if pricing == nil {
		pricing = DefaultPricing()
	}
	return &UsageAccountant{pricing: pricing}
}

func (a *UsageAccountant) Pricing() *PricingTable {
	return a.pricing
}

// Record adds one increment to the session and, when questionID names a
// question of the session, to that question too. Callers hold s.mu.
//
// An ended session has already reported its summary, so calls that finish
// after the end are logged and not counted.
func (a *UsageAccountant) Record(s *session, questionID string, inputTokens, outputTokens int64, model string) float64 {
	if s.ended {
		if inputTokens > 0 || outputTokens > 0 {
			log.Printf("⚠️  Dropping %d/%d tokens for ended session %s\n", inputTokens, outputTokens, s.id)
		}
		return 0
	}
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}
	if model == "" {
		model = s.model
	}

	cost := a.pricing.Cost(model, inputTokens, outputTokens)
	s.usage.Add(inputTokens, outputTokens, cost)

	if questionID != "" {
		if q := s.question(questionID); q != nil {
			if q.record.Usage == nil {
				q.record.Usage = &models.UsageCounter{}
			}
			q.record.Usage.Add(inputTokens, outputTokens, cost)
		}
	}

	metrics.Tokens(model, inputTokens, outputTokens)
	return cost
}

func (a *UsageAccountant) recordUsage(s *session, questionID string, usage models.TokenUsage) {
	a.Record(s, questionID, usage.InputTokens, usage.OutputTokens, usage.Model)
}

func (a *UsageAccountant) recordWasted(s *session, wasted []models.TokenUsage) {
	for _, u := range wasted {
		a.recordUsage(s, "", u)
	}
}

// Summary reports the session totals. Callers hold s.mu.
func (a *UsageAccountant) Summary(s *session) models.UsageSummary {
	return models.UsageSummary{
		Tokens: models.TokenTotals{
			Input:  s.usage.InputTokens,
			Output: s.usage.OutputTokens,
			Total:  s.usage.TotalTokens,
		},
		Cost:          s.usage.Cost,
		ConvertedCost: a.pricing.Convert(s.usage.Cost),
		Currency:      a.pricing.Currency,
		Model:         s.model,
	}
}
