package services

import (
	"context"
	"fmt"
	"math"
	"strings"

	"hirecorrecto/interview-orchestrator/internal/models"
)

const minAnsweredForRecommendation = 3

type rawRecommendation struct {
	Decision     string   `json:"decision"`
	OverallScore *float64 `json:"overall_score"`
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	Summary      string   `json:"summary"`
}

type recommendationResult struct {
	Recommendation models.Recommendation
	Usage          models.TokenUsage
	Wasted         []models.TokenUsage
}

type Recommender struct {
	client  ModelClient
	models  []string
	prompts *PromptBuilder
}

func NewRecommender(client ModelClient, modelList []string) *Recommender {
	return &Recommender{
		client:  client,
		models:  modelList,
		prompts: NewPromptBuilder(),
	}
}

// Recommend synthesizes the overall verdict from every answered question.
func (r *Recommender) Recommend(ctx context.Context, view SessionView) (*recommendationResult, error) {
	var answered []models.QuestionRecord
	for _, q := range view.Questions {
		if q.Status == models.QuestionAnswered && q.Evaluation != nil {
			answered = append(answered, q)
		}
	}
	if len(answered) < minAnsweredForRecommendation {
		return nil, fmt.Errorf("%w: %d answered, need %d", ErrInsufficientData, len(answered), minAnsweredForRecommendation)
	}

	prompt := r.prompts.BuildRecommendationPrompt(view.Context, view.Questions)
	fallbackScore := WeightedOverall(view.Context, answered)
	passPct := view.Context.PassPercentage

	res, err := runWithFallback(ctx, r.client, r.models, "recommendation", nil,
		func(string) GenerateRequest {
			return GenerateRequest{
				Parts:           []Part{TextPart(prompt)},
				Temperature:     0.4,
				MaxOutputTokens: 2048,
				JSON:            true,
			}
		},
		func(text string) (*models.Recommendation, error) {
			var raw rawRecommendation
			if err := parseJSONResponse(text, &raw); err != nil {
				return nil, err
			}
			if strings.TrimSpace(raw.Summary) == "" && raw.Decision == "" {
				return nil, fmt.Errorf("recommendation has neither decision nor summary")
			}
			return normalizeRecommendation(raw, fallbackScore, passPct), nil
		},
	)
	if err != nil {
		return &recommendationResult{Wasted: res.Wasted}, err
	}

	return &recommendationResult{
		Recommendation: *res.Value,
		Usage:          res.Usage,
		Wasted:         res.Wasted,
	}, nil
}

func normalizeRecommendation(raw rawRecommendation, fallbackScore, passPct float64) *models.Recommendation {
	overall := fallbackScore
	if raw.OverallScore != nil && !math.IsNaN(*raw.OverallScore) {
		overall = *raw.OverallScore
	}
	overall = clamp(overall, 0, 100)

	decision := models.RecommendationDecision(strings.ToLower(strings.TrimSpace(raw.Decision)))
	switch decision {
	case models.DecisionHire, models.DecisionConsider, models.DecisionReject:
	default:
		decision = DecisionFor(overall, passPct)
	}

	return &models.Recommendation{
		Decision:     decision,
		OverallScore: overall,
		Strengths:    nonNil(raw.Strengths),
		Weaknesses:   nonNil(raw.Weaknesses),
		Summary:      strings.TrimSpace(raw.Summary),
	}
}

func DecisionFor(overall, passPct float64) models.RecommendationDecision {
	switch ScoreLabelFor(overall, passPct) {
	case models.LabelPass:
		return models.DecisionHire
	case models.LabelWeak:
		return models.DecisionConsider
	default:
		return models.DecisionReject
	}
}

// WeightedOverall averages the overall scores of answered questions, each
// weighted by the mean weight of the skills it targets.
func WeightedOverall(ictx models.InterviewContext, answered []models.QuestionRecord) float64 {
	weights := ictx.SkillWeights()

	var sum, total float64
	for _, q := range answered {
		if q.Evaluation == nil {
			continue
		}
		w := 1.0
		var ws float64
		var n int
		for _, s := range q.Skills {
			if v, ok := weights[strings.ToLower(s)]; ok && v > 0 {
				ws += v
				n++
			}
		}
		if n > 0 {
			w = ws / float64(n)
		}
		sum += q.Evaluation.OverallScore * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
