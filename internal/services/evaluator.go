package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"

	"hirecorrecto/interview-orchestrator/internal/models"
)

const (
	evaluationTemperature = 0.2
	priorAnswersInPrompt  = 3
	longPauseMs           = 5000
	defaultSubScore       = 50
)

// Frame is a still image captured from the candidate's camera.
type Frame struct {
	Data     []byte
	MIMEType string
	OffsetMs int64
}

// AnswerSubmission is one recorded answer to a question.
type AnswerSubmission struct {
	QuestionID    string
	Media         []byte
	MediaMIMEType string
	MediaRef      string
	Frames        []Frame
	Timing        models.TimingWindows
	// LiveTranscript is sent as text when no media is attached.
	LiveTranscript string
}

// AnswerOutcome is the result of SubmitAnswer. It is cached per question so
// a retried submission returns the same outcome.
type AnswerOutcome struct {
	QuestionID        string                    `json:"question_id"`
	Transcript        string                    `json:"transcript"`
	Evaluation        models.EvaluationResult   `json:"evaluation"`
	Cheating          models.CheatingAssessment `json:"cheating"`
	Usage             models.TokenUsage         `json:"token_usage"`
	NextAction        models.NextAction         `json:"next_action"`
	NextQuestion      *models.QuestionRecord    `json:"next_question,omitempty"`
	InterviewComplete bool                      `json:"interview_complete"`
}

type answerEvaluation struct {
	Transcript string
	Evaluation models.EvaluationResult
	Cheating   models.CheatingAssessment
	NextAction models.NextAction
	Model      string
	Usage      models.TokenUsage
	Wasted     []models.TokenUsage
}

type rawScores struct {
	Relevance         *float64 `json:"relevance"`
	TechnicalAccuracy *float64 `json:"technical_accuracy"`
	Fluency           *float64 `json:"fluency"`
	OverallScore      *float64 `json:"overall_score"`
	ScoreLabel        string   `json:"score_label"`
	Comment           string   `json:"comment"`
}

type rawCheating struct {
	CheatScore *float64 `json:"cheat_score"`
	Flags      []string `json:"flags"`
	Summary    string   `json:"summary"`
}

type rawEvaluation struct {
	Transcript string       `json:"transcript"`
	Evaluation *rawScores   `json:"evaluation"`
	Cheating   *rawCheating `json:"cheating"`
	NextAction string       `json:"next_action"`
}

type Evaluator struct {
	client  ModelClient
	models  []string
	prompts *PromptBuilder
}

func NewEvaluator(client ModelClient, modelList []string) *Evaluator {
	return &Evaluator{
		client:  client,
		models:  modelList,
		prompts: NewPromptBuilder(),
	}
}

// Evaluate sends the answer, frames and timing in one multimodal request and
// returns the clamped result.
func (e *Evaluator) Evaluate(ctx context.Context, view SessionView, question models.QuestionRecord, sub AnswerSubmission) (*answerEvaluation, error) {
	if len(sub.Media) == 0 && strings.TrimSpace(sub.LiveTranscript) == "" {
		return nil, fmt.Errorf("answer for question %s has neither media nor transcript", question.ID)
	}

	prior := view.Answered
	if len(prior) > priorAnswersInPrompt {
		prior = prior[len(prior)-priorAnswersInPrompt:]
	}

	prompt := e.prompts.BuildAnswerEvaluationPrompt(evaluationPromptInput{
		Context:  view.Context,
		Question: question,
		Prior:    prior,
		Timing:   sub.Timing,
		Frames:   sub.Frames,
	})

	parts := []Part{TextPart(prompt)}
	if len(sub.Media) > 0 {
		parts = append(parts, MediaPart(sub.Media, sub.MediaMIMEType))
	} else {
		parts = append(parts, TextPart("NO RECORDING ATTACHED. LIVE TRANSCRIPT:\n"+sub.LiveTranscript))
	}
	for _, f := range sub.Frames {
		if len(f.Data) > 0 {
			parts = append(parts, MediaPart(f.Data, f.MIMEType))
		}
	}

	log.Printf("🤖 Evaluating answer for question %s (%d frames)\n", question.ID, len(sub.Frames))

	passPct := view.Context.PassPercentage
	res, err := runWithFallback(ctx, e.client, e.models, "answer evaluation", nil,
		func(string) GenerateRequest {
			return GenerateRequest{
				Parts:           parts,
				Temperature:     evaluationTemperature,
				MaxOutputTokens: 8192,
				JSON:            true,
			}
		},
		func(text string) (*answerEvaluation, error) {
			return parseAnswerEvaluation(text, passPct)
		},
	)
	if err != nil {
		var wasted []models.TokenUsage
		if res != nil {
			wasted = res.Wasted
		}
		return &answerEvaluation{Wasted: wasted}, err
	}

	out := res.Value
	if out.Transcript == "" {
		out.Transcript = strings.TrimSpace(sub.LiveTranscript)
	}
	out.Model = res.Model
	out.Usage = res.Usage
	out.Wasted = res.Wasted
	return out, nil
}

func parseAnswerEvaluation(text string, passPct float64) (*answerEvaluation, error) {
	var raw rawEvaluation
	if err := parseJSONResponse(text, &raw); err != nil {
		return nil, err
	}
	if raw.Evaluation == nil {
		return nil, fmt.Errorf("evaluation object missing")
	}

	out := &answerEvaluation{
		Transcript: strings.TrimSpace(raw.Transcript),
		Evaluation: normalizeEvaluation(*raw.Evaluation, passPct),
		NextAction: normalizeNextAction(raw.NextAction),
	}
	if raw.Cheating != nil {
		out.Cheating = normalizeCheating(*raw.Cheating)
	} else {
		out.Cheating = models.CheatingAssessment{Flags: []models.CheatFlag{}}
	}
	return out, nil
}

// normalizeEvaluation clamps the scores, fills defaults and derives the label
// from the pass threshold. The model's own label is ignored.
func normalizeEvaluation(raw rawScores, passPct float64) models.EvaluationResult {
	rel := scoreOrDefault(raw.Relevance)
	tech := scoreOrDefault(raw.TechnicalAccuracy)
	flu := scoreOrDefault(raw.Fluency)

	var overall float64
	if raw.OverallScore != nil && !math.IsNaN(*raw.OverallScore) {
		overall = *raw.OverallScore
	} else {
		overall = 0.4*rel + 0.4*tech + 0.2*flu
	}
	overall = clamp(overall, 0, 100)

	return models.EvaluationResult{
		Relevance:         rel,
		TechnicalAccuracy: tech,
		Fluency:           flu,
		OverallScore:      overall,
		ScoreLabel:        ScoreLabelFor(overall, passPct),
		Comment:           strings.TrimSpace(raw.Comment),
	}
}

func ScoreLabelFor(overall, passPct float64) models.ScoreLabel {
	switch {
	case overall >= passPct:
		return models.LabelPass
	case overall >= 0.7*passPct:
		return models.LabelWeak
	default:
		return models.LabelFail
	}
}

func normalizeCheating(raw rawCheating) models.CheatingAssessment {
	out := models.CheatingAssessment{
		Flags:   []models.CheatFlag{},
		Summary: strings.TrimSpace(raw.Summary),
	}
	if raw.CheatScore != nil && !math.IsNaN(*raw.CheatScore) {
		out.CheatScore = clamp(*raw.CheatScore, 0, 1)
	}

	seen := make(map[models.CheatFlag]bool)
	for _, f := range raw.Flags {
		flag := models.CheatFlag(strings.ToLower(strings.TrimSpace(f)))
		if flag.Valid() && !seen[flag] {
			seen[flag] = true
			out.Flags = append(out.Flags, flag)
		}
	}
	return out
}

func normalizeNextAction(action string) models.NextAction {
	a := models.NextAction(strings.ToLower(strings.TrimSpace(action)))
	if a.Valid() {
		return a
	}
	return models.ActionNextQuestion
}

// ShouldEnd reports whether the interview is over after an answer.
func ShouldEnd(action models.NextAction, answered, maxQuestions int) bool {
	return action == models.ActionEndInterview || (maxQuestions > 0 && answered >= maxQuestions)
}

func scoreOrDefault(v *float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return defaultSubScore
	}
	return clamp(*v, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func longPauses(pauses []models.Pause) []models.Pause {
	var out []models.Pause
	for _, p := range pauses {
		if p.EndMs-p.StartMs >= longPauseMs {
			out = append(out, p)
		}
	}
	return out
}

func parseJSONResponse(response string, target interface{}) error {
	// Try to extract JSON from response (LLM might wrap it in markdown)
	jsonStr := extractJSON(response)

	if err := json.Unmarshal([]byte(jsonStr), target); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w\nResponse: %s", err, truncateRunes(response, 500))
	}

	return nil
}

// extractJSON tries to extract JSON from text that might contain markdown or other formatting
func extractJSON(text string) string {
	// Remove markdown code blocks
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	// Find JSON object or array boundaries
	startObj := strings.Index(text, "{")
	startArr := strings.Index(text, "[")
	endObj := strings.LastIndex(text, "}")
	endArr := strings.LastIndex(text, "]")

	if startObj != -1 && endObj != -1 && endObj > startObj {
		return text[startObj : endObj+1]
	} else if startArr != -1 && endArr != -1 && endArr > startArr {
		return text[startArr : endArr+1]
	}

	return text
}
