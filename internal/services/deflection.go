package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"hirecorrecto/interview-orchestrator/internal/models"
)

const (
	deflectionMinChars      = 10
	deflectionModelMinChars = 30
	deflectionMinConfidence = 0.7
	heuristicConfidence     = 0.8
)

type deflectionPattern struct {
	kind models.DeflectionType
	re   *regexp.Regexp
}

// Answer requests come first so "is that the correct answer?" is not taken
// for a clarification or a plain question.
var deflectionPatterns = []deflectionPattern{
	{models.DeflectionRequestingAnswer, regexp.MustCompile(`(what'?s|what is|tell me|give me|show me) the (correct |right |expected )?answer|(can|could) you (give|tell|show) me (the answer|a hint|the solution)|(give me|any) (a )?hints?|is (that|this|my answer|it) (correct|right)|am i (right|correct|on the right track)|was (that|my answer) (correct|right)|did i get (it|that) right`)},
	{models.DeflectionRoleReversal, regexp.MustCompile(`what (would|do) you (do|think|say)|how would you (answer|solve|do|approach)|what'?s your (opinion|answer|take|view)|what is your (opinion|answer|take|view)|(can|could) you (answer|solve) (it|this|that)|you (tell|answer) me|your turn`)},
	{models.DeflectionLegitimateClarification, regexp.MustCompile(`(can|could) you (please )?(repeat|rephrase|clarify)|(repeat|rephrase) the question|say (that|it) again|what do you mean|didn'?t (catch|hear|understand) (that|the question)|sorry,? what was the question|which (one|part) do you mean`)},
}

var deflectionRank = map[models.DeflectionType]int{
	models.DeflectionNone:                    0,
	models.DeflectionLegitimateClarification: 1,
	models.DeflectionAskingQuestion:          2,
	models.DeflectionRoleReversal:            3,
	models.DeflectionRequestingAnswer:        4,
}

// DetectDeflectionHeuristic screens a transcript chunk. Short chunks and
// normal answering return DeflectionNone.
func DetectDeflectionHeuristic(text string) models.DeflectionType {
	norm := normalizeUtterance(text)
	if utf8.RuneCountInString(norm) <= deflectionMinChars {
		return models.DeflectionNone
	}
	for _, p := range deflectionPatterns {
		if p.re.MatchString(norm) {
			return p.kind
		}
	}
	if strings.HasSuffix(norm, "?") {
		return models.DeflectionAskingQuestion
	}
	return models.DeflectionNone
}

// DeflectionResponse is what the interviewer says back.
func DeflectionResponse(kind models.DeflectionType, question string) string {
	switch kind {
	case models.DeflectionRequestingAnswer:
		return "I'm not able to share answers or confirm whether you're right during the interview. Please answer in your own words and your response will be evaluated afterwards."
	case models.DeflectionRoleReversal:
		return "This interview is about your perspective rather than mine. How would you approach it?"
	case models.DeflectionAskingQuestion:
		return "I'm here to learn about your experience, so I can't answer questions during the interview. Please continue with your answer."
	case models.DeflectionLegitimateClarification:
		return fmt.Sprintf("Of course. The question is: %s", question)
	}
	return ""
}

type deflectionResult struct {
	Type       models.DeflectionType
	Confidence float64
	Usage      models.TokenUsage
	Wasted     []models.TokenUsage
}

type DeflectionDetector struct {
	client     ModelClient
	models     []string
	prompts    *PromptBuilder
	modelCheck bool
}

func NewDeflectionDetector(client ModelClient, modelList []string, modelCheck bool) *DeflectionDetector {
	return &DeflectionDetector{
		client:     client,
		models:     modelList,
		prompts:    NewPromptBuilder(),
		modelCheck: modelCheck,
	}
}

// Detect runs the heuristics and, for longer chunks, lets the model confirm
// or upgrade the result. The model never downgrades a heuristic hit.
func (d *DeflectionDetector) Detect(ctx context.Context, question, chunk string) (deflectionResult, error) {
	res := deflectionResult{Type: DetectDeflectionHeuristic(chunk)}
	if res.Type != models.DeflectionNone {
		res.Confidence = heuristicConfidence
	}

	if !d.modelCheck || d.client == nil || utf8.RuneCountInString(strings.TrimSpace(chunk)) < deflectionModelMinChars {
		return res, nil
	}

	prompt := d.prompts.BuildDeflectionCheckPrompt(question, chunk)
	out, err := runWithFallback(ctx, d.client, d.models, "deflection check", nil,
		func(string) GenerateRequest {
			return GenerateRequest{
				Parts:           []Part{TextPart(prompt)},
				Temperature:     0.1,
				MaxOutputTokens: 128,
				JSON:            true,
			}
		},
		parseIntentResponse,
	)
	if out != nil {
		res.Wasted = out.Wasted
	}
	if err != nil {
		return res, err
	}
	res.Usage = out.Usage

	kind := models.DeflectionType(out.Value.Intent)
	if !kind.Valid() || out.Value.Confidence < deflectionMinConfidence {
		return res, nil
	}
	if kind == res.Type {
		if out.Value.Confidence > res.Confidence {
			res.Confidence = out.Value.Confidence
		}
		return res, nil
	}
	if deflectionRank[kind] > deflectionRank[res.Type] {
		res.Type = kind
		res.Confidence = out.Value.Confidence
	}
	return res, nil
}
