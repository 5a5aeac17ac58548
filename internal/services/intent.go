package services

import (
	"context"
	"log"
	"regexp"
	"strings"
	"unicode/utf8"

	"hirecorrecto/interview-orchestrator/internal/models"
)

const intentModelMinChars = 15

type intentPattern struct {
	intent models.CandidateIntent
	re     *regexp.Regexp
}

// Checked in order. Negated forms ("not done yet") come before done, and
// done comes before the weak continue words so "no that's all" is done.
// Bare words that also show up inside technical answers ("pass", "done",
// "ok", "more time") only count at the start of the reply.
var intentPatterns = []intentPattern{
	{models.IntentContinue, regexp.MustCompile(`\b(not (done|finished)( yet)?|not yet|i'?m not (done|finished)|i am not (done|finished)|still (going|talking|explaining|answering)|let me (continue|finish)|one more (thing|point)|hold on|wait,? (i|let))\b`)},
	{models.IntentDone, regexp.MustCompile(`^((no|yes|yeah|ok|okay|so|and|well),? )?(that'?s (all|it)|that is (all|it)|done|finished|nothing (else|more))\b|\b(i'?m (done|finished)|i am (done|finished)|that'?s my (final )?answer|that'?s all i (have|got))\b`)},
	{models.IntentSkip, regexp.MustCompile(`^((ok|okay|sorry|honestly|um+|hm+),? )?((pass|skip)\b|i (don'?t|do not) know\b)|\b(skip (it|this|that)|i('ll| will) pass|(let'?s|can we|could we|please|i'?d like to|i want to) move on|next question|no idea|i have no (idea|clue)|can'?t answer|not sure about this)\b`)},
	{models.IntentThinking, regexp.MustCompile(`^(hm+|um+|uh+|thinking)\b|\b(let me think|i'?m (still )?thinking|give me a (moment|minute|second|sec)|i need (a )?(moment|minute|second|more time)|one (moment|minute|sec|second))\b`)},
	{models.IntentContinue, regexp.MustCompile(`^(yes|yeah|yep|sure|ok|okay|ready|i'?m ready|continue|go on|keep going)\b`)},
	{models.IntentAnswering, regexp.MustCompile(`\b(so|basically|first(ly)?|the answer|i would|we would|you (can|could|would)|it (is|depends)|because|in my experience)\b`)},
}

func normalizeUtterance(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	return strings.NewReplacer("’", "'", "‘", "'").Replace(text)
}

// MatchIntent is the pattern fast path. ok is false when nothing matched.
func MatchIntent(text string) (models.CandidateIntent, bool) {
	norm := normalizeUtterance(text)
	if norm == "" {
		return models.IntentNone, false
	}
	for _, p := range intentPatterns {
		if p.re.MatchString(norm) {
			return p.intent, true
		}
	}
	return models.IntentNone, false
}

type intentResult struct {
	Intent     models.CandidateIntent
	Confidence float64
	ViaModel   bool
	Usage      models.TokenUsage
	Wasted     []models.TokenUsage
}

type IntentClassifier struct {
	client  ModelClient
	models  []string
	prompts *PromptBuilder
}

func NewIntentClassifier(client ModelClient, modelList []string) *IntentClassifier {
	return &IntentClassifier{
		client:  client,
		models:  modelList,
		prompts: NewPromptBuilder(),
	}
}

// Classify resolves a reply to an intervention. Patterns are tried first;
// longer unmatched replies go to the model. Anything unresolved is answering.
func (c *IntentClassifier) Classify(ctx context.Context, question, reply string) intentResult {
	if intent, ok := MatchIntent(reply); ok {
		return intentResult{Intent: intent, Confidence: 1}
	}

	res := intentResult{Intent: models.IntentAnswering}
	if utf8.RuneCountInString(strings.TrimSpace(reply)) <= intentModelMinChars || c.client == nil {
		return res
	}

	prompt := c.prompts.BuildIntentClassificationPrompt(question, reply)
	out, err := runWithFallback(ctx, c.client, c.models, "intent classification", nil,
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
		log.Printf("⚠️  Intent classification failed, treating reply as answering: %v\n", err)
		return res
	}

	res.ViaModel = true
	res.Usage = out.Usage
	res.Confidence = out.Value.Confidence
	if intent := models.CandidateIntent(out.Value.Intent); intent.Valid() {
		res.Intent = intent
	}
	return res
}

type intentResponse struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

func parseIntentResponse(text string) (*intentResponse, error) {
	var out intentResponse
	if err := parseJSONResponse(text, &out); err != nil {
		return nil, err
	}
	out.Intent = strings.ToLower(strings.TrimSpace(out.Intent))
	out.Confidence = clamp(out.Confidence, 0, 1)
	return &out, nil
}
