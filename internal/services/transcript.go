package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"hirecorrecto/interview-orchestrator/internal/models"
)

// transcriptBuffer is the append-only turn log of one question. Turns are
// kept in arrival order and sorted by timestamp on read.
type transcriptBuffer struct {
	turns []models.ConversationTurn

	lastCandidate   int
	lastFragmentAt  time.Time
	hasCandidate    bool
	lastAnalysisAt  time.Time
	analyzedAtLeast bool
}

func (b *transcriptBuffer) addBotTurn(text string, at time.Time) models.ConversationTurn {
	turn := models.ConversationTurn{
		ID:        uuid.NewString(),
		Speaker:   models.SpeakerBot,
		Text:      text,
		Timestamp: at,
	}
	b.turns = append(b.turns, turn)
	return turn
}

// addCandidate merges text into the latest candidate turn when it arrives
// within window of the previous fragment, otherwise opens a new turn.
func (b *transcriptBuffer) addCandidate(text string, at time.Time, window time.Duration, mediaRef string) (models.ConversationTurn, bool) {
	text = strings.TrimSpace(text)

	if b.hasCandidate && window > 0 {
		gap := at.Sub(b.lastFragmentAt)
		if gap < 0 {
			gap = -gap
		}
		if gap <= window {
			turn := &b.turns[b.lastCandidate]
			if text != "" {
				if turn.Text == "" {
					turn.Text = text
				} else {
					turn.Text = turn.Text + " " + text
				}
			}
			if mediaRef != "" {
				turn.MediaRef = mediaRef
			}
			if at.After(b.lastFragmentAt) {
				b.lastFragmentAt = at
			}
			return *turn, true
		}
	}

	turn := models.ConversationTurn{
		ID:        uuid.NewString(),
		Speaker:   models.SpeakerCandidate,
		Text:      text,
		Timestamp: at,
		MediaRef:  mediaRef,
	}
	b.turns = append(b.turns, turn)
	b.lastCandidate = len(b.turns) - 1
	b.lastFragmentAt = at
	b.hasCandidate = true
	return turn, false
}

func (b *transcriptBuffer) sortedTurns() []models.ConversationTurn {
	if len(b.turns) == 0 {
		return nil
	}
	out := append([]models.ConversationTurn(nil), b.turns...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// candidateText is everything the candidate said so far, in timestamp order.
func (b *transcriptBuffer) candidateText() string {
	var parts []string
	for _, t := range b.sortedTurns() {
		if t.Speaker == models.SpeakerCandidate && t.Text != "" {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, " ")
}

// dueForAnalysis reports whether follow-up analysis should run now and, if
// so, marks it as started.
func (b *transcriptBuffer) dueForAnalysis(now time.Time, debounce time.Duration, final bool) bool {
	if !final && b.analyzedAtLeast && now.Sub(b.lastAnalysisAt) < debounce {
		return false
	}
	b.lastAnalysisAt = now
	b.analyzedAtLeast = true
	return true
}

// AssembleTranscript renders turns as speaker-labeled lines in timestamp
// order, merging consecutive turns of the same speaker. With no turns the
// fallback transcript is returned as-is.
func AssembleTranscript(turns []models.ConversationTurn, fallback string) string {
	if len(turns) == 0 {
		return strings.TrimSpace(fallback)
	}

	sorted := append([]models.ConversationTurn(nil), turns...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	type line struct {
		speaker models.Speaker
		text    []string
	}
	var lines []line
	for _, t := range sorted {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		if n := len(lines); n > 0 && lines[n-1].speaker == t.Speaker {
			lines[n-1].text = append(lines[n-1].text, text)
			continue
		}
		lines = append(lines, line{speaker: t.Speaker, text: []string{text}})
	}
	if len(lines) == 0 {
		return strings.TrimSpace(fallback)
	}

	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteString("\n")
		}
		label := "Candidate"
		if l.speaker == models.SpeakerBot {
			label = "Interviewer"
		}
		fmt.Fprintf(&b, "%s: %s", label, strings.Join(l.text, " "))
	}
	return b.String()
}

type TranscriptConfig struct {
	CoalesceWindow time.Duration
	Debounce       time.Duration
	MinChars       int
	MinConfidence  float64
}

func DefaultTranscriptConfig() TranscriptConfig {
	return TranscriptConfig{
		CoalesceWindow: 3 * time.Second,
		Debounce:       10 * time.Second,
		MinChars:       50,
		MinConfidence:  0.7,
	}
}

// FollowUpProposal is a follow-up question suggested while the candidate is
// still answering.
type FollowUpProposal struct {
	Question   string  `json:"question"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

type followUpAnalysis struct {
	ShouldFollowUp bool    `json:"should_follow_up"`
	Question       string  `json:"question"`
	Reason         string  `json:"reason"`
	Confidence     float64 `json:"confidence"`
}

type TranscriptAggregator struct {
	client  ModelClient
	models  []string
	prompts *PromptBuilder
	cfg     TranscriptConfig
}

func NewTranscriptAggregator(client ModelClient, modelList []string, cfg TranscriptConfig) *TranscriptAggregator {
	defaults := DefaultTranscriptConfig()
	if cfg.CoalesceWindow <= 0 {
		cfg.CoalesceWindow = defaults.CoalesceWindow
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaults.Debounce
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = defaults.MinChars
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = defaults.MinConfidence
	}
	return &TranscriptAggregator{
		client:  client,
		models:  modelList,
		prompts: NewPromptBuilder(),
		cfg:     cfg,
	}
}

func (a *TranscriptAggregator) Config() TranscriptConfig {
	return a.cfg
}

// LongEnough reports whether a partial answer is worth analyzing.
func (a *TranscriptAggregator) LongEnough(partial string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(partial)) >= a.cfg.MinChars
}

// AnalyzeFollowUp asks the model whether the partial answer deserves a
// follow-up. The proposal is nil when the buffer is too short or the model
// is not confident enough.
func (a *TranscriptAggregator) AnalyzeFollowUp(ctx context.Context, question, partial string) (*FollowUpProposal, *fallbackResult[*followUpAnalysis], error) {
	if !a.LongEnough(partial) {
		return nil, nil, nil
	}

	prompt := a.prompts.BuildFollowUpAnalysisPrompt(question, partial)
	res, err := runWithFallback(ctx, a.client, a.models, "follow-up analysis", nil,
		func(string) GenerateRequest {
			return GenerateRequest{
				Parts:           []Part{TextPart(prompt)},
				Temperature:     0.3,
				MaxOutputTokens: 512,
				JSON:            true,
			}
		},
		func(text string) (*followUpAnalysis, error) {
			var out followUpAnalysis
			if err := parseJSONResponse(text, &out); err != nil {
				return nil, err
			}
			return &out, nil
		},
	)
	if err != nil {
		return nil, res, err
	}

	fa := res.Value
	if !fa.ShouldFollowUp || fa.Confidence < a.cfg.MinConfidence || strings.TrimSpace(fa.Question) == "" {
		return nil, res, nil
	}

	return &FollowUpProposal{
		Question:   truncateRunes(strings.TrimSpace(fa.Question), maxQuestionTextRunes),
		Reason:     fa.Reason,
		Confidence: fa.Confidence,
	}, res, nil
}
