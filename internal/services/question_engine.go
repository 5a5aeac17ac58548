package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hirecorrecto/interview-orchestrator/internal/models"
)

const (
	maxReferenceQuestions = 10
	maxPrioritySkills     = 3
	maxQuestionTextRunes  = 1000
	recentQuestionWindow  = 24 * time.Hour
)

// AskedQuestionLookup reports which pool questions a candidate was asked
// since a point in time.
type AskedQuestionLookup interface {
	RecentlyAskedPoolQuestions(ctx context.Context, candidateID string, since time.Time) ([]string, error)
}

// ReferenceIndex picks the pool questions most relevant to a set of skills.
type ReferenceIndex interface {
	SelectReferences(ctx context.Context, pool []models.PoolQuestion, skills []string, limit int) ([]models.PoolQuestion, error)
}

type QuestionEngine struct {
	client  ModelClient
	models  []string
	history AskedQuestionLookup
	index   ReferenceIndex
	prompts *PromptBuilder
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

type QuestionEngineOption func(*QuestionEngine)

func WithAskedQuestionLookup(l AskedQuestionLookup) QuestionEngineOption {
	return func(e *QuestionEngine) { e.history = l }
}

func WithReferenceIndex(idx ReferenceIndex) QuestionEngineOption {
	return func(e *QuestionEngine) { e.index = idx }
}

func WithRandSource(src rand.Source) QuestionEngineOption {
	return func(e *QuestionEngine) { e.rng = rand.New(src) }
}

func WithEngineClock(now func() time.Time) QuestionEngineOption {
	return func(e *QuestionEngine) { e.now = now }
}

func NewQuestionEngine(client ModelClient, modelList []string, opts ...QuestionEngineOption) *QuestionEngine {
	e := &QuestionEngine{
		client:  client,
		models:  modelList,
		prompts: NewPromptBuilder(),
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type questionSelection struct {
	Record models.QuestionRecord
	Usage  models.TokenUsage
	Wasted []models.TokenUsage
}

// SelectOrGenerate decides where the next question comes from. A due
// mandatory question always wins; otherwise a non-nil prior answer asks for a
// follow-up on that answer.
func (e *QuestionEngine) SelectOrGenerate(ctx context.Context, view SessionView, prior *models.AnsweredSummary) (*questionSelection, error) {
	if MandatoryDue(view.Context, view.Questions) {
		rec := e.selectMandatory(ctx, view)
		return &questionSelection{Record: rec}, nil
	}
	return e.generate(ctx, view, prior)
}

// MandatoryTarget is how many curated mandatory questions an interview of
// maxQuestions should contain.
func MandatoryTarget(maxQuestions int, mandatoryWeightage float64) int {
	return int(math.Round(mandatoryWeightage / 100 * float64(maxQuestions)))
}

func MandatoryDue(ictx models.InterviewContext, asked []models.QuestionRecord) bool {
	if ictx.MandatoryWeightage <= 0 || len(ictx.MandatoryQuestions) == 0 {
		return false
	}
	count := 0
	for _, q := range asked {
		if q.Kind == models.KindMandatory {
			count++
		}
	}
	return count < MandatoryTarget(ictx.MaxQuestions, ictx.MandatoryWeightage)
}

func (e *QuestionEngine) selectMandatory(ctx context.Context, view SessionView) models.QuestionRecord {
	pool := view.Context.MandatoryQuestions

	inSession := make(map[string]bool)
	for _, q := range view.Questions {
		if q.PoolQuestionID != "" {
			inSession[q.PoolQuestionID] = true
		}
	}

	recent := make(map[string]bool)
	if e.history != nil && view.CandidateID != "" {
		ids, err := e.history.RecentlyAskedPoolQuestions(ctx, view.CandidateID, e.now().Add(-recentQuestionWindow))
		if err != nil {
			log.Printf("⚠️  Failed to load recent questions for candidate %s: %v\n", view.CandidateID, err)
		}
		for _, id := range ids {
			recent[id] = true
		}
	}

	candidates := filterPool(pool, func(q models.PoolQuestion) bool { return !recent[q.ID] && !inSession[q.ID] })
	if len(candidates) == 0 {
		candidates = filterPool(pool, func(q models.PoolQuestion) bool { return !inSession[q.ID] })
	}
	if len(candidates) == 0 {
		candidates = pool
	}

	ranked := RankMandatory(candidates, view.Context.SkillWeights(), skillAskCounts(view.Questions))
	top := int(math.Floor(float64(len(ranked)) * 0.3))
	if top < 1 {
		top = 1
	}

	e.mu.Lock()
	pick := ranked[e.rng.Intn(top)]
	e.mu.Unlock()

	return models.QuestionRecord{
		ID:             uuid.NewString(),
		Text:           truncateRunes(pick.Text, maxQuestionTextRunes),
		Kind:           models.KindMandatory,
		Order:          view.NextOrder,
		Skills:         append([]string(nil), pick.Skills...),
		PoolQuestionID: pick.ID,
	}
}

func filterPool(pool []models.PoolQuestion, keep func(models.PoolQuestion) bool) []models.PoolQuestion {
	var out []models.PoolQuestion
	for _, q := range pool {
		if keep(q) {
			out = append(out, q)
		}
	}
	return out
}

func skillAskCounts(asked []models.QuestionRecord) map[string]int {
	counts := make(map[string]int)
	for _, q := range asked {
		for _, s := range q.Skills {
			counts[strings.ToLower(s)]++
		}
	}
	return counts
}

// RankMandatory orders pool questions by skill score, highest first. A
// question scores the sum over its skills of weight / (1 + asked*0.5).
func RankMandatory(pool []models.PoolQuestion, weights map[string]float64, asked map[string]int) []models.PoolQuestion {
	type scored struct {
		q     models.PoolQuestion
		score float64
	}

	list := make([]scored, 0, len(pool))
	for _, q := range pool {
		var score float64
		for _, s := range q.Skills {
			key := strings.ToLower(s)
			score += weights[key] / (1 + float64(asked[key])*0.5)
		}
		list = append(list, scored{q: q, score: score})
	}

	sort.SliceStable(list, func(i, j int) bool { return list[i].score > list[j].score })

	out := make([]models.PoolQuestion, len(list))
	for i, s := range list {
		out[i] = s.q
	}
	return out
}

// PrioritySkills returns up to limit skills ordered by weight divided by how
// much they are already covered by the mandatory pool and asked questions.
func PrioritySkills(ictx models.InterviewContext, asked []models.QuestionRecord, limit int) []string {
	coverage := skillAskCounts(asked)
	for _, q := range ictx.MandatoryQuestions {
		for _, s := range q.Skills {
			coverage[strings.ToLower(s)]++
		}
	}

	type ranked struct {
		name     string
		priority float64
	}
	var list []ranked
	for _, s := range ictx.Skills {
		if s.Weight <= 0 {
			continue
		}
		list = append(list, ranked{
			name:     s.Name,
			priority: s.Weight / (1 + float64(coverage[strings.ToLower(s.Name)])),
		})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].priority > list[j].priority })

	var out []string
	for i := 0; i < len(list) && i < limit; i++ {
		out = append(out, list[i].name)
	}
	return out
}

func (e *QuestionEngine) references(ctx context.Context, ictx models.InterviewContext, priority []string) []models.PoolQuestion {
	if ictx.OptionalWeightage <= 0 || len(ictx.OptionalQuestions) == 0 {
		return nil
	}

	pool := ictx.OptionalQuestions
	if len(pool) <= maxReferenceQuestions {
		return pool
	}

	if e.index != nil {
		picked, err := e.index.SelectReferences(ctx, pool, priority, maxReferenceQuestions)
		if err == nil && len(picked) > 0 {
			return picked
		}
		if err != nil {
			log.Printf("⚠️  Reference index lookup failed, using first %d: %v\n", maxReferenceQuestions, err)
		}
	}
	return pool[:maxReferenceQuestions]
}

func (e *QuestionEngine) generate(ctx context.Context, view SessionView, prior *models.AnsweredSummary) (*questionSelection, error) {
	priority := PrioritySkills(view.Context, view.Questions, maxPrioritySkills)

	var asked []string
	for _, q := range view.Questions {
		asked = append(asked, q.Text)
	}

	refs := e.references(ctx, view.Context, priority)
	prompt := e.prompts.BuildQuestionGenerationPrompt(questionPromptInput{
		Context:        view.Context,
		References:     refs,
		PrioritySkills: priority,
		AskedQuestions: asked,
		NextOrder:      view.NextOrder,
		FollowUp:       prior,
	})

	res, err := runWithFallback(ctx, e.client, e.models, "question generation", ErrQuestionGenerationFailed,
		func(string) GenerateRequest {
			return GenerateRequest{
				Parts:           []Part{TextPart(prompt)},
				Temperature:     0.7,
				MaxOutputTokens: 1024,
				JSON:            true,
			}
		},
		parseGeneratedQuestion,
	)
	if err != nil {
		return &questionSelection{Wasted: res.Wasted}, err
	}

	kind := models.KindGenerated
	switch {
	case prior != nil:
		kind = models.KindFollowUp
	case len(refs) > 0:
		kind = models.KindOptional
	}

	gq := res.Value
	rec := models.QuestionRecord{
		ID:     uuid.NewString(),
		Text:   truncateRunes(gq.Text, maxQuestionTextRunes),
		Kind:   kind,
		Order:  view.NextOrder,
		Skills: matchSkills(view.Context.Skills, gq.Skills),
	}
	if len(rec.Skills) == 0 && prior != nil {
		rec.Skills = append([]string(nil), prior.Skills...)
	}

	return &questionSelection{Record: rec, Usage: res.Usage, Wasted: res.Wasted}, nil
}

type generatedQuestion struct {
	ID     string
	Text   string
	Kind   string
	Order  int
	Skills []string
}

func parseGeneratedQuestion(text string) (*generatedQuestion, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(extractJSON(text)), &raw); err != nil {
		return nil, fmt.Errorf("question payload is not a JSON object: %w", err)
	}
	for _, key := range []string{"id", "text", "kind", "order"} {
		if _, ok := raw[key]; !ok {
			return nil, fmt.Errorf("question payload missing %q", key)
		}
	}

	q := &generatedQuestion{ID: strings.Trim(string(raw["id"]), `"`)}
	if err := json.Unmarshal(raw["text"], &q.Text); err != nil {
		return nil, fmt.Errorf("question text is not a string: %w", err)
	}
	if err := json.Unmarshal(raw["kind"], &q.Kind); err != nil {
		return nil, fmt.Errorf("question kind is not a string: %w", err)
	}
	var order float64
	if err := json.Unmarshal(raw["order"], &order); err != nil {
		return nil, fmt.Errorf("question order is not a number: %w", err)
	}
	q.Order = int(order)
	if skills, ok := raw["skills"]; ok {
		if err := json.Unmarshal(skills, &q.Skills); err != nil {
			log.Printf("⚠️  Ignoring malformed question skills %s: %v\n", skills, err)
			q.Skills = nil
		}
	}

	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, fmt.Errorf("question text is empty")
	}
	return q, nil
}

// matchSkills keeps the skills the model tagged, spelled as in the interview
// context when they match one of its skills.
func matchSkills(known []models.Skill, tagged []string) []string {
	byName := make(map[string]string, len(known))
	for _, s := range known {
		byName[strings.ToLower(s.Name)] = s.Name
	}

	var out []string
	seen := make(map[string]bool)
	for _, t := range tagged {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		name, ok := byName[strings.ToLower(t)]
		if !ok {
			name = t
		}
		if !seen[strings.ToLower(name)] {
			seen[strings.ToLower(name)] = true
			out = append(out, name)
		}
	}
	return out
}
