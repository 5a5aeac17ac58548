package services

import (
	"context"
	"fmt"
	"sync"

	"hirecorrecto/interview-orchestrator/internal/models"
)

type generateFunc func(req GenerateRequest) (*GenerateResponse, error)

// fakeClient answers Generate calls by operation name.
type fakeClient struct {
	mu       sync.Mutex
	handlers map[string]generateFunc
	calls    map[string]int
	requests []GenerateRequest
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		handlers: make(map[string]generateFunc),
		calls:    make(map[string]int),
	}
}

func (f *fakeClient) on(op string, h generateFunc) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[op] = h
	return f
}

// reply scripts op to always return text with the given token counts.
func (f *fakeClient) reply(op, text string, in, out int64) *fakeClient {
	return f.on(op, func(req GenerateRequest) (*GenerateResponse, error) {
		return &GenerateResponse{
			Text:  text,
			Model: req.Model,
			Usage: models.TokenUsage{InputTokens: in, OutputTokens: out, Model: req.Model},
		}, nil
	})
}

func (f *fakeClient) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeClient) Generate(_ context.Context, req GenerateRequest) (*GenerateResponse, error) {
	f.mu.Lock()
	f.calls[req.Op]++
	f.requests = append(f.requests, req)
	h := f.handlers[req.Op]
	f.mu.Unlock()

	if h == nil {
		return nil, fmt.Errorf("no response scripted for %q", req.Op)
	}
	return h(req)
}

func (f *fakeClient) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1, 0}, nil
}

const (
	generatedQuestionJSON = `{"id":"x","text":"How do Go channels synchronize goroutines?","kind":"generated","order":1,"skills":["go"]}`
	evaluationJSON        = "```json\n" + `{"transcript":"Channels block until both sides are ready.","evaluation":{"relevance":80,"technical_accuracy":70,"fluency":90,"overall_score":78,"score_label":"fail","comment":"Solid."},"cheating":{"cheat_score":0.1,"flags":["none"],"summary":"Clean."},"next_action":"next_question"}` + "\n```"
)

func testContext() models.InterviewContext {
	return models.InterviewContext{
		JobTitle: "Backend Engineer",
		Skills: []models.Skill{
			{Name: "Go", Weight: 50},
			{Name: "SQL", Weight: 30},
			{Name: "Kubernetes", Weight: 20},
		},
		MaxQuestions:   5,
		PassPercentage: 70,
	}
}
