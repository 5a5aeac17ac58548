package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"hirecorrecto/interview-orchestrator/internal/metrics"
	"hirecorrecto/interview-orchestrator/internal/models"
)

// Part is one piece of a request: either text or inline media bytes.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

func TextPart(text string) Part {
	return Part{Text: text}
}

func MediaPart(data []byte, mimeType string) Part {
	return Part{Data: data, MIMEType: mimeType}
}

type GenerateRequest struct {
	Op              string
	Model           string
	SystemPrompt    string
	Parts           []Part
	Temperature     float32
	MaxOutputTokens int32
	JSON            bool
}

type GenerateResponse struct {
	Text  string
	Model string
	Usage models.TokenUsage
}

// ModelClient is the narrow view of the model provider the orchestrator needs.
type ModelClient interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

type geminiService struct {
	client     *genai.Client
	embedModel string
}

func NewGeminiService(apiKey, embedModel string) (ModelClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if embedModel == "" {
		embedModel = "text-embedding-004"
	}

	return &geminiService{
		client:     client,
		embedModel: embedModel,
	}, nil
}

// Generate implements ModelClient.
func (g *geminiService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	parts := make([]*genai.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		if len(p.Data) > 0 {
			parts = append(parts, genai.NewPartFromBytes(p.Data, p.MIMEType))
			continue
		}
		if p.Text != "" {
			parts = append(parts, genai.NewPartFromText(p.Text))
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty generation request")
	}

	temperature := req.Temperature
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if config.MaxOutputTokens == 0 {
		config.MaxOutputTokens = 4096
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	started := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		metrics.ProviderCall(req.Op, req.Model, "error", time.Since(started))
		log.Printf("❌ Gemini %s error on %s: %v\n", req.Op, req.Model, err)
		return nil, classifyProviderError(req.Model, err)
	}
	if resp == nil {
		metrics.ProviderCall(req.Op, req.Model, "empty", time.Since(started))
		return nil, fmt.Errorf("%w: nil response from %s", ErrMalformedResponse, req.Model)
	}
	metrics.ProviderCall(req.Op, req.Model, "ok", time.Since(started))

	out := &GenerateResponse{
		Text:  resp.Text(),
		Model: req.Model,
		Usage: models.TokenUsage{Model: req.Model},
	}
	if md := resp.UsageMetadata; md != nil {
		out.Usage.InputTokens = int64(md.PromptTokenCount)
		out.Usage.OutputTokens = int64(md.CandidatesTokenCount) + int64(md.ThoughtsTokenCount)
	}

	return out, nil
}

// Embed implements ModelClient.
func (g *geminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	if len(text) > 40000 {
		text = text[:40000]
	}

	result, err := g.client.Models.EmbedContent(ctx, g.embedModel, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	if result == nil || len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}

	return result.Embeddings[0].Values, nil
}

// classifyProviderError tags errors that mean "try the next model" with
// ErrModelUnavailable. Everything else is returned as-is.
func classifyProviderError(model string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound, http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return fmt.Errorf("%w: %s: %v", ErrModelUnavailable, model, err)
		}
		switch apiErr.Status {
		case "NOT_FOUND", "UNAVAILABLE", "RESOURCE_EXHAUSTED":
			return fmt.Errorf("%w: %s: %v", ErrModelUnavailable, model, err)
		}
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"is not found", "not supported", "overloaded", "model unavailable"} {
		if strings.Contains(msg, hint) {
			return fmt.Errorf("%w: %s: %v", ErrModelUnavailable, model, err)
		}
	}

	return fmt.Errorf("gemini %s: %w", model, err)
}
