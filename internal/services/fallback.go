package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"hirecorrecto/interview-orchestrator/internal/models"
)

type fallbackResult[T any] struct {
	Value T
	Model string
	Usage models.TokenUsage
	// Wasted holds usage of responses that were paid for but failed validation.
	Wasted []models.TokenUsage
}

// runWithFallback tries each model in order. Unavailable models and malformed
// responses move on to the next model; any other error stops immediately.
// When every model is used up the result is a *ProviderError that also
// matches terminal.
func runWithFallback[T any](
	ctx context.Context,
	client ModelClient,
	modelList []string,
	op string,
	terminal error,
	build func(model string) GenerateRequest,
	parse func(text string) (T, error),
) (*fallbackResult[T], error) {
	result := &fallbackResult[T]{}
	if len(modelList) == 0 {
		return result, &ProviderError{Op: op, Err: fmt.Errorf("no models configured"), terminal: terminal}
	}

	var (
		attempted []string
		lastErr   error
	)

	for _, model := range modelList {
		attempted = append(attempted, model)

		req := build(model)
		req.Model = model
		req.Op = op

		resp, err := client.Generate(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, fmt.Errorf("%s interrupted: %w", op, ctxErr)
			}
			if errors.Is(err, ErrModelUnavailable) || errors.Is(err, ErrMalformedResponse) {
				log.Printf("⚠️  %s: model %s unavailable, trying next: %v\n", op, model, err)
				lastErr = err
				continue
			}
			return result, fmt.Errorf("%s with model %s: %w", op, model, err)
		}

		value, err := parse(resp.Text)
		if err != nil {
			log.Printf("⚠️  %s: malformed response from %s: %v\n", op, model, err)
			result.Wasted = append(result.Wasted, resp.Usage)
			lastErr = fmt.Errorf("%w: %v", ErrMalformedResponse, err)
			continue
		}

		result.Value = value
		result.Model = model
		result.Usage = resp.Usage
		return result, nil
	}

	return result, &ProviderError{Op: op, Attempted: attempted, Err: lastErr, terminal: terminal}
}
