package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSession           = errors.New("invalid or expired session")
	ErrInvalidContext           = errors.New("invalid interview context")
	ErrUnknownQuestion          = errors.New("question does not belong to session")
	ErrInsufficientData         = errors.New("insufficient answered questions")
	ErrProviderUnavailable      = errors.New("model provider unavailable")
	ErrQuestionGenerationFailed = errors.New("question generation failed")
	ErrMalformedResponse        = errors.New("malformed model response")
	ErrModelUnavailable         = errors.New("model unavailable")
	ErrPersistenceConflict      = errors.New("persistence conflict")
)

// ProviderError is returned when every model in the fallback list failed.
type ProviderError struct {
	Op        string
	Attempted []string
	Err       error

	terminal error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s failed after trying models [%s]: %v", e.Op, strings.Join(e.Attempted, ", "), e.Err)
}

func (e *ProviderError) Unwrap() []error {
	errs := []error{ErrProviderUnavailable}
	if e.terminal != nil {
		errs = append(errs, e.terminal)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
