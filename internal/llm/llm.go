// Package llm defines the text completion capability used by the research
// loop and its concrete backends.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrMalformedOutput reports completion output that could not be parsed
	// into the expected structure.
	ErrMalformedOutput = errors.New("malformed model output")
	// ErrEmptyOutput reports a completion that returned no text.
	ErrEmptyOutput = errors.New("empty model output")
)

// Prompt is a single completion request.
type Prompt struct {
	System string
	User   string
	// MaxTokens caps the response length. Zero leaves it to the backend.
	MaxTokens int
	// Temperature is passed through when non-nil.
	Temperature *float64
	// Label names the calling operation for logs and metrics.
	Label string
}

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, p Prompt) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// Float returns a pointer to v, for Prompt.Temperature.
func Float(v float64) *float64 {
	return &v
}
