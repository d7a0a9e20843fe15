package grader

import (
	"context"
	"encoding/json"
)

// Provider is the abstraction over the model backends used for grading.
// Implementations send a single-turn prompt and return structured JSON.
type Provider interface {
	// Complete sends the prompt and returns the model's structured output.
	// When the request carries a Schema, the returned Content conforms to it.
	Complete(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured with.
	ModelID() string
}

// Request is a single-turn grading prompt.
type Request struct {
	// System sets the model's role and grading constraints.
	System string

	// User is the prompt body: the question, the reference answer, and the
	// learner's answer.
	User string

	// Schema is the JSON Schema the output must conform to. When set, the
	// provider uses its native structured-output mechanism and validates
	// the result before returning it.
	Schema *Schema

	// MaxTokens bounds the response length.
	MaxTokens int
}

// Schema describes the JSON structure expected from the model.
type Schema struct {
	// Name identifies the schema. Kebab-case, e.g. "grade-verdict".
	Name string

	// Description is sent to the model to guide generation.
	Description string

	// Definition is the JSON Schema definition as a map.
	Definition map[string]any
}

// Response holds the model's output.
type Response struct {
	// Content is the generated output. Validated JSON when a Schema was
	// set on the request.
	Content json.RawMessage

	// Usage reports token consumption for this request.
	Usage Usage

	// Model is the actual model that served the request.
	Model string

	// StopReason is normalized to "end" or "max_tokens".
	StopReason string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
