// Package grader scores free-response quiz answers with a model backend.
// It wraps the configured provider with usage tracking and retries, and
// returns a boolean verdict validated against a JSON schema.
package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/studia-app/engine/internal/quiz"
)

const gradingSystem = `You are a strict but fair grader for a tutoring application.
You receive a question, a reference answer, and a learner's answer.
Judge whether the learner's answer is substantively correct: accept
equivalent phrasings, notation and ordering differences, but reject
answers that miss the substance of the reference answer.`

const gradingMaxTokens = 512

// Verdict is the structured judgement returned by the grading backend.
type Verdict struct {
	Correct     bool   `json:"correct"`
	Explanation string `json:"explanation"`
}

// Grader scores free-response answers. It satisfies the grading
// collaborator contract of the quiz pipeline.
type Grader struct {
	provider Provider
	usage    *UsageTracker
	timeout  time.Duration
}

// New builds a Grader from configuration. The provider is wrapped with
// usage tracking and retry middleware.
func New(ctx context.Context, cfg Config) (*Grader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var base Provider
	var err error
	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "mock":
		base = NewMockProvider()
	default:
		return nil, fmt.Errorf("unknown grading provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	tracker := &UsageTracker{}
	// Middleware order: caller → retry → usage tracking → base, so every
	// attempt is counted, not just the final one.
	wrapped := WithRetry(WithUsageTracking(base, tracker), cfg.Retry)

	return &Grader{
		provider: wrapped,
		usage:    tracker,
		timeout:  cfg.Timeout,
	}, nil
}

// NewFromEnv builds a Grader from STUDIA_* environment variables, falling
// back to probing the standard provider API key variables.
func NewFromEnv(ctx context.Context) (*Grader, error) {
	cfg := ConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		discovered, ok := DiscoverConfig()
		if !ok {
			return nil, err
		}
		cfg = discovered
	}
	return New(ctx, cfg)
}

// NewWithProvider builds a Grader around an already-constructed provider.
// Used by tests and by callers that manage their own middleware.
func NewWithProvider(p Provider) *Grader {
	tracker := &UsageTracker{}
	return &Grader{
		provider: WithUsageTracking(p, tracker),
		usage:    tracker,
	}
}

// Grade judges the learner's answer to one free-response question.
func (g *Grader) Grade(ctx context.Context, q quiz.Question, learnerAnswer string) (bool, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	req := Request{
		System:    gradingSystem,
		User:      buildGradingPrompt(q, learnerAnswer),
		Schema:    verdictSchema,
		MaxTokens: gradingMaxTokens,
	}

	resp, err := g.provider.Complete(ctx, req)
	if err != nil {
		return false, err
	}

	var v Verdict
	if err := json.Unmarshal(resp.Content, &v); err != nil {
		return false, &ErrInvalidVerdict{Content: resp.Content, Err: err}
	}
	return v.Correct, nil
}

// Usage returns accumulated backend consumption across all grading calls.
func (g *Grader) Usage() UsageTotals {
	return g.usage.Totals()
}

// ModelID returns the configured model identifier.
func (g *Grader) ModelID() string {
	return g.provider.ModelID()
}

func buildGradingPrompt(q quiz.Question, learnerAnswer string) string {
	var b strings.Builder

	b.WriteString("Question:\n")
	b.WriteString(q.Prompt)
	b.WriteString("\n\nReference answer:\n")
	b.WriteString(q.Answer)
	if q.Explanation != "" {
		b.WriteString("\n\nReference explanation:\n")
		b.WriteString(q.Explanation)
	}
	b.WriteString("\n\nLearner's answer:\n")
	b.WriteString(learnerAnswer)

	return b.String()
}
