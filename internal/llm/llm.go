package llm

import (
	"context"
	"fmt"

	"github.com/scoutworks/deepscout/config"
)

// FragmentKind classifies one unit of streamed model output.
type FragmentKind int

const (
	// FragmentText is an answer-content delta.
	FragmentText FragmentKind = iota
	// FragmentReasoning is a chain-of-thought delta emitted before content.
	FragmentReasoning
	// FragmentError is a terminal provider/stream failure; the channel is
	// closed immediately after it.
	FragmentError
)

// Fragment is one classified unit of a model output stream.
type Fragment struct {
	Kind FragmentKind
	Text string
	Err  error
}

// Usage reports token consumption for one completed call.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	Model            string
}

// ChatRequest describes a single model call.
type ChatRequest struct {
	System      string
	Prompt      string
	Model       string // routing key into config.LLM.Provider.Models
	Temperature float64
	MaxTokens   int
	JSONOutput  bool // ask the provider for a JSON object response
}

// Provider is the language-model backend consumed by the research engine.
// Stream returns a finite sequence of classified fragments; the channel is
// closed when the upstream call ends (normally or after a FragmentError).
// If onUsage is non-nil it is invoked once with final token usage when the
// provider reports it.
type Provider interface {
	Stream(ctx context.Context, req ChatRequest, onUsage func(Usage)) (<-chan Fragment, error)
	Generate(ctx context.Context, req ChatRequest, onUsage func(Usage)) (string, error)
	CalculateCost(u Usage) float64
}

// NewProvider creates an LLM provider based on configuration
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider.Type {
	case "openai", "":
		return NewOpenAIProvider(cfg.Provider), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %s", cfg.Provider.Type)
	}
}
