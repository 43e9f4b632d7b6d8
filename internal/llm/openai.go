package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/scoutworks/deepscout/config"
)

// OpenAIProvider implements Provider against the OpenAI chat-completions API
// (or any compatible endpoint via base_url).
type OpenAIProvider struct {
	config config.LLMProvider
	client *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(cfg config.LLMProvider) *OpenAIProvider {
	return &OpenAIProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatReq struct {
	Model          string          `json:"model"`
	Messages       []chatMsg       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	StreamOptions  *streamOptions  `json:"stream_options,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type responseFormat struct {
	Type string `json:"type"`
}

func (p *OpenAIProvider) resolveModel(key string) (config.LLMModel, error) {
	m, ok := p.config.Models[key]
	if !ok {
		return config.LLMModel{}, fmt.Errorf("model %s not configured", key)
	}
	return m, nil
}

func (p *OpenAIProvider) apiKey() string {
	if p.config.APIKey != "" {
		return p.config.APIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}

func (p *OpenAIProvider) newRequest(ctx context.Context, req ChatRequest, stream bool) (*http.Request, string, error) {
	apiKey := p.apiKey()
	if apiKey == "" {
		return nil, "", fmt.Errorf("OpenAI API key not configured")
	}

	m, err := p.resolveModel(req.Model)
	if err != nil {
		return nil, "", err
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}

	temperature := m.Temperature
	if req.Temperature != 0 {
		temperature = req.Temperature
	}
	maxTokens := m.MaxTokens
	if req.MaxTokens != 0 {
		maxTokens = req.MaxTokens
	}

	var messages []chatMsg
	if req.System != "" {
		messages = append(messages, chatMsg{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMsg{Role: "user", Content: req.Prompt})

	body := chatReq{
		Model:       apiModel,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      stream,
	}
	if stream {
		body.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	if req.JSONOutput {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("marshal: %w", err)
	}

	baseURL := p.config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/chat/completions", bytes.NewBuffer(payload))
	if err != nil {
		return nil, "", fmt.Errorf("request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return httpReq, apiModel, nil
}

// Generate performs a single non-streaming completion.
func (p *OpenAIProvider) Generate(ctx context.Context, req ChatRequest, onUsage func(Usage)) (string, error) {
	httpReq, apiModel, err := p.newRequest(ctx, req, false)
	if err != nil {
		return "", err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("OpenAI status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("no choices")
	}
	if onUsage != nil {
		onUsage(Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			Model:            apiModel,
		})
	}
	return out.Choices[0].Message.Content, nil
}

// Stream performs a streaming completion classified into fragments.
// Content deltas become FragmentText, reasoning deltas (as emitted by
// reasoning models under delta.reasoning_content) become FragmentReasoning,
// and any transport or provider failure becomes a single terminal
// FragmentError before the channel closes.
func (p *OpenAIProvider) Stream(ctx context.Context, req ChatRequest, onUsage func(Usage)) (<-chan Fragment, error) {
	httpReq, apiModel, err := p.newRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	out := make(chan Fragment, 64)

	go func() {
		defer close(out)

		resp, err := p.client.Do(httpReq)
		if err != nil {
			out <- Fragment{Kind: FragmentError, Err: fmt.Errorf("request failed: %w", err)}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			out <- Fragment{Kind: FragmentError, Err: fmt.Errorf("OpenAI status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				return
			}

			var chunk struct {
				Choices []struct {
					Delta struct {
						Content          string `json:"content,omitempty"`
						ReasoningContent string `json:"reasoning_content,omitempty"`
					} `json:"delta"`
				} `json:"choices"`
				Usage *struct {
					PromptTokens     int64 `json:"prompt_tokens"`
					CompletionTokens int64 `json:"completion_tokens"`
				} `json:"usage,omitempty"`
				Error *struct {
					Message string `json:"message"`
				} `json:"error,omitempty"`
			}
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if chunk.Error != nil {
				out <- Fragment{Kind: FragmentError, Err: fmt.Errorf("API error: %s", chunk.Error.Message)}
				return
			}
			if chunk.Usage != nil && onUsage != nil {
				onUsage(Usage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
					Model:            apiModel,
				})
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.ReasoningContent != "" {
					select {
					case out <- Fragment{Kind: FragmentReasoning, Text: choice.Delta.ReasoningContent}:
					case <-ctx.Done():
						return
					}
				}
				if choice.Delta.Content != "" {
					select {
					case out <- Fragment{Kind: FragmentText, Text: choice.Delta.Content}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
		if err := scanner.Err(); err != nil {
			out <- Fragment{Kind: FragmentError, Err: fmt.Errorf("stream error: %w", err)}
		}
	}()

	return out, nil
}

// CalculateCost calculates the dollar cost for a given usage record.
func (p *OpenAIProvider) CalculateCost(u Usage) float64 {
	for _, m := range p.config.Models {
		name := m.APIName
		if name == "" {
			name = m.Name
		}
		if name == u.Model {
			return float64(u.PromptTokens)/1000.0*m.CostPer1K +
				float64(u.CompletionTokens)/1000.0*m.CostPer1KOutput
		}
	}
	return 0.0
}
