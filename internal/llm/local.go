package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const localTimeout = 120 * time.Second

// LocalProvider talks to a self-hosted Ollama server. One blocking call per
// completion, no retry; errors propagate to the caller immediately.
type LocalProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewLocalProvider(baseURL, model string) *LocalProvider {
	return &LocalProvider{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: localTimeout},
	}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages []ollamaMessage `json:"messages"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	// Token counters are absent from some responses; zero is the fallback.
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

func (p *LocalProvider) Complete(ctx context.Context, system, user string) (*Response, error) {
	payload := ollamaChatRequest{
		Model:  p.model,
		Stream: false,
		Messages: []ollamaMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug().Str("model", p.model).Str("url", p.baseURL).Msg("Local LLM request")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("local completion failed: %d, %s", resp.StatusCode, string(body))
	}

	var data ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding local completion response: %w", err)
	}

	out := &Response{
		Content:          data.Message.Content,
		Model:            p.model,
		PromptTokens:     data.PromptEvalCount,
		CompletionTokens: data.EvalCount,
		TotalTokens:      data.PromptEvalCount + data.EvalCount,
	}
	log.Info().
		Str("model", out.Model).
		Int("prompt_tokens", out.PromptTokens).
		Int("completion_tokens", out.CompletionTokens).
		Msg("Local LLM response")
	return out, nil
}
