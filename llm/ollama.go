package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaProvider runs completions against a local Ollama instance.
type OllamaProvider struct {
	apiURL string
	client *http.Client
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	System  string        `json:"system,omitempty"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func NewOllamaProvider(apiURL string) *OllamaProvider {
	if apiURL == "" {
		apiURL = "http://localhost:11434/api/generate"
	}
	return &OllamaProvider{
		apiURL: apiURL,
		client: &http.Client{Timeout: 300 * time.Second},
	}
}

func (o *OllamaProvider) Name() string { return "ollama" }

func (o *OllamaProvider) Complete(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  req.Model,
		System: req.System,
		Prompt: req.Prompt,
		Stream: true,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.apiURL, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return "", fmt.Errorf("ollama: %w", ErrTimeout)
		}
		return "", fmt.Errorf("ollama: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return "", fmt.Errorf("ollama: %w: status %d", ErrUnavailable, resp.StatusCode)
		}
		return "", fmt.Errorf("ollama: status %d", resp.StatusCode)
	}

	// Ollama streams newline-delimited JSON chunks; collect them until done.
	var sb strings.Builder
	decoder := json.NewDecoder(resp.Body)
	for decoder.More() {
		var chunk ollamaGenerateResponse
		if err := decoder.Decode(&chunk); err != nil {
			return "", fmt.Errorf("ollama: %w: %v", ErrMalformed, err)
		}
		sb.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("ollama: %w: empty completion", ErrMalformed)
	}
	return text, nil
}
