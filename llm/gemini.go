package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// GeminiProvider talks to the Generative Language generateContent endpoint.
type GeminiProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	retries int
}

type geminiGenerateRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{
		apiKey:  apiKey,
		baseURL: geminiBaseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
		retries: 3,
	}
}

func (g *GeminiProvider) Name() string { return "gemini" }

// Complete sends the request, retrying transient statuses with exponential
// backoff before giving up with a categorized error.
func (g *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for i := 0; i < g.retries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("gemini: %w", ErrTimeout)
			case <-time.After(time.Duration(1<<i) * time.Second):
			}
		}

		text, retryable, err := g.complete(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return "", lastErr
}

func (g *GeminiProvider) complete(ctx context.Context, req Request) (string, bool, error) {
	body := geminiGenerateRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", false, fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", g.baseURL, req.Model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payload))
	if err != nil {
		return "", false, fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return "", false, fmt.Errorf("gemini: %w", ErrTimeout)
		}
		return "", true, fmt.Errorf("gemini: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("gemini: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", true, fmt.Errorf("gemini: %w", ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", false, fmt.Errorf("gemini: %w", ErrUnauthorized)
	case resp.StatusCode >= 500:
		return "", true, fmt.Errorf("gemini: %w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", false, fmt.Errorf("gemini: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var parsed geminiGenerateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", false, fmt.Errorf("gemini: %w: %v", ErrMalformed, err)
	}
	if parsed.Error != nil {
		return "", false, fmt.Errorf("gemini: %w: %s", ErrMalformed, parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 {
		return "", false, fmt.Errorf("gemini: %w: no candidates", ErrMalformed)
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", false, fmt.Errorf("gemini: %w: empty candidate text", ErrMalformed)
	}
	return text, false, nil
}
