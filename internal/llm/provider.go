// Package llm runs classification and generation tasks through a ranked
// chain of interchangeable chat-completion providers. Every vendor sits
// behind the same Provider interface and is called over plain HTTP; the
// chain degrades to a safe local default when every provider fails, so an
// unreachable vendor can never stall the pipeline.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Provider is a single chat-completion backend. Complete sends one prompt
// and returns the raw text of the model's reply.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// ProviderError wraps a failed provider call with enough detail for the
// chain's logging.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

const maxResponseBytes = 1 << 20

// postJSON issues a JSON POST and decodes the response body into out.
// Non-2xx responses carry a truncated body excerpt in the error.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt := string(raw)
		if len(excerpt) > 200 {
			excerpt = excerpt[:200]
		}
		return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, excerpt)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, fmt.Errorf("malformed response body: %w", err)
	}
	return resp.StatusCode, nil
}

// OpenAIProvider talks to an OpenAI-compatible chat completions endpoint.
// BaseURL covers hosted and self-hosted deployments alike.
type OpenAIProvider struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIProvider creates a provider against baseURL (e.g.
// "https://api.openai.com"). name distinguishes multiple OpenAI-compatible
// entries in the chain.
func NewOpenAIProvider(name, baseURL, apiKey, model string, client *http.Client) *OpenAIProvider {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &OpenAIProvider{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  client,
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.3,
	}
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	status, err := postJSON(ctx, p.client, p.baseURL+"/v1/chat/completions",
		map[string]string{"Authorization": "Bearer " + p.apiKey}, payload, &parsed)
	if err != nil {
		return "", &ProviderError{Provider: p.name, StatusCode: status, Err: err}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", &ProviderError{Provider: p.name, StatusCode: status, Err: fmt.Errorf("empty completion")}
	}
	return parsed.Choices[0].Message.Content, nil
}

// GeminiProvider talks to the Gemini REST generateContent endpoint.
type GeminiProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewGeminiProvider creates a Gemini provider. baseURL defaults to the
// public generativelanguage endpoint when empty.
func NewGeminiProvider(baseURL, apiKey, model string, client *http.Client) *GeminiProvider {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &GeminiProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  client,
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Complete(ctx context.Context, prompt string) (string, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, p.model)
	payload := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	}
	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	status, err := postJSON(ctx, p.client, url,
		map[string]string{"x-goog-api-key": p.apiKey}, payload, &parsed)
	if err != nil {
		return "", &ProviderError{Provider: p.Name(), StatusCode: status, Err: err}
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", &ProviderError{Provider: p.Name(), StatusCode: status, Err: fmt.Errorf("empty completion")}
	}

	var b strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	if b.Len() == 0 {
		return "", &ProviderError{Provider: p.Name(), StatusCode: status, Err: fmt.Errorf("empty completion")}
	}
	return b.String(), nil
}

// OllamaProvider talks to a local Ollama instance.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaProvider creates an Ollama provider. baseURL defaults to the
// standard local endpoint when empty.
func NewOllamaProvider(baseURL, model string, client *http.Client) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2:3b"
	}
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  client,
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Complete(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":  p.model,
		"prompt": prompt,
		"stream": false,
	}
	var parsed struct {
		Response string `json:"response"`
	}

	status, err := postJSON(ctx, p.client, p.baseURL+"/api/generate", nil, payload, &parsed)
	if err != nil {
		return "", &ProviderError{Provider: p.Name(), StatusCode: status, Err: err}
	}
	if parsed.Response == "" {
		return "", &ProviderError{Provider: p.Name(), StatusCode: status, Err: fmt.Errorf("empty completion")}
	}
	return parsed.Response, nil
}
