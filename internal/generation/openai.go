package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
)

const (
	openaiBaseURL  = "https://api.openai.com/v1"
	mistralBaseURL = "https://api.mistral.ai/v1"

	defaultOpenAIModel  = "gpt-4o-mini"
	defaultMistralModel = "mistral-small-latest"
	defaultTemperature  = 0.7
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float32         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index   int         `json:"index"`
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// chatProvider провайдер с OpenAI-совместимым /chat/completions (OpenAI, Mistral).
type chatProvider struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	http    *transport
}

// NewOpenAI создает провайдера OpenAI chat completions.
func NewOpenAI(apiKey, model, baseURL string, cfg Config, log *logger.Logger) Provider {
	return newChatProvider(ProviderOpenAI, apiKey, orDefault(model, defaultOpenAIModel), orDefault(baseURL, openaiBaseURL), cfg, log)
}

// NewMistral создает провайдера Mistral chat completions.
func NewMistral(apiKey, model, baseURL string, cfg Config, log *logger.Logger) Provider {
	return newChatProvider(ProviderMistral, apiKey, orDefault(model, defaultMistralModel), orDefault(baseURL, mistralBaseURL), cfg, log)
}

func newChatProvider(name, apiKey, model, baseURL string, cfg Config, log *logger.Logger) *chatProvider {
	return &chatProvider{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    newTransport(name, cfg, log),
	}
}

func (p *chatProvider) Name() string { return p.name }

func (p *chatProvider) Complete(ctx context.Context, prompt Prompt) (string, error) {
	reqBody := chatRequest{
		Model:          p.model,
		Temperature:    defaultTemperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
		Messages: []chatMessage{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
	}

	data, err := p.http.postJSON(ctx, p.baseURL+"/chat/completions", map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	}, reqBody)
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("%s: failed to decode response: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices in response", p.name)
	}
	return resp.Choices[0].Message.Content, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
