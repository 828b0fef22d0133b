package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel = "gemini-1.5-flash"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		Temperature      float32 `json:"temperature"`
		ResponseMimeType string  `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

type geminiProvider struct {
	baseURL string
	apiKey  string
	model   string
	http    *transport
}

// NewGemini создает провайдера Gemini generateContent.
func NewGemini(apiKey, model, baseURL string, cfg Config, log *logger.Logger) Provider {
	return &geminiProvider{
		baseURL: strings.TrimRight(orDefault(baseURL, geminiBaseURL), "/"),
		apiKey:  apiKey,
		model:   orDefault(model, defaultGeminiModel),
		http:    newTransport(ProviderGemini, cfg, log),
	}
}

func (p *geminiProvider) Name() string { return ProviderGemini }

func (p *geminiProvider) Complete(ctx context.Context, prompt Prompt) (string, error) {
	var reqBody geminiRequest
	reqBody.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt.User}}}}
	if prompt.System != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: prompt.System}}}
	}
	reqBody.GenerationConfig.Temperature = defaultTemperature
	reqBody.GenerationConfig.ResponseMimeType = "application/json"

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.model)
	data, err := p.http.postJSON(ctx, url, map[string]string{"x-goog-api-key": p.apiKey}, reqBody)
	if err != nil {
		return "", err
	}

	var resp geminiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("gemini: failed to decode response: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: no content in response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
