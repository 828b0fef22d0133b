package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(providers ...string) Config {
	return Config{
		Providers:      providers,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		Timeout:        5 * time.Second,
		BaseURLs:       map[string]string{},
	}
}

func chatServer(t *testing.T, calls *atomic.Int32, statuses []int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "json_object", body.ResponseFormat.Type)
		require.Len(t, body.Messages, 2)

		if n <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			_, _ = w.Write([]byte(`{"error":{"message":"try later"}}`))
			return
		}
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate_OpenAIReturnsArtifact(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, &calls, nil, `{"title":"Q3","mermaid":"graph TD; A-->B"}`)
	cfg := testConfig(ProviderOpenAI)
	cfg.OpenAIKey = "sk-test"
	cfg.BaseURLs[ProviderOpenAI] = srv.URL

	svc := NewFromConfig(cfg, logger.NewNop())
	out, err := svc.Generate(context.Background(), &DiagramInput{Text: "deploy pipeline"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Q3","mermaid":"graph TD; A-->B"}`, string(out))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerate_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, &calls, []int{http.StatusBadGateway, http.StatusServiceUnavailable}, "```json\n{\"ok\":true}\n```")
	cfg := testConfig(ProviderMistral)
	cfg.MistralKey = "sk-test"
	cfg.BaseURLs[ProviderMistral] = srv.URL

	out, err := NewFromConfig(cfg, logger.NewNop()).Generate(context.Background(), &LetterInput{Text: "thank you note"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerate_RateLimitedAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, &calls, []int{429, 429, 429, 429}, "{}")
	cfg := testConfig(ProviderOpenAI)
	cfg.OpenAIKey = "sk-test"
	cfg.BaseURLs[ProviderOpenAI] = srv.URL

	_, err := NewFromConfig(cfg, logger.NewNop()).Generate(context.Background(), &ResumeInput{Text: "backend engineer"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.ErrorIs(t, err, domain.ErrUpstreamRateLimited)
	assert.Equal(t, int32(3), calls.Load(), "one call plus two retries")
}

func TestGenerate_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, &calls, []int{http.StatusBadRequest}, "{}")
	cfg := testConfig(ProviderOpenAI)
	cfg.OpenAIKey = "sk-test"
	cfg.BaseURLs[ProviderOpenAI] = srv.URL

	_, err := NewFromConfig(cfg, logger.NewNop()).Generate(context.Background(), &ATSInput{ResumeText: "r", JobDescription: "j"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.NotErrorIs(t, err, domain.ErrUpstreamRateLimited)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerate_MalformedArtifact(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, &calls, nil, "Sure! Here is your letter.")
	cfg := testConfig(ProviderOpenAI)
	cfg.OpenAIKey = "sk-test"
	cfg.BaseURLs[ProviderOpenAI] = srv.URL

	_, err := NewFromConfig(cfg, logger.NewNop()).Generate(context.Background(), &LetterInput{Text: "x"})
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestGenerate_GeminiProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))

		var body geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NotNil(t, body.SystemInstruction)
		assert.Equal(t, "application/json", body.GenerationConfig.ResponseMimeType)
		assert.Contains(t, body.Contents[0].Parts[0].Text, "Exactly 3 slides.")

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"title\":\"Deck\","},{"text":"\"slides\":[]}"}]}}]}`))
	}))
	defer srv.Close()

	cfg := testConfig(ProviderOpenAI, ProviderGemini)
	cfg.GeminiKey = "g-key"
	cfg.BaseURLs[ProviderGemini] = srv.URL

	out, err := NewFromConfig(cfg, logger.NewNop()).Generate(context.Background(), &PresentationInput{Text: "roadmap", SlideCount: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Deck","slides":[]}`, string(out))
}

func TestGenerate_NotConfigured(t *testing.T) {
	svc := NewFromConfig(testConfig(ProviderOpenAI, ProviderMistral, ProviderGemini), logger.NewNop())
	assert.ErrorIs(t, svc.Configured(), domain.ErrConfiguration)

	_, err := svc.Generate(context.Background(), &DiagramInput{Text: "x"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestTransport_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, &calls, []int{500, 500, 500, 500, 500, 500, 500}, "{}")
	cfg := testConfig(ProviderOpenAI)
	cfg.MaxRetries = 0
	cfg.OpenAIKey = "sk-test"
	cfg.BaseURLs[ProviderOpenAI] = srv.URL
	svc := NewFromConfig(cfg, logger.NewNop())

	for i := 0; i < breakerFailureLimit; i++ {
		_, err := svc.Generate(context.Background(), &DiagramInput{Text: "x"})
		require.Error(t, err)
	}
	_, err := svc.Generate(context.Background(), &DiagramInput{Text: "x"})
	var ext *domain.ExternalServiceError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "circuit_open", ext.Code)
	assert.Equal(t, int32(breakerFailureLimit), calls.Load())
}

func TestExtractJSON(t *testing.T) {
	out, err := extractJSON("```\n[1,2]\n```")
	require.NoError(t, err)
	assert.Equal(t, "[1,2]", string(out))

	_, err = extractJSON("")
	assert.Error(t, err)
}

func TestPrompts_IncludeInputs(t *testing.T) {
	p := (&CoverLetterInput{JobDescription: "Go developer", CompanyName: "Acme"}).Prompt()
	assert.Contains(t, p.User, "Company: Acme")
	assert.Contains(t, p.User, "Go developer")
	assert.NotContains(t, p.User, "Resume:")

	assert.Equal(t, 7, (&PresentationInput{SlideCount: 7}).Slides())
	assert.Equal(t, domain.ActionCoverLetter, (&CoverLetterInput{}).Action())
}
