// Package generation calls the configured AI provider and returns the
// artifact as raw JSON. It is the protected action behind every metered
// generation endpoint.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
)

// Имена провайдеров в generation.providers
const (
	ProviderOpenAI  = "openai"
	ProviderMistral = "mistral"
	ProviderGemini  = "gemini"
)

// Prompt system и user сообщения для провайдера.
type Prompt struct {
	System string
	User   string
}

// Provider возвращает текст ответа модели.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// Config параметры провайдеров и исходящих вызовов.
type Config struct {
	Providers    []string
	OpenAIKey    string
	OpenAIModel  string
	MistralKey   string
	MistralModel string
	GeminiKey    string
	GeminiModel  string

	Timeout        time.Duration
	MaxRetries     uint64
	RequestsPerSec float64
	Burst          int

	// для тестов
	HTTPClient     *http.Client
	InitialBackoff time.Duration
	BaseURLs       map[string]string
}

// Service генерирует артефакты первым сконфигурированным провайдером.
type Service struct {
	providers []Provider
	log       *logger.Logger
}

// NewService создает сервис с явным списком провайдеров.
func NewService(providers []Provider, log *logger.Logger) *Service {
	return &Service{providers: providers, log: log.Named("generation")}
}

// NewFromConfig создает провайдеров в заданном порядке, пропуская те, у которых нет ключа.
func NewFromConfig(cfg Config, log *logger.Logger) *Service {
	var providers []Provider
	for _, name := range cfg.Providers {
		base := cfg.BaseURLs[name]
		switch strings.ToLower(name) {
		case ProviderOpenAI:
			if cfg.OpenAIKey != "" {
				providers = append(providers, NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, base, cfg, log))
			}
		case ProviderMistral:
			if cfg.MistralKey != "" {
				providers = append(providers, NewMistral(cfg.MistralKey, cfg.MistralModel, base, cfg, log))
			}
		case ProviderGemini:
			if cfg.GeminiKey != "" {
				providers = append(providers, NewGemini(cfg.GeminiKey, cfg.GeminiModel, base, cfg, log))
			}
		default:
			log.Warnw("Unknown generation provider, ignoring", "provider", name)
		}
	}

	svc := NewService(providers, log)
	if len(providers) == 0 {
		svc.log.Warnw("No generation provider configured, generation endpoints will return 503")
	} else {
		svc.log.Infow("Generation provider selected", "provider", providers[0].Name())
	}
	return svc
}

// Configured сообщает, есть ли хотя бы один провайдер.
func (s *Service) Configured() error {
	if len(s.providers) == 0 {
		return fmt.Errorf("%w: no AI provider credentials", domain.ErrConfiguration)
	}
	return nil
}

// Generate выполняет запрос и проверяет, что ответ является JSON.
// Ошибка провайдера возвращается как есть, без локальной подмены результата.
func (s *Service) Generate(ctx context.Context, in Input) (json.RawMessage, error) {
	if err := s.Configured(); err != nil {
		return nil, err
	}
	provider := s.providers[0]

	start := time.Now()
	text, err := provider.Complete(ctx, in.Prompt())
	if err != nil {
		s.log.Warnw("Generation failed", "provider", provider.Name(), "action", in.Action(), "error", err)
		return nil, err
	}

	artifact, err := extractJSON(text)
	if err != nil {
		s.log.Warnw("Provider returned malformed artifact", "provider", provider.Name(), "action", in.Action(), "error", err)
		return nil, domain.NewExternalServiceError(provider.Name(), "invalid_response", "model returned malformed JSON", 0, err)
	}

	s.log.Debugw("Artifact generated", "provider", provider.Name(), "action", in.Action(), "duration", time.Since(start))
	return artifact, nil
}

// extractJSON снимает markdown-ограждение ```json и проверяет синтаксис.
func extractJSON(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if !json.Valid([]byte(s)) {
		return nil, fmt.Errorf("not a JSON document")
	}
	return json.RawMessage(s), nil
}
