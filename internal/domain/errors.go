package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate дубликат записи
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrUnauthenticated пользователь не аутентифицирован
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInsufficientCredits недостаточно кредитов для действия
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrConfiguration не настроены учетные данные внешнего сервиса
	ErrConfiguration = errors.New("service not configured")

	// ErrUpstream ошибка внешнего провайдера (AI, платежи)
	ErrUpstream = errors.New("upstream failure")

	// ErrUpstreamRateLimited внешний провайдер ограничил частоту запросов
	ErrUpstreamRateLimited = errors.New("upstream rate limited")

	// ErrActionFailed защищенное действие завершилось ошибкой
	ErrActionFailed = errors.New("action failed")

	// ErrInvalidSignature не удалось проверить подпись вебхука
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrSubscriptionPlanNotFound план подписки не найден
	ErrSubscriptionPlanNotFound = errors.New("subscription plan not found")
)

// InsufficientCreditsError содержит данные для предложения апгрейда
type InsufficientCreditsError struct {
	Required  int
	Remaining int
	Tier      Tier
}

// Error реализует интерфейс error
func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, remaining %d (tier: %s)", e.Required, e.Remaining, e.Tier)
}

// Is позволяет сравнивать с ErrInsufficientCredits
func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

// NewInsufficientCreditsError создает новую ошибку нехватки кредитов
func NewInsufficientCreditsError(required, remaining int, tier Tier) *InsufficientCreditsError {
	return &InsufficientCreditsError{
		Required:  required,
		Remaining: remaining,
		Tier:      tier,
	}
}

// ExternalServiceError представляет ошибку внешнего сервиса
type ExternalServiceError struct {
	Service     string
	Code        string
	Message     string
	StatusCode  int
	OriginalErr error
}

// Error реализует интерфейс error
func (e *ExternalServiceError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("%s service error [%s]: %s: %v", e.Service, e.Code, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("%s service error [%s]: %s", e.Service, e.Code, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *ExternalServiceError) Unwrap() error {
	return e.OriginalErr
}

// Is: любая ошибка внешнего сервиса считается ErrUpstream, 429 еще и ErrUpstreamRateLimited
func (e *ExternalServiceError) Is(target error) bool {
	if target == ErrUpstream {
		return true
	}
	return target == ErrUpstreamRateLimited && e.StatusCode == 429
}

// NewExternalServiceError создает новую ошибку внешнего сервиса
func NewExternalServiceError(service, code, message string, statusCode int, err error) *ExternalServiceError {
	return &ExternalServiceError{
		Service:     service,
		Code:        code,
		Message:     message,
		StatusCode:  statusCode,
		OriginalErr: err,
	}
}

// NotFoundError представляет ошибку "не найдено"
type NotFoundError struct {
	Entity string
	ID     string
}

// Error реализует интерфейс error
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// Is проверяет, является ли ошибка ошибкой типа "не найдено"
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError создает новую ошибку "не найдено"
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}
