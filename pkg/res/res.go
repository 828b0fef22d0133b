package res

import (
	"encoding/json"
	"net/http"

	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
)

// ErrorResponse представляет формат JSON-ответа для ошибок.
type ErrorResponse struct {
	Success   *bool  `json:"success,omitempty"`    // false для ответов эндпоинтов с кредитами
	Error     string `json:"error"`                // Сообщение об ошибке (для пользователя)
	ErrorCode int    `json:"error_code,omitempty"` // Код ошибки (для программной обработки)
	Details   any    `json:"details,omitempty"`    // Детали ошибки (например, ошибки валидации)
	DebugInfo string `json:"debug_info,omitempty"` // Отладочная информация (ТОЛЬКО в development среде!)
}

// InsufficientCreditsResponse тело ответа 402.
type InsufficientCreditsResponse struct {
	Success          bool   `json:"success"`
	Error            string `json:"error"`
	CreditsRemaining int    `json:"creditsRemaining"`
	CreditsRequired  int    `json:"creditsRequired"`
	Tier             string `json:"tier"`
	NeedsUpgrade     bool   `json:"needsUpgrade"`
	Message          string `json:"message"`
}

// JsonResponse отправляет JSON-ответ с заданным статусом.
func JsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// JsonErrorResponse отправляет JSON ответ ошибки.
func JsonErrorResponse(w http.ResponseWriter, errResponse ErrorResponse, status int, log *logger.Logger) {
	JsonResponse(w, errResponse, status)
	if status >= http.StatusInternalServerError {
		log.Errorw("Error response", "status", status, "error", errResponse.Error)
		return
	}
	log.Debugw("Error response", "status", status, "error", errResponse.Error)
}

// Failure возвращает указатель на false для поля Success.
func Failure() *bool {
	f := false
	return &f
}
