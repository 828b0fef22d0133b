package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Tier уровень подписки пользователя
type Tier string

const (
	TierFree       Tier = "free"
	TierBasic      Tier = "basic"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Tiers перечисляет все уровни в порядке возрастания
var Tiers = []Tier{TierFree, TierBasic, TierPro, TierEnterprise}

// ParseTier разбирает строку в Tier
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Tiers {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, s)
}

// ActionType тип тарифицируемого действия
type ActionType string

const (
	ActionDiagram      ActionType = "diagram"
	ActionLetter       ActionType = "letter"
	ActionCoverLetter  ActionType = "cover_letter"
	ActionATSCheck     ActionType = "ats_check"
	ActionResume       ActionType = "resume"
	ActionPresentation ActionType = "presentation"
)

// Actions перечисляет все известные действия
var Actions = []ActionType{
	ActionDiagram,
	ActionLetter,
	ActionCoverLetter,
	ActionATSCheck,
	ActionResume,
	ActionPresentation,
}

// ParseAction разбирает строку в ActionType. Допускает дефисы ("cover-letter").
func ParseAction(s string) (ActionType, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if normalized == "ats" {
		normalized = string(ActionATSCheck)
	}
	a := ActionType(normalized)
	for _, known := range Actions {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, s)
}

// UserCredits строка баланса пользователя, одна на пользователя
type UserCredits struct {
	UserID         string    `db:"user_id" json:"userId"`
	Tier           Tier      `db:"tier" json:"tier"`
	CreditsTotal   int       `db:"credits_total" json:"creditsTotal"`
	CreditsUsed    int       `db:"credits_used" json:"creditsUsed"`
	CreditsResetAt time.Time `db:"credits_reset_at" json:"creditsResetAt"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// TierStats срез балансов одного уровня
type TierStats struct {
	Tier        Tier  `db:"tier"`
	Accounts    int64 `db:"accounts"`
	DueForReset int64 `db:"due_for_reset"`
	Exhausted   int64 `db:"exhausted"`
}

// CreditUsage запись журнала использования кредитов (только добавление)
type CreditUsage struct {
	ID          int64      `db:"id" json:"id"`
	UserID      string     `db:"user_id" json:"userId"`
	Action      ActionType `db:"action" json:"action"`
	CreditsUsed int        `db:"credits_used" json:"creditsUsed"`
	Metadata    Metadata   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

// UsageEvent событие списания кредитов, публикуемое в Kafka
type UsageEvent struct {
	EventID     string     `json:"eventId"`
	UserID      string     `json:"userId"`
	Action      ActionType `json:"action"`
	Tier        Tier       `json:"tier"`
	CreditsUsed int        `json:"creditsUsed"`
	Remaining   int        `json:"creditsRemaining"`
	OccurredAt  time.Time  `json:"occurredAt"`
}

// Metadata произвольные данные вызывающей стороны, хранятся как jsonb
type Metadata map[string]any

// Value реализует driver.Valuer
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan реализует sql.Scanner
func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("metadata: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	if err := json.Unmarshal(raw, m); err != nil {
		return fmt.Errorf("metadata: invalid json: %w", err)
	}
	return nil
}
