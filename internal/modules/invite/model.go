// README: Driver invite code model and normalisation.
package invite

import (
	"errors"
	"strings"
	"time"

	"courier/internal/types"
)

const MinCodeLength = 3

var (
	ErrNotFound     = errors.New("invite code not found")
	ErrAlreadyUsed  = errors.New("invite code already used")
	ErrCodeInactive = errors.New("invite code inactive")
	ErrCodeExists   = errors.New("invite code already exists")
	ErrValidation   = errors.New("invalid invite code")
)

type Code struct {
	ID        types.ID   `json:"id"`
	Code      string     `json:"code"`
	IsActive  bool       `json:"is_active"`
	CreatedBy types.ID   `json:"created_by"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	UsedBy    *types.ID  `json:"used_by,omitempty"`
}

// Usable reports whether the code can still be consumed.
func (c *Code) Usable() bool {
	return c.IsActive && c.UsedAt == nil
}

// Normalize trims and uppercases a human-entered code.
func Normalize(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) < MinCodeLength {
		return "", ErrValidation
	}
	return code, nil
}
