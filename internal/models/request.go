package models

import (
	"encoding/json"
	"strings"
)

// Error codes returned in ErrorBody.Error
const (
	ErrCodeNoCachedData       = "no-cached-data"
	ErrCodeMethodNotAllowed   = "method-not-allowed"
	ErrCodeInvalidRequest     = "invalid-request"
	ErrCodeTokenNotConfigured = "admin-token-not-configured"
	ErrCodeTokenRequired      = "admin-token-required"
	ErrCodeInvalidToken       = "invalid-admin-token"
	ErrCodeAINotConfigured    = "ai-not-configured"
	ErrCodeAIQuotaExceeded    = "ai-quota-exceeded"
	ErrCodeAIUpstream         = "ai-upstream-error"
	ErrCodeAIMalformed        = "ai-malformed-response"
	ErrCodeInternal           = "internal-error"
)

// RefreshRequest represents the POST body of the holiday endpoint
type RefreshRequest struct {
	City    string          `json:"city,omitempty" validate:"omitempty,max=64"`
	Context *RefreshContext `json:"context,omitempty"`
	Manual  json.RawMessage `json:"manual,omitempty"` // operator override, must be an object when present
}

// RefreshContext carries the latest readings the client already knows about
type RefreshContext struct {
	LastIQ *float64 `json:"lastIQ,omitempty"` // last air-quality index shown to the user
	LastTH *float64 `json:"lastTH,omitempty"` // last closure threshold shown to the user
}

// HasManual reports whether the request carries a non-null manual override
func (r *RefreshRequest) HasManual() bool {
	trimmed := strings.TrimSpace(string(r.Manual))
	return trimmed != "" && trimmed != "null"
}

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
