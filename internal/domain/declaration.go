package domain

import (
	"time"
)

// Declaration is a sample customs declaration used to dry-run rules.
// Attributes are keyed by field name (see KnownFields).
type Declaration struct {
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes" validate:"required"`
	ReceivedAt time.Time      `json:"receivedAt"`
}

// DeclarationRequest is the API payload for a dry-run.
type DeclarationRequest struct {
	ID         string         `json:"id,omitempty"`
	Attributes map[string]any `json:"attributes" validate:"required,min=1"`
}

// ToDeclaration converts a request to a Declaration.
func (r *DeclarationRequest) ToDeclaration() *Declaration {
	attrs := make(map[string]any, len(r.Attributes))
	for k, v := range r.Attributes {
		attrs[k] = v
	}
	return &Declaration{
		ID:         r.ID,
		Attributes: attrs,
		ReceivedAt: time.Now().UTC(),
	}
}
