package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/iden3/go-schema-processor/v2/verifiable"
)

// Credential is a W3C credential held by one of the wallet identities
type Credential struct {
	ID         uuid.UUID                `json:"id"`
	Identifier string                   `json:"identifier"`
	Issuer     string                   `json:"issuer"`
	SchemaType string                   `json:"schemaType"`
	Revoked    bool                     `json:"revoked"`
	W3C        verifiable.W3CCredential `json:"credential"`
	CreatedAt  time.Time                `json:"createdAt"`
}

// NewCredential wraps a W3C credential for the wallet.
// The last type of the credential is its schema type.
func NewCredential(identifier string, w3c verifiable.W3CCredential) *Credential {
	schemaType := ""
	if n := len(w3c.Type); n > 0 {
		schemaType = w3c.Type[n-1]
	}
	return &Credential{
		ID:         uuid.New(),
		Identifier: identifier,
		Issuer:     w3c.Issuer,
		SchemaType: schemaType,
		W3C:        w3c,
		CreatedAt:  time.Now(),
	}
}

// HasType tells if the credential carries typ in its type list
func (c *Credential) HasType(typ string) bool {
	for _, t := range c.W3C.Type {
		if t == typ {
			return true
		}
	}
	return false
}
