package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/polygonid/verifier-node/internal/core/domain"
)

// CredentialRepository stores wallet credentials
type CredentialRepository interface {
	Save(ctx context.Context, credential *domain.Credential) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Credential, error)
	List(ctx context.Context, identifier string) ([]*domain.Credential, error)
	FindByType(ctx context.Context, identifier string, schemaType string) ([]*domain.Credential, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
