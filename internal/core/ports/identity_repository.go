package ports

import (
	"context"

	"github.com/iden3/go-iden3-core/v2/w3c"

	"github.com/polygonid/verifier-node/internal/core/domain"
)

// IdentityRepository stores wallet identities and their profiles
type IdentityRepository interface {
	Save(ctx context.Context, identity *domain.Identity) error
	GetByID(ctx context.Context, identifier *w3c.DID) (*domain.Identity, error)
	Get(ctx context.Context) ([]*domain.Identity, error)
	SaveProfile(ctx context.Context, profile *domain.Profile) error
	GetProfiles(ctx context.Context, identifier *w3c.DID) ([]*domain.Profile, error)
}
