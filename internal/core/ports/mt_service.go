package ports

import (
	"context"

	"github.com/iden3/go-iden3-core/v2/w3c"

	"github.com/polygonid/verifier-node/internal/core/domain"
)

// IdentityMerkleTreeRepository keeps the trees of every identity, keyed by identifier
type IdentityMerkleTreeRepository interface {
	Save(ctx context.Context, identifier string, trees *domain.IdentityMerkleTrees) error
	GetByIdentifier(ctx context.Context, identifier string) (*domain.IdentityMerkleTrees, error)
	Rename(ctx context.Context, from string, to string) error
}

// MtService creates and finds identity merkle trees
type MtService interface {
	CreateIdentityMerkleTrees(ctx context.Context) (*domain.IdentityMerkleTrees, error)
	BindToIdentifier(ctx context.Context, trees *domain.IdentityMerkleTrees, identifier *w3c.DID) error
	GetIdentityMerkleTrees(ctx context.Context, identifier *w3c.DID) (*domain.IdentityMerkleTrees, error)
}
