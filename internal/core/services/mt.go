package services

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/iden3/go-iden3-core/v2/w3c"
	"github.com/iden3/go-merkletree-sql/v2"
	"github.com/iden3/go-merkletree-sql/v2/db/memory"
	"github.com/mr-tron/base58"

	"github.com/polygonid/verifier-node/internal/core/domain"
	"github.com/polygonid/verifier-node/internal/core/ports"
)

const (
	randomLength = 27
	// DefaultMTDepth is the depth of identity trees when none is configured
	DefaultMTDepth = 40
)

type mtService struct {
	imtRepo ports.IdentityMerkleTreeRepository
	depth   int
}

// NewIdentityMerkleTrees generates a new merkle tree service. Trees are kept in memory with the given depth.
func NewIdentityMerkleTrees(imtRepo ports.IdentityMerkleTreeRepository, depth int) ports.MtService {
	if depth <= 0 {
		depth = DefaultMTDepth
	}
	return &mtService{
		imtRepo: imtRepo,
		depth:   depth,
	}
}

// CreateIdentityMerkleTrees creates empty claims, revocations and roots trees under a temporary name
func (mts *mtService) CreateIdentityMerkleTrees(ctx context.Context) (*domain.IdentityMerkleTrees, error) {
	var buf [randomLength]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, err
	}
	tmpIdentifier := "tmp-" + base58.Encode(buf[:])

	trees := make([]*merkletree.MerkleTree, domain.MerkleTreeTypesCount)
	for _, mtType := range domain.MerkleTreeTypes {
		tree, err := merkletree.NewMerkleTree(ctx, memory.NewMemoryStorage(), mts.depth)
		if err != nil {
			return nil, fmt.Errorf("can't create merkle tree %d: %w", mtType, err)
		}
		trees[mtType] = tree
	}

	imts := &domain.IdentityMerkleTrees{
		TmpID: tmpIdentifier,
		Trees: trees,
	}
	if err := mts.imtRepo.Save(ctx, tmpIdentifier, imts); err != nil {
		return nil, err
	}
	return imts, nil
}

// BindToIdentifier names the trees after identifier
func (mts *mtService) BindToIdentifier(ctx context.Context, trees *domain.IdentityMerkleTrees, identifier *w3c.DID) error {
	if err := trees.BindToIdentifier(identifier); err != nil {
		return err
	}
	return mts.imtRepo.Rename(ctx, trees.TmpID, identifier.String())
}

// GetIdentityMerkleTrees returns the trees of identifier
func (mts *mtService) GetIdentityMerkleTrees(ctx context.Context, identifier *w3c.DID) (*domain.IdentityMerkleTrees, error) {
	return mts.imtRepo.GetByIdentifier(ctx, identifier.String())
}
