package repositories

import (
	"context"
	"errors"
	"sync"

	"github.com/polygonid/verifier-node/internal/core/domain"
	"github.com/polygonid/verifier-node/internal/core/ports"
)

// ErrMerkleTreesNotFound there are no trees for the identifier
var ErrMerkleTreesNotFound = errors.New("identity merkle trees not found")

type identityMerkleTreeInMemory struct {
	mu    sync.RWMutex
	trees map[string]*domain.IdentityMerkleTrees
}

// NewIdentityMerkleTreeInMemory returns a repository of identity trees kept in memory
func NewIdentityMerkleTreeInMemory() ports.IdentityMerkleTreeRepository {
	return &identityMerkleTreeInMemory{trees: make(map[string]*domain.IdentityMerkleTrees)}
}

func (r *identityMerkleTreeInMemory) Save(_ context.Context, identifier string, trees *domain.IdentityMerkleTrees) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trees[identifier] = trees
	return nil
}

func (r *identityMerkleTreeInMemory) GetByIdentifier(_ context.Context, identifier string) (*domain.IdentityMerkleTrees, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	trees, found := r.trees[identifier]
	if !found {
		return nil, ErrMerkleTreesNotFound
	}
	return trees, nil
}

func (r *identityMerkleTreeInMemory) Rename(_ context.Context, from string, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	trees, found := r.trees[from]
	if !found {
		return ErrMerkleTreesNotFound
	}
	delete(r.trees, from)
	r.trees[to] = trees
	return nil
}
