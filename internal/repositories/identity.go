package repositories

import (
	"context"
	"errors"
	"sync"

	"github.com/iden3/go-iden3-core/v2/w3c"

	"github.com/polygonid/verifier-node/internal/core/domain"
	"github.com/polygonid/verifier-node/internal/core/ports"
)

var (
	// ErrIdentityNotFound identity not found
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrIdentityAlreadyExists an identity with the same identifier was saved before
	ErrIdentityAlreadyExists = errors.New("identity already exists")
)

type identityInMemory struct {
	mu         sync.RWMutex
	identities map[string]domain.Identity
	order      []string
	profiles   map[string][]domain.Profile
}

// NewIdentityInMemory returns an identity repository kept in memory
func NewIdentityInMemory() ports.IdentityRepository {
	return &identityInMemory{
		identities: make(map[string]domain.Identity),
		profiles:   make(map[string][]domain.Profile),
	}
}

func (r *identityInMemory) Save(_ context.Context, identity *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.identities[identity.Identifier]; !found {
		r.order = append(r.order, identity.Identifier)
	}
	r.identities[identity.Identifier] = *identity
	return nil
}

func (r *identityInMemory) GetByID(_ context.Context, identifier *w3c.DID) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, found := r.identities[identifier.String()]
	if !found {
		return nil, ErrIdentityNotFound
	}
	return &identity, nil
}

func (r *identityInMemory) Get(_ context.Context) ([]*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Identity, 0, len(r.order))
	for _, id := range r.order {
		identity := r.identities[id]
		out = append(out, &identity)
	}
	return out, nil
}

func (r *identityInMemory) SaveProfile(_ context.Context, profile *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.identities[profile.Identifier]; !found {
		return ErrIdentityNotFound
	}
	for _, p := range r.profiles[profile.Identifier] {
		if p.ID == profile.ID {
			return ErrIdentityAlreadyExists
		}
	}
	r.profiles[profile.Identifier] = append(r.profiles[profile.Identifier], *profile)
	return nil
}

func (r *identityInMemory) GetProfiles(_ context.Context, identifier *w3c.DID) ([]*domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, found := r.identities[identifier.String()]; !found {
		return nil, ErrIdentityNotFound
	}
	profiles := r.profiles[identifier.String()]
	out := make([]*domain.Profile, len(profiles))
	for i := range profiles {
		p := profiles[i]
		out[i] = &p
	}
	return out, nil
}
