package repositories

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/polygonid/verifier-node/internal/core/domain"
	"github.com/polygonid/verifier-node/internal/core/ports"
)

// ErrCredentialDoesNotExist credential does not exist
var ErrCredentialDoesNotExist = errors.New("credential does not exist")

type credentialsInMemory struct {
	mu          sync.RWMutex
	credentials map[uuid.UUID]domain.Credential
}

// NewCredentialsInMemory returns a credential repository kept in memory
func NewCredentialsInMemory() ports.CredentialRepository {
	return &credentialsInMemory{credentials: make(map[uuid.UUID]domain.Credential)}
}

func (r *credentialsInMemory) Save(_ context.Context, credential *domain.Credential) (uuid.UUID, error) {
	if credential.ID == uuid.Nil {
		credential.ID = uuid.New()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credentials[credential.ID] = *credential
	return credential.ID, nil
}

func (r *credentialsInMemory) GetByID(_ context.Context, id uuid.UUID) (*domain.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, found := r.credentials[id]; found {
		return &c, nil
	}
	return nil, ErrCredentialDoesNotExist
}

// List returns the credentials of identifier, oldest first. An empty identifier lists all of them.
func (r *credentialsInMemory) List(_ context.Context, identifier string) ([]*domain.Credential, error) {
	return r.filter(func(c *domain.Credential) bool {
		return identifier == "" || c.Identifier == identifier
	}), nil
}

func (r *credentialsInMemory) FindByType(_ context.Context, identifier string, schemaType string) ([]*domain.Credential, error) {
	return r.filter(func(c *domain.Credential) bool {
		return (identifier == "" || c.Identifier == identifier) && c.HasType(schemaType)
	}), nil
}

func (r *credentialsInMemory) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.credentials[id]; !found {
		return ErrCredentialDoesNotExist
	}
	delete(r.credentials, id)
	return nil
}

func (r *credentialsInMemory) filter(keep func(c *domain.Credential) bool) []*domain.Credential {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Credential, 0, len(r.credentials))
	for _, c := range r.credentials {
		c := c
		if keep(&c) {
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
