package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/iden3/go-iden3-core/v2/w3c"
	"github.com/iden3/go-schema-processor/v2/verifiable"

	"github.com/polygonid/verifier-node/internal/core/domain"
	"github.com/polygonid/verifier-node/internal/core/ports"
	"github.com/polygonid/verifier-node/internal/log"
)

var (
	// ErrNoCredentialStatus the credential does not tell where its revocation status is
	ErrNoCredentialStatus = errors.New("credential has no credentialStatus")
	// ErrAllCredentialsRevoked every credential of the requested type is revoked
	ErrAllCredentialsRevoked = errors.New("all credentials are revoked")
)

// CredentialWallet keeps the credentials of the wallet identities and checks their revocation status
type CredentialWallet struct {
	repository ports.CredentialRepository
	revocation ports.RevocationService
}

// NewCredentialWallet returns a CredentialWallet
func NewCredentialWallet(repository ports.CredentialRepository, revocation ports.RevocationService) *CredentialWallet {
	return &CredentialWallet{
		repository: repository,
		revocation: revocation,
	}
}

// Save stores cred as a credential of identifier
func (w *CredentialWallet) Save(ctx context.Context, identifier string, cred verifiable.W3CCredential) (*domain.Credential, error) {
	credential := domain.NewCredential(identifier, cred)
	if _, err := w.repository.Save(ctx, credential); err != nil {
		return nil, err
	}
	return credential, nil
}

// Get returns a credential by id
func (w *CredentialWallet) Get(ctx context.Context, id uuid.UUID) (*domain.Credential, error) {
	return w.repository.GetByID(ctx, id)
}

// List returns the credentials of identifier
func (w *CredentialWallet) List(ctx context.Context, identifier string) ([]*domain.Credential, error) {
	return w.repository.List(ctx, identifier)
}

// FindByType returns the credentials of identifier with the given schema type
func (w *CredentialWallet) FindByType(ctx context.Context, identifier string, schemaType string) ([]*domain.Credential, error) {
	return w.repository.FindByType(ctx, identifier, schemaType)
}

// Remove deletes a credential
func (w *CredentialWallet) Remove(ctx context.Context, id uuid.UUID) error {
	return w.repository.Delete(ctx, id)
}

// RevocationStatus asks the status resolver of the credential status type
func (w *CredentialWallet) RevocationStatus(ctx context.Context, credential *domain.Credential) (*verifiable.RevocationStatus, error) {
	if credential.W3C.CredentialStatus == nil {
		return nil, ErrNoCredentialStatus
	}
	issuerDID, err := w3c.ParseDID(credential.W3C.Issuer)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer %q: %w", credential.W3C.Issuer, err)
	}
	return w.revocation.Status(ctx, issuerDID, credential.W3C.CredentialStatus)
}

// FindNonRevoked returns the first credential of schemaType held by identifier that is not revoked.
// Revoked credentials found on the way are marked as such.
func (w *CredentialWallet) FindNonRevoked(ctx context.Context, identifier string, schemaType string) (*domain.Credential, *verifiable.RevocationStatus, error) {
	credentials, err := w.repository.FindByType(ctx, identifier, schemaType)
	if err != nil {
		return nil, nil, err
	}
	for _, c := range credentials {
		if c.Revoked {
			continue
		}
		status, err := w.RevocationStatus(ctx, c)
		if err != nil {
			log.Warn(ctx, "cannot get revocation status", "credential", c.ID, "err", err)
			continue
		}
		if !status.MTP.Existence {
			return c, status, nil
		}
		c.Revoked = true
		if _, err := w.repository.Save(ctx, c); err != nil {
			log.Error(ctx, "cannot mark credential as revoked", "credential", c.ID, "err", err)
		}
	}
	return nil, nil, ErrAllCredentialsRevoked
}
