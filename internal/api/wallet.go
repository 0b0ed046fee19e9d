package api

import (
	"context"
	"errors"
	"io"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/iden3/go-iden3-core/v2/w3c"
	"github.com/iden3/go-schema-processor/v2/verifiable"

	"github.com/polygonid/verifier-node/internal/core/domain"
	"github.com/polygonid/verifier-node/internal/core/ports"
	"github.com/polygonid/verifier-node/internal/core/services"
	"github.com/polygonid/verifier-node/internal/log"
	"github.com/polygonid/verifier-node/internal/repositories"
	"github.com/polygonid/verifier-node/internal/storage"
)

// CreateIdentity creates a wallet identity. An empty body creates a polygonid identity on polygon mumbai.
func (s *Server) CreateIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var options *ports.DIDCreationOptions
	var body ports.DIDCreationOptions
	switch err := decode(r, &body); {
	case errors.Is(err, io.EOF):
	case err != nil:
		writeError(ctx, w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	default:
		options = &body
	}
	bundle, ok := s.wallets(w, r)
	if !ok {
		return
	}
	identity, err := bundle.IdentityWallet.CreateIdentity(ctx, options)
	if err != nil {
		if errors.Is(err, services.ErrWrongDIDMetada) {
			writeError(ctx, w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error(ctx, "creating identity", "err", err)
		writeError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, w, http.StatusCreated, identity)
}

// GetIdentities lists the wallet identities
func (s *Server) GetIdentities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bundle, ok := s.wallets(w, r)
	if !ok {
		return
	}
	identities, err := bundle.IdentityWallet.List(ctx)
	if err != nil {
		writeError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, w, http.StatusOK, identities)
}

// GetIdentity returns an identity with its current state
func (s *Server) GetIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did, ok := identifierParam(w, r)
	if !ok {
		return
	}
	bundle, ok := s.wallets(w, r)
	if !ok {
		return
	}
	identity, err := bundle.IdentityWallet.GetDIDInfo(ctx, did)
	if err != nil {
		writeWalletError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, identity)
}

// CreateProfile derives the profile of an identity for a nonce
func (s *Server) CreateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did, ok := identifierParam(w, r)
	if !ok {
		return
	}
	var body ProfileRequest
	if err := decode(r, &body); err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	nonce, valid := new(big.Int).SetString(body.Nonce, 10)
	if !valid || nonce.Sign() < 0 {
		writeError(ctx, w, http.StatusBadRequest, "nonce must be a decimal number")
		return
	}
	bundle, ok := s.wallets(w, r)
	if !ok {
		return
	}
	if _, err := bundle.IdentityWallet.GetDIDInfo(ctx, did); err != nil {
		writeWalletError(ctx, w, err)
		return
	}
	profile, err := bundle.IdentityWallet.CreateProfile(ctx, did, nonce, body.Verifier)
	if err != nil {
		writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(ctx, w, http.StatusCreated, profile)
}

// SaveCredential stores a W3C credential for an identity
func (s *Server) SaveCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did, ok := identifierParam(w, r)
	if !ok {
		return
	}
	var body verifiable.W3CCredential
	if err := decode(r, &body); err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if len(body.Type) == 0 {
		writeError(ctx, w, http.StatusBadRequest, "credential type is required")
		return
	}
	bundle, ok := s.wallets(w, r)
	if !ok {
		return
	}
	credential, err := bundle.CredentialWallet.Save(ctx, did.String(), body)
	if err != nil {
		writeError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, w, http.StatusCreated, credential)
}

// GetCredentials lists the credentials of an identity, only those of the type query param when given
func (s *Server) GetCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did, ok := identifierParam(w, r)
	if !ok {
		return
	}
	bundle, ok := s.wallets(w, r)
	if !ok {
		return
	}
	var credentials []*domain.Credential
	var err error
	if typ := r.URL.Query().Get("type"); typ != "" {
		credentials, err = bundle.CredentialWallet.FindByType(ctx, did.String(), typ)
	} else {
		credentials, err = bundle.CredentialWallet.List(ctx, did.String())
	}
	if err != nil {
		writeError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, w, http.StatusOK, credentials)
}

// GetNonRevokedCredential returns the first credential of the type query param that its issuer has not revoked
func (s *Server) GetNonRevokedCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did, ok := identifierParam(w, r)
	if !ok {
		return
	}
	typ := r.URL.Query().Get("type")
	if typ == "" {
		writeError(ctx, w, http.StatusBadRequest, "type is required")
		return
	}
	bundle, ok := s.wallets(w, r)
	if !ok {
		return
	}
	credential, status, err := bundle.CredentialWallet.FindNonRevoked(ctx, did.String(), typ)
	if err != nil {
		writeWalletError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, NonRevokedCredentialResponse{Credential: credential, RevocationStatus: status})
}

// GetCredential returns a credential by id
func (s *Server) GetCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := credentialIDParam(w, r)
	if !ok {
		return
	}
	bundle, ok := s.wallets(w, r)
	if !ok {
		return
	}
	credential, err := bundle.CredentialWallet.Get(ctx, id)
	if err != nil {
		writeWalletError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, credential)
}

// DeleteCredential removes a credential from the wallet
func (s *Server) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := credentialIDParam(w, r)
	if !ok {
		return
	}
	bundle, ok := s.wallets(w, r)
	if !ok {
		return
	}
	if err := bundle.CredentialWallet.Remove(ctx, id); err != nil {
		writeWalletError(ctx, w, err)
		return
	}
	log.Info(ctx, "credential removed", "id", id, "by", holderFrom(ctx))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) wallets(w http.ResponseWriter, r *http.Request) (*storage.Services, bool) {
	bundle, err := storage.Instance()
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, err.Error())
		return nil, false
	}
	return bundle, true
}

func identifierParam(w http.ResponseWriter, r *http.Request) (*w3c.DID, bool) {
	did, err := w3c.ParseDID(chi.URLParam(r, "identifier"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "invalid did: "+err.Error())
		return nil, false
	}
	return did, true
}

func credentialIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "invalid credential id")
		return uuid.Nil, false
	}
	return id, true
}

func writeWalletError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repositories.ErrIdentityNotFound),
		errors.Is(err, repositories.ErrCredentialDoesNotExist),
		errors.Is(err, services.ErrAllCredentialsRevoked):
		writeError(ctx, w, http.StatusNotFound, err.Error())
	default:
		log.Error(ctx, "wallet request", "err", err)
		writeError(ctx, w, http.StatusInternalServerError, err.Error())
	}
}
