package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/iden3/go-schema-processor/v2/verifiable"
	"github.com/iden3/iden3comm/v2/protocol"

	"github.com/polygonid/verifier-node/internal/core/domain"
	"github.com/polygonid/verifier-node/internal/log"
	"github.com/polygonid/verifier-node/internal/theme"
)

// GenericErrorMessage is the body of every error response
type GenericErrorMessage struct {
	Message string `json:"message"`
}

// VerifyRequest is the body of the verification endpoints.
// Submission is the 0x hex encoded submitZKPResponse transaction signed by the user's wallet. It is
// required on chain and ignored off chain.
type VerifyRequest struct {
	Request    protocol.ZeroKnowledgeProofRequest  `json:"request"`
	Response   protocol.ZeroKnowledgeProofResponse `json:"response"`
	Submission *string                             `json:"submission,omitempty"`
}

// VerifyResponse tells whether the proof was accepted and why it was not
type VerifyResponse struct {
	Verified bool    `json:"verified"`
	Reason   *string `json:"reason,omitempty"`
	Error    *string `json:"error,omitempty"`
}

// AuthRequestResponse carries the authorization request a wallet has to answer
type AuthRequestResponse struct {
	SessionID string                               `json:"sessionId"`
	Request   protocol.AuthorizationRequestMessage `json:"request"`
}

// AuthCallbackResponse identifies the authenticated user. AccessToken is the bearer token of the
// routes that need a signed in user.
type AuthCallbackResponse struct {
	From        string `json:"from"`
	ID          string `json:"id"`
	AccessToken string `json:"accessToken"`
}

// ProfileRequest derives a profile. Nonce is a decimal number.
type ProfileRequest struct {
	Nonce    string `json:"nonce"`
	Verifier string `json:"verifier,omitempty"`
}

// NonRevokedCredentialResponse is a credential with the revocation status its issuer reported
type NonRevokedCredentialResponse struct {
	Credential       *domain.Credential           `json:"credential"`
	RevocationStatus *verifiable.RevocationStatus `json:"revocationStatus"`
}

// ThemeRequest selects a mode for an account
type ThemeRequest struct {
	Account string      `json:"account"`
	Mode    *theme.Mode `json:"mode"`
}

// SystemThemeRequest sets the device theme
type SystemThemeRequest struct {
	Mode *theme.Mode `json:"mode"`
}

// ThemeResponse is the current theme state
type ThemeResponse struct {
	Mode        theme.Mode `json:"mode"`
	SystemTheme theme.Mode `json:"systemTheme"`
	DarkMode    bool       `json:"darkMode"`
}

// HealthResponse maps every dependency to whether it answered
type HealthResponse map[string]bool

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error(ctx, "writing response", "err", err)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	writeJSON(ctx, w, status, GenericErrorMessage{Message: message})
}

func decode(r *http.Request, body any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(body)
}

func themeResponse(m *theme.Manager) ThemeResponse {
	return ThemeResponse{
		Mode:        m.Mode(),
		SystemTheme: m.SystemTheme(),
		DarkMode:    m.IsDarkMode(),
	}
}
