package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/iden3/iden3comm/v2/protocol"

	"github.com/polygonid/verifier-node/internal/core/services"
	"github.com/polygonid/verifier-node/internal/log"
	"github.com/polygonid/verifier-node/internal/storage"
)

const maxTokenSize = 1 << 20

// GetAuthRequest starts a sign in session asking for the off-chain document type proof
func (s *Server) GetAuthRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authService, ok := s.auth(w, r)
	if !ok {
		return
	}
	sessionID, request, err := authService.GetAuthRequest(ctx, []protocol.ZeroKnowledgeProofRequest{s.requests.Sig})
	if err != nil {
		writeError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, w, http.StatusOK, AuthRequestResponse{SessionID: sessionID, Request: request})
}

// AuthCallback receives the JWZ token of a wallet for the sessionId query param
func (s *Server) AuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeError(ctx, w, http.StatusBadRequest, "sessionId is required")
		return
	}
	token, err := io.ReadAll(io.LimitReader(r.Body, maxTokenSize))
	if err != nil || len(token) == 0 {
		writeError(ctx, w, http.StatusBadRequest, "empty token")
		return
	}
	authService, ok := s.auth(w, r)
	if !ok {
		return
	}

	response, access, err := authService.Callback(ctx, sessionID, token)
	switch {
	case errors.Is(err, services.ErrSessionExpired):
		writeError(ctx, w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, services.ErrMalformedRequest), errors.Is(err, services.ErrUnsupportedCircuit):
		writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, services.ErrAuthFailed):
		writeError(ctx, w, http.StatusUnauthorized, err.Error())
		return
	case err != nil:
		writeError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, w, http.StatusOK, AuthCallbackResponse{From: response.From, ID: response.ID, AccessToken: access})
}

type holderKey struct{}

// RequireSignIn lets through the requests carrying an access token granted by the sign in callback.
// The did of the user is stored in the request context.
func (s *Server) RequireSignIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || token == "" {
			writeError(ctx, w, http.StatusUnauthorized, services.ErrUnauthenticated.Error())
			return
		}
		authService, ok := s.auth(w, r)
		if !ok {
			return
		}
		did, err := authService.Authenticate(ctx, token)
		if err != nil {
			writeError(ctx, w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, holderKey{}, did)))
	})
}

func holderFrom(ctx context.Context) string {
	did, _ := ctx.Value(holderKey{}).(string)
	return did
}

func (s *Server) auth(w http.ResponseWriter, r *http.Request) (*services.AuthService, bool) {
	ctx := r.Context()
	bundle, err := storage.Instance()
	if err != nil {
		writeError(ctx, w, http.StatusServiceUnavailable, err.Error())
		return nil, false
	}
	if bundle.Auth == nil {
		log.Debug(ctx, "sign in requested without ethereum node")
		writeError(ctx, w, http.StatusServiceUnavailable, "sign in needs an ethereum node")
		return nil, false
	}
	return bundle.Auth, true
}
