package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/iden3/go-circuits/v2"
	auth "github.com/iden3/go-iden3-auth/v2"
	"github.com/iden3/go-iden3-auth/v2/loaders"
	"github.com/iden3/go-iden3-auth/v2/pubsignals"
	"github.com/iden3/go-iden3-auth/v2/state"
	core "github.com/iden3/go-iden3-core/v2"
	"github.com/iden3/go-jwz/v2"
	"github.com/iden3/iden3comm/v2/protocol"

	"github.com/polygonid/verifier-node/internal/core/ports"
	"github.com/polygonid/verifier-node/internal/log"
)

const sessionIDParam = "sessionId"

var (
	// ErrSessionExpired the callback refers to an unknown or expired session
	ErrSessionExpired = errors.New("authorization session not found or expired")
	// ErrAuthFailed the JWZ token does not satisfy the authorization request
	ErrAuthFailed = errors.New("authorization failed")
	// ErrUnauthenticated the access token is missing, unknown or expired
	ErrUnauthenticated = errors.New("sign in required")
)

// AuthConfig holds the sign in parameters
type AuthConfig struct {
	Audience    string
	CallbackURL string
	Reason      string
	StateDelay  time.Duration
}

// AuthService runs the iden3comm sign in flow: it hands out authorization requests and verifies the
// JWZ tokens wallets post back.
type AuthService struct {
	sessions ports.SessionRepository
	access   ports.AccessRepository
	verifier *auth.Verifier
	cfg      AuthConfig
}

// NewAuthService returns an AuthService
func NewAuthService(sessions ports.SessionRepository, access ports.AccessRepository, verifier *auth.Verifier, cfg AuthConfig) *AuthService {
	return &AuthService{sessions: sessions, access: access, verifier: verifier, cfg: cfg}
}

// NewAuthVerifier builds the iden3 auth verifier. States of the identities under resolverPrefix
// (for example polygon:mumbai) are read through states.
func NewAuthVerifier(keyLoader loaders.VerificationKeyLoader, states ports.StateService, resolverPrefix string, ipfsGateway string) (*auth.Verifier, error) {
	resolvers := map[string]pubsignals.StateResolver{
		resolverPrefix: NewStateResolver(states),
	}
	return auth.NewVerifier(keyLoader, resolvers, auth.WithIPFSGateway(ipfsGateway))
}

// GetAuthRequest creates an authorization request asking for the proofs in scope and keeps it until
// the wallet calls back. It returns the session id of the request.
func (a *AuthService) GetAuthRequest(ctx context.Context, scope []protocol.ZeroKnowledgeProofRequest) (string, protocol.AuthorizationRequestMessage, error) {
	sessionID := uuid.NewString()
	callback, err := url.Parse(a.cfg.CallbackURL)
	if err != nil {
		return "", protocol.AuthorizationRequestMessage{}, fmt.Errorf("invalid callback url: %w", err)
	}
	q := callback.Query()
	q.Set(sessionIDParam, sessionID)
	callback.RawQuery = q.Encode()

	request := auth.CreateAuthorizationRequest(a.cfg.Reason, a.cfg.Audience, callback.String())
	request.ID = uuid.NewString()
	request.ThreadID = request.ID
	request.Body.Scope = append(request.Body.Scope, scope...)

	if err := a.sessions.Set(ctx, sessionID, request); err != nil {
		log.Error(ctx, "cannot store authorization request", "err", err)
		return "", protocol.AuthorizationRequestMessage{}, err
	}
	log.Debug(ctx, "authorization request created", "session", sessionID, "id", request.ID)
	return sessionID, request, nil
}

// Callback verifies the JWZ token posted for sessionID. It returns the authorization response and
// the access token granted to the user who signed in.
func (a *AuthService) Callback(ctx context.Context, sessionID string, token []byte) (*protocol.AuthorizationResponseMessage, string, error) {
	request, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		log.Debug(ctx, "authorization session lookup failed", "session", sessionID, "err", err)
		return nil, "", ErrSessionExpired
	}

	parsed, err := jwz.Parse(string(token))
	if err != nil {
		log.Debug(ctx, "callback token is not a JWZ", "session", sessionID, "err", err)
		return nil, "", fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if circuits.CircuitID(parsed.CircuitID) != circuits.AuthV2CircuitID {
		return nil, "", fmt.Errorf("%w: token proved with %s", ErrUnsupportedCircuit, parsed.CircuitID)
	}

	response, err := a.verifier.FullVerify(ctx, string(token), request, pubsignals.WithAcceptedStateTransitionDelay(a.cfg.StateDelay))
	if err != nil {
		log.Warn(ctx, "authorization response rejected", "session", sessionID, "err", err)
		return nil, "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	if err := a.sessions.Delete(ctx, sessionID); err != nil {
		log.Warn(ctx, "cannot delete authorization session", "session", sessionID, "err", err)
	}
	access, err := a.Grant(ctx, response.From)
	if err != nil {
		return nil, "", err
	}
	log.Info(ctx, "user authenticated", "from", response.From)
	return response, access, nil
}

// Grant issues an access token for did
func (a *AuthService) Grant(ctx context.Context, did string) (string, error) {
	token := uuid.NewString()
	if err := a.access.Grant(ctx, token, did); err != nil {
		log.Error(ctx, "cannot store access token", "err", err)
		return "", err
	}
	return token, nil
}

// Authenticate returns the did an access token was granted to
func (a *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}
	did, err := a.access.Holder(ctx, token)
	if err != nil {
		log.Debug(ctx, "access token rejected", "err", err)
		return "", ErrUnauthenticated
	}
	return did, nil
}

// StateResolver exposes the state contract reader to the iden3 auth verifier
type StateResolver struct {
	states ports.StateService
}

// NewStateResolver returns a StateResolver
func NewStateResolver(states ports.StateService) *StateResolver {
	return &StateResolver{states: states}
}

// Resolve checks state is a known state of the identity id
func (r *StateResolver) Resolve(ctx context.Context, id *big.Int, st *big.Int) (*state.ResolvedState, error) {
	coreID, err := core.IDFromInt(id)
	if err != nil {
		return nil, err
	}
	resolved, err := r.states.ResolveState(ctx, coreID, st)
	if err != nil {
		return nil, err
	}
	return &state.ResolvedState{
		State:               resolved.State,
		Latest:              resolved.Latest,
		Genesis:             resolved.Genesis,
		TransitionTimestamp: resolved.TransitionTimestamp,
	}, nil
}

// ResolveGlobalRoot checks root is a published gist root
func (r *StateResolver) ResolveGlobalRoot(ctx context.Context, root *big.Int) (*state.ResolvedState, error) {
	resolved, err := r.states.ResolveGlobalRoot(ctx, root)
	if err != nil {
		return nil, err
	}
	return &state.ResolvedState{
		State:               resolved.State,
		Latest:              resolved.Latest,
		Genesis:             resolved.Genesis,
		TransitionTimestamp: resolved.TransitionTimestamp,
	}, nil
}
