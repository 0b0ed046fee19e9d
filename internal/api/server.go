package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/polygonid/verifier-node/internal/config"
	"github.com/polygonid/verifier-node/internal/health"
	"github.com/polygonid/verifier-node/internal/log"
	"github.com/polygonid/verifier-node/internal/theme"
	"github.com/polygonid/verifier-node/internal/verifier"
	"github.com/polygonid/verifier-node/pkg/blockchain/eth"
)

// Server implements the verifier node http api
type Server struct {
	requests  *config.ProofRequests
	verifiers *verifier.Provider
	ethClient *eth.Client
	themes    *theme.Manager
	health    *health.Status
}

// NewServer is a Server constructor. ethClient may be nil, the on-chain verification is then unavailable.
func NewServer(requests *config.ProofRequests, verifiers *verifier.Provider, ethClient *eth.Client, themes *theme.Manager, health *health.Status) *Server {
	return &Server{
		requests:  requests,
		verifiers: verifiers,
		ethClient: ethClient,
		themes:    themes,
		health:    health,
	}
}

// Handler returns the router serving the api
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := chi.NewRouter()
	mux.Use(
		chiMiddleware.RequestID,
		log.ChiMiddleware(ctx),
		chiMiddleware.Recoverer,
		cors.AllowAll().Handler,
		chiMiddleware.NoCache,
	)

	mux.Get("/status", s.Health)
	mux.Route("/v1", func(r chi.Router) {
		r.Post("/verify/off-chain", s.VerifyOffChain)
		r.Group(func(r chi.Router) {
			r.Use(s.RequireSignIn)
			r.Post("/verify/on-chain", s.VerifyOnChain)

			r.Post("/identities", s.CreateIdentity)
			r.Get("/identities", s.GetIdentities)
			r.Get("/identities/{identifier}", s.GetIdentity)
			r.Post("/identities/{identifier}/profiles", s.CreateProfile)
			r.Post("/identities/{identifier}/credentials", s.SaveCredential)
			r.Get("/identities/{identifier}/credentials", s.GetCredentials)
			r.Get("/identities/{identifier}/credentials/non-revoked", s.GetNonRevokedCredential)
			r.Get("/credentials/{id}", s.GetCredential)
			r.Delete("/credentials/{id}", s.DeleteCredential)
		})

		r.Get("/proof-requests/sig", s.GetSigProofRequest)
		r.Get("/proof-requests/age", s.GetAgeProofRequest)

		r.Get("/auth/request", s.GetAuthRequest)
		r.Post("/auth/callback", s.AuthCallback)

		r.Get("/theme", s.GetTheme)
		r.Put("/theme", s.UpdateTheme)
		r.Put("/theme/system", s.UpdateSystemTheme)
	})
	return mux
}

// Health returns whether the cache, the ethereum node and the storage bundle are reachable
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, HealthResponse(s.health.Status(r.Context())))
}
