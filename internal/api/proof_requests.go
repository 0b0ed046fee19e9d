package api

import (
	"net/http"
	"strconv"

	"github.com/polygonid/verifier-node/internal/log"
)

// GetSigProofRequest returns the off-chain document type request
func (s *Server) GetSigProofRequest(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, s.requests.Sig)
}

// GetAgeProofRequest returns the on-chain age request for the maxBirthDate query param (yyyymmdd)
func (s *Server) GetAgeProofRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := r.URL.Query().Get("maxBirthDate")
	maxBirthDate, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(ctx, w, http.StatusBadRequest, "maxBirthDate must be an integer like 20020101")
		return
	}
	req, err := s.requests.ProofOfAgeRequest(maxBirthDate)
	if err != nil {
		log.Error(ctx, "building age proof request", "err", err)
		writeError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, w, http.StatusOK, req)
}
