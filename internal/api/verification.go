package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethTypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/polygonid/verifier-node/internal/common"
	"github.com/polygonid/verifier-node/internal/log"
	"github.com/polygonid/verifier-node/internal/storage"
	"github.com/polygonid/verifier-node/internal/verifier"
)

// VerifyOffChain checks a proof response locally
func (s *Server) VerifyOffChain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body VerifyRequest
	if err := decode(r, &body); err != nil {
		log.Debug(ctx, "invalid verification body", "err", err)
		writeError(ctx, w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	v, err := s.verifiers.OffChainVerifier()
	if err != nil {
		writeUnavailable(ctx, w, err)
		return
	}
	s.writeVerification(ctx, w, v, body)
}

// VerifyOnChain broadcasts the submitZKPResponse transaction signed by the user's wallet once it
// matches the proof response, then checks the proof locally
func (s *Server) VerifyOnChain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body VerifyRequest
	if err := decode(r, &body); err != nil {
		log.Debug(ctx, "invalid verification body", "err", err)
		writeError(ctx, w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if body.Submission == nil || *body.Submission == "" {
		writeError(ctx, w, http.StatusBadRequest, "submission is required")
		return
	}
	submission, err := decodeTransaction(*body.Submission)
	if err != nil {
		log.Debug(ctx, "invalid submission", "err", err)
		writeError(ctx, w, http.StatusBadRequest, "invalid submission: "+err.Error())
		return
	}

	if s.ethClient == nil {
		writeError(ctx, w, http.StatusServiceUnavailable, "ethereum node is not configured")
		return
	}
	v, err := s.verifiers.OnChainVerifier(s.ethClient)
	if err != nil {
		writeUnavailable(ctx, w, err)
		return
	}
	log.Info(ctx, "on-chain verification", "holder", holderFrom(ctx), "tx", submission.Hash().Hex())
	s.writeVerification(ctx, w, verifier.WithSubmission(v, submission), body)
}

func decodeTransaction(raw string) (*ethTypes.Transaction, error) {
	data, err := hexutil.Decode(raw)
	if err != nil {
		return nil, err
	}
	tx := new(ethTypes.Transaction)
	if err := tx.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Server) writeVerification(ctx context.Context, w http.ResponseWriter, v verifier.Verifier, body VerifyRequest) {
	if err := v.Check(ctx, body.Response, body.Request); err != nil {
		log.Warn(ctx, "proof rejected", "requestID", body.Request.ID, "circuit", body.Request.CircuitID, "err", err)
		writeJSON(ctx, w, http.StatusOK, VerifyResponse{
			Verified: false,
			Reason:   common.ToPointer(reasonOf(err)),
			Error:    common.ToPointer(err.Error()),
		})
		return
	}
	log.Info(ctx, "proof verified", "requestID", body.Request.ID, "circuit", body.Request.CircuitID)
	writeJSON(ctx, w, http.StatusOK, VerifyResponse{Verified: true})
}

func writeUnavailable(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotInitialized) {
		writeError(ctx, w, http.StatusServiceUnavailable, err.Error())
		return
	}
	log.Error(ctx, "building verifier", "err", err)
	writeError(ctx, w, http.StatusInternalServerError, err.Error())
}
