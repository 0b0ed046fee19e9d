package api

import (
	"errors"

	"github.com/polygonid/verifier-node/internal/core/services"
)

// Reasons reported when a proof is rejected
const (
	ReasonMalformedRequest   = "malformed_request"
	ReasonMalformedProof     = "malformed_proof"
	ReasonInvalidProof       = "invalid_proof"
	ReasonQueryMismatch      = "query_mismatch"
	ReasonNetwork            = "network"
	ReasonNotInitialized     = "not_initialized"
	ReasonUnsupportedCircuit = "unsupported_circuit"
	ReasonUnknown            = "unknown"
)

var reasons = []struct {
	err    error
	reason string
}{
	{services.ErrMalformedRequest, ReasonMalformedRequest},
	{services.ErrMalformedProof, ReasonMalformedProof},
	{services.ErrInvalidProof, ReasonInvalidProof},
	{services.ErrQueryMismatch, ReasonQueryMismatch},
	{services.ErrNetwork, ReasonNetwork},
	{services.ErrNotInitialized, ReasonNotInitialized},
	{services.ErrUnsupportedCircuit, ReasonUnsupportedCircuit},
}

func reasonOf(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonUnknown
}
