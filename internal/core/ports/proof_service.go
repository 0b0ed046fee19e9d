package ports

import (
	"context"
	"encoding/json"

	"github.com/iden3/go-circuits/v2"
	"github.com/iden3/go-rapidsnark/types"
)

// ProofService verifies and generates groth16 proofs of the supported circuits
type ProofService interface {
	// VerifyProof checks zkp against the verification key of circuitID and returns its parsed public signals
	VerifyProof(ctx context.Context, zkp *types.ZKProof, circuitID circuits.CircuitID) (circuits.PubSignalsUnmarshaller, error)
	// GenerateProof runs the native prover over the circuit inputs
	GenerateProof(ctx context.Context, inputs json.RawMessage, circuitID circuits.CircuitID) (*types.ZKProof, error)
}
