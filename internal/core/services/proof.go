package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/iden3/go-circuits/v2"
	"github.com/iden3/go-rapidsnark/types"
	"github.com/iden3/go-rapidsnark/verifier"

	"github.com/polygonid/verifier-node/internal/core/ports"
	"github.com/polygonid/verifier-node/internal/log"
	client "github.com/polygonid/verifier-node/pkg/http"
	"github.com/polygonid/verifier-node/pkg/loaders"
)

// ProofService verifies proofs with the circuit verification keys and generates them with the native prover
type ProofService struct {
	circuitsLoader *loaders.Circuits
	prover         ports.ZKGenerator
}

// NewProofService returns a ProofService. A nil prover means the native one.
func NewProofService(circuitsLoader *loaders.Circuits, prover ports.ZKGenerator) *ProofService {
	if prover == nil {
		prover = NewNativeProverService(circuitsLoader)
	}
	return &ProofService{
		circuitsLoader: circuitsLoader,
		prover:         prover,
	}
}

// VerifyProof checks zkp against the verification key of circuitID and returns its public signals
func (p *ProofService) VerifyProof(ctx context.Context, zkp *types.ZKProof, circuitID circuits.CircuitID) (circuits.PubSignalsUnmarshaller, error) {
	if zkp == nil || zkp.Proof == nil {
		return nil, fmt.Errorf("%w: empty proof", ErrMalformedProof)
	}
	pubSignals, err := ParsePubSignals(circuitID, zkp.PubSignals)
	if err != nil {
		return nil, err
	}

	vk, err := p.circuitsLoader.LoadVerificationKey(ctx, circuitID)
	if err != nil {
		log.Error(ctx, "cannot load verification key", "circuit", circuitID, "err", err)
		return nil, verificationKeyError(circuitID, err)
	}
	if err := verifier.VerifyGroth16(*zkp, vk); err != nil {
		log.Debug(ctx, "groth16 verification failed", "circuit", circuitID, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	return pubSignals, nil
}

// verificationKeyError tells a key that was never provisioned from a key store that could not be reached
func verificationKeyError(circuitID circuits.CircuitID, err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("%w: no verification key for %s: %v", ErrNotInitialized, circuitID, err)
	}
	return fmt.Errorf("%w: loading the verification key of %s: %v", ErrNetwork, circuitID, err)
}

// GenerateProof proves inputs for circuitID
func (p *ProofService) GenerateProof(ctx context.Context, inputs json.RawMessage, circuitID circuits.CircuitID) (*types.ZKProof, error) {
	return p.prover.Generate(ctx, inputs, circuitID)
}

// ParsePubSignals decodes the public signals of a circuit output
func ParsePubSignals(circuitID circuits.CircuitID, signals []string) (circuits.PubSignalsUnmarshaller, error) {
	var pubSignals circuits.PubSignalsUnmarshaller
	switch circuitID {
	case circuits.AuthV2CircuitID:
		pubSignals = &circuits.AuthV2PubSignals{}
	case circuits.AtomicQuerySigV2CircuitID:
		pubSignals = &circuits.AtomicQuerySigV2PubSignals{}
	case circuits.AtomicQuerySigV2OnChainCircuitID:
		pubSignals = &circuits.AtomicQuerySigV2OnChainPubSignals{}
	case circuits.AtomicQueryMTPV2CircuitID:
		pubSignals = &circuits.AtomicQueryMTPV2PubSignals{}
	case circuits.StateTransitionCircuitID:
		pubSignals = &circuits.StateTransitionPubSignals{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCircuit, circuitID)
	}

	raw, err := json.Marshal(signals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	if err := pubSignals.PubSignalsUnmarshal(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	return pubSignals, nil
}
