package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iden3/go-circuits/v2"
	"github.com/iden3/go-rapidsnark/prover"
	"github.com/iden3/go-rapidsnark/types"
	"github.com/iden3/go-rapidsnark/witness/v2"
	"github.com/iden3/go-rapidsnark/witness/wazero"

	"github.com/polygonid/verifier-node/internal/log"
	"github.com/polygonid/verifier-node/pkg/loaders"
)

// NativeProverService computes groth16 proofs in process from the circuit wasm and zkey
type NativeProverService struct {
	circuits *loaders.Circuits
}

// NewNativeProverService returns a prover reading the circuit assets from circuits
func NewNativeProverService(circuits *loaders.Circuits) *NativeProverService {
	return &NativeProverService{circuits: circuits}
}

// Generate proves inputs for circuitID
func (s *NativeProverService) Generate(ctx context.Context, inputs json.RawMessage, circuitID circuits.CircuitID) (*types.ZKProof, error) {
	wtns, err := s.witness(ctx, inputs, circuitID)
	if err != nil {
		return nil, err
	}
	zkey, err := s.circuits.LoadProvingKey(ctx, circuitID)
	if err != nil {
		return nil, err
	}
	proof, err := prover.Groth16Prover(zkey, wtns)
	if err != nil {
		log.Error(ctx, "proving", "err", err, "circuit", circuitID)
		return nil, fmt.Errorf("proving %s: %w", circuitID, err)
	}
	return proof, nil
}

// witness runs the circuit wasm over inputs and returns the binary witness
func (s *NativeProverService) witness(ctx context.Context, inputs json.RawMessage, circuitID circuits.CircuitID) ([]byte, error) {
	wasm, err := s.circuits.LoadWasm(ctx, circuitID)
	if err != nil {
		return nil, err
	}
	parsed, err := witness.ParseInputs(inputs)
	if err != nil {
		return nil, fmt.Errorf("%w: circuit inputs: %v", ErrMalformedRequest, err)
	}
	calc, err := witness.NewCalculator(wasm, witness.WithWasmEngine(wazero.NewCircom2WZWitnessCalculator))
	if err != nil {
		return nil, fmt.Errorf("witness calculator for %s: %w", circuitID, err)
	}
	wtns, err := calc.CalculateWTNSBin(parsed, true)
	if err != nil {
		log.Error(ctx, "calculating witness", "err", err, "circuit", circuitID)
		return nil, fmt.Errorf("witness for %s: %w", circuitID, err)
	}
	return wtns, nil
}
