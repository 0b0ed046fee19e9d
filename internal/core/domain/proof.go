package domain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/iden3/go-rapidsnark/types"

	"github.com/polygonid/verifier-node/internal/common"
)

// ErrProofShape is returned when the groth16 proof points do not have the expected coordinates.
var ErrProofShape = errors.New("proof points have an unexpected shape")

// SolidityProof is a groth16 proof laid out the way the solidity verifier expects it.
type SolidityProof struct {
	Inputs []*big.Int
	A      [2]*big.Int
	B      [2][2]*big.Int
	C      [2]*big.Int
}

// NewSolidityProof reshapes a snarkjs proof for a contract call.
// Projective coordinates are dropped and the G2 point limbs are swapped.
func NewSolidityProof(zkp *types.ZKProof) (*SolidityProof, error) {
	if zkp == nil || zkp.Proof == nil {
		return nil, fmt.Errorf("%w: empty proof", ErrProofShape)
	}
	p := zkp.Proof
	if len(p.A) < 2 || len(p.C) < 2 || len(p.B) < 2 || len(p.B[0]) < 2 || len(p.B[1]) < 2 {
		return nil, ErrProofShape
	}

	inputs, err := common.ArrayStringToBigInt(zkp.PubSignals)
	if err != nil {
		return nil, fmt.Errorf("public signals: %w", err)
	}
	a, err := common.ArrayStringToBigInt(p.A[:2])
	if err != nil {
		return nil, fmt.Errorf("pi_a: %w", err)
	}
	c, err := common.ArrayStringToBigInt(p.C[:2])
	if err != nil {
		return nil, fmt.Errorf("pi_c: %w", err)
	}
	b0, err := common.ArrayStringToBigInt(p.B[0][:2])
	if err != nil {
		return nil, fmt.Errorf("pi_b: %w", err)
	}
	b1, err := common.ArrayStringToBigInt(p.B[1][:2])
	if err != nil {
		return nil, fmt.Errorf("pi_b: %w", err)
	}

	return &SolidityProof{
		Inputs: inputs,
		A:      [2]*big.Int{a[0], a[1]},
		B: [2][2]*big.Int{
			{b0[1], b0[0]},
			{b1[1], b1[0]},
		},
		C: [2]*big.Int{c[0], c[1]},
	}, nil
}
