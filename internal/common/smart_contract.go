package common

import (
	"math/big"

	"github.com/iden3/go-merkletree-sql/v2"
)

// SmartContractProof is a sparse merkle tree proof as returned by the iden3 contracts
type SmartContractProof struct {
	Root         *big.Int
	Existence    bool
	Siblings     []*big.Int
	Index        *big.Int
	Value        *big.Int
	AuxExistence bool
	AuxIndex     *big.Int
	AuxValue     *big.Int
}

// SmartContractProofToMtProofAdapter converts SmartContractProof to merkletree.Proof
func SmartContractProofToMtProofAdapter(smtProof SmartContractProof) (*merkletree.Proof, error) {
	var (
		nodeAux *merkletree.NodeAux
		err     error
	)

	if !smtProof.Existence && smtProof.AuxExistence {
		nodeAux = &merkletree.NodeAux{}
		if nodeAux.Key, err = merkletree.NewHashFromBigInt(smtProof.AuxIndex); err != nil {
			return nil, err
		}
		if nodeAux.Value, err = merkletree.NewHashFromBigInt(smtProof.AuxValue); err != nil {
			return nil, err
		}
	}

	siblings := make([]*merkletree.Hash, len(smtProof.Siblings))
	for i, s := range smtProof.Siblings {
		if siblings[i], err = merkletree.NewHashFromBigInt(s); err != nil {
			return nil, err
		}
	}

	return merkletree.NewProofFromData(smtProof.Existence, siblings, nodeAux)
}
