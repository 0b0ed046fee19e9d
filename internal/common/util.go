package common

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"

	core "github.com/iden3/go-iden3-core/v2"
	"github.com/iden3/go-iden3-core/v2/w3c"
)

// RandInt64 returns a random revocation nonce. Only the low 32 bits are set.
func RandInt64() (uint64, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return uint64(binary.LittleEndian.Uint32(buf[:])), nil
}

// ArrayStringToBigInt parses decimal strings, as found in snarkjs proofs and public signals
func ArrayStringToBigInt(s []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(s))
	for i, v := range s {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("%q at %d is not a decimal number", v, i)
		}
		out[i] = n
	}
	return out, nil
}

// CheckGenesisStateDID returns an error when state is not the genesis state of the identity behind did
func CheckGenesisStateDID(did *w3c.DID, state *big.Int) error {
	id, err := core.IDFromDID(*did)
	if err != nil {
		return err
	}
	isGenesis, err := core.CheckGenesisStateID(id.BigInt(), state)
	if err != nil {
		return err
	}
	if !isGenesis {
		return fmt.Errorf("state %s is not the genesis state of %s", state, did)
	}
	return nil
}
