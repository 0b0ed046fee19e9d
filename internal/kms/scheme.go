package kms

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-iden3-crypto/utils"
)

const privateKeyLength = 32

// Scheme generates and uses the private keys of one key type
type Scheme interface {
	Generate() ([]byte, error)
	PublicKey(priv []byte) ([]byte, error)
	Sign(priv []byte, digest []byte) ([]byte, error)
}

// BabyJubJub keys sign poseidon digests. Public keys are compressed points.
type BabyJubJub struct{}

// Generate returns a random private key
func (BabyJubJub) Generate() ([]byte, error) {
	pk := babyjub.NewRandPrivKey()
	return pk[:], nil
}

// PublicKey returns the compressed public key of priv
func (BabyJubJub) PublicKey(priv []byte) ([]byte, error) {
	pk, err := bjjPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	pub := pk.Public().Compress()
	return pub[:], nil
}

// Sign signs a little endian field element and returns the compressed signature
func (BabyJubJub) Sign(priv []byte, digest []byte) ([]byte, error) {
	if len(digest) > privateKeyLength {
		return nil, errors.New("data to sign is too large")
	}
	i := new(big.Int).SetBytes(utils.SwapEndianness(digest))
	if !utils.CheckBigIntInField(i) {
		return nil, errors.New("data to sign is not in the field")
	}
	pk, err := bjjPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	sig := pk.SignPoseidon(i).Compress()
	return sig[:], nil
}

// Ethereum keys are secp256k1 keys. Public keys are compressed.
type Ethereum struct{}

// Generate returns a random private key
func (Ethereum) Generate() ([]byte, error) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return crypto.FromECDSA(pk), nil
}

// PublicKey returns the compressed public key of priv
func (Ethereum) PublicKey(priv []byte) ([]byte, error) {
	pk, err := crypto.ToECDSA(priv)
	if err != nil {
		return nil, err
	}
	return crypto.CompressPubkey(&pk.PublicKey), nil
}

// Sign returns the recoverable signature of a 32 bytes digest
func (Ethereum) Sign(priv []byte, digest []byte) ([]byte, error) {
	pk, err := crypto.ToECDSA(priv)
	if err != nil {
		return nil, err
	}
	return crypto.Sign(digest, pk)
}

func bjjPrivateKey(priv []byte) (babyjub.PrivateKey, error) {
	var pk babyjub.PrivateKey
	if len(priv) != len(pk) {
		return pk, fmt.Errorf("unexpected private key length %d", len(priv))
	}
	copy(pk[:], priv)
	return pk, nil
}

// DecodeBJJPubKey decompresses a public key returned by PublicKey
func DecodeBJJPubKey(key []byte) (*babyjub.PublicKey, error) {
	var comp babyjub.PublicKeyComp
	copy(comp[:], key)
	return comp.Decompress()
}

// BJJDigest marshals i to the little endian digest BabyJubJub.Sign expects
func BJJDigest(i *big.Int) []byte {
	return utils.SwapEndianness(i.Bytes())
}

// DecodeBJJSignature decompresses a signature returned by Sign
func DecodeBJJSignature(sigBytes []byte) (*babyjub.Signature, error) {
	var comp babyjub.SignatureComp
	if len(sigBytes) != len(comp) {
		return nil, fmt.Errorf("unexpected signature length, got %v bytes, want %v", len(sigBytes), len(comp))
	}
	copy(comp[:], sigBytes)
	return comp.Decompress()
}
