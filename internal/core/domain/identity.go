package domain

import (
	"time"

	"github.com/iden3/go-iden3-core/v2/w3c"
	"github.com/iden3/go-merkletree-sql/v2"

	"github.com/polygonid/verifier-node/internal/kms"
)

// Identity struct
type Identity struct {
	Identifier string        `json:"identifier"`
	State      IdentityState `json:"state"`
	KeyType    string        `json:"keyType"`
	// AuthKeyID is the BabyJubJub key of the auth claim
	AuthKeyID kms.KeyID `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// IdentityState holds the roots that make up an identity state
type IdentityState struct {
	Identifier         string  `json:"-"`
	State              *string `json:"state"`
	RootOfRoots        *string `json:"root_of_roots,omitempty"`
	ClaimsTreeRoot     *string `json:"claims_tree_root,omitempty"`
	RevocationTreeRoot *string `json:"revocation_tree_root,omitempty"`
}

// NewIdentityState builds the state of did from its tree roots
func NewIdentityState(did *w3c.DID, state, claimsRoot, revocationsRoot, rootsRoot *merkletree.Hash) IdentityState {
	hex := func(h *merkletree.Hash) *string {
		s := h.Hex()
		return &s
	}
	return IdentityState{
		Identifier:         did.String(),
		State:              hex(state),
		ClaimsTreeRoot:     hex(claimsRoot),
		RevocationTreeRoot: hex(revocationsRoot),
		RootOfRoots:        hex(rootsRoot),
	}
}

// Profile is a per verifier identifier derived from an identity and a nonce
type Profile struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	Nonce      string    `json:"nonce"`
	Verifier   string    `json:"verifier,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
