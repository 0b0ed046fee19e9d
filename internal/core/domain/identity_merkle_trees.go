package domain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	core "github.com/iden3/go-iden3-core/v2"
	"github.com/iden3/go-iden3-core/v2/w3c"
	"github.com/iden3/go-merkletree-sql/v2"
)

const (
	// MerkleTreeTypeClaims is merkle tree type for claims tree
	MerkleTreeTypeClaims = 0
	// MerkleTreeTypeRevocations is merkle tree type for revocations tree
	MerkleTreeTypeRevocations = 1
	// MerkleTreeTypeRoots is merkle tree type for roots tree
	MerkleTreeTypeRoots = 2
	// MerkleTreeTypesCount the number of trees an identity owns
	MerkleTreeTypesCount = 3
)

var (
	errorMsgNotCreated = errors.New("identity merkle trees were not created")
	// MerkleTreeTypes lists the identity tree types in state order
	MerkleTreeTypes = []uint16{MerkleTreeTypeClaims, MerkleTreeTypeRevocations, MerkleTreeTypeRoots}
)

// IdentityMerkleTrees the claims, revocations and roots trees of one identity
type IdentityMerkleTrees struct {
	Identifier *w3c.DID
	// TmpID names the trees until they are bound to an identifier
	TmpID string
	Trees []*merkletree.MerkleTree
}

// AddClaim adds claim to claims merkle tree
func (imts *IdentityMerkleTrees) AddClaim(ctx context.Context, claim *core.Claim) error {
	if len(imts.Trees) < MerkleTreeTypesCount {
		return errorMsgNotCreated
	}
	index, value, err := claim.HiHv()
	if err != nil {
		return fmt.Errorf("cannot get Index and Value from claim: %w", err)
	}
	if err := imts.Trees[MerkleTreeTypeClaims].Add(ctx, index, value); err != nil {
		return fmt.Errorf("cannot add entry to claims merkle tree: %w", err)
	}
	return nil
}

// ClaimsTree returns claims merkle tree
func (imts *IdentityMerkleTrees) ClaimsTree() (*merkletree.MerkleTree, error) {
	return imts.tree(MerkleTreeTypeClaims)
}

// RevsTree returns revocations merkle tree
func (imts *IdentityMerkleTrees) RevsTree() (*merkletree.MerkleTree, error) {
	return imts.tree(MerkleTreeTypeRevocations)
}

// RootsTree returns roots merkle tree
func (imts *IdentityMerkleTrees) RootsTree() (*merkletree.MerkleTree, error) {
	return imts.tree(MerkleTreeTypeRoots)
}

func (imts *IdentityMerkleTrees) tree(mtType int) (*merkletree.MerkleTree, error) {
	if len(imts.Trees) < MerkleTreeTypesCount {
		return nil, errorMsgNotCreated
	}
	return imts.Trees[mtType], nil
}

// BindToIdentifier swaps the temporary name of the trees for identifier
func (imts *IdentityMerkleTrees) BindToIdentifier(identifier *w3c.DID) error {
	if imts.Identifier != nil {
		return errors.New("can't change not empty Identifier")
	}
	if len(imts.Trees) < MerkleTreeTypesCount {
		return errorMsgNotCreated
	}
	imts.Identifier = identifier
	return nil
}

// RevokeClaim adds revNonce to the revocations tree
func (imts *IdentityMerkleTrees) RevokeClaim(ctx context.Context, revNonce *big.Int) error {
	if len(imts.Trees) < MerkleTreeTypesCount {
		return errorMsgNotCreated
	}
	// version 0 is the only version written so far
	if err := imts.Trees[MerkleTreeTypeRevocations].Add(ctx, revNonce, big.NewInt(0)); err != nil {
		return fmt.Errorf("cannot add revocation nonce: %d to revocation merkle tree: %w", revNonce, err)
	}
	return nil
}

// State returns the identity state hash(claimsRoot, revocationsRoot, rootsRoot)
func (imts *IdentityMerkleTrees) State() (*merkletree.Hash, error) {
	if len(imts.Trees) < MerkleTreeTypesCount {
		return nil, errorMsgNotCreated
	}
	return merkletree.HashElems(
		imts.Trees[MerkleTreeTypeClaims].Root().BigInt(),
		imts.Trees[MerkleTreeTypeRevocations].Root().BigInt(),
		imts.Trees[MerkleTreeTypeRoots].Root().BigInt(),
	)
}
