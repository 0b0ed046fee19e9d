package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	core "github.com/iden3/go-iden3-core/v2"
	"github.com/iden3/go-iden3-core/v2/w3c"
	"github.com/iden3/go-iden3-crypto/babyjub"

	"github.com/polygonid/verifier-node/internal/common"
	"github.com/polygonid/verifier-node/internal/core/domain"
	"github.com/polygonid/verifier-node/internal/core/ports"
	"github.com/polygonid/verifier-node/internal/kms"
	"github.com/polygonid/verifier-node/internal/log"
)

// ErrWrongDIDMetada the method, blockchain and network do not make a DID type
var ErrWrongDIDMetada = errors.New("wrong DID Metadata")

// IdentityWallet creates and describes the identities the node holds
type IdentityWallet struct {
	identityRepository ports.IdentityRepository
	mtService          ports.MtService
	kms                kms.KMSType
}

// NewIdentityWallet returns an IdentityWallet
func NewIdentityWallet(identityRepository ports.IdentityRepository, mtService ports.MtService, keyStore kms.KMSType) *IdentityWallet {
	return &IdentityWallet{
		identityRepository: identityRepository,
		mtService:          mtService,
		kms:                keyStore,
	}
}

// CreateIdentity creates a BabyJubJub identity: its auth claim is the only claim of the genesis claims tree
// and the DID is derived from the genesis state. nil options default to polygonid on polygon mumbai.
func (i *IdentityWallet) CreateIdentity(ctx context.Context, didOptions *ports.DIDCreationOptions) (*domain.Identity, error) {
	if didOptions == nil {
		didOptions = &ports.DefaultDIDCreationOptions
	}
	didType, err := core.BuildDIDType(didOptions.Method, didOptions.Blockchain, didOptions.Network)
	if err != nil {
		return nil, ErrWrongDIDMetada
	}

	mts, err := i.mtService.CreateIdentityMerkleTrees(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't create identity markle tree: %w", err)
	}

	key, err := i.kms.CreateKey(kms.KeyTypeBabyJubJub, nil)
	if err != nil {
		return nil, fmt.Errorf("can't create bjj key: %w", err)
	}
	pubKey, err := bjjPubKey(i.kms, key)
	if err != nil {
		return nil, fmt.Errorf("can't get bjj public key: %w", err)
	}

	authClaim, err := newAuthClaim(pubKey)
	if err != nil {
		return nil, err
	}
	if err := mts.AddClaim(ctx, authClaim); err != nil {
		return nil, fmt.Errorf("can't add entry to merkle tree: %w", err)
	}

	currentState, err := mts.State()
	if err != nil {
		return nil, fmt.Errorf("can't add get current state from merkle tree: %w", err)
	}
	did, err := core.NewDIDFromIdenState(didType, currentState.BigInt())
	if err != nil {
		return nil, fmt.Errorf("can't generate did: %w", err)
	}

	if err := i.mtService.BindToIdentifier(ctx, mts, did); err != nil {
		return nil, fmt.Errorf("can't bind identity trees to %s: %w", did, err)
	}
	key, err = i.kms.LinkToIdentity(ctx, key, *did)
	if err != nil {
		return nil, fmt.Errorf("can't link key to identity: %w", err)
	}

	identity, err := i.identityState(mts, did)
	if err != nil {
		return nil, err
	}
	identity.AuthKeyID = key
	identity.KeyType = string(kms.KeyTypeBabyJubJub)
	identity.CreatedAt = time.Now()
	if err := i.identityRepository.Save(ctx, identity); err != nil {
		return nil, fmt.Errorf("can't save identity: %w", err)
	}
	log.Info(ctx, "identity created", "did", did.String())
	return identity, nil
}

// GetDIDInfo returns the identity behind did with its current state
func (i *IdentityWallet) GetDIDInfo(ctx context.Context, did *w3c.DID) (*domain.Identity, error) {
	identity, err := i.identityRepository.GetByID(ctx, did)
	if err != nil {
		return nil, err
	}
	mts, err := i.mtService.GetIdentityMerkleTrees(ctx, did)
	if err != nil {
		return nil, err
	}
	current, err := i.identityState(mts, did)
	if err != nil {
		return nil, err
	}
	identity.State = current.State
	return identity, nil
}

// List returns every identity of the wallet
func (i *IdentityWallet) List(ctx context.Context) ([]*domain.Identity, error) {
	return i.identityRepository.Get(ctx)
}

// CreateProfile derives the profile of did for nonce
func (i *IdentityWallet) CreateProfile(ctx context.Context, did *w3c.DID, nonce *big.Int, verifier string) (*domain.Profile, error) {
	id, err := core.IDFromDID(*did)
	if err != nil {
		return nil, err
	}
	profileID, err := core.ProfileID(id, nonce)
	if err != nil {
		return nil, fmt.Errorf("can't derive profile: %w", err)
	}
	profileDID, err := core.ParseDIDFromID(profileID)
	if err != nil {
		return nil, err
	}
	profile := &domain.Profile{
		ID:         profileDID.String(),
		Identifier: did.String(),
		Nonce:      nonce.String(),
		Verifier:   verifier,
		CreatedAt:  time.Now(),
	}
	if err := i.identityRepository.SaveProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// SignChallenge signs challenge with the auth key of did
func (i *IdentityWallet) SignChallenge(ctx context.Context, did *w3c.DID, challenge *big.Int) (*babyjub.Signature, error) {
	identity, err := i.identityRepository.GetByID(ctx, did)
	if err != nil {
		return nil, err
	}
	sig, err := i.kms.Sign(ctx, identity.AuthKeyID, kms.BJJDigest(challenge))
	if err != nil {
		return nil, fmt.Errorf("can't sign challenge: %w", err)
	}
	return kms.DecodeBJJSignature(sig)
}

func (i *IdentityWallet) identityState(mts *domain.IdentityMerkleTrees, did *w3c.DID) (*domain.Identity, error) {
	state, err := mts.State()
	if err != nil {
		return nil, err
	}
	claimsTree, err := mts.ClaimsTree()
	if err != nil {
		return nil, err
	}
	revTree, err := mts.RevsTree()
	if err != nil {
		return nil, err
	}
	rootsTree, err := mts.RootsTree()
	if err != nil {
		return nil, err
	}
	return &domain.Identity{
		Identifier: did.String(),
		State:      domain.NewIdentityState(did, state, claimsTree.Root(), revTree.Root(), rootsTree.Root()),
	}, nil
}

func newAuthClaim(key *babyjub.PublicKey) (*core.Claim, error) {
	revNonce, err := common.RandInt64()
	if err != nil {
		return nil, fmt.Errorf("can't create revocation nonce: %w", err)
	}
	return core.NewClaim(core.AuthSchemaHash,
		core.WithIndexDataInts(key.X, key.Y),
		core.WithRevocationNonce(revNonce))
}

func bjjPubKey(keyMS kms.KMSType, keyID kms.KeyID) (*babyjub.PublicKey, error) {
	keyBytes, err := keyMS.PublicKey(keyID)
	if err != nil {
		return nil, fmt.Errorf("can't get bytes from public key: %w", err)
	}
	return kms.DecodeBJJPubKey(keyBytes)
}
