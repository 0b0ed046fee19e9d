package revocation_status

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/iden3/go-iden3-core/v2/w3c"
	"github.com/iden3/go-merkletree-sql/v2"
	"github.com/iden3/go-schema-processor/v2/verifiable"

	"github.com/polygonid/verifier-node/internal/common"
	"github.com/polygonid/verifier-node/internal/log"
)

const contractPartsLength = 2

// iden3OnChainSparseMerkleTreeProof2023Resolver reads the status from the contract named in status.ID
type iden3OnChainSparseMerkleTreeProof2023Resolver struct {
	states  StateReader
	onChain OnChainStatusReader
}

func (r *iden3OnChainSparseMerkleTreeProof2023Resolver) Resolve(ctx context.Context, issuerDID *w3c.DID, status verifiable.CredentialStatus) (*verifiable.RevocationStatus, error) {
	if issuerDID == nil {
		return nil, fmt.Errorf("issuer did is required for %s", status.Type)
	}

	onchainRevStatus, err := newOnchainRevStatusFromURI(status.ID)
	if err != nil {
		return nil, err
	}
	if onchainRevStatus.revNonce != nil && *onchainRevStatus.revNonce != status.RevocationNonce {
		return nil, fmt.Errorf("revocationNonce is not equal to the one in OnChainCredentialStatus ID {%d} {%d}", *onchainRevStatus.revNonce, status.RevocationNonce)
	}

	stateToProof, err := r.stateToProof(ctx, issuerDID, onchainRevStatus.state)
	if err != nil {
		return nil, err
	}

	rs, err := r.onChain.GetRevocationStatus(ctx, stateToProof, status.RevocationNonce, issuerDID, onchainRevStatus.contractAddress)
	if err != nil {
		return nil, fmt.Errorf("failed get revocation status from onchain cred status resolver: %w", err)
	}

	smProof, err := common.SmartContractProofToMtProofAdapter(common.SmartContractProof{
		Root:         rs.Mtp.Root,
		Existence:    rs.Mtp.Existence,
		Siblings:     rs.Mtp.Siblings,
		Index:        rs.Mtp.Index,
		Value:        rs.Mtp.Value,
		AuxExistence: rs.Mtp.AuxExistence,
		AuxIndex:     rs.Mtp.AuxIndex,
		AuxValue:     rs.Mtp.AuxValue,
	})
	if err != nil {
		log.Error(ctx, "failed convert smart contract proof to merkle tree proof", "err", err)
		return nil, err
	}

	treeState := verifiable.TreeState{}
	for _, h := range []struct {
		dst **string
		v   *big.Int
	}{
		{&treeState.State, rs.Issuer.State},
		{&treeState.ClaimsTreeRoot, rs.Issuer.ClaimsTreeRoot},
		{&treeState.RevocationTreeRoot, rs.Issuer.RevocationTreeRoot},
		{&treeState.RootOfRoots, rs.Issuer.RootOfRoots},
	} {
		hash, err := merkletree.NewHashFromBigInt(h.v)
		if err != nil {
			log.Error(ctx, "failed convert issuer tree state to merkle tree hash", "err", err)
			return nil, err
		}
		hex := hash.Hex()
		*h.dst = &hex
	}

	return &verifiable.RevocationStatus{
		Issuer: treeState,
		MTP:    *smProof,
	}, nil
}

// stateToProof is the latest published state or the genesis state carried in the status id
func (r *iden3OnChainSparseMerkleTreeProof2023Resolver) stateToProof(ctx context.Context, issuerDID *w3c.DID, idState *big.Int) (*big.Int, error) {
	latest, err := r.states.GetLatestStateByDID(ctx, issuerDID)
	switch {
	case err == nil && latest.State != nil && latest.State.Sign() != 0:
		return latest.State, nil
	case err == nil || isIdentityNotExist(err):
		if idState == nil {
			return nil, errors.New("latest state not found and state parameter is not present in credentialStatus.id")
		}
		if err := common.CheckGenesisStateDID(issuerDID, idState); err != nil {
			return nil, err
		}
		return idState, nil
	default:
		return nil, fmt.Errorf("failed get latest state by did '%s': %w", issuerDID, err)
	}
}

type onchainRevStatus struct {
	contractAddress ethCommon.Address
	chainID         int64
	revNonce        *uint64
	state           *big.Int
}

// newOnchainRevStatusFromURI parses ids like
// did:...:issuer/credentialStatus?revocationNonce=1&contractAddress=80001:0xABC&state=hex
func newOnchainRevStatusFromURI(id string) (onchainRevStatus, error) {
	var s onchainRevStatus

	uri, err := url.Parse(id)
	if err != nil {
		return s, errors.New("OnChainCredentialStatus ID is not a valid URI")
	}

	contract := uri.Query().Get("contractAddress")
	if contract == "" {
		return s, errors.New("OnChainCredentialStatus contract address is empty")
	}

	contractParts := strings.Split(contract, ":")
	if len(contractParts) != contractPartsLength {
		return s, errors.New("OnChainCredentialStatus contract address is not valid")
	}
	if !ethCommon.IsHexAddress(contractParts[1]) {
		return s, errors.New("OnChainCredentialStatus incorrect contract address")
	}
	s.contractAddress = ethCommon.HexToAddress(contractParts[1])
	s.chainID, err = strconv.ParseInt(contractParts[0], 10, 64)
	if err != nil {
		return s, errors.New("OnChainCredentialStatus chain id is not a number")
	}

	if revocationNonce := uri.Query().Get("revocationNonce"); revocationNonce != "" {
		n, err := strconv.ParseUint(revocationNonce, 10, 64)
		if err != nil {
			return s, errors.New("revocationNonce is not a number in OnChainCredentialStatus ID")
		}
		s.revNonce = &n
	}

	if stateParam := uri.Query().Get("state"); stateParam != "" {
		stateHash, err := merkletree.NewHashFromHex(stateParam)
		if err != nil {
			return s, err
		}
		s.state = stateHash.BigInt()
	}

	return s, nil
}
