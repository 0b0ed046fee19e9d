package revocation_status

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/iden3/go-iden3-core/v2/w3c"
	"github.com/iden3/go-merkletree-sql/v2"
	"github.com/iden3/go-schema-processor/v2/verifiable"
	proofHttp "github.com/iden3/merkletree-proof/http"

	"github.com/polygonid/verifier-node/internal/common"
	"github.com/polygonid/verifier-node/internal/log"
)

const (
	defaultRevocationTime = 30 * time.Second
	stateChildrenLength   = 3
)

// iden3ReverseSparseMerkleTreeProofResolver builds the non revocation proof walking the reverse hash service.
// When the service fails and the status names a SparseMerkleTreeProof issuer, the issuer is asked instead.
type iden3ReverseSparseMerkleTreeProofResolver struct {
	states   StateReader
	fallback Resolver
	timeout  time.Duration
}

func (r *iden3ReverseSparseMerkleTreeProofResolver) Resolve(ctx context.Context, issuerDID *w3c.DID, status verifiable.CredentialStatus) (*verifiable.RevocationStatus, error) {
	issuerState, err := r.issuerState(ctx, issuerDID, status)
	if err != nil {
		return nil, err
	}

	hashedRevNonce, err := merkletree.NewHashFromBigInt(new(big.Int).SetUint64(status.RevocationNonce))
	if err != nil {
		return nil, fmt.Errorf("failed calculate mt hash for revocation nonce '%d': %w", status.RevocationNonce, err)
	}
	hashedIssuerState, err := merkletree.NewHashFromBigInt(issuerState)
	if err != nil {
		return nil, fmt.Errorf("failed calculate mt hash for issuer state '%s': %w", issuerState, err)
	}

	rhsURL, _, _ := strings.Cut(status.ID, "/node")
	rs, err := r.nonRevocationProof(ctx, rhsURL, hashedRevNonce, hashedIssuerState)
	if err != nil && status.StatusIssuer != nil && status.StatusIssuer.Type == verifiable.SparseMerkleTreeProof {
		log.Warn(ctx, "failed build revocation status from reverse hash service, asking the issuer", "err", err)
		return r.fallback.Resolve(ctx, issuerDID, *status.StatusIssuer)
	}
	return rs, err
}

// issuerState is the latest published issuer state or, for issuers that never published, the genesis state in status.ID
func (r *iden3ReverseSparseMerkleTreeProofResolver) issuerState(ctx context.Context, issuerDID *w3c.DID, status verifiable.CredentialStatus) (*big.Int, error) {
	if issuerDID == nil {
		return nil, fmt.Errorf("issuer did is required for %s", status.Type)
	}
	var latestErr error
	if r.states != nil {
		latest, err := r.states.GetLatestStateByDID(ctx, issuerDID)
		if err == nil && latest.State != nil && latest.State.Sign() != 0 {
			return latest.State, nil
		}
		if err != nil && !isIdentityNotExist(err) {
			return nil, fmt.Errorf("failed get latest state by did '%s': %w", issuerDID, err)
		}
		latestErr = err
	}

	currentState, err := extractState(status.ID)
	if err != nil {
		log.Error(ctx, "failed extract state from rhs id", "err", err)
		return nil, err
	}
	if currentState == "" {
		if latestErr != nil {
			return nil, latestErr
		}
		return nil, errors.New("issuer state is unknown, it is neither published nor present in credentialStatus.id")
	}
	return genesisState(issuerDID, currentState)
}

func (r *iden3ReverseSparseMerkleTreeProofResolver) nonRevocationProof(ctx context.Context, rhsURL string, data, issuerRoot *merkletree.Hash) (*verifiable.RevocationStatus, error) {
	timeout := r.timeout
	if timeout == 0 {
		timeout = defaultRevocationTime
	}
	rhsCli := proofHttp.ReverseHashCli{
		URL:         rhsURL,
		HTTPTimeout: timeout,
	}

	treeRoots, err := rhsCli.GetNode(ctx, issuerRoot)
	if err != nil {
		return nil, err
	}
	if len(treeRoots.Children) != stateChildrenLength {
		return nil, errors.New("state should has tree children")
	}

	var (
		s    = issuerRoot.Hex()
		ctr  = treeRoots.Children[0].Hex()
		rtr  = treeRoots.Children[1].Hex()
		roTR = treeRoots.Children[2].Hex()
	)

	nonRevProof, err := rhsCli.GenerateProof(ctx, treeRoots.Children[1], data)
	if err != nil {
		return nil, fmt.Errorf("failed generate proof for root '%s' and element '%s': %w", issuerRoot, data, err)
	}

	return &verifiable.RevocationStatus{
		Issuer: verifiable.TreeState{
			State:              &s,
			ClaimsTreeRoot:     &ctr,
			RevocationTreeRoot: &rtr,
			RootOfRoots:        &roTR,
		},
		MTP: *nonRevProof,
	}, nil
}

func extractState(id string) (string, error) {
	rhsURL, err := url.Parse(id)
	if err != nil {
		return "", fmt.Errorf("invalid rhs id filed '%s'", id)
	}
	params, err := url.ParseQuery(rhsURL.RawQuery)
	if err != nil {
		return "", fmt.Errorf("invalid rhs params '%s'", rhsURL.RawQuery)
	}
	return params.Get("state"), nil
}

func genesisState(did *w3c.DID, currentState string) (*big.Int, error) {
	h, err := merkletree.NewHashFromHex(currentState)
	if err != nil {
		return nil, fmt.Errorf("failed parse hex '%s'", currentState)
	}
	if err := common.CheckGenesisStateDID(did, h.BigInt()); err != nil {
		return nil, fmt.Errorf("failed check genesis state for issuer '%s': %w", did, err)
	}
	return h.BigInt(), nil
}
