package revocation_status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethCommon "github.com/ethereum/go-ethereum/common"
	abiOnchain "github.com/iden3/contracts-abi/onchain-credential-status-resolver/go/abi"
	"github.com/iden3/contracts-abi/state/go/abi"
	"github.com/iden3/go-iden3-core/v2/w3c"
	"github.com/iden3/go-schema-processor/v2/verifiable"

	"github.com/polygonid/verifier-node/internal/log"
	client "github.com/polygonid/verifier-node/pkg/http"
)

const resolversLength = 4

var (
	// ErrUnsupportedStatusType is returned for credential status types without a registered resolver
	ErrUnsupportedStatusType = errors.New("unsupported credential status type")
	// ErrIdentityDoesNotExist the issuer has never published a state
	ErrIdentityDoesNotExist = errors.New("identity does not exist")
)

// StateReader reads the latest published state of an issuer
type StateReader interface {
	GetLatestStateByDID(ctx context.Context, did *w3c.DID) (abi.IStateStateInfo, error)
}

// OnChainStatusReader reads a revocation status from an on-chain credential status resolver contract
type OnChainStatusReader interface {
	GetRevocationStatus(ctx context.Context, state *big.Int, nonce uint64, did *w3c.DID, address ethCommon.Address) (abiOnchain.IOnchainCredentialStatusResolverCredentialStatus, error)
}

// Resolver fetches the revocation status one kind of credential status points to
type Resolver interface {
	Resolve(ctx context.Context, issuerDID *w3c.DID, status verifiable.CredentialStatus) (*verifiable.RevocationStatus, error)
}

// ResolverFunc adapts a function to the Resolver interface
type ResolverFunc func(ctx context.Context, issuerDID *w3c.DID, status verifiable.CredentialStatus) (*verifiable.RevocationStatus, error)

// Resolve calls f
func (f ResolverFunc) Resolve(ctx context.Context, issuerDID *w3c.DID, status verifiable.CredentialStatus) (*verifiable.RevocationStatus, error) {
	return f(ctx, issuerDID, status)
}

// RevocationStatusResolver dispatches credential statuses to the resolver registered for their type
type RevocationStatusResolver struct {
	resolvers map[verifiable.CredentialStatusType]Resolver
}

// NewRevocationStatusResolver registers the issuer, agent, reverse hash service and on-chain resolvers.
// A nil onChain reader leaves Iden3OnchainSparseMerkleTreeProof2023 unsupported.
func NewRevocationStatusResolver(httpClient *client.Client, states StateReader, onChain OnChainStatusReader) *RevocationStatusResolver {
	if httpClient == nil {
		httpClient = client.DefaultHTTPClientWithRetry
	}
	issuer := &sparseMerkleTreeProofResolver{client: httpClient}
	rsr := &RevocationStatusResolver{
		resolvers: make(map[verifiable.CredentialStatusType]Resolver, resolversLength),
	}
	rsr.Register(verifiable.SparseMerkleTreeProof, issuer)
	rsr.Register(verifiable.Iden3commRevocationStatusV1, &iden3CommRevocationStatusV1Resolver{client: httpClient})
	rsr.Register(verifiable.Iden3ReverseSparseMerkleTreeProof, &iden3ReverseSparseMerkleTreeProofResolver{
		states:   states,
		fallback: issuer,
	})
	if onChain != nil {
		rsr.Register(verifiable.Iden3OnchainSparseMerkleTreeProof2023, &iden3OnChainSparseMerkleTreeProof2023Resolver{
			states:  states,
			onChain: onChain,
		})
	}
	return rsr
}

// Register sets the resolver for a credential status type, replacing any previous one
func (rsr *RevocationStatusResolver) Register(statusType verifiable.CredentialStatusType, r Resolver) {
	rsr.resolvers[statusType] = r
}

// Supported tells if there is a resolver for the credential status type
func (rsr *RevocationStatusResolver) Supported(statusType verifiable.CredentialStatusType) bool {
	_, ok := rsr.resolvers[statusType]
	return ok
}

// Status returns the revocation status of a credential.
// credStatus may be a verifiable.CredentialStatus, a pointer to one or its json map form.
func (rsr *RevocationStatusResolver) Status(ctx context.Context, issuerDID *w3c.DID, credStatus any) (*verifiable.RevocationStatus, error) {
	status, err := convertCredentialStatus(credStatus)
	if err != nil {
		log.Error(ctx, "failed convert credential status", "err", err)
		return nil, err
	}
	resolver, ok := rsr.resolvers[status.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStatusType, status.Type)
	}
	return resolver.Resolve(ctx, issuerDID, status)
}

// IsRevoked tells if the credential behind credStatus has been revoked.
// The revocation nonce is revoked when the status proof shows it exists in the revocation tree.
func (rsr *RevocationStatusResolver) IsRevoked(ctx context.Context, issuerDID *w3c.DID, credStatus any) (bool, error) {
	rs, err := rsr.Status(ctx, issuerDID, credStatus)
	if err != nil {
		return false, err
	}
	return rs.MTP.Existence, nil
}

func convertCredentialStatus(credStatus any) (verifiable.CredentialStatus, error) {
	switch s := credStatus.(type) {
	case verifiable.CredentialStatus:
		return s, nil
	case *verifiable.CredentialStatus:
		if s == nil {
			return verifiable.CredentialStatus{}, errors.New("credential status is nil")
		}
		return *s, nil
	case map[string]any:
		b, err := json.Marshal(s)
		if err != nil {
			return verifiable.CredentialStatus{}, err
		}
		var status verifiable.CredentialStatus
		if err := json.Unmarshal(b, &status); err != nil {
			return verifiable.CredentialStatus{}, err
		}
		return status, nil
	}
	return verifiable.CredentialStatus{}, errors.New("failed cast credential status to verifiable.CredentialStatus")
}

func isIdentityNotExist(err error) bool {
	return err != nil && (errors.Is(err, ErrIdentityDoesNotExist) ||
		strings.Contains(strings.ToLower(err.Error()), ErrIdentityDoesNotExist.Error()))
}
