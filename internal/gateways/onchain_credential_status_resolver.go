package gateways

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/iden3/contracts-abi/onchain-credential-status-resolver/go/abi"
	core "github.com/iden3/go-iden3-core/v2"
	"github.com/iden3/go-iden3-core/v2/w3c"

	"github.com/polygonid/verifier-node/internal/log"
)

// OnChainCredStatusResolverService reads credential statuses from OnchainCredentialStatusResolver contracts
type OnChainCredStatusResolverService struct {
	backend         bind.ContractCaller
	responseTimeout time.Duration
}

// NewOnChainCredStatusResolverService - create new instance of OnChainCredStatusResolverService.
// A zero rpcTimeout leaves calls bounded only by their context.
func NewOnChainCredStatusResolverService(backend bind.ContractCaller, rpcTimeout time.Duration) *OnChainCredStatusResolverService {
	return &OnChainCredStatusResolverService{
		backend:         backend,
		responseTimeout: rpcTimeout,
	}
}

// GetRevocationStatus returns the status of nonce for did at state, as stored by the resolver contract at address
func (s *OnChainCredStatusResolverService) GetRevocationStatus(ctx context.Context, state *big.Int, nonce uint64, did *w3c.DID, address ethCommon.Address) (abi.IOnchainCredentialStatusResolverCredentialStatus, error) {
	id, err := core.IDFromDID(*did)
	if err != nil {
		log.Error(ctx, "cannot get id from DID", "err", err)
		return abi.IOnchainCredentialStatusResolverCredentialStatus{}, err
	}
	resolver, err := abi.NewOnchainCredentialStatusResolverCaller(address, s.backend)
	if err != nil {
		log.Error(ctx, "cannot get resolver", "err", err)
		return abi.IOnchainCredentialStatusResolverCredentialStatus{}, err
	}

	if s.responseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.responseTimeout)
		defer cancel()
	}
	revocationStatus, err := resolver.GetRevocationStatusByIdAndState(&bind.CallOpts{Context: ctx}, id.BigInt(), state, nonce)
	if err != nil {
		log.Error(ctx, "cannot get revocation status", "err", err, "contract", address.Hex())
		return revocationStatus, err
	}
	return revocationStatus, nil
}
