package ports

import (
	"context"
	"math/big"

	"github.com/iden3/contracts-abi/state/go/abi"
	core "github.com/iden3/go-iden3-core/v2"
	"github.com/iden3/go-iden3-core/v2/w3c"

	"github.com/polygonid/verifier-node/pkg/blockchain/eth"
)

// StateService is a service for working with state contract
type StateService interface {
	GetLatestStateByDID(ctx context.Context, did *w3c.DID) (abi.IStateStateInfo, error)
	GetGistRootInfo(ctx context.Context, gist *big.Int) (abi.IStateGistRootInfo, error)
	ResolveState(ctx context.Context, id core.ID, state *big.Int) (*eth.ResolvedState, error)
	ResolveGlobalRoot(ctx context.Context, root *big.Int) (*eth.ResolvedState, error)
}
