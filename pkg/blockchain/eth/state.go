package eth

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/iden3/contracts-abi/state/go/abi"
	core "github.com/iden3/go-iden3-core/v2"
	"github.com/iden3/go-iden3-core/v2/w3c"

	"github.com/polygonid/verifier-node/internal/log"
)

var (
	zero = big.NewInt(0)

	// ErrStateNotRegistered the state is neither genesis nor published on chain
	ErrStateNotRegistered = errors.New("state is not genesis and not registered in the smart contract")
	// ErrGistNotRegistered the gist root is not published on chain
	ErrGistNotRegistered = errors.New("gist state not registered in the smart contract")
)

// ResolvedState is the result of resolving an identity state or a gist root against the state contract
type ResolvedState struct {
	State               string `json:"state"`
	Latest              bool   `json:"latest"`
	Genesis             bool   `json:"genesis"`
	TransitionTimestamp int64  `json:"transition_timestamp"`
}

// StateService is a service for working with state contract
type StateService struct {
	contract *abi.State
}

// NewStateService creates new instance of StateService bound to the state contract at address
func NewStateService(client *Client, address ethCommon.Address) (*StateService, error) {
	contract, err := abi.NewState(address, client.GetEthereumClient())
	if err != nil {
		return nil, err
	}
	return &StateService{contract: contract}, nil
}

// GetLatestStateByID returns latest state info for the identity
func (ss *StateService) GetLatestStateByID(ctx context.Context, id core.ID) (abi.IStateStateInfo, error) {
	latestState, err := ss.contract.GetStateInfoById(&bind.CallOpts{Context: ctx}, id.BigInt())
	if err != nil {
		return abi.IStateStateInfo{}, err
	}
	return latestState, nil
}

// GetLatestStateByDID returns latest state info for DID
func (ss *StateService) GetLatestStateByDID(ctx context.Context, did *w3c.DID) (abi.IStateStateInfo, error) {
	id, err := core.IDFromDID(*did)
	if err != nil {
		return abi.IStateStateInfo{}, err
	}
	return ss.GetLatestStateByID(ctx, id)
}

// GetGistRootInfo returns global state info
func (ss *StateService) GetGistRootInfo(ctx context.Context, gist *big.Int) (abi.IStateGistRootInfo, error) {
	globalStateInfo, err := ss.contract.GetGISTRootInfo(&bind.CallOpts{Context: ctx}, gist)
	if err != nil {
		log.Error(ctx, "failed to get gist root info", "err", err)
		return abi.IStateGistRootInfo{}, err
	}
	return globalStateInfo, nil
}

// ResolveState checks that state is the genesis state of id or a state that has been published on chain
func (ss *StateService) ResolveState(ctx context.Context, id core.ID, state *big.Int) (*ResolvedState, error) {
	isGenesis, err := core.CheckGenesisStateID(id.BigInt(), state)
	if err != nil {
		return nil, err
	}

	stateInfo, err := ss.GetLatestStateByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if stateInfo.State == nil || stateInfo.State.Cmp(zero) == 0 {
		if !isGenesis {
			return nil, ErrStateNotRegistered
		}
		return &ResolvedState{Latest: true, Genesis: isGenesis, State: state.String()}, nil
	}
	if stateInfo.Id.Cmp(id.BigInt()) != 0 {
		return nil, errors.New("transition info contains invalid id")
	}

	if stateInfo.State.Cmp(state) != 0 {
		if stateInfo.ReplacedAtTimestamp.Cmp(zero) == 0 {
			return nil, errors.New("no information of transition for non-latest state")
		}
		return &ResolvedState{
			Genesis:             isGenesis,
			State:               state.String(),
			TransitionTimestamp: stateInfo.ReplacedAtTimestamp.Int64(),
		}, nil
	}

	return &ResolvedState{Latest: true, Genesis: isGenesis, State: state.String()}, nil
}

// ResolveGlobalRoot checks that root has been published on chain
func (ss *StateService) ResolveGlobalRoot(ctx context.Context, root *big.Int) (*ResolvedState, error) {
	info, err := ss.GetGistRootInfo(ctx, root)
	if err != nil {
		return nil, err
	}
	if info.CreatedAtTimestamp == nil || info.CreatedAtTimestamp.Cmp(zero) == 0 {
		return nil, ErrGistNotRegistered
	}
	if info.Root.Cmp(root) != 0 {
		return nil, errors.New("gist info contains invalid state")
	}
	if info.ReplacedByRoot.Cmp(zero) != 0 {
		return &ResolvedState{State: root.String(), TransitionTimestamp: info.ReplacedAtTimestamp.Int64()}, nil
	}
	return &ResolvedState{State: root.String(), Latest: true}, nil
}
