// Package ethtest provides an in-memory ethereum backend for tests.
package ethtest

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is a scripted ethereum node. Every sent transaction is mined in its own block
// and every header request advances the chain by one block.
// Methods that are not overridden panic.
type Backend struct {
	bind.ContractBackend

	mu       sync.Mutex
	chainID  *big.Int
	block    uint64
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt

	// GasPrice is the suggested gas price
	GasPrice *big.Int
	// OnCall answers eth_call requests
	OnCall func(msg ethereum.CallMsg) ([]byte, error)
	// Revert marks a transaction as failed when it returns true
	Revert func(tx *types.Transaction) bool
	// SendErr is returned by SendTransaction when set
	SendErr error
}

// NewBackend returns a Backend for chainID
func NewBackend(chainID int64) *Backend {
	return &Backend{
		chainID:  big.NewInt(chainID),
		receipts: make(map[common.Hash]*types.Receipt),
		GasPrice: big.NewInt(1_000_000_000),
	}
}

// ChainID returns the chain id
func (b *Backend) ChainID(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}

// HeaderByNumber returns the head of the chain and mines an empty block
func (b *Backend) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.block++
	return &types.Header{Number: new(big.Int).SetUint64(b.block)}, nil
}

// SuggestGasPrice returns GasPrice
func (b *Backend) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.GasPrice), nil
}

// PendingNonceAt returns the number of transactions sent so far
func (b *Backend) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint64(len(b.sent)), nil
}

// CodeAt reports that every address holds code
func (b *Backend) CodeAt(_ context.Context, _ common.Address, _ *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

// CallContract delegates to OnCall
func (b *Backend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if b.OnCall == nil {
		return nil, errors.New("no call handler")
	}
	return b.OnCall(msg)
}

// SendTransaction mines tx in a new block
func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if b.SendErr != nil {
		return b.SendErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.block++
	status := types.ReceiptStatusSuccessful
	if b.Revert != nil && b.Revert(tx) {
		status = types.ReceiptStatusFailed
	}
	b.sent = append(b.sent, tx)
	b.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(b.block),
	}
	return nil
}

// TransactionReceipt returns the receipt of a mined transaction
func (b *Backend) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// TransactionByHash returns a sent transaction
func (b *Backend) TransactionByHash(_ context.Context, txHash common.Hash) (*types.Transaction, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tx := range b.sent {
		if tx.Hash() == txHash {
			return tx, false, nil
		}
	}
	return nil, false, ethereum.NotFound
}

// Sent returns the transactions sent so far
func (b *Backend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.sent...)
}
