package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	// ErrPrivateKeyNil when private key is nil
	ErrPrivateKeyNil = errors.New("authorized calls can't be made with empty private key")
	// ErrReceiptStatusFailed when the transaction was mined but reverted
	ErrReceiptStatusFailed = errors.New("receipt status is failed")
	// ErrReceiptNotReceived when the receipt did not show up before the timeout
	ErrReceiptNotReceived = errors.New("receipt not available")
)

// Backend is the part of the ethereum json-rpc api used by Client.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	ethereum.TransactionReader
	ethereum.ChainIDReader
}

// Client wraps a Backend with the timeouts and gas policy of the node
type Client struct {
	client Backend
	Config *ClientConfig
}

// ClientConfig eth client config
type ClientConfig struct {
	ReceiptTimeout         time.Duration `json:"receipt_timeout"`
	ConfirmationTimeout    time.Duration `json:"confirmation_timeout"`
	ConfirmationBlockCount int64         `json:"confirmation_block_count"`
	DefaultGasLimit        int           `json:"default_gas_limit"`
	MinGasPrice            *big.Int      `json:"min_gas_price"`
	MaxGasPrice            *big.Int      `json:"max_gas_price"`
	RPCResponseTimeout     time.Duration `json:"rpc_response_time_out"`
	WaitReceiptCycleTime   time.Duration `json:"wait_receipt_cycle_time_out"`
	WaitBlockCycleTime     time.Duration `json:"wait_block_cycle_time_out"`
}

// NewClient creates a Client instance.
func NewClient(client Backend, c *ClientConfig) *Client {
	return &Client{client: client, Config: c}
}

// Dial connects to the node at url and returns a Client.
func Dial(ctx context.Context, url string, c *ClientConfig) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dialing ethereum node: %w", err)
	}
	return NewClient(ec, c), nil
}

// SendTransaction broadcasts a transaction signed outside the node
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	rpcCtx, cancel := c.rpcContext(ctx)
	defer cancel()
	return c.client.SendTransaction(rpcCtx, tx)
}

// GetEthereumClient returns the underlying backend
func (c *Client) GetEthereumClient() Backend {
	return c.client
}

// Call performs a read only Smart Contract method call.
func (c *Client) Call(fn func(Backend) error) error {
	return fn(c.client)
}

// CurrentBlock returns the number of the latest block
func (c *Client) CurrentBlock(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}
	return header.Number, nil
}

// ChainID returns the chain id of the node
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	return c.client.ChainID(ctx)
}

func (c *Client) rpcContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.Config.RPCResponseTimeout)
}
