package eth

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/polygonid/verifier-node/internal/log"
)

const (
	// suggested prices are raised by 1/gasPriceBump
	gasPriceBump = 10
	// underpriced transactions are resent with the price multiplied by underpricedFactor
	underpricedFactor = 30
)

// CallAuth signs with privateKey the transaction built by fn and sends it.
// A zero gasLimit uses the configured default. An underpriced transaction is resent once with a higher price,
// still within the configured bounds.
func (c *Client) CallAuth(ctx context.Context, gasLimit uint64, privateKey *ecdsa.PrivateKey, fn func(Backend, *bind.TransactOpts) (*types.Transaction, error)) (*types.Transaction, error) {
	if privateKey == nil {
		return nil, ErrPrivateKeyNil
	}

	price, err := c.gasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gasPrice: %w", err)
	}
	cid, err := c.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chainID: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(privateKey, cid)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction signer: %w", err)
	}
	opts.Context = ctx
	opts.Value = big.NewInt(0)
	opts.GasPrice = price
	opts.GasLimit = gasLimit
	if opts.GasLimit == 0 {
		opts.GasLimit = uint64(c.Config.DefaultGasLimit)
	}

	tx, err := fn(c.client, opts)
	if err != nil && strings.Contains(err.Error(), "transaction underpriced") {
		opts.GasPrice = clamp(new(big.Int).Mul(price, big.NewInt(underpricedFactor)), c.Config.MinGasPrice, c.Config.MaxGasPrice)
		log.Debug(ctx, "resending underpriced transaction", "oldGasPrice", price, "newGasPrice", opts.GasPrice)
		tx, err = fn(c.client, opts)
	}
	if err != nil {
		return nil, err
	}
	log.Debug(ctx, "transaction sent", "tx", tx.Hash().Hex(), "nonce", tx.Nonce(), "gasPrice", opts.GasPrice)
	return tx, nil
}

// gasPrice returns the price suggested by the node bumped by 10% and kept within the configured bounds.
// When both bounds are equal and positive that price is used without asking the node.
func (c *Client) gasPrice(ctx context.Context) (*big.Int, error) {
	lo, hi := c.Config.MinGasPrice, c.Config.MaxGasPrice
	if positive(lo) && hi != nil && lo.Cmp(hi) == 0 {
		return new(big.Int).Set(hi), nil
	}

	rpcCtx, cancel := c.rpcContext(ctx)
	defer cancel()
	suggested, err := c.client.SuggestGasPrice(rpcCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to get suggested gas price: %w", err)
	}
	bumped := new(big.Int).Add(suggested, new(big.Int).Div(suggested, big.NewInt(gasPriceBump)))
	price := clamp(bumped, lo, hi)
	if price.Cmp(bumped) != 0 {
		log.Debug(ctx, "gas price out of bounds", "suggested", bumped, "corrected", price)
	}
	return price, nil
}

// clamp keeps v within [lo, hi]. Bounds that are nil or not positive are ignored.
func clamp(v, lo, hi *big.Int) *big.Int {
	switch {
	case positive(lo) && v.Cmp(lo) < 0:
		return new(big.Int).Set(lo)
	case positive(hi) && v.Cmp(hi) > 0:
		return new(big.Int).Set(hi)
	default:
		return v
	}
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
