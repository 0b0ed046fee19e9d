package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/polygonid/verifier-node/internal/log"
)

var errPollTimeout = errors.New("poll timeout")

// WaitForConfirmation waits for the receipt of tx and for ConfirmationBlockCount blocks on top of it.
// It fails when the transaction was reverted.
func (c *Client) WaitForConfirmation(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := c.waitReceipt(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: tx %s", ErrReceiptStatusFailed, tx.Hash().Hex())
	}
	confirmationBlock := new(big.Int).Add(receipt.BlockNumber, big.NewInt(c.Config.ConfirmationBlockCount))
	if err := c.WaitForBlock(ctx, confirmationBlock); err != nil {
		return receipt, err
	}
	log.Debug(ctx, "transaction confirmed", "tx", tx.Hash().Hex(), "block", receipt.BlockNumber)
	return receipt, nil
}

// WaitForBlock waits until the chain reaches block
func (c *Client) WaitForBlock(ctx context.Context, block *big.Int) error {
	err := poll(ctx, c.Config.ConfirmationTimeout, c.Config.WaitBlockCycleTime, func() (bool, error) {
		current, err := c.CurrentBlock(ctx)
		if err != nil {
			log.Error(ctx, "couldn't get the current block number", "err", err)
			return false, err
		}
		return current.Cmp(block) >= 0, nil
	})
	if errors.Is(err, errPollTimeout) {
		return fmt.Errorf("block %s not reached: %w", block, err)
	}
	return err
}

func (c *Client) waitReceipt(ctx context.Context, txID common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	log.Debug(ctx, "waiting for receipt", "tx", txID.Hex())
	err := poll(ctx, c.Config.ReceiptTimeout, c.Config.WaitReceiptCycleTime, func() (bool, error) {
		var err error
		receipt, err = c.client.TransactionReceipt(ctx, txID)
		if err != nil {
			// not mined yet
			log.Debug(ctx, "get transaction receipt", "err", err)
		}
		return receipt != nil, nil
	})
	if errors.Is(err, errPollTimeout) {
		log.Debug(ctx, "pending transaction", "tx", txID.Hex())
		return nil, ErrReceiptNotReceived
	}
	return receipt, err
}

// poll calls done every interval until it reports true, fails, the timeout elapses or ctx is cancelled.
// done is always called at least once.
func poll(ctx context.Context, timeout, interval time.Duration, done func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := done()
		if err != nil || ok {
			return err
		}
		if !time.Now().Before(deadline) {
			return errPollTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
