// Package confirm waits for transactions to reach a confirmation depth.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Common errors returned by the waiter.
var (
	ErrReceiptNotFound     = errors.New("transaction receipt not found")
	ErrConfirmationTimeout = errors.New("timed out waiting for confirmations")
	ErrDepthOverflow       = errors.New("confirmation depth overflows block height")
)

// DefaultPollInterval is used when no interval is configured.
const DefaultPollInterval = time.Second

// ChainReader is the part of an RPC client the waiter needs.
// *ethclient.Client satisfies it.
type ChainReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Result describes a completed wait.
type Result struct {
	TxHash         common.Hash
	InclusionBlock uint64
	TargetBlock    uint64
	HeadBlock      uint64
	Polls          int
}

// Option configures a Waiter
type Option func(*Waiter)

// WithPollInterval sets the delay between head queries
func WithPollInterval(d time.Duration) Option {
	return func(w *Waiter) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithTimeout bounds the whole wait. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(w *Waiter) {
		w.timeout = d
	}
}

// WithLogger sets the logger used for progress messages
func WithLogger(logger *slog.Logger) Option {
	return func(w *Waiter) {
		w.logger = logger
	}
}

// WithObserver registers a callback invoked after every head query
func WithObserver(fn func(head, target uint64)) Option {
	return func(w *Waiter) {
		w.observe = fn
	}
}

// Waiter polls the chain head until a transaction is deep enough.
type Waiter struct {
	chain    ChainReader
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	observe  func(head, target uint64)
}

// New creates a Waiter reading from chain.
func New(chain ChainReader, opts ...Option) *Waiter {
	w := &Waiter{
		chain:    chain,
		interval: DefaultPollInterval,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Wait blocks until the chain head is at least inclusionBlock+confirmations,
// where inclusionBlock is read from the receipt once when the call starts.
// The head is checked immediately and then once per poll interval.
func (w *Waiter) Wait(ctx context.Context, txHash common.Hash, confirmations uint64) (*Result, error) {
	receipt, err := w.chain.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, txHash.Hex())
		}
		return nil, fmt.Errorf("fetching receipt: %w", err)
	}
	if receipt == nil || receipt.BlockNumber == nil {
		return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, txHash.Hex())
	}

	res := &Result{
		TxHash:         txHash,
		InclusionBlock: receipt.BlockNumber.Uint64(),
	}
	if confirmations > math.MaxUint64-res.InclusionBlock {
		return nil, fmt.Errorf("%w: %d blocks after block %d", ErrDepthOverflow, confirmations, res.InclusionBlock)
	}
	res.TargetBlock = res.InclusionBlock + confirmations

	waitCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	w.logger.Info("waiting for confirmations",
		"tx", txHash.Hex(),
		"inclusion_block", res.InclusionBlock,
		"target_block", res.TargetBlock,
		"confirmations", confirmations,
	)

	for {
		head, err := w.chain.BlockNumber(waitCtx)
		if err != nil {
			if ctxErr := w.waitErr(ctx, waitCtx, res); ctxErr != nil {
				return res, ctxErr
			}
			return res, fmt.Errorf("fetching block number: %w", err)
		}
		res.Polls++
		res.HeadBlock = head

		if w.observe != nil {
			w.observe(head, res.TargetBlock)
		}

		if head >= res.TargetBlock {
			w.logger.Info("transaction confirmed",
				"tx", txHash.Hex(),
				"head_block", head,
				"polls", res.Polls,
			)
			return res, nil
		}

		w.logger.Debug("waiting for blocks",
			"tx", txHash.Hex(),
			"head_block", head,
			"remaining", res.TargetBlock-head,
		)

		select {
		case <-waitCtx.Done():
			return res, w.waitErr(ctx, waitCtx, res)
		case <-time.After(w.interval):
		}
	}
}

// waitErr maps a finished wait context to the error callers see. Expiry of
// the waiter's own deadline becomes ErrConfirmationTimeout; cancellation by
// the caller is returned as is.
func (w *Waiter) waitErr(parent, waitCtx context.Context, res *Result) error {
	if waitCtx.Err() == nil {
		return nil
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	return fmt.Errorf("%w after %s: head %d, need %d", ErrConfirmationTimeout, w.timeout, res.HeadBlock, res.TargetBlock)
}
