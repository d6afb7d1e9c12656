package l1

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vietddude/batchwatch/internal/core/config"
	"github.com/vietddude/batchwatch/internal/ingest/metrics"
)

// ErrBlockNotFound is returned when the requested block is beyond the chain
// head or otherwise unknown to the node.
var ErrBlockNotFound = errors.New("block not found")

// UnavailableError is returned once bounded retry has been exhausted on a
// transient failure. The caller decides whether to skip or abort.
type UnavailableError struct {
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("rpc unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Client is a thin polling client over the L1 JSON-RPC surface. Every call
// applies bounded retry with exponential backoff on transient errors.
type Client struct {
	eth    *ethclient.Client
	retry  config.RetryConfig
	callTO time.Duration
}

// Dial connects to the L1 RPC endpoint.
func Dial(ctx context.Context, url string, retry config.RetryConfig) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial l1 rpc: %w", err)
	}
	return NewClient(eth, retry), nil
}

// NewClient wraps an existing ethclient connection.
func NewClient(eth *ethclient.Client, retry config.RetryConfig) *Client {
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig
	}
	return &Client{
		eth:    eth,
		retry:  retry,
		callTO: 30 * time.Second,
	}
}

// Close tears down the underlying connection.
func (c *Client) Close() {
	c.eth.Close()
}

// LatestBlock returns the current chain head number.
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	var latest uint64
	err := c.call(ctx, "eth_blockNumber", func(ctx context.Context) error {
		var err error
		latest, err = c.eth.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return latest, nil
}

// BlockByNumber fetches a full block with transactions. Returns
// ErrBlockNotFound when n exceeds the chain head.
func (c *Client) BlockByNumber(ctx context.Context, n uint64) (*types.Block, error) {
	var block *types.Block
	err := c.call(ctx, "eth_getBlockByNumber", func(ctx context.Context) error {
		var err error
		block, err = c.eth.BlockByNumber(ctx, new(big.Int).SetUint64(n))
		return err
	})
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: block %d", ErrBlockNotFound, n)
		}
		return nil, err
	}
	return block, nil
}

// TransactionReceipt fetches the receipt for a mined transaction.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.call(ctx, "eth_getTransactionReceipt", func(ctx context.Context) error {
		var err error
		receipt, err = c.eth.TransactionReceipt(ctx, txHash)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (c *Client) call(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := withRetry(ctx, c.retry, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.callTO)
		defer cancel()
		return fn(callCtx)
	})
	metrics.RPCLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	metrics.RPCCallsTotal.WithLabelValues(method).Inc()
	if err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(method).Inc()
	}
	return err
}
