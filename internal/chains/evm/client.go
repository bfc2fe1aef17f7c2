// Package evm connects to EVM networks and checks deployed code.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/pendergraft/crowdfund-deploy/internal/chains"
)

// ErrChainIDMismatch is returned when the RPC endpoint serves another network
var ErrChainIDMismatch = errors.New("connected chain ID does not match configuration")

// Backend is everything the deploy tool needs from an RPC connection.
// *ethclient.Client and the simulated backend client both satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Client wraps a Backend with the chain ID it was checked against
type Client struct {
	Backend
	chainID *big.Int
}

// Dial connects to rpcURL and checks that it serves expectedChainID.
func Dial(ctx context.Context, rpcURL string, expectedChainID int64) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM RPC: %w", err)
	}
	c, err := NewClient(ctx, ec, expectedChainID)
	if err != nil {
		ec.Close()
		return nil, err
	}
	return c, nil
}

// NewClient wraps an existing backend. expectedChainID <= 0 skips the check.
func NewClient(ctx context.Context, backend Backend, expectedChainID int64) (*Client, error) {
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	if expectedChainID > 0 && chainID.Cmp(big.NewInt(expectedChainID)) != 0 {
		return nil, fmt.Errorf("%w: endpoint reports %s, expected %d", ErrChainIDMismatch, chainID, expectedChainID)
	}
	return &Client{Backend: backend, chainID: chainID}, nil
}

// NetworkID returns the chain ID read when the client was created
func (c *Client) NetworkID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Close releases the underlying connection when it has one
func (c *Client) Close() {
	if closer, ok := c.Backend.(interface{ Close() }); ok {
		closer.Close()
	}
}

// GetDeployedBytecode fetches the runtime code at address from the latest block
func (c *Client) GetDeployedBytecode(ctx context.Context, address common.Address) ([]byte, error) {
	code, err := c.CodeAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_getCode %s: %w", address.Hex(), err)
	}
	return code, nil
}

// VerifyDeployment compares the code at address with the artifact's
// deployed bytecode.
func (c *Client) VerifyDeployment(ctx context.Context, address common.Address, artifact *chains.Artifact) (*chains.VerifyResult, error) {
	want, err := hexutil.Decode(artifact.DeployedBytecode)
	if err != nil {
		return nil, fmt.Errorf("decoding artifact bytecode: %w", err)
	}

	deployed, err := c.GetDeployedBytecode(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get deployed bytecode: %w", err)
	}
	if len(deployed) == 0 {
		return &chains.VerifyResult{
			Match:     false,
			MatchType: "none",
			Message:   fmt.Sprintf("No code at %s", address.Hex()),
		}, nil
	}

	return CompareBytecode(deployed, want, artifact.Immutables), nil
}
