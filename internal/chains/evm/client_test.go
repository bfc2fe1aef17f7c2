package evm

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/crowdfund-deploy/internal/chains"
	"github.com/pendergraft/crowdfund-deploy/internal/chains/evm/evmtest"
)

func TestNewClient_ChainID(t *testing.T) {
	chain := evmtest.New(t)
	ctx := context.Background()
	simID := chain.ChainID(t)

	c, err := NewClient(ctx, chain.Client, simID.Int64())
	require.NoError(t, err)
	assert.Equal(t, simID, c.NetworkID())

	_, err = NewClient(ctx, chain.Client, 11155111)
	assert.ErrorIs(t, err, ErrChainIDMismatch)

	_, err = NewClient(ctx, chain.Client, 0)
	assert.NoError(t, err, "zero skips the check")
}

func TestClient_VerifyDeployment(t *testing.T) {
	chain := evmtest.New(t)
	ctx := context.Background()
	c, err := NewClient(ctx, chain.Client, 0)
	require.NoError(t, err)

	addr := chain.DeployStub(t)

	code, err := c.GetDeployedBytecode(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, evmtest.StubRuntime, "0x"+common.Bytes2Hex(code))

	result, err := c.VerifyDeployment(ctx, addr, &chains.Artifact{DeployedBytecode: evmtest.StubRuntime})
	require.NoError(t, err)
	assert.True(t, result.Match)
	assert.Equal(t, "full", result.MatchType)

	result, err = c.VerifyDeployment(ctx, common.HexToAddress("0xdead"), &chains.Artifact{DeployedBytecode: evmtest.StubRuntime})
	require.NoError(t, err)
	assert.False(t, result.Match)
	assert.Contains(t, result.Message, "No code")

	_, err = c.VerifyDeployment(ctx, addr, &chains.Artifact{DeployedBytecode: "not hex"})
	assert.Error(t, err)
}

func TestNewTransactor(t *testing.T) {
	chain := evmtest.New(t)

	opts, err := NewTransactor(chain.KeyHex(), chain.ChainID(t))
	require.NoError(t, err)
	assert.Equal(t, chain.Address, opts.From)

	// Without 0x prefix
	opts, err = NewTransactor(chain.KeyHex()[2:], chain.ChainID(t))
	require.NoError(t, err)
	assert.Equal(t, chain.Address, opts.From)

	_, err = NewTransactor("0x1234", chain.ChainID(t))
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)
}
