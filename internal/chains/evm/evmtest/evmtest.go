// Package evmtest runs an in-process chain for tests.
package evmtest

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
)

// StubRuntime is runtime code that accepts any call and returns 1.
const StubRuntime = "0x600160005260206000f3"

// StubInitCode deploys StubRuntime and ignores constructor arguments.
const StubInitCode = "0x600a600c600039600a6000f3600160005260206000f3"

// RevertInitCode deploys runtime code that reverts every call.
const RevertInitCode = "0x6005600c60003960056000f360006000fd"

// Chain is a simulated chain with one funded account. Every transaction is
// mined as soon as it is sent.
type Chain struct {
	Sim     *simulated.Backend
	Client  *AutoMiner
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// New starts a simulated chain and stops it when the test ends.
func New(t testing.TB) *Chain {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	balance := new(big.Int).Mul(big.NewInt(10_000), big.NewInt(params.Ether))
	sim := simulated.NewBackend(types.GenesisAlloc{addr: {Balance: balance}})
	t.Cleanup(func() { _ = sim.Close() })

	return &Chain{
		Sim:     sim,
		Client:  &AutoMiner{Client: sim.Client(), sim: sim},
		Key:     key,
		Address: addr,
	}
}

// KeyHex returns the funded account's private key as hex
func (c *Chain) KeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(c.Key))
}

// ChainID returns the simulated chain ID
func (c *Chain) ChainID(t testing.TB) *big.Int {
	t.Helper()
	id, err := c.Client.ChainID(context.Background())
	if err != nil {
		t.Fatalf("reading chain id: %v", err)
	}
	return id
}

// Transactor returns signing options for the funded account
func (c *Chain) Transactor(t testing.TB) *bind.TransactOpts {
	t.Helper()
	opts, err := bind.NewKeyedTransactorWithChainID(c.Key, c.ChainID(t))
	if err != nil {
		t.Fatalf("creating transactor: %v", err)
	}
	return opts
}

// Mine appends n empty blocks
func (c *Chain) Mine(n int) {
	for range n {
		c.Sim.Commit()
	}
}

// DeployStub deploys StubInitCode and returns its address
func (c *Chain) DeployStub(t testing.TB) common.Address {
	t.Helper()
	return c.DeployCode(t, StubInitCode)
}

// DeployCode sends a creation transaction with initCode and returns the new
// contract address.
func (c *Chain) DeployCode(t testing.TB, initCode string) common.Address {
	t.Helper()
	opts := c.Transactor(t)
	nonce, err := c.Client.PendingNonceAt(context.Background(), c.Address)
	if err != nil {
		t.Fatalf("reading nonce: %v", err)
	}
	tip, err := c.Client.SuggestGasTipCap(context.Background())
	if err != nil {
		t.Fatalf("reading tip: %v", err)
	}
	head, err := c.Client.HeaderByNumber(context.Background(), nil)
	if err != nil {
		t.Fatalf("reading head: %v", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.ChainID(t),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       100_000,
		Data:      hexutil.MustDecode(initCode),
	})
	signed, err := opts.Signer(c.Address, tx)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	if err := c.Client.SendTransaction(context.Background(), signed); err != nil {
		t.Fatalf("sending: %v", err)
	}
	return crypto.CreateAddress(c.Address, nonce)
}

// AutoMiner commits a block after every sent transaction
type AutoMiner struct {
	simulated.Client
	sim *simulated.Backend
}

// SendTransaction sends tx and mines it
func (a *AutoMiner) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := a.Client.SendTransaction(ctx, tx); err != nil {
		return err
	}
	a.sim.Commit()
	return nil
}
