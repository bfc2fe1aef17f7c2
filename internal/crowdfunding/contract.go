// Package crowdfunding deploys and seeds the CrowdFunding contract.
package crowdfunding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrReverted is returned when a mined transaction has a failed status
var ErrReverted = errors.New("transaction reverted")

// ABIJSON covers the constructor and the addTier call. It is used when the
// artifact does not carry an ABI.
const ABIJSON = `[
  {"type":"constructor","stateMutability":"nonpayable","inputs":[
    {"name":"_owner","type":"address"},
    {"name":"_name","type":"string"},
    {"name":"_description","type":"string"},
    {"name":"_goal","type":"uint256"},
    {"name":"_durationInDays","type":"uint256"}]},
  {"type":"function","name":"addTier","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"name":"_name","type":"string"},
    {"name":"_amount","type":"uint256"}]}
]`

// Backend is the RPC surface needed to deploy and transact
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// ConstructorArgs are the CrowdFunding constructor parameters
type ConstructorArgs struct {
	Owner        common.Address
	Name         string
	Description  string
	Goal         *big.Int // wei
	DurationDays *big.Int
}

// Values returns the arguments in constructor order
func (a ConstructorArgs) Values() []any {
	return []any{a.Owner, a.Name, a.Description, a.Goal, a.DurationDays}
}

// Pack ABI-encodes the arguments, as appended to the creation code
func (a ConstructorArgs) Pack(parsed abi.ABI) ([]byte, error) {
	return parsed.Pack("", a.Values()...)
}

// Tier is one addTier call
type Tier struct {
	Name   string
	Amount *big.Int // wei
}

// Deployment describes a mined contract creation
type Deployment struct {
	Address     common.Address
	TxHash      common.Hash
	BlockNumber uint64
	Deployer    common.Address
	GasUsed     uint64
}

// Option configures a Contract
type Option func(*Contract)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Contract) {
		c.logger = logger
	}
}

// Contract deploys CrowdFunding and sends transactions to it
type Contract struct {
	abi      abi.ABI
	bytecode []byte
	backend  Backend
	auth     *bind.TransactOpts
	logger   *slog.Logger
}

// New prepares a contract from artifact ABI and creation bytecode (hex).
// An empty ABI falls back to ABIJSON.
func New(abiJSON []byte, bytecode string, backend Backend, auth *bind.TransactOpts, opts ...Option) (*Contract, error) {
	if len(abiJSON) == 0 || string(abiJSON) == "null" {
		abiJSON = []byte(ABIJSON)
	}
	parsed, err := abi.JSON(strings.NewReader(string(abiJSON)))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI: %w", err)
	}
	if _, ok := parsed.Methods["addTier"]; !ok {
		return nil, errors.New("ABI has no addTier method")
	}

	code, err := hexutil.Decode(bytecode)
	if err != nil {
		return nil, fmt.Errorf("decoding bytecode: %w", err)
	}

	c := &Contract{
		abi:      parsed,
		bytecode: code,
		backend:  backend,
		auth:     auth,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ABI returns the parsed contract ABI
func (c *Contract) ABI() abi.ABI {
	return c.abi
}

// Deployer returns the signing account
func (c *Contract) Deployer() common.Address {
	return c.auth.From
}

func (c *Contract) transactOpts(ctx context.Context) *bind.TransactOpts {
	auth := *c.auth
	auth.Context = ctx
	return &auth
}

// Deploy sends the creation transaction and waits for it to be mined.
func (c *Contract) Deploy(ctx context.Context, args ConstructorArgs) (*Deployment, error) {
	address, tx, _, err := bind.DeployContract(c.transactOpts(ctx), c.abi, c.bytecode, c.backend, args.Values()...)
	if err != nil {
		return nil, fmt.Errorf("sending deployment: %w", err)
	}
	c.logger.Info("deployment sent", "tx", tx.Hash().Hex(), "address", address.Hex())

	receipt, err := c.waitMined(ctx, tx)
	if err != nil {
		return nil, err
	}

	c.logger.Info("contract deployed",
		"address", address.Hex(),
		"block", receipt.BlockNumber.Uint64(),
		"gas_used", receipt.GasUsed,
	)
	return &Deployment{
		Address:     address,
		TxHash:      tx.Hash(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		Deployer:    c.auth.From,
		GasUsed:     receipt.GasUsed,
	}, nil
}

// AddTier calls addTier(name, amount) on address and waits for inclusion.
func (c *Contract) AddTier(ctx context.Context, address common.Address, tier Tier) (*types.Receipt, error) {
	bound := bind.NewBoundContract(address, c.abi, c.backend, c.backend, c.backend)
	tx, err := bound.Transact(c.transactOpts(ctx), "addTier", tier.Name, tier.Amount)
	if err != nil {
		return nil, fmt.Errorf("sending addTier(%s): %w", tier.Name, err)
	}

	receipt, err := c.waitMined(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("addTier(%s): %w", tier.Name, err)
	}

	c.logger.Info("tier added",
		"name", tier.Name,
		"amount", FormatEther(tier.Amount),
		"tx", tx.Hash().Hex(),
		"block", receipt.BlockNumber.Uint64(),
	)
	return receipt, nil
}

func (c *Contract) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s in block %d", ErrReverted, tx.Hash().Hex(), receipt.BlockNumber.Uint64())
	}
	return receipt, nil
}
