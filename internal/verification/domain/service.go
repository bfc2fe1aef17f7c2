package domain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/crowdfund-deploy/internal/chains"
	"github.com/pendergraft/crowdfund-deploy/internal/storage"
	"github.com/pendergraft/crowdfund-deploy/internal/validation"
	"github.com/pendergraft/crowdfund-deploy/internal/verification/etherscan"
)

// Common errors returned by the verification service.
var (
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidChainID   = errors.New("invalid chain ID")
	ErrInvalidArgs      = errors.New("invalid constructor arguments")
	ErrNoArgs           = errors.New("constructor arguments unknown")
	ErrBytecodeMismatch = errors.New("on-chain bytecode does not match the artifact")
)

// DeploymentStore is the part of deployment history the service uses.
type DeploymentStore interface {
	GetDeployment(ctx context.Context, chainID int64, address string) (*storage.Deployment, error)
	UpdateVerificationStatus(ctx context.Context, id, status, guid string) error
}

// CodeChecker compares on-chain code with the compiled artifact.
type CodeChecker interface {
	VerifyDeployment(ctx context.Context, address common.Address, artifact *chains.Artifact) (*chains.VerifyResult, error)
}

// Verifier submits source verification to an explorer.
type Verifier interface {
	Verify(ctx context.Context, req etherscan.Request) (*etherscan.Result, error)
}

// Option configures the service
type Option func(*Service)

// WithHistory reads constructor arguments from, and records outcomes to, store
func WithHistory(store DeploymentStore) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithCodeChecker compares on-chain bytecode before submitting
func WithCodeChecker(c CodeChecker) Option {
	return func(s *Service) {
		s.checker = c
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service verifies already deployed contracts.
type Service struct {
	artifact *chains.Artifact
	input    *chains.VerificationInput
	verifier Verifier
	store    DeploymentStore
	checker  CodeChecker
	logger   *slog.Logger
}

// NewService creates a verification service for one compiled artifact.
func NewService(artifact *chains.Artifact, input *chains.VerificationInput, verifier Verifier, opts ...Option) *Service {
	s := &Service{
		artifact: artifact,
		input:    input,
		verifier: verifier,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify submits the contract at req.Address once and waits for the verdict.
// An explorer that already knows the source counts as success.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if err := validation.ValidateAddress(req.Address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if err := validation.ValidateChainID(req.ChainID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChainID, err)
	}
	address := common.HexToAddress(req.Address)

	record, err := s.lookup(ctx, req.ChainID, req.Address)
	if err != nil {
		return nil, err
	}

	argsHex := req.ConstructorArgs
	if argsHex == "" {
		if record == nil {
			return nil, fmt.Errorf("%w: no recorded deployment of %s on chain %d", ErrNoArgs, req.Address, req.ChainID)
		}
		argsHex = record.ConstructorArgs
	}
	args, err := hex.DecodeString(strings.TrimPrefix(argsHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}

	result := &VerifyResult{}
	if s.checker != nil && s.artifact.DeployedBytecode != "" {
		match, err := s.checker.VerifyDeployment(ctx, address, s.artifact)
		if err != nil {
			return nil, fmt.Errorf("checking on-chain bytecode: %w", err)
		}
		if !match.Match {
			return nil, fmt.Errorf("%w: %s", ErrBytecodeMismatch, match.Message)
		}
		result.MatchType = match.MatchType
	}

	explorerReq, err := etherscan.NewRequest(req.ChainID, address, s.artifact, s.input, args)
	if err != nil {
		return nil, err
	}

	res, verifyErr := s.verifier.Verify(ctx, explorerReq)
	if verifyErr == nil {
		result.Status = string(res.Status)
		result.GUID = res.GUID
		result.Message = res.Message
		result.URL = res.URL
	}

	if record != nil {
		status := result.Status
		if verifyErr != nil {
			status = "failed"
		}
		// the explorer verdict is final even if the caller gave up
		if err := s.store.UpdateVerificationStatus(context.WithoutCancel(ctx), record.ID, status, result.GUID); err != nil {
			s.logger.Warn("recording verification status", "error", err)
		} else {
			result.Recorded = true
		}
	}

	if verifyErr != nil {
		return nil, verifyErr
	}
	return result, nil
}

func (s *Service) lookup(ctx context.Context, chainID int64, address string) (*storage.Deployment, error) {
	if s.store == nil {
		return nil, nil
	}
	d, err := s.store.GetDeployment(ctx, chainID, address)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading deployment history: %w", err)
	}
	return d, nil
}
