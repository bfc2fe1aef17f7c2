// Package pipeline runs a campaign deployment as an ordered list of steps:
// deploy, bytecode check, tier seeding, confirmations and verification.
package pipeline

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pendergraft/crowdfund-deploy/internal/chains"
	"github.com/pendergraft/crowdfund-deploy/internal/confirm"
	"github.com/pendergraft/crowdfund-deploy/internal/crowdfunding"
	"github.com/pendergraft/crowdfund-deploy/internal/observability/metrics"
	"github.com/pendergraft/crowdfund-deploy/internal/storage"
	"github.com/pendergraft/crowdfund-deploy/internal/verification/etherscan"
)

// Step names. Seed steps are named "seed:<position>:<tier name>".
const (
	StepDeploy   = "deploy"
	StepBytecode = "bytecode"
	StepConfirm  = "confirm"
	StepVerify   = "verify"
)

// Deployer sends the contract transactions
type Deployer interface {
	ABI() abi.ABI
	Deploy(ctx context.Context, args crowdfunding.ConstructorArgs) (*crowdfunding.Deployment, error)
	AddTier(ctx context.Context, address common.Address, tier crowdfunding.Tier) (*types.Receipt, error)
}

// CodeChecker compares on-chain code with the compiled artifact
type CodeChecker interface {
	VerifyDeployment(ctx context.Context, address common.Address, artifact *chains.Artifact) (*chains.VerifyResult, error)
}

// Confirmer waits for block confirmations
type Confirmer interface {
	Wait(ctx context.Context, txHash common.Hash, confirmations uint64) (*confirm.Result, error)
}

// Verifier submits source verification
type Verifier interface {
	Verify(ctx context.Context, req etherscan.Request) (*etherscan.Result, error)
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithArtifact sets the compiled artifact and its verification input
func WithArtifact(artifact *chains.Artifact, input *chains.VerificationInput) Option {
	return func(p *Pipeline) {
		p.artifact = artifact
		p.input = input
	}
}

// WithCodeChecker enables the bytecode step
func WithCodeChecker(c CodeChecker) Option {
	return func(p *Pipeline) {
		p.checker = c
	}
}

// WithVerification enables the confirm and verify steps. Without it both are
// skipped and no explorer call is made.
func WithVerification(confirmer Confirmer, verifier Verifier, confirmations uint64) Option {
	return func(p *Pipeline) {
		p.confirmer = confirmer
		p.verifier = verifier
		p.confirmations = confirmations
	}
}

// WithRecorder persists the run to deployment history
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithNetwork labels recorded deployments
func WithNetwork(name string, chainID int64) Option {
	return func(p *Pipeline) {
		p.network = name
		p.chainID = chainID
	}
}

// WithStepObserver is called after every step finishes
func WithStepObserver(fn func(StepResult)) Option {
	return func(p *Pipeline) {
		p.observe = fn
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// Pipeline deploys one campaign
type Pipeline struct {
	deployer      Deployer
	checker       CodeChecker
	confirmer     Confirmer
	verifier      Verifier
	confirmations uint64
	recorder      Recorder
	artifact      *chains.Artifact
	input         *chains.VerificationInput
	network       string
	chainID       int64
	observe       func(StepResult)
	logger        *slog.Logger
}

// New creates a pipeline around deployer
func New(deployer Deployer, opts ...Option) (*Pipeline, error) {
	if deployer == nil {
		return nil, errors.New("pipeline needs a deployer")
	}
	p := &Pipeline{
		deployer: deployer,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.verifier != nil && p.confirmer == nil {
		return nil, errors.New("verification needs a confirmer")
	}
	return p, nil
}

// Run executes every step in order and stops at the first failure. The
// report is returned even on failure and lists each attempted step.
func (p *Pipeline) Run(ctx context.Context, args crowdfunding.ConstructorArgs, tiers []crowdfunding.Tier) (*Report, error) {
	report := &Report{Network: p.network, ChainID: p.chainID}

	packed, err := args.Pack(p.deployer.ABI())
	if err != nil {
		return report, fmt.Errorf("encoding constructor arguments: %w", err)
	}
	report.ConstructorArgs = packed

	run := newRun(p, report)

	// deploy
	err = run.step(StepDeploy, func() (string, error) {
		dep, err := p.deployer.Deploy(ctx, args)
		if err != nil {
			return "", err
		}
		report.Deployment = dep
		metrics.GasUsed(StepDeploy, dep.GasUsed)
		run.recordDeployment(ctx)
		return fmt.Sprintf("%s in block %d", dep.Address.Hex(), dep.BlockNumber), nil
	})
	if err != nil {
		return run.finish(ctx, err)
	}
	address := report.Deployment.Address

	// bytecode
	if p.checker == nil || p.artifact == nil || p.artifact.DeployedBytecode == "" {
		run.skip(StepBytecode, "no deployed bytecode to compare")
	} else {
		err = run.step(StepBytecode, func() (string, error) {
			res, err := p.checker.VerifyDeployment(ctx, address, p.artifact)
			if err != nil {
				return "", err
			}
			if !res.Match {
				// only verification depends on the code matching
				if p.verifier == nil {
					p.logger.Warn("bytecode mismatch", "address", address.Hex(), "message", res.Message)
					return "mismatch ignored without verification: " + res.Message, nil
				}
				return "", fmt.Errorf("bytecode mismatch: %s", res.Message)
			}
			return res.MatchType + " match", nil
		})
		if err != nil {
			return run.finish(ctx, err)
		}
	}

	// seed, one tier at a time in plan order
	for i, tier := range tiers {
		position := i + 1
		name := SeedStepName(position, tier.Name)
		err = run.step(name, func() (string, error) {
			receipt, err := p.deployer.AddTier(ctx, address, tier)
			if err != nil {
				return "", err
			}
			metrics.TierSeeded()
			metrics.GasUsed(name, receipt.GasUsed)
			run.recordTier(ctx, position, tier, receipt)
			return fmt.Sprintf("%s ETH in block %d", crowdfunding.FormatEther(tier.Amount), receipt.BlockNumber.Uint64()), nil
		})
		if err != nil {
			return run.finish(ctx, err)
		}
	}

	if p.verifier == nil {
		run.skip(StepConfirm, "no verification credential")
		run.skip(StepVerify, "no verification credential")
		run.verificationStatus(ctx, "skipped", "")
		return run.finish(ctx, nil)
	}

	// confirm
	err = run.step(StepConfirm, func() (string, error) {
		res, err := p.confirmer.Wait(ctx, report.Deployment.TxHash, p.confirmations)
		if res != nil {
			report.Confirmation = res
			metrics.ConfirmationPolls(res.Polls)
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d confirmations at block %d", p.confirmations, res.HeadBlock), nil
	})
	if err != nil {
		return run.finish(ctx, err)
	}

	// verify
	err = run.step(StepVerify, func() (string, error) {
		if p.artifact == nil {
			return "", errors.New("no artifact to verify")
		}
		req, err := etherscan.NewRequest(p.chainID, address, p.artifact, p.input, packed)
		if err != nil {
			return "", err
		}
		res, err := p.verifier.Verify(ctx, req)
		if err != nil {
			metrics.Verification("failed")
			run.verificationStatus(ctx, "failed", "")
			return "", err
		}
		report.Verification = res
		metrics.Verification(string(res.Status))
		run.verificationStatus(ctx, string(res.Status), res.GUID)
		if res.Status == etherscan.StatusAlreadyVerified {
			return "already verified", nil
		}
		return "verified " + res.URL, nil
	})
	return run.finish(ctx, err)
}

// SeedStepName names the step that adds the tier at position (1-based)
func SeedStepName(position int, tierName string) string {
	return fmt.Sprintf("seed:%d:%s", position, tierName)
}

// run tracks one execution of the pipeline
type run struct {
	p      *Pipeline
	report *Report
}

func newRun(p *Pipeline, report *Report) *run {
	return &run{p: p, report: report}
}

func (r *run) step(name string, fn func() (string, error)) error {
	start := time.Now()
	r.p.logger.Debug("step started", "step", name)

	detail, err := fn()
	res := StepResult{Name: name, Status: StatusOK, Detail: detail, Duration: time.Since(start)}
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
	}
	r.add(res)

	if err != nil {
		return &StepError{Step: name, Err: err}
	}
	return nil
}

func (r *run) skip(name, reason string) {
	r.add(StepResult{Name: name, Status: StatusSkipped, Detail: reason})
}

func (r *run) add(res StepResult) {
	r.report.Steps = append(r.report.Steps, res)
	metrics.StepCompleted(res.Name, string(res.Status), res.Duration)

	switch res.Status {
	case StatusFailed:
		r.p.logger.Error("step failed", "step", res.Name, "error", res.Err)
	case StatusSkipped:
		r.p.logger.Info("step skipped", "step", res.Name, "reason", res.Detail)
	default:
		r.p.logger.Info("step complete", "step", res.Name, "detail", res.Detail, "duration", res.Duration)
	}
	if r.p.observe != nil {
		r.p.observe(res)
	}
}

func (r *run) finish(ctx context.Context, err error) (*Report, error) {
	if r.report.RecordID != "" {
		status, failedStep, msg := storage.StatusComplete, "", ""
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			status, failedStep, msg = storage.StatusFailed, stepErr.Step, stepErr.Err.Error()
		}
		// history must not outlive a cancelled run's context
		if uerr := r.p.recorder.UpdateStatus(context.WithoutCancel(ctx), r.report.RecordID, status, failedStep, msg); uerr != nil {
			r.p.logger.Warn("updating deployment history", "error", uerr)
		}
	}
	return r.report, err
}

func (r *run) recordDeployment(ctx context.Context) {
	if r.p.recorder == nil {
		return
	}
	dep := r.report.Deployment
	contractName := "CrowdFunding"
	if r.p.artifact != nil && r.p.artifact.Name != "" {
		contractName = r.p.artifact.Name
	}
	id, err := r.p.recorder.RecordDeployment(ctx, DeploymentRecord{
		ContractName:    contractName,
		Network:         r.p.network,
		ChainID:         r.p.chainID,
		Address:         dep.Address.Hex(),
		DeployerAddress: dep.Deployer.Hex(),
		TxHash:          dep.TxHash.Hex(),
		BlockNumber:     dep.BlockNumber,
		ConstructorArgs: hex.EncodeToString(r.report.ConstructorArgs),
	})
	if err != nil {
		r.p.logger.Warn("recording deployment history", "error", err)
		return
	}
	r.report.RecordID = id
}

func (r *run) recordTier(ctx context.Context, position int, tier crowdfunding.Tier, receipt *types.Receipt) {
	if r.report.RecordID == "" {
		return
	}
	err := r.p.recorder.RecordTier(ctx, r.report.RecordID, TierRecord{
		Position:    position,
		Name:        tier.Name,
		AmountWei:   tier.Amount.String(),
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
	})
	if err != nil {
		r.p.logger.Warn("recording tier history", "tier", tier.Name, "error", err)
	}
}

func (r *run) verificationStatus(ctx context.Context, status, guid string) {
	if r.report.RecordID == "" {
		return
	}
	if err := r.p.recorder.UpdateVerificationStatus(context.WithoutCancel(ctx), r.report.RecordID, status, guid); err != nil {
		r.p.logger.Warn("recording verification status", "error", err)
	}
}
