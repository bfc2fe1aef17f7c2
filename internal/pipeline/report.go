package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/pendergraft/crowdfund-deploy/internal/confirm"
	"github.com/pendergraft/crowdfund-deploy/internal/crowdfunding"
	"github.com/pendergraft/crowdfund-deploy/internal/verification/etherscan"
)

// Status is the outcome of a step
type Status string

// Step outcomes
const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// StepResult describes one finished step
type StepResult struct {
	Name     string
	Status   Status
	Detail   string
	Err      error
	Duration time.Duration
}

// StepError is returned by Run when a step fails
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Report is everything a run produced, including partial progress
type Report struct {
	Network         string
	ChainID         int64
	ConstructorArgs []byte
	Deployment      *crowdfunding.Deployment
	Confirmation    *confirm.Result
	Verification    *etherscan.Result
	Steps           []StepResult
	RecordID        string // deployment history id, empty when not recorded
}

// Failed returns the failed step, or nil
func (r *Report) Failed() *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Status == StatusFailed {
			return &r.Steps[i]
		}
	}
	return nil
}

// Step returns the result for name, or nil when the step never ran
func (r *Report) Step(name string) *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}

// Summary is a one-line description of the run, e.g.
// "deployed at 0x5FbD... but seed tier 3 (Gold) failed: execution reverted".
func (r *Report) Summary() string {
	failed := r.Failed()
	if r.Deployment == nil {
		if failed != nil {
			return fmt.Sprintf("deployment failed: %v", failed.Err)
		}
		return "nothing deployed"
	}

	at := "deployed at " + r.Deployment.Address.Hex()
	if failed == nil {
		return at
	}
	return fmt.Sprintf("%s but %s failed: %v", at, describeStep(failed.Name), failed.Err)
}

func describeStep(name string) string {
	if rest, ok := strings.CutPrefix(name, "seed:"); ok {
		pos, tier, _ := strings.Cut(rest, ":")
		return fmt.Sprintf("seed tier %s (%s)", pos, tier)
	}
	switch name {
	case StepBytecode:
		return "bytecode check"
	case StepConfirm:
		return "confirmation wait"
	case StepVerify:
		return "verification"
	}
	return name
}
