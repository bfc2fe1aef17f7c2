// Package chains defines the build tool and artifact types shared by the
// EVM builders.
package chains

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrNoBuilder        = errors.New("no supported build tool detected")
	ErrArtifactNotFound = errors.New("contract artifact not found")
	ErrBuildInfoMissing = errors.New("build-info not found")
)

// Builder parses artifacts from a specific build tool
type Builder interface {
	Name() string        // "foundry", "hardhat"
	DisplayName() string // "Foundry", "Hardhat"

	// Detection
	Detect(dir string) (bool, error)
	ConfigFile() string

	// Artifact handling
	Find(dir, contractName string) (string, error)
	Parse(artifactPath string) (*Artifact, error)
	GetVerificationInput(dir, contractName, sourcePath string) (*VerificationInput, error)
}

// DetectBuilder returns the first builder that recognises dir.
func DetectBuilder(dir string, builders ...Builder) (Builder, error) {
	for _, b := range builders {
		detected, err := b.Detect(dir)
		if err != nil {
			continue
		}
		if detected {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w in %s", ErrNoBuilder, dir)
}

// Artifact is a compiled contract ready for deployment
type Artifact struct {
	Name             string          `json:"name"`
	SourcePath       string          `json:"sourcePath"`
	License          string          `json:"license,omitempty"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`
	Compiler         Compiler        `json:"compiler"`

	// Immutables are filled in at construction time, so these ranges of the
	// runtime code differ from DeployedBytecode on chain.
	Immutables []CodeRange `json:"immutables,omitempty"`
}

// CodeRange is a byte range within runtime code
type CodeRange struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// FlattenImmutables turns solc's immutableReferences (AST id -> ranges) into
// a single list.
func FlattenImmutables(refs map[string][]CodeRange) []CodeRange {
	var out []CodeRange
	for _, ranges := range refs {
		out = append(out, ranges...)
	}
	return out
}

// Compiler contains solc details. Version may be short ("0.8.19") when the
// artifact does not carry the commit suffix; build-info has the long form.
type Compiler struct {
	Version    string          `json:"version"`
	Optimizer  OptimizerConfig `json:"optimizer"`
	EVMVersion string          `json:"evmVersion,omitempty"`
	ViaIR      bool            `json:"viaIR,omitempty"`
}

// DefaultCompiler is assumed for artifacts that carry no compiler settings,
// matching the project's hardhat.config (solc 0.8.19, 200 optimizer runs).
func DefaultCompiler() Compiler {
	return Compiler{
		Version:   "0.8.19",
		Optimizer: OptimizerConfig{Enabled: true, Runs: 200},
	}
}

// OptimizerConfig contains optimizer settings
type OptimizerConfig struct {
	Enabled bool `json:"enabled"`
	Runs    int  `json:"runs"`
}

// VerificationInput is what an explorer needs to rebuild a contract.
type VerificationInput struct {
	StandardJSON    []byte // solc standard JSON input
	SolcLongVersion string // "0.8.19+commit.7dd6d404"
}

// VerifyResult contains bytecode comparison results
type VerifyResult struct {
	Match     bool   // Whether the bytecode matches
	MatchType string // "full", "partial", "none"
	Message   string // Human-readable explanation
}
