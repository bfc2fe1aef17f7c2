// Package hardhat reads Hardhat compilation artifacts.
package hardhat

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pendergraft/crowdfund-deploy/internal/chains"
)

// configFiles are the names hardhat looks for, in its own lookup order
var configFiles = []string{"hardhat.config.js", "hardhat.config.ts", "hardhat.config.cjs", "hardhat.config.mjs"}

// Builder implements chains.Builder for Hardhat projects
type Builder struct{}

// New creates a new Hardhat builder
func New() *Builder {
	return &Builder{}
}

// Name returns the builder identifier
func (b *Builder) Name() string {
	return "hardhat"
}

// DisplayName returns a human-readable name
func (b *Builder) DisplayName() string {
	return "Hardhat"
}

// ConfigFile returns the config file name
func (b *Builder) ConfigFile() string {
	return configFiles[0]
}

// Detect checks for any hardhat.config.* variant
func (b *Builder) Detect(dir string) (bool, error) {
	for _, name := range configFiles {
		_, err := os.Stat(filepath.Join(dir, name))
		if err == nil {
			return true, nil
		}
		if !os.IsNotExist(err) {
			return false, err
		}
	}
	return false, nil
}

// Find locates artifacts/contracts/**/{contractName}.json. Artifacts under
// artifacts/@... (npm dependencies) are ignored.
func (b *Builder) Find(dir, contractName string) (string, error) {
	root := filepath.Join(dir, "artifacts", "contracts")
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return "", fmt.Errorf("artifacts directory not found - run 'npx hardhat compile' first")
	}

	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != contractName+".json" {
			return nil
		}
		found = path
		return filepath.SkipAll
	})
	if err != nil {
		return "", fmt.Errorf("scanning %s: %w", root, err)
	}
	if found == "" {
		return "", fmt.Errorf("%w: %s in %s", chains.ErrArtifactNotFound, contractName, root)
	}
	return found, nil
}

// Parse parses a hh-sol-artifact-1 file. Compiler settings come from the
// build-info the sibling .dbg.json points at, when it is present.
func (b *Builder) Parse(artifactPath string) (*chains.Artifact, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	var raw Artifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON: %w", err)
	}
	if raw.Bytecode == "" || raw.Bytecode == "0x" {
		return nil, fmt.Errorf("contract has no bytecode (likely an interface)")
	}

	name := raw.ContractName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(artifactPath), ".json")
	}

	artifact := &chains.Artifact{
		Name:             name,
		SourcePath:       raw.SourceName,
		ABI:              raw.ABI,
		Bytecode:         raw.Bytecode,
		DeployedBytecode: raw.DeployedBytecode,
	}

	if bi, err := linkedBuildInfo(artifactPath); err == nil {
		artifact.Compiler = compilerFromInput(bi)
		artifact.Immutables = immutablesFromOutput(bi, raw.SourceName, name)
	}
	return artifact, nil
}

// linkedBuildInfo follows {Name}.dbg.json to the build-info file
func linkedBuildInfo(artifactPath string) (*chains.BuildInfo, error) {
	dbgPath := strings.TrimSuffix(artifactPath, ".json") + ".dbg.json"
	data, err := os.ReadFile(dbgPath)
	if err != nil {
		return nil, err
	}
	var dbg struct {
		BuildInfo string `json:"buildInfo"`
	}
	if err := json.Unmarshal(data, &dbg); err != nil {
		return nil, err
	}
	if dbg.BuildInfo == "" {
		return nil, fmt.Errorf("%s has no buildInfo", filepath.Base(dbgPath))
	}
	return chains.ReadBuildInfo(filepath.Join(filepath.Dir(dbgPath), dbg.BuildInfo))
}

func compilerFromInput(bi *chains.BuildInfo) chains.Compiler {
	c := chains.Compiler{Version: bi.SolcLongVersion}
	if c.Version == "" {
		c.Version = bi.SolcVersion
	}

	var input struct {
		Settings struct {
			Optimizer struct {
				Enabled bool `json:"enabled"`
				Runs    int  `json:"runs"`
			} `json:"optimizer"`
			EVMVersion string `json:"evmVersion"`
			ViaIR      bool   `json:"viaIR"`
		} `json:"settings"`
	}
	if err := json.Unmarshal(bi.Input, &input); err != nil {
		return c
	}
	c.Optimizer = chains.OptimizerConfig{
		Enabled: input.Settings.Optimizer.Enabled,
		Runs:    input.Settings.Optimizer.Runs,
	}
	c.EVMVersion = input.Settings.EVMVersion
	c.ViaIR = input.Settings.ViaIR
	return c
}

// immutablesFromOutput reads evm.deployedBytecode.immutableReferences, which
// hardhat leaves out of the artifact itself.
func immutablesFromOutput(bi *chains.BuildInfo, sourceName, contractName string) []chains.CodeRange {
	var output struct {
		Contracts map[string]map[string]struct {
			EVM struct {
				DeployedBytecode struct {
					ImmutableReferences map[string][]chains.CodeRange `json:"immutableReferences"`
				} `json:"deployedBytecode"`
			} `json:"evm"`
		} `json:"contracts"`
	}
	if err := json.Unmarshal(bi.Output, &output); err != nil {
		return nil
	}
	contract, ok := output.Contracts[sourceName][contractName]
	if !ok {
		return nil
	}
	return chains.FlattenImmutables(contract.EVM.DeployedBytecode.ImmutableReferences)
}

// GetVerificationInput reads artifacts/build-info. Hardhat stores the solc
// input verbatim so no cleanup is needed.
func (b *Builder) GetVerificationInput(dir, contractName, sourcePath string) (*chains.VerificationInput, error) {
	return chains.FindVerificationInput(
		filepath.Join(dir, "artifacts", "build-info"),
		contractName,
		sourcePath,
		nil,
	)
}

// Artifact is the hh-sol-artifact-1 layout
type Artifact struct {
	Format           string          `json:"_format"`
	ContractName     string          `json:"contractName"`
	SourceName       string          `json:"sourceName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`
}
