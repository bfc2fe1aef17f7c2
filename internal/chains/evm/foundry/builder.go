// Package foundry reads Foundry (forge) build output.
package foundry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pendergraft/crowdfund-deploy/internal/chains"
)

// Builder implements chains.Builder for Foundry projects
type Builder struct{}

// New creates a new Foundry builder
func New() *Builder {
	return &Builder{}
}

// Name returns the builder identifier
func (b *Builder) Name() string {
	return "foundry"
}

// DisplayName returns a human-readable name
func (b *Builder) DisplayName() string {
	return "Foundry"
}

// ConfigFile returns the config file name
func (b *Builder) ConfigFile() string {
	return "foundry.toml"
}

// Detect checks if a directory is a Foundry project
func (b *Builder) Detect(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, b.ConfigFile()))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Find locates out/{Source}.sol/{contractName}.json. When several sources
// define the same contract name, the one compiled from src/ wins.
func (b *Builder) Find(dir, contractName string) (string, error) {
	outDir := filepath.Join(dir, "out")
	if _, err := os.Stat(outDir); os.IsNotExist(err) {
		return "", fmt.Errorf("out directory not found - run 'forge build' first")
	}

	var candidates []string
	err := filepath.WalkDir(outDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != contractName+".json" || !strings.HasSuffix(filepath.Dir(path), ".sol") {
			return nil
		}
		candidates = append(candidates, path)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scanning %s: %w", outDir, err)
	}

	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("%w: %s in %s", chains.ErrArtifactNotFound, contractName, outDir)
	case 1:
		return candidates[0], nil
	}
	for _, path := range candidates {
		if src, err := sourcePath(path); err == nil && strings.HasPrefix(src, "src/") {
			return path, nil
		}
	}
	return candidates[0], nil
}

// sourcePath reads an artifact and returns its compilation target
func sourcePath(artifactPath string) (string, error) {
	raw, err := readArtifact(artifactPath)
	if err != nil {
		return "", err
	}
	if raw.RawMetadata == "" {
		return "", errors.New("no metadata")
	}
	var metadata Metadata
	if err := json.Unmarshal([]byte(raw.RawMetadata), &metadata); err != nil {
		return "", err
	}
	return getFirstKey(metadata.Settings.CompilationTarget), nil
}

func readArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	var raw Artifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON: %w", err)
	}
	return &raw, nil
}

// Parse parses a Foundry artifact file
func (b *Builder) Parse(artifactPath string) (*chains.Artifact, error) {
	raw, err := readArtifact(artifactPath)
	if err != nil {
		return nil, err
	}

	// Interfaces and abstract contracts have no creation code
	if raw.Bytecode.Object == "" || raw.Bytecode.Object == "0x" {
		return nil, fmt.Errorf("contract has no bytecode (likely an interface)")
	}

	var metadata Metadata
	if raw.RawMetadata != "" {
		_ = json.Unmarshal([]byte(raw.RawMetadata), &metadata) // Non-fatal, continue without metadata
	}

	return &chains.Artifact{
		Name:             strings.TrimSuffix(filepath.Base(artifactPath), ".json"),
		SourcePath:       getFirstKey(metadata.Settings.CompilationTarget),
		License:          metadata.Sources.FirstLicense(),
		ABI:              raw.ABI,
		Bytecode:         raw.Bytecode.Object,
		DeployedBytecode: raw.DeployedBytecode.Object,
		Immutables:       chains.FlattenImmutables(raw.DeployedBytecode.ImmutableReferences),
		Compiler: chains.Compiler{
			Version:    metadata.Compiler.Version,
			EVMVersion: metadata.Settings.EVMVersion,
			ViaIR:      metadata.Settings.ViaIR,
			Optimizer: chains.OptimizerConfig{
				Enabled: metadata.Settings.Optimizer.Enabled,
				Runs:    metadata.Settings.Optimizer.Runs,
			},
		},
	}, nil
}

// GetVerificationInput extracts Standard JSON Input and full solc version from out/build-info.
func (b *Builder) GetVerificationInput(dir, contractName, sourcePath string) (*chains.VerificationInput, error) {
	return chains.FindVerificationInput(
		filepath.Join(dir, "out", "build-info"),
		contractName,
		sourcePath,
		stripStandardJSONKeys,
	)
}

// standardJSONKeysToStrip are top-level keys forge adds that solc rejects.
// Standard JSON input only allows language, sources and settings.
var standardJSONKeysToStrip = []string{"allowPaths", "basePath", "includePaths", "version"}

func stripStandardJSONKeys(input json.RawMessage) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(input, &m); err != nil {
		return nil, err
	}
	for _, key := range standardJSONKeysToStrip {
		delete(m, key)
	}
	return json.Marshal(m)
}

// Artifact is the layout of out/{Source}.sol/{Contract}.json
type Artifact struct {
	ABI              json.RawMessage `json:"abi"`
	Bytecode         BytecodeObject  `json:"bytecode"`
	DeployedBytecode BytecodeObject  `json:"deployedBytecode"`
	RawMetadata      string          `json:"rawMetadata"`
}

// BytecodeObject represents bytecode in a Foundry artifact
type BytecodeObject struct {
	Object              string                        `json:"object"`
	SourceMap           string                        `json:"sourceMap"`
	ImmutableReferences map[string][]chains.CodeRange `json:"immutableReferences,omitempty"`
}

// Metadata represents the parsed rawMetadata field
type Metadata struct {
	Compiler struct {
		Version string `json:"version"`
	} `json:"compiler"`
	Language string       `json:"language"`
	Settings SettingsMeta `json:"settings"`
	Sources  SourcesMeta  `json:"sources"`
}

// SettingsMeta contains compiler settings
type SettingsMeta struct {
	CompilationTarget map[string]string `json:"compilationTarget"`
	EVMVersion        string            `json:"evmVersion"`
	Optimizer         struct {
		Enabled bool `json:"enabled"`
		Runs    int  `json:"runs"`
	} `json:"optimizer"`
	ViaIR bool `json:"viaIR"`
}

// SourcesMeta contains source file information
type SourcesMeta map[string]struct {
	Keccak256 string `json:"keccak256"`
	License   string `json:"license"`
}

// FirstLicense returns the first license found in sources
func (s SourcesMeta) FirstLicense() string {
	for _, src := range s {
		if src.License != "" {
			return src.License
		}
	}
	return ""
}

func getFirstKey(m map[string]string) string {
	for k := range m {
		return k
	}
	return ""
}
