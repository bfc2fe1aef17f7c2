package chains

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BuildInfo is a solc build-info file. Hardhat and Foundry both write the
// hh-sol-build-info-1 layout.
type BuildInfo struct {
	ID              string          `json:"id"`
	SolcVersion     string          `json:"solcVersion"`     // Short: "0.8.19"
	SolcLongVersion string          `json:"solcLongVersion"` // Full: "0.8.19+commit.7dd6d404"
	Input           json.RawMessage `json:"input"`           // Standard JSON Input
	Output          json.RawMessage `json:"output"`          // Compilation output
}

// Produces reports whether this build compiled contractName from sourcePath.
func (bi *BuildInfo) Produces(sourcePath, contractName string) bool {
	var output struct {
		Contracts map[string]map[string]json.RawMessage `json:"contracts"`
	}
	if err := json.Unmarshal(bi.Output, &output); err != nil {
		return false
	}
	sourceContracts, ok := output.Contracts[sourcePath]
	if !ok {
		return false
	}
	_, ok = sourceContracts[contractName]
	return ok
}

// ReadBuildInfo parses a single build-info file.
func ReadBuildInfo(path string) (*BuildInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading build-info: %w", err)
	}
	var bi BuildInfo
	if err := json.Unmarshal(data, &bi); err != nil {
		return nil, fmt.Errorf("parsing build-info %s: %w", filepath.Base(path), err)
	}
	return &bi, nil
}

// FindVerificationInput scans buildInfoDir for the build that produced
// contractName. When sourcePath is empty the first readable build-info wins.
// clean rewrites the raw input into solc standard JSON; nil keeps it as is.
func FindVerificationInput(buildInfoDir, contractName, sourcePath string, clean func(json.RawMessage) ([]byte, error)) (*VerificationInput, error) {
	entries, err := os.ReadDir(buildInfoDir)
	if err != nil {
		return nil, fmt.Errorf("reading build-info directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		bi, err := ReadBuildInfo(filepath.Join(buildInfoDir, entry.Name()))
		if err != nil {
			continue
		}
		if sourcePath != "" && !bi.Produces(sourcePath, contractName) {
			continue
		}

		stdJSON := []byte(bi.Input)
		if clean != nil {
			if stdJSON, err = clean(bi.Input); err != nil {
				continue
			}
		}

		return &VerificationInput{
			StandardJSON:    stdJSON,
			SolcLongVersion: bi.SolcLongVersion,
		}, nil
	}

	return nil, fmt.Errorf("%w for contract %s", ErrBuildInfoMissing, contractName)
}
