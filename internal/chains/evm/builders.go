package evm

import (
	"fmt"

	"github.com/pendergraft/crowdfund-deploy/internal/chains"
	"github.com/pendergraft/crowdfund-deploy/internal/chains/evm/foundry"
	"github.com/pendergraft/crowdfund-deploy/internal/chains/evm/hardhat"
)

// Builders returns the supported build tools in detection order
func Builders() []chains.Builder {
	return []chains.Builder{
		hardhat.New(),
		foundry.New(),
	}
}

// LoadArtifact detects the build tool used in dir and parses contractName.
func LoadArtifact(dir, contractName string) (*chains.Artifact, chains.Builder, error) {
	builder, err := chains.DetectBuilder(dir, Builders()...)
	if err != nil {
		return nil, nil, err
	}

	path, err := builder.Find(dir, contractName)
	if err != nil {
		return nil, nil, err
	}

	artifact, err := builder.Parse(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%s artifact %s: %w", builder.DisplayName(), path, err)
	}
	if artifact.Compiler.Version == "" {
		artifact.Compiler = chains.DefaultCompiler()
	}
	return artifact, builder, nil
}
