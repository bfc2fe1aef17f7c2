package etherscan

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/crowdfund-deploy/internal/chains"
	"github.com/pendergraft/crowdfund-deploy/internal/validation"
)

// NewRequest assembles a verification request from build output.
func NewRequest(chainID int64, address common.Address, artifact *chains.Artifact, input *chains.VerificationInput, constructorArgs []byte) (Request, error) {
	if input == nil || len(input.StandardJSON) == 0 {
		return Request{}, fmt.Errorf("no standard JSON input for %s", artifact.Name)
	}

	version := input.SolcLongVersion
	if version == "" {
		version = artifact.Compiler.Version
	}
	compiler, err := validation.NormalizeCompilerVersion(version)
	if err != nil {
		return Request{}, err
	}

	name := artifact.Name
	if artifact.SourcePath != "" {
		name = artifact.SourcePath + ":" + artifact.Name
	}

	return Request{
		ChainID:         chainID,
		Address:         address,
		ContractName:    name,
		CompilerVersion: compiler,
		StandardJSON:    input.StandardJSON,
		ConstructorArgs: constructorArgs,
	}, nil
}
