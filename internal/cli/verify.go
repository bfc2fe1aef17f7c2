package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pendergraft/crowdfund-deploy/internal/chains/evm"
	"github.com/pendergraft/crowdfund-deploy/internal/verification/domain"
	"github.com/pendergraft/crowdfund-deploy/internal/verification/etherscan"
)

// errNoCredential is returned by verify when ETHERSCAN_API_KEY is unset
var errNoCredential = errors.New("verification credential is not configured (set ETHERSCAN_API_KEY)")

func createVerifyCmd(a *app) *cobra.Command {
	var argsHex string
	var dir string

	cmd := &cobra.Command{
		Use:   "verify <address>",
		Short: "Verify a deployed contract on Etherscan",
		Long: `Submit the contract source for verification and wait for the verdict.

The ABI-encoded constructor arguments are taken from --args, or from the
deployment history when the address was deployed by this tool. When an RPC
endpoint is configured the on-chain bytecode is compared with the artifact
first. A contract that is already verified counts as success.

EXAMPLES:
  crowdfund-deploy verify 0x5FbD...
  crowdfund-deploy verify 0x5FbD... --args 0x000000...
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), a, args[0], argsHex, dir)
		},
	}

	cmd.Flags().StringVar(&argsHex, "args", "", "ABI-encoded constructor arguments (hex)")
	cmd.Flags().StringVar(&dir, "dir", "", "project directory with compiled artifacts (default from ARTIFACTS_DIR)")

	return cmd
}

func runVerify(ctx context.Context, a *app, address, argsHex, dir string) error {
	cfg := a.cfg
	if !cfg.Verification.Enabled() {
		return errNoCredential
	}
	if dir == "" {
		dir = cfg.Artifacts.Dir
	}

	artifact, builder, err := evm.LoadArtifact(dir, cfg.Artifacts.Contract)
	if err != nil {
		return err
	}
	input, err := builder.GetVerificationInput(dir, artifact.Name, artifact.SourcePath)
	if err != nil {
		return fmt.Errorf("loading verification input: %w", err)
	}

	opts := []domain.Option{domain.WithLogger(a.logger)}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		opts = append(opts, domain.WithHistory(store))
	}

	if cfg.Network.RPCURL != "" {
		client, err := a.dial(ctx, cfg.Network.RPCURL, cfg.Network.ChainID)
		if err != nil {
			return err
		}
		defer client.Close()
		opts = append(opts, domain.WithCodeChecker(client))
	}

	svc := domain.NewService(artifact, input, newVerifier(a), opts...)
	res, err := svc.Verify(ctx, domain.VerifyRequest{
		ChainID:         cfg.Network.ChainID,
		Address:         address,
		ConstructorArgs: argsHex,
	})
	if err != nil {
		return err
	}

	out := printer{w: a.out}
	if res.Status == string(etherscan.StatusAlreadyVerified) {
		fmt.Fprintf(a.out, "%s %s is already verified\n", okMark, address)
	} else {
		fmt.Fprintf(a.out, "%s %s verified\n", okMark, address)
	}
	if res.MatchType != "" {
		out.field("Bytecode", res.MatchType+" match")
	}
	if res.URL != "" {
		out.field("Explorer", res.URL)
	}
	if res.Recorded {
		out.field("History", "updated")
	}
	return nil
}
