package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/crowdfund-deploy/internal/chains/evm"
	"github.com/pendergraft/crowdfund-deploy/internal/config"
	"github.com/pendergraft/crowdfund-deploy/internal/confirm"
	"github.com/pendergraft/crowdfund-deploy/internal/crowdfunding"
	"github.com/pendergraft/crowdfund-deploy/internal/observability/metrics"
	"github.com/pendergraft/crowdfund-deploy/internal/pipeline"
	"github.com/pendergraft/crowdfund-deploy/internal/verification/etherscan"
)

type deployOptions struct {
	planPath  string
	dir       string
	promptKey bool
}

func addDeployFlags(cmd *cobra.Command, opts *deployOptions) {
	cmd.Flags().StringVar(&opts.planPath, "plan", "", "campaign plan file (default: crowdfund.toml, crowdfund.yaml or the built-in plan)")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "project directory with compiled artifacts (default from ARTIFACTS_DIR)")
	cmd.Flags().BoolVar(&opts.promptKey, "prompt-key", false, "read the deployer private key from the terminal instead of PRIVATE_KEY")
}

func createDeployCmd(a *app) *cobra.Command {
	var opts deployOptions

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy CrowdFunding, seed tiers and verify",
		Long: `Deploy the CrowdFunding contract with the campaign plan's constructor
arguments, add each tier in order, then wait for confirmations and verify
the source on Etherscan.

Confirmation and verification are skipped when ETHERSCAN_API_KEY is unset.
Running crowdfund-deploy without a subcommand is the same as deploy.

EXAMPLES:
  # Deploy the built-in example campaign to Sepolia
  crowdfund-deploy deploy

  # Deploy a custom plan from a Foundry project
  crowdfund-deploy deploy --plan campaign.yaml --dir ./contracts
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd.Context(), a, opts)
		},
	}

	addDeployFlags(cmd, &opts)
	return cmd
}

func runDeploy(ctx context.Context, a *app, opts deployOptions) error {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}

	if opts.promptKey {
		key, err := evm.PromptPrivateKey(os.Stdin, a.errOut)
		if err != nil {
			return err
		}
		cfg.Signer.PrivateKey = key
	}
	if err := cfg.ValidateSigner(); err != nil {
		return err
	}

	plan, planPath, err := config.LoadPlan(opts.planPath)
	if err != nil {
		return err
	}
	tiers, err := crowdfunding.TiersFromPlan(plan.Tiers)
	if err != nil {
		return err
	}

	dir := cfg.Artifacts.Dir
	if opts.dir != "" {
		dir = opts.dir
	}
	artifact, builder, err := evm.LoadArtifact(dir, cfg.Artifacts.Contract)
	if err != nil {
		return err
	}
	input, err := builder.GetVerificationInput(dir, artifact.Name, artifact.SourcePath)
	if err != nil {
		if cfg.Verification.Enabled() {
			return fmt.Errorf("loading verification input: %w", err)
		}
		a.logger.Debug("no verification input", "error", err)
	}

	client, err := a.dial(ctx, cfg.Network.RPCURL, cfg.Network.ChainID)
	if err != nil {
		return err
	}
	defer client.Close()

	auth, err := evm.NewTransactor(cfg.Signer.PrivateKey, client.NetworkID())
	if err != nil {
		return err
	}
	contract, err := crowdfunding.New(artifact.ABI, artifact.Bytecode, client, auth, crowdfunding.WithLogger(a.logger))
	if err != nil {
		return err
	}
	args, err := crowdfunding.ArgsFromPlan(plan.Campaign, contract.Deployer())
	if err != nil {
		return err
	}

	metrics.Init(cfg.Metrics.Enabled, serviceName)

	out := printer{w: a.out}
	out.header("Deploying %s to %s (chain %d)", artifact.Name, cfg.Network.Name, cfg.Network.ChainID)
	out.field("Build tool", builder.DisplayName())
	out.field("Compiler", artifact.Compiler.Version)
	out.field("Deployer", contract.Deployer().Hex())
	if planPath == "" {
		planPath = "built-in example"
	}
	out.field("Plan", fmt.Sprintf("%s (%d tiers)", planPath, len(tiers)))
	fmt.Fprintln(a.out)

	pipeOpts := []pipeline.Option{
		pipeline.WithArtifact(artifact, input),
		pipeline.WithCodeChecker(client),
		pipeline.WithNetwork(cfg.Network.Name, client.NetworkID().Int64()),
		pipeline.WithStepObserver(out.step),
		pipeline.WithLogger(a.logger),
	}

	if cfg.Verification.Enabled() {
		waiter := confirm.New(client,
			confirm.WithPollInterval(cfg.Confirmations.PollInterval),
			confirm.WithTimeout(cfg.Confirmations.Timeout),
			confirm.WithLogger(a.logger),
			confirm.WithObserver(out.confirmations),
		)
		pipeOpts = append(pipeOpts, pipeline.WithVerification(waiter, newVerifier(a), cfg.Confirmations.Blocks))
	} else {
		a.logger.Info("ETHERSCAN_API_KEY not set, verification will be skipped")
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		pipeOpts = append(pipeOpts, pipeline.WithRecorder(pipeline.NewStoreRecorder(store)))
	}

	p, err := pipeline.New(contract, pipeOpts...)
	if err != nil {
		return err
	}

	report, runErr := p.Run(ctx, args, tiers)
	out.summary(report)

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			a.logger.Warn("writing metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
		}
	}

	return runErr
}

func newVerifier(a *app) *etherscan.Client {
	v := a.cfg.Verification
	return etherscan.New(v.APIURL, v.APIKey,
		etherscan.WithRateLimit(v.RateLimit),
		etherscan.WithPolling(v.PollInterval, v.MaxAttempts),
		etherscan.WithBrowserURL(v.BrowserURL),
		etherscan.WithLogger(a.logger),
	)
}
