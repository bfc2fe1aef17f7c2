// Package cli implements the crowdfund-deploy command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/crowdfund-deploy/internal/chains/evm"
	"github.com/pendergraft/crowdfund-deploy/internal/config"
	"github.com/pendergraft/crowdfund-deploy/internal/logging"
	"github.com/pendergraft/crowdfund-deploy/internal/storage"
)

const serviceName = "crowdfund-deploy"

// app is the state shared by every command once flags are parsed
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer // human-facing output
	errOut io.Writer // logs and prompts

	// dial connects to the configured network
	dial func(ctx context.Context, rpcURL string, chainID int64) (*evm.Client, error)
}

// Execute runs the CLI until ctx is cancelled
func Execute(ctx context.Context, version string) error {
	return NewRootCmd(version).ExecuteContext(ctx)
}

// NewRootCmd builds the command tree. Running it without a subcommand deploys.
func NewRootCmd(version string) *cobra.Command {
	return newRootCmd(&app{out: os.Stdout, errOut: os.Stderr, dial: evm.Dial}, version)
}

func newRootCmd(a *app, version string) *cobra.Command {
	var logLevel, logFormat string
	var deployOpts deployOptions

	rootCmd := &cobra.Command{
		Use:   "crowdfund-deploy",
		Short: "Deploy and seed a CrowdFunding campaign",
		Long: `crowdfund-deploy deploys the CrowdFunding contract, seeds its reward tiers,
waits for block confirmations and verifies the source on Etherscan.

Configuration is read from the environment and from a .env file in the
working directory. Verification is skipped when ETHERSCAN_API_KEY is unset.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			a.errOut = cmd.ErrOrStderr()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			if logFormat != "" {
				cfg.Logging.Format = logFormat
			}
			a.cfg = cfg
			a.logger = logging.New(cfg.Logging, a.errOut)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd.Context(), a, deployOpts)
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (default from LOG_FORMAT)")
	addDeployFlags(rootCmd, &deployOpts)

	rootCmd.AddCommand(createDeployCmd(a))
	rootCmd.AddCommand(createWaitCmd(a))
	rootCmd.AddCommand(createVerifyCmd(a))
	rootCmd.AddCommand(createDeploymentCmd(a))
	rootCmd.AddCommand(createPlanCmd(a))
	rootCmd.AddCommand(createServeCmd(a))

	return rootCmd
}

// openStore opens and migrates the history store. It returns nil when
// history is disabled.
func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	if a.cfg.Storage.Type == "none" {
		return nil, nil
	}
	store, err := storage.New(a.cfg.Storage, a.logger)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

// requireStore is openStore for commands that only make sense with history
func (a *app) requireStore(ctx context.Context) (storage.Store, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("deployment history is disabled (STORAGE_TYPE=none)")
	}
	return store, nil
}
