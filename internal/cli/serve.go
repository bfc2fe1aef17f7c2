package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/pendergraft/crowdfund-deploy/internal/observability/metrics"
	"github.com/pendergraft/crowdfund-deploy/internal/server"
)

func createServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve deployment history over HTTP",
		Long: `Start a read-only HTTP API over the deployment history:

  GET /health
  GET /api/v1/deployments
  GET /api/v1/deployments/{chainId}/{address}
  GET /metrics            (when METRICS_ENABLED=true)
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a)
		},
	}
}

func runServe(ctx context.Context, a *app) error {
	store, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics.Init(a.cfg.Metrics.Enabled, serviceName)
	a.logger.Info("starting history server", "storage", a.cfg.Storage.Type, "metrics", a.cfg.Metrics.Enabled)

	return server.New(ctx, a.cfg, store, a.logger).Run(ctx)
}
