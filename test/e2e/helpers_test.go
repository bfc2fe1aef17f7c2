//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pendergraft/crowdfund-deploy/internal/chains"
	"github.com/pendergraft/crowdfund-deploy/internal/chains/evm"
	"github.com/pendergraft/crowdfund-deploy/internal/chains/evm/evmtest"
	"github.com/pendergraft/crowdfund-deploy/internal/config"
	"github.com/pendergraft/crowdfund-deploy/internal/crowdfunding"
	"github.com/pendergraft/crowdfund-deploy/internal/pipeline"
	"github.com/pendergraft/crowdfund-deploy/internal/server"
	"github.com/pendergraft/crowdfund-deploy/internal/storage"
	"github.com/pendergraft/crowdfund-deploy/pkg/client"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	TestServer        *httptest.Server
	Store             storage.Store
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("crowdfund"),
		postgres.WithUsername("crowdfund"),
		postgres.WithPassword("crowdfund"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// startServerE opens the Postgres history store and serves it. The returned
// func stops the server and closes the store.
func startServerE(ctx context.Context, connString string) (*httptest.Server, storage.Store, func(), error) {
	cfg := &config.Config{
		Network: config.NetworkConfig{Name: "simulated"},
		Storage: config.StorageConfig{
			Type:     "postgres",
			Postgres: config.PostgresConfig{URL: connString},
		},
	}

	logger := slog.New(slog.DiscardHandler)
	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, nil, fmt.Errorf("failed to migrate: %w", err)
	}

	srvCtx, cancel := context.WithCancel(ctx)
	srv := httptest.NewServer(server.New(srvCtx, cfg, store, logger).Handler())
	stop := func() {
		srv.Close()
		cancel()
		store.Close()
	}
	return srv, store, stop, nil
}

// newClient creates a history API client for the test server
func newClient(srv *httptest.Server) *client.Client {
	return client.New(srv.URL)
}

// deployCampaign runs the default plan against a fresh simulated chain and
// records it in the shared store. Verification is left disabled.
func deployCampaign(t *testing.T) (*pipeline.Report, int64) {
	t.Helper()
	ctx := context.Background()
	chain := evmtest.New(t)
	chainID := chain.ChainID(t).Int64()

	contract, err := crowdfunding.New(nil, evmtest.StubInitCode, chain.Client, chain.Transactor(t))
	require.NoError(t, err)

	checker, err := evm.NewClient(ctx, chain.Client, chainID)
	require.NoError(t, err)

	artifact := &chains.Artifact{
		Name:             "CrowdFunding",
		SourcePath:       "contracts/CrowdFunding.sol",
		DeployedBytecode: evmtest.StubRuntime,
		Compiler:         chains.DefaultCompiler(),
	}

	p, err := pipeline.New(contract,
		pipeline.WithArtifact(artifact, nil),
		pipeline.WithCodeChecker(checker),
		pipeline.WithNetwork("simulated", chainID),
		pipeline.WithRecorder(pipeline.NewStoreRecorder(testCtx.Store)),
	)
	require.NoError(t, err)

	plan := config.DefaultPlan()
	args, err := crowdfunding.ArgsFromPlan(plan.Campaign, chain.Address)
	require.NoError(t, err)
	tiers, err := crowdfunding.TiersFromPlan(plan.Tiers)
	require.NoError(t, err)

	report, err := p.Run(ctx, args, tiers)
	require.NoError(t, err)
	require.NotEmpty(t, report.RecordID, "run should be recorded")
	return report, chainID
}

// assertHTTPError checks that err is an APIError with the given code
func assertHTTPError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	apiErr, ok := err.(*client.APIError)
	require.True(t, ok, "expected *client.APIError, got %T: %v", err, err)
	require.Equal(t, code, apiErr.Code)
}
