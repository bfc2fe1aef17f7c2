package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/crowdfund-deploy/internal/chains/evm"
	"github.com/pendergraft/crowdfund-deploy/internal/chains/evm/evmtest"
	"github.com/pendergraft/crowdfund-deploy/internal/config"
	"github.com/pendergraft/crowdfund-deploy/internal/crowdfunding"
	"github.com/pendergraft/crowdfund-deploy/internal/deployments/transport"
)

// run executes the CLI with args and returns stdout
func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(a, "test")
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// isolate clears the environment config.Load reads and runs the test in a
// fresh directory.
func isolate(t *testing.T) string {
	t.Helper()
	for _, key := range []string{
		"SEPOLIA_RPC_URL", "RPC_URL", "PRIVATE_KEY", "ETHERSCAN_API_KEY", "CHAIN_ID",
		"DATABASE_URL", "STORAGE_TYPE", "SQLITE_PATH", "METRICS_ENABLED", "METRICS_TEXTFILE",
		"ARTIFACTS_DIR", "CONTRACT_NAME", "BLOCK_CONFIRMATIONS", serverEnv, serverAPIKeyEnv,
	} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func noDial(t *testing.T) *app {
	return &app{dial: func(context.Context, string, int64) (*evm.Client, error) {
		t.Fatal("unexpected dial")
		return nil, nil
	}}
}

// writeHardhatProject lays out a compiled CrowdFunding whose creation code
// deploys evmtest.StubRuntime.
func writeHardhatProject(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hardhat.config.js"), []byte("module.exports = {}"), 0644))
	artifactDir := filepath.Join(dir, "artifacts", "contracts", "CrowdFunding.sol")
	require.NoError(t, os.MkdirAll(artifactDir, 0755))
	data, err := json.Marshal(map[string]any{
		"_format":          "hh-sol-artifact-1",
		"contractName":     "CrowdFunding",
		"sourceName":       "contracts/CrowdFunding.sol",
		"abi":              json.RawMessage(crowdfunding.ABIJSON),
		"bytecode":         evmtest.StubInitCode,
		"deployedBytecode": evmtest.StubRuntime,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(artifactDir, "CrowdFunding.json"), data, 0644))
}

func TestPlan_InitAndShow(t *testing.T) {
	dir := isolate(t)

	for _, name := range []string{"crowdfund.toml", "campaign.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			out, err := run(t, noDial(t), "plan", "init", path)
			require.NoError(t, err)
			assert.Contains(t, out, "Created")

			loaded, _, err := config.LoadPlan(path)
			require.NoError(t, err)
			assert.Equal(t, config.DefaultPlan(), loaded)

			out, err = run(t, noDial(t), "plan", "show", "--plan", path)
			require.NoError(t, err)
			assert.Contains(t, out, "Example Campaign")
			assert.Contains(t, out, "1000 ETH (1000000000000000000000 wei)")
			assert.Contains(t, out, "30 days")
			assert.Contains(t, out, "(deployer)")
			assert.Equal(t, 2, strings.Count(out, "Gold"))
			assert.Contains(t, out, "0.001")
		})
	}

	t.Run("refuses to overwrite", func(t *testing.T) {
		_, err := run(t, noDial(t), "plan", "init", filepath.Join(dir, "crowdfund.toml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")

		_, err = run(t, noDial(t), "plan", "init", "--force", filepath.Join(dir, "crowdfund.toml"))
		assert.NoError(t, err)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := run(t, noDial(t), "plan", "init", filepath.Join(dir, "plan.json"))
		assert.Error(t, err)
	})
}

func TestDeploy_ConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{
			name:    "missing rpc",
			env:     map[string]string{"PRIVATE_KEY": "0x01"},
			wantErr: config.ErrMissingRPC,
		},
		{
			name:    "missing key",
			env:     map[string]string{"SEPOLIA_RPC_URL": "http://localhost:8545"},
			wantErr: config.ErrMissingPrivateKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := run(t, noDial(t))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerify_RequiresCredential(t *testing.T) {
	isolate(t)
	_, err := run(t, noDial(t), "verify", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	assert.ErrorIs(t, err, errNoCredential)
}

func TestWait_InvalidHash(t *testing.T) {
	isolate(t)
	_, err := run(t, noDial(t), "wait", "0x1234")
	assert.Error(t, err)
}

func TestDeployment_HistoryDisabled(t *testing.T) {
	isolate(t)
	t.Setenv("STORAGE_TYPE", "none")
	_, err := run(t, noDial(t), "deployment", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

// TestDeploy_SimulatedChain runs the default command end to end against an
// in-process chain and reads the result back from history.
func TestDeploy_SimulatedChain(t *testing.T) {
	dir := isolate(t)
	chain := evmtest.New(t)
	writeHardhatProject(t, dir)

	textfile := filepath.Join(dir, "metrics.prom")
	t.Setenv("SEPOLIA_RPC_URL", "simulated")
	t.Setenv("PRIVATE_KEY", chain.KeyHex())
	t.Setenv("CHAIN_ID", chain.ChainID(t).String())
	t.Setenv("NETWORK", "simulated")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "data", "history.db"))
	t.Setenv("METRICS_TEXTFILE", textfile)

	a := &app{dial: func(ctx context.Context, _ string, chainID int64) (*evm.Client, error) {
		return evm.NewClient(ctx, chain.Client, chainID)
	}}

	out, err := run(t, a, "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Deploying CrowdFunding to simulated")
	assert.Contains(t, out, "Hardhat")
	assert.Contains(t, out, "full match")
	for _, tier := range []string{"seed Bronze (#1)", "seed Silver (#2)", "seed Gold (#3)", "seed Gold (#4)"} {
		assert.Contains(t, out, tier)
	}
	assert.Contains(t, out, "skipped: no verification credential")
	assert.Contains(t, out, "deployed at 0x")

	metricsText, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(metricsText), `crowdfund_tiers_seeded_total{service="crowdfund-deploy"} 4`)

	out, err = run(t, a, "deployment", "list", "--json")
	require.NoError(t, err)
	var list transport.DeploymentListResponse
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "complete", list.Data[0].Status)
	assert.Equal(t, "skipped", list.Data[0].VerificationStatus)

	out, err = run(t, a, "deployment", "info", list.Data[0].Address)
	require.NoError(t, err)
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "Bronze")
	assert.Contains(t, out, "0.001")

	// verify afterwards, reusing the recorded constructor arguments
	writeBuildInfo(t, dir)
	var mu sync.Mutex
	var submittedArgs string
	explorer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		switch r.Form.Get("action") {
		case "verifysourcecode":
			mu.Lock()
			submittedArgs = r.PostForm.Get("constructorArguements")
			mu.Unlock()
			w.Write([]byte(`{"status":"1","message":"OK","result":"guid-42"}`))
		case "checkverifystatus":
			w.Write([]byte(`{"status":"1","message":"OK","result":"Pass - Verified"}`))
		}
	}))
	t.Cleanup(explorer.Close)
	t.Setenv("ETHERSCAN_API_KEY", "test-key")
	t.Setenv("ETHERSCAN_API_URL", explorer.URL)
	t.Setenv("ETHERSCAN_RATE_LIMIT", "0")
	t.Setenv("ETHERSCAN_POLL_INTERVAL_MS", "1")

	out, err = run(t, a, "verify", list.Data[0].Address, "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "verified")
	assert.Contains(t, out, "full match")
	mu.Lock()
	assert.NotEmpty(t, submittedArgs)
	mu.Unlock()

	out, err = run(t, a, "deployment", "list", "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Equal(t, "verified", list.Data[0].VerificationStatus)
}

// writeBuildInfo adds the hardhat build-info holding the solc input
func writeBuildInfo(t *testing.T, dir string) {
	t.Helper()
	buildInfoDir := filepath.Join(dir, "artifacts", "build-info")
	require.NoError(t, os.MkdirAll(buildInfoDir, 0755))
	data, err := json.Marshal(map[string]any{
		"_format":         "hh-sol-build-info-1",
		"solcVersion":     "0.8.19",
		"solcLongVersion": "0.8.19+commit.7dd6d404",
		"input":           map[string]any{"language": "Solidity", "sources": map[string]any{}},
		"output": map[string]any{
			"contracts": map[string]any{
				"contracts/CrowdFunding.sol": map[string]any{"CrowdFunding": map[string]any{}},
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(buildInfoDir, "0a1b2c.json"), data, 0644))
}
