//go:build e2e

package e2e

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/crowdfund-deploy/pkg/client"
)

// TestDeployment_RecordedRun deploys a campaign and reads it back over HTTP
func TestDeployment_RecordedRun(t *testing.T) {
	report, chainID := deployCampaign(t)
	c := newClient(testCtx.TestServer)
	address := report.Deployment.Address.Hex()

	t.Run("get deployment by address", func(t *testing.T) {
		d, err := c.GetDeployment(context.Background(), strconv.FormatInt(chainID, 10), address)
		require.NoError(t, err)
		assert.Equal(t, report.RecordID, d.ID)
		assert.Equal(t, "CrowdFunding", d.ContractName)
		assert.Equal(t, "simulated", d.Network)
		assert.Equal(t, "complete", d.Status)
		assert.Equal(t, "skipped", d.VerificationStatus)
		assert.Equal(t, int64(report.Deployment.BlockNumber), d.BlockNumber)
		assert.NotEmpty(t, d.ConstructorArgs)
	})

	t.Run("tiers are stored in plan order", func(t *testing.T) {
		d, err := c.GetDeployment(context.Background(), strconv.FormatInt(chainID, 10), address)
		require.NoError(t, err)
		require.Len(t, d.Tiers, 4)

		names := make([]string, len(d.Tiers))
		for i, tier := range d.Tiers {
			names[i] = tier.Name
			assert.Equal(t, i+1, tier.Position)
		}
		assert.Equal(t, []string{"Bronze", "Silver", "Gold", "Gold"}, names)
		assert.Equal(t, "100000000000000000", d.Tiers[0].AmountWei)
	})

	t.Run("lowercase address resolves", func(t *testing.T) {
		lower := strings.ToLower(address)
		require.NotEqual(t, address, lower)
		_, err := c.GetDeployment(context.Background(), strconv.FormatInt(chainID, 10), lower)
		require.NoError(t, err)
	})

	t.Run("other chain returns 404", func(t *testing.T) {
		_, err := c.GetDeployment(context.Background(), "1", address)
		assertHTTPError(t, err, "NOT_FOUND")
	})
}

// TestDeployment_ListDeployments tests listing and filtering runs
func TestDeployment_ListDeployments(t *testing.T) {
	first, chainID := deployCampaign(t)
	second, _ := deployCampaign(t)
	c := newClient(testCtx.TestServer)

	t.Run("both runs listed", func(t *testing.T) {
		resp, err := c.ListDeployments(context.Background(), client.ListOptions{ChainID: strconv.FormatInt(chainID, 10)})
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(resp.Data), 2)
		assert.Equal(t, 20, resp.Pagination.Limit, "Default limit is 20")

		var addresses []string
		for _, d := range resp.Data {
			addresses = append(addresses, d.Address)
		}
		assert.Contains(t, addresses, strings.ToLower(first.Deployment.Address.Hex()))
		assert.Contains(t, addresses, strings.ToLower(second.Deployment.Address.Hex()))
	})

	t.Run("limit", func(t *testing.T) {
		resp, err := c.ListDeployments(context.Background(), client.ListOptions{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, resp.Data, 1)
		assert.True(t, resp.Pagination.HasMore)
	})

	t.Run("status filter", func(t *testing.T) {
		resp, err := c.ListDeployments(context.Background(), client.ListOptions{Status: "failed"})
		require.NoError(t, err)
		for _, d := range resp.Data {
			assert.Equal(t, "failed", d.Status)
		}
	})

	t.Run("invalid status returns 400", func(t *testing.T) {
		_, err := c.ListDeployments(context.Background(), client.ListOptions{Status: "pending"})
		assertHTTPError(t, err, "INVALID_REQUEST")
	})
}
