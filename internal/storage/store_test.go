package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreTests exercises a migrated, empty store
func runStoreTests(t *testing.T, store Store) {
	ctx := context.Background()

	newDeployment := func(addr string, chainID int64) *Deployment {
		return &Deployment{
			ContractName:    "CrowdFunding",
			Network:         "sepolia",
			ChainID:         chainID,
			Address:         addr,
			DeployerAddress: "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266",
			TxHash:          "0xabc",
			BlockNumber:     42,
			ConstructorArgs: "00ff",
		}
	}

	t.Run("RecordAndGet", func(t *testing.T) {
		d := newDeployment("0x5FbDB2315678afecb367f032d93F642f64180aa3", 11155111)
		require.NoError(t, store.RecordDeployment(ctx, d))
		assert.NotEmpty(t, d.ID)
		assert.Equal(t, StatusDeployed, d.Status)

		// lookups ignore checksum casing
		got, err := store.GetDeployment(ctx, 11155111, "0x5fbdb2315678afecb367f032d93f642f64180aa3")
		require.NoError(t, err)
		assert.Equal(t, d.ID, got.ID)
		assert.Equal(t, "0x5fbdb2315678afecb367f032d93f642f64180aa3", got.Address)
		assert.Equal(t, int64(42), got.BlockNumber)
		assert.Equal(t, "00ff", got.ConstructorArgs)
		assert.Empty(t, got.VerifiedAt)
		assert.NotEmpty(t, got.CreatedAt)
	})

	t.Run("DuplicateAddress", func(t *testing.T) {
		d := newDeployment("0x5fbdb2315678afecb367f032d93f642f64180aa3", 11155111)
		err := store.RecordDeployment(ctx, d)
		assert.ErrorIs(t, err, ErrAlreadyRecorded)

		// same address on another chain is a different deployment
		other := newDeployment("0x5fbdb2315678afecb367f032d93f642f64180aa3", 31337)
		assert.NoError(t, store.RecordDeployment(ctx, other))
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := store.GetDeployment(ctx, 1, "0x0000000000000000000000000000000000000001")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("TiersInOrder", func(t *testing.T) {
		d := newDeployment("0x1111111111111111111111111111111111111111", 11155111)
		require.NoError(t, store.RecordDeployment(ctx, d))

		seeds := []TierSeed{
			{Position: 1, Name: "Bronze", AmountWei: "100000000000000000"},
			{Position: 2, Name: "Silver", AmountWei: "300000000000000000"},
			{Position: 3, Name: "Gold", AmountWei: "500000000000000000"},
			{Position: 4, Name: "Gold", AmountWei: "1000000000000000"},
		}
		for i := range seeds {
			seeds[i].TxHash = fmt.Sprintf("0x%02d", i)
			seeds[i].BlockNumber = int64(43 + i)
			require.NoError(t, store.RecordTier(ctx, d.ID, &seeds[i]))
		}

		got, err := store.ListTiers(ctx, d.ID)
		require.NoError(t, err)
		require.Len(t, got, 4)
		for i, tier := range got {
			assert.Equal(t, i+1, tier.Position)
			assert.Equal(t, seeds[i].Name, tier.Name)
			assert.Equal(t, seeds[i].AmountWei, tier.AmountWei)
		}
	})

	t.Run("TierForUnknownDeployment", func(t *testing.T) {
		err := store.RecordTier(ctx, "00000000-0000-0000-0000-000000000000", &TierSeed{Position: 1, Name: "x", AmountWei: "1"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		d := newDeployment("0x2222222222222222222222222222222222222222", 11155111)
		require.NoError(t, store.RecordDeployment(ctx, d))

		require.NoError(t, store.UpdateStatus(ctx, d.ID, StatusFailed, "seed:2:Silver", "execution reverted"))
		got, err := store.GetDeployment(ctx, d.ChainID, d.Address)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, got.Status)
		assert.Equal(t, "seed:2:Silver", got.FailedStep)
		assert.Equal(t, "execution reverted", got.Error)

		assert.ErrorIs(t, store.UpdateStatus(ctx, "00000000-0000-0000-0000-000000000000", StatusComplete, "", ""), ErrNotFound)
	})

	t.Run("UpdateVerificationStatus", func(t *testing.T) {
		d := newDeployment("0x3333333333333333333333333333333333333333", 11155111)
		require.NoError(t, store.RecordDeployment(ctx, d))

		require.NoError(t, store.UpdateVerificationStatus(ctx, d.ID, "skipped", ""))
		got, err := store.GetDeployment(ctx, d.ChainID, d.Address)
		require.NoError(t, err)
		assert.Equal(t, "skipped", got.VerificationStatus)
		assert.Empty(t, got.VerifiedAt)

		require.NoError(t, store.UpdateVerificationStatus(ctx, d.ID, "verified", "guid-1"))
		got, err = store.GetDeployment(ctx, d.ChainID, d.Address)
		require.NoError(t, err)
		assert.Equal(t, "verified", got.VerificationStatus)
		assert.Equal(t, "guid-1", got.VerificationGUID)
		assert.NotEmpty(t, got.VerifiedAt)
	})

	t.Run("ListDeployments", func(t *testing.T) {
		all, err := store.ListDeployments(ctx, DeploymentFilter{}, PaginationParams{Limit: 100})
		require.NoError(t, err)
		assert.Len(t, all.Data, 5)
		assert.False(t, all.HasMore)

		page, err := store.ListDeployments(ctx, DeploymentFilter{}, PaginationParams{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, page.Data, 2)
		assert.True(t, page.HasMore)

		local, err := store.ListDeployments(ctx, DeploymentFilter{ChainID: 31337}, PaginationParams{})
		require.NoError(t, err)
		require.Len(t, local.Data, 1)
		assert.Equal(t, int64(31337), local.Data[0].ChainID)

		failed, err := store.ListDeployments(ctx, DeploymentFilter{Status: StatusFailed}, PaginationParams{})
		require.NoError(t, err)
		require.Len(t, failed.Data, 1)
		assert.Equal(t, "seed:2:Silver", failed.Data[0].FailedStep)
	})
}
