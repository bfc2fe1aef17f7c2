package pipeline

import (
	"context"

	"github.com/pendergraft/crowdfund-deploy/internal/storage"
)

// DeploymentRecord is the history entry written after a successful deploy
type DeploymentRecord struct {
	ContractName    string
	Network         string
	ChainID         int64
	Address         string
	DeployerAddress string
	TxHash          string
	BlockNumber     uint64
	ConstructorArgs string // hex
}

// TierRecord is the history entry for one seeded tier
type TierRecord struct {
	Position    int
	Name        string
	AmountWei   string
	TxHash      string
	BlockNumber uint64
}

// Recorder persists pipeline progress. Recording failures are logged and
// never fail the run.
type Recorder interface {
	RecordDeployment(ctx context.Context, rec DeploymentRecord) (string, error)
	RecordTier(ctx context.Context, deploymentID string, rec TierRecord) error
	UpdateStatus(ctx context.Context, id, status, failedStep, errMsg string) error
	UpdateVerificationStatus(ctx context.Context, id, status, guid string) error
}

// historyStore is the part of storage.Store the recorder writes to
type historyStore interface {
	storage.DeploymentStore
	RecordTier(ctx context.Context, deploymentID string, t *storage.TierSeed) error
}

// StoreRecorder writes pipeline progress to deployment history
type StoreRecorder struct {
	historyStore
}

// NewStoreRecorder creates a recorder backed by store
func NewStoreRecorder(store historyStore) *StoreRecorder {
	return &StoreRecorder{historyStore: store}
}

// RecordDeployment stores rec and returns its history id
func (r *StoreRecorder) RecordDeployment(ctx context.Context, rec DeploymentRecord) (string, error) {
	d := &storage.Deployment{
		ContractName:    rec.ContractName,
		Network:         rec.Network,
		ChainID:         rec.ChainID,
		Address:         rec.Address,
		DeployerAddress: rec.DeployerAddress,
		TxHash:          rec.TxHash,
		BlockNumber:     int64(rec.BlockNumber),
		ConstructorArgs: rec.ConstructorArgs,
		Status:          storage.StatusDeployed,
	}
	if err := r.historyStore.RecordDeployment(ctx, d); err != nil {
		return "", err
	}
	return d.ID, nil
}

// RecordTier stores one seeded tier
func (r *StoreRecorder) RecordTier(ctx context.Context, deploymentID string, rec TierRecord) error {
	return r.historyStore.RecordTier(ctx, deploymentID, &storage.TierSeed{
		Position:    rec.Position,
		Name:        rec.Name,
		AmountWei:   rec.AmountWei,
		TxHash:      rec.TxHash,
		BlockNumber: int64(rec.BlockNumber),
	})
}
