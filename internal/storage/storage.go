// Package storage keeps the history of deployment runs.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pendergraft/crowdfund-deploy/internal/config"
)

// Deployment statuses
const (
	StatusDeployed = "deployed" // contract mined, later steps pending
	StatusComplete = "complete" // every step finished or was skipped
	StatusFailed   = "failed"   // a step after deploy failed
)

// DeploymentStore handles deployment history
type DeploymentStore interface {
	RecordDeployment(ctx context.Context, d *Deployment) error
	GetDeployment(ctx context.Context, chainID int64, address string) (*Deployment, error)
	ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error)
	UpdateStatus(ctx context.Context, id, status, failedStep, errMsg string) error
	UpdateVerificationStatus(ctx context.Context, id, status, guid string) error
}

// TierStore handles seeded tiers
type TierStore interface {
	RecordTier(ctx context.Context, deploymentID string, t *TierSeed) error
	ListTiers(ctx context.Context, deploymentID string) ([]TierSeed, error)
}

// Store combines all storage interfaces with lifecycle methods.
// Consumers define their own minimal interfaces based on their actual usage.
type Store interface {
	DeploymentStore
	TierStore

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// Deployment is one deploy run of the contract
type Deployment struct {
	ID                 string
	ContractName       string
	Network            string
	ChainID            int64
	Address            string // lowercase hex
	DeployerAddress    string
	TxHash             string
	BlockNumber        int64
	ConstructorArgs    string // ABI-encoded, hex
	Status             string
	FailedStep         string
	Error              string
	VerificationStatus string // "", "skipped", "verified", "already_verified", "failed"
	VerificationGUID   string
	VerifiedAt         string
	CreatedAt          string
	UpdatedAt          string
}

// TierSeed is one addTier transaction
type TierSeed struct {
	ID          string
	Position    int // 1-based submission order
	Name        string
	AmountWei   string
	TxHash      string
	BlockNumber int64
	CreatedAt   string
}

// DeploymentFilter contains filter options for listing deployments
type DeploymentFilter struct {
	ChainID int64
	Status  string
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit int
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data    []T
	HasMore bool
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
