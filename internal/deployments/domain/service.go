package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pendergraft/crowdfund-deploy/internal/storage"
	"github.com/pendergraft/crowdfund-deploy/internal/validation"
)

// Common errors returned by the deployment service.
var (
	ErrNotFound       = errors.New("deployment not found")
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidChainID = errors.New("invalid chain ID")
	ErrInvalidStatus  = errors.New("invalid status")
)

// Service defines the deployment history service interface.
type Service interface {
	// Get retrieves a deployment and its seeded tiers by chain and address.
	Get(ctx context.Context, chainID, address string) (*Deployment, error)

	// List lists deployments with filtering and pagination, newest first.
	List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error)
}

// Store is the part of storage.Store the service reads from
type Store interface {
	GetDeployment(ctx context.Context, chainID int64, address string) (*storage.Deployment, error)
	ListDeployments(ctx context.Context, filter storage.DeploymentFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Deployment], error)
	ListTiers(ctx context.Context, deploymentID string) ([]storage.TierSeed, error)
}

// service implements the Service interface.
type service struct {
	store Store
}

// NewService creates a new deployment service.
func NewService(store Store) Service {
	return &service{store: store}
}

// Get retrieves a deployment by chain and address.
func (s *service) Get(ctx context.Context, chainID, address string) (*Deployment, error) {
	id, err := parseChainID(chainID)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	d, err := s.store.GetDeployment(ctx, id, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting deployment: %w", err)
	}

	tiers, err := s.store.ListTiers(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("listing tiers: %w", err)
	}

	out := toDeployment(d)
	for _, t := range tiers {
		out.Tiers = append(out.Tiers, Tier{
			Position:    t.Position,
			Name:        t.Name,
			AmountWei:   t.AmountWei,
			TxHash:      t.TxHash,
			BlockNumber: t.BlockNumber,
		})
	}
	return out, nil
}

// List lists deployments with filtering and pagination.
func (s *service) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	var chainID int64
	if filter.ChainID != "" {
		id, err := parseChainID(filter.ChainID)
		if err != nil {
			return nil, err
		}
		chainID = id
	}
	switch filter.Status {
	case "", storage.StatusDeployed, storage.StatusComplete, storage.StatusFailed:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status)
	}

	result, err := s.store.ListDeployments(ctx, storage.DeploymentFilter{
		ChainID: chainID,
		Status:  filter.Status,
	}, storage.PaginationParams{
		Limit: pagination.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}

	deployments := make([]Deployment, len(result.Data))
	for i, d := range result.Data {
		deployments[i] = *toDeployment(&d)
	}

	return &ListResult{
		Deployments: deployments,
		HasMore:     result.HasMore,
	}, nil
}

func parseChainID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChainID, s)
	}
	if err := validation.ValidateChainID(id); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidChainID, err)
	}
	return id, nil
}

func toDeployment(d *storage.Deployment) *Deployment {
	out := &Deployment{
		ID:                 d.ID,
		ContractName:       d.ContractName,
		Network:            d.Network,
		ChainID:            d.ChainID,
		Address:            d.Address,
		DeployerAddress:    d.DeployerAddress,
		TxHash:             d.TxHash,
		BlockNumber:        d.BlockNumber,
		ConstructorArgs:    d.ConstructorArgs,
		Status:             d.Status,
		FailedStep:         d.FailedStep,
		Error:              d.Error,
		VerificationStatus: d.VerificationStatus,
		VerificationGUID:   d.VerificationGUID,
	}
	out.CreatedAt, _ = time.Parse(storage.TimeFormat, d.CreatedAt)
	out.UpdatedAt, _ = time.Parse(storage.TimeFormat, d.UpdatedAt)
	if d.VerifiedAt != "" {
		out.VerifiedAt, _ = time.Parse(storage.TimeFormat, d.VerifiedAt)
	}
	return out
}
