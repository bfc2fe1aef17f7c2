package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/pendergraft/crowdfund-deploy/internal/deployments/domain"
	"github.com/pendergraft/crowdfund-deploy/pkg/client"
)

// Environment for reading history from a running `serve` instance
const (
	serverEnv       = "CROWDFUND_SERVER"
	serverAPIKeyEnv = "CROWDFUND_API_KEY"
)

// historyService returns the history reader for a command: the remote
// server when one is configured, the local store otherwise. The returned
// func releases whatever was opened.
func (a *app) historyService(ctx context.Context, server string) (domain.Service, func(), error) {
	if server == "" {
		server = os.Getenv(serverEnv)
	}
	if server != "" {
		a.logger.Debug("reading history from server", "server", server)
		c := client.New(server, client.WithAPIKey(os.Getenv(serverAPIKeyEnv)))
		return &remoteService{c: c}, func() {}, nil
	}

	store, err := a.requireStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return domain.NewService(store), func() { store.Close() }, nil
}

// remoteService reads deployment history over the HTTP API
type remoteService struct {
	c *client.Client
}

func (s *remoteService) Get(ctx context.Context, chainID, address string) (*domain.Deployment, error) {
	d, err := s.c.GetDeployment(ctx, chainID, address)
	if err != nil {
		return nil, remoteError(err)
	}
	out := fromClient(*d)
	return &out, nil
}

func (s *remoteService) List(ctx context.Context, filter domain.ListFilter, pagination domain.PaginationParams) (*domain.ListResult, error) {
	resp, err := s.c.ListDeployments(ctx, client.ListOptions{
		ChainID: filter.ChainID,
		Status:  filter.Status,
		Limit:   pagination.Limit,
	})
	if err != nil {
		return nil, remoteError(err)
	}

	result := &domain.ListResult{HasMore: resp.Pagination.HasMore}
	for _, d := range resp.Data {
		result.Deployments = append(result.Deployments, fromClient(d))
	}
	return result, nil
}

func remoteError(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusNotFound:
			return domain.ErrNotFound
		case http.StatusUnauthorized:
			return fmt.Errorf("history server rejected the API key (set %s): %w", serverAPIKeyEnv, err)
		}
	}
	return fmt.Errorf("history server: %w", err)
}

func fromClient(d client.Deployment) domain.Deployment {
	out := domain.Deployment{
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
		VerifiedAt:         parseTime(d.VerifiedAt),
		CreatedAt:          parseTime(d.CreatedAt),
	}
	for _, t := range d.Tiers {
		out.Tiers = append(out.Tiers, domain.Tier{
			Position:    t.Position,
			Name:        t.Name,
			AmountWei:   t.AmountWei,
			TxHash:      t.TxHash,
			BlockNumber: t.BlockNumber,
		})
	}
	return out
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
