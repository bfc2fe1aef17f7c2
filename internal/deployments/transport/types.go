// Package transport provides HTTP request/response types for the deployments domain.
package transport

import (
	"time"

	"github.com/pendergraft/crowdfund-deploy/internal/deployments/domain"
)

// DeploymentListResponse is the response for listing deployments.
type DeploymentListResponse struct {
	Data       []DeploymentItem `json:"data"`
	Pagination Pagination       `json:"pagination"`
}

// DeploymentItem is a deployment in a list.
type DeploymentItem struct {
	ChainID            int64  `json:"chainId"`
	Network            string `json:"network"`
	Address            string `json:"address"`
	ContractName       string `json:"contractName"`
	Status             string `json:"status"`
	VerificationStatus string `json:"verificationStatus,omitempty"`
	TxHash             string `json:"txHash"`
	CreatedAt          string `json:"createdAt"`
}

// Pagination provides pagination metadata.
type Pagination struct {
	Limit   int  `json:"limit"`
	HasMore bool `json:"hasMore"`
}

// DeploymentResponse is the response for getting a deployment.
type DeploymentResponse struct {
	ID                 string         `json:"id"`
	ChainID            int64          `json:"chainId"`
	Network            string         `json:"network"`
	Address            string         `json:"address"`
	ContractName       string         `json:"contractName"`
	DeployerAddress    string         `json:"deployerAddress"`
	TxHash             string         `json:"txHash"`
	BlockNumber        int64          `json:"blockNumber"`
	ConstructorArgs    string         `json:"constructorArgs,omitempty"`
	Status             string         `json:"status"`
	FailedStep         string         `json:"failedStep,omitempty"`
	Error              string         `json:"error,omitempty"`
	VerificationStatus string         `json:"verificationStatus,omitempty"`
	VerificationGUID   string         `json:"verificationGuid,omitempty"`
	VerifiedAt         string         `json:"verifiedAt,omitempty"`
	CreatedAt          string         `json:"createdAt"`
	Tiers              []TierResponse `json:"tiers"`
}

// TierResponse is a seeded tier.
type TierResponse struct {
	Position    int    `json:"position"`
	Name        string `json:"name"`
	AmountWei   string `json:"amountWei"`
	TxHash      string `json:"txHash"`
	BlockNumber int64  `json:"blockNumber"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToItem converts a deployment to its list representation
func ToItem(d domain.Deployment) DeploymentItem {
	return DeploymentItem{
		ChainID:            d.ChainID,
		Network:            d.Network,
		Address:            d.Address,
		ContractName:       d.ContractName,
		Status:             d.Status,
		VerificationStatus: d.VerificationStatus,
		TxHash:             d.TxHash,
		CreatedAt:          formatTime(d.CreatedAt),
	}
}

// ToResponse converts a deployment and its tiers to the detail representation
func ToResponse(d *domain.Deployment) DeploymentResponse {
	tiers := make([]TierResponse, len(d.Tiers))
	for i, t := range d.Tiers {
		tiers[i] = TierResponse{
			Position:    t.Position,
			Name:        t.Name,
			AmountWei:   t.AmountWei,
			TxHash:      t.TxHash,
			BlockNumber: t.BlockNumber,
		}
	}
	return DeploymentResponse{
		ID:                 d.ID,
		ChainID:            d.ChainID,
		Network:            d.Network,
		Address:            d.Address,
		ContractName:       d.ContractName,
		DeployerAddress:    d.DeployerAddress,
		TxHash:             d.TxHash,
		BlockNumber:        d.BlockNumber,
		ConstructorArgs:    d.ConstructorArgs,
		Status:             d.Status,
		FailedStep:         d.FailedStep,
		Error:              d.Error,
		VerificationStatus: d.VerificationStatus,
		VerificationGUID:   d.VerificationGUID,
		VerifiedAt:         formatTime(d.VerifiedAt),
		CreatedAt:          formatTime(d.CreatedAt),
		Tiers:              tiers,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
