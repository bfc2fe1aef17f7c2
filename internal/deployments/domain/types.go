// Package domain contains the business logic for reading deployment history.
package domain

import (
	"time"
)

// Deployment represents a recorded deployment run.
type Deployment struct {
	ID                 string
	ContractName       string
	Network            string
	ChainID            int64
	Address            string
	DeployerAddress    string
	TxHash             string
	BlockNumber        int64
	ConstructorArgs    string
	Status             string
	FailedStep         string
	Error              string
	VerificationStatus string
	VerificationGUID   string
	VerifiedAt         time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Tiers              []Tier
}

// Tier is one tier the run added to the campaign.
type Tier struct {
	Position    int
	Name        string
	AmountWei   string
	TxHash      string
	BlockNumber int64
}

// ListFilter contains filter options for listing deployments.
type ListFilter struct {
	ChainID string
	Status  string
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit int
}

// ListResult contains paginated list results.
type ListResult struct {
	Deployments []Deployment
	HasMore     bool
}
