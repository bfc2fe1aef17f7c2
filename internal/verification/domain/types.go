// Package domain contains the business logic for verifying a deployed campaign.
package domain

// VerifyRequest is the request to verify a deployed contract.
type VerifyRequest struct {
	ChainID int64
	Address string
	// ConstructorArgs is the ABI-encoded constructor input (hex). Empty
	// means the value recorded in deployment history.
	ConstructorArgs string
}

// VerifyResult is the result of a verification.
type VerifyResult struct {
	Status    string // "verified" or "already_verified"
	MatchType string // on-chain bytecode match: "full", "partial", or "" when not checked
	GUID      string
	Message   string
	URL       string
	Recorded  bool // whether deployment history was updated
}
