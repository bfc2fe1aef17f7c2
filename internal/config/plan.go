package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// planFiles is the search order for campaign plan files
var planFiles = []string{"crowdfund.toml", "crowdfund.yaml", "crowdfund.yml"}

// Plan describes the campaign to deploy and the tiers to seed afterwards.
// Amounts are decimal ether strings so plan files stay human readable.
type Plan struct {
	Campaign CampaignPlan `toml:"campaign" yaml:"campaign"`
	Tiers    []TierPlan   `toml:"tiers" yaml:"tiers"`
}

// CampaignPlan holds the CrowdFunding constructor arguments
type CampaignPlan struct {
	Owner        string `toml:"owner,omitempty" yaml:"owner,omitempty"` // empty = deployer address
	Name         string `toml:"name" yaml:"name"`
	Description  string `toml:"description" yaml:"description"`
	Goal         string `toml:"goal" yaml:"goal"`
	DurationDays int64  `toml:"duration_days" yaml:"duration_days"`
}

// TierPlan is one addTier call
type TierPlan struct {
	Name   string `toml:"name" yaml:"name"`
	Amount string `toml:"amount" yaml:"amount"`
}

// DefaultPlan returns the campaign the project ships with. Tiers are seeded
// in this literal order, duplicates included.
func DefaultPlan() *Plan {
	return &Plan{
		Campaign: CampaignPlan{
			Name:         "Example Campaign",
			Description:  "This is an example crowdfunding campaign",
			Goal:         "1000",
			DurationDays: 30,
		},
		Tiers: []TierPlan{
			{Name: "Bronze", Amount: "0.1"},
			{Name: "Silver", Amount: "0.3"},
			{Name: "Gold", Amount: "0.5"},
			{Name: "Gold", Amount: "0.001"},
		},
	}
}

// LoadPlan reads a plan from path, or from the first plan file found in the
// working directory when path is empty. With no file at all the default plan
// is returned.
func LoadPlan(path string) (*Plan, string, error) {
	if path == "" {
		for _, candidate := range planFiles {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		return DefaultPlan(), "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading plan: %w", err)
	}

	plan := &Plan{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), plan); err != nil {
			return nil, "", fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, plan); err != nil {
			return nil, "", fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, "", fmt.Errorf("unsupported plan format: %s", path)
	}

	if err := plan.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return plan, path, nil
}

// Validate checks the plan for missing fields. Amount syntax is checked when
// the amounts are converted to wei.
func (p *Plan) Validate() error {
	if p.Campaign.Name == "" {
		return fmt.Errorf("campaign name is required")
	}
	if p.Campaign.Goal == "" {
		return fmt.Errorf("campaign goal is required")
	}
	if p.Campaign.DurationDays <= 0 {
		return fmt.Errorf("campaign duration_days must be positive")
	}
	for i, t := range p.Tiers {
		if t.Name == "" {
			return fmt.Errorf("tier %d: name is required", i+1)
		}
		if t.Amount == "" {
			return fmt.Errorf("tier %d (%s): amount is required", i+1, t.Name)
		}
	}
	return nil
}

// EncodeTOML renders the plan as a TOML document.
func (p *Plan) EncodeTOML() ([]byte, error) {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(p); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}
