package crowdfunding

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/pendergraft/crowdfund-deploy/internal/config"
	"github.com/pendergraft/crowdfund-deploy/internal/validation"
)

const etherDecimals = 18

// ParseEther scales a decimal ether amount ("0.1") to wei.
func ParseEther(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid ether amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid ether amount %q: negative", s)
	}
	wei := d.Shift(etherDecimals)
	if !wei.IsInteger() {
		return nil, fmt.Errorf("invalid ether amount %q: more than %d decimals", s, etherDecimals)
	}
	return wei.BigInt(), nil
}

// FormatEther renders wei as a decimal ether string
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -etherDecimals).String()
}

// ArgsFromPlan converts the campaign section of a plan. An empty owner
// means the deployer.
func ArgsFromPlan(campaign config.CampaignPlan, deployer common.Address) (ConstructorArgs, error) {
	owner := deployer
	if campaign.Owner != "" {
		if err := validation.ValidateAddress(campaign.Owner); err != nil {
			return ConstructorArgs{}, fmt.Errorf("campaign owner: %w", err)
		}
		owner = common.HexToAddress(campaign.Owner)
	}

	goal, err := ParseEther(campaign.Goal)
	if err != nil {
		return ConstructorArgs{}, fmt.Errorf("campaign goal: %w", err)
	}
	if campaign.DurationDays <= 0 {
		return ConstructorArgs{}, errors.New("campaign duration must be positive")
	}

	return ConstructorArgs{
		Owner:        owner,
		Name:         campaign.Name,
		Description:  campaign.Description,
		Goal:         goal,
		DurationDays: big.NewInt(campaign.DurationDays),
	}, nil
}

// TiersFromPlan converts plan tiers, keeping their order and duplicates
func TiersFromPlan(plans []config.TierPlan) ([]Tier, error) {
	tiers := make([]Tier, 0, len(plans))
	for i, p := range plans {
		if err := validation.ValidateTierName(p.Name); err != nil {
			return nil, fmt.Errorf("tier %d: %w", i+1, err)
		}
		amount, err := ParseEther(p.Amount)
		if err != nil {
			return nil, fmt.Errorf("tier %d (%s): %w", i+1, p.Name, err)
		}
		tiers = append(tiers, Tier{Name: p.Name, Amount: amount})
	}
	return tiers, nil
}
