package common

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Tier is a pricing plan a community can subscribe to.
type Tier struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"priceCents"`
	Currency    string `json:"currency"`
	Interval    string `json:"interval"` // "month" or "year"
	PriceId     string `json:"priceId"`
	TrialDays   int64  `json:"trialDays"`
}

func LoadTiers(cfgDir string) ([]Tier, error) {
	buf, err := os.ReadFile(filepath.Join(cfgDir, DEFAULT_TIERS_FILE))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", DEFAULT_TIERS_FILE, err)
	}

	var tiers []Tier
	if err := json.Unmarshal(buf, &tiers); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", DEFAULT_TIERS_FILE, err)
	}

	for _, t := range tiers {
		if t.ID == "" {
			return nil, fmt.Errorf("tier without id in %s", DEFAULT_TIERS_FILE)
		}
	}

	return tiers, nil
}

func GetTier(tiers []Tier, tierID string) *Tier {
	for i := range tiers {
		if tiers[i].ID == tierID {
			return &tiers[i]
		}
	}
	return nil
}
