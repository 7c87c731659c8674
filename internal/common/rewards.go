package common

import (
	"fmt"
	"os"
	"path/filepath"

	"cc-wager-escrow-go/internal/models"

	"gopkg.in/yaml.v2"
)

type rewardsFileDoc struct {
	Rewards *models.RewardTable `yaml:"rewards"`
}

// LoadRewardTable reads the casual-game reward table. An empty path yields the defaults.
func LoadRewardTable(rewardsFile string) (models.RewardTable, error) {
	if rewardsFile == "" {
		return models.DefaultRewardTable(), nil
	}

	rewardsPath := rewardsFile
	if !filepath.IsAbs(rewardsPath) {
		wd, err := os.Getwd()
		if err != nil {
			return models.RewardTable{}, fmt.Errorf("failed to get working directory: %w", err)
		}
		rewardsPath = filepath.Join(wd, rewardsFile)
	}

	data, err := os.ReadFile(rewardsPath)
	if err != nil {
		return models.RewardTable{}, fmt.Errorf("unable to read %s: %w", rewardsFile, err)
	}

	var parsed rewardsFileDoc
	if err := yaml.UnmarshalStrict(data, &parsed); err != nil {
		return models.RewardTable{}, fmt.Errorf("unable to parse %s: %w", rewardsFile, err)
	}
	if parsed.Rewards == nil {
		return models.RewardTable{}, fmt.Errorf("%s has no rewards section", rewardsFile)
	}

	table := *parsed.Rewards
	for name, v := range map[string]int64{"win": table.Win, "loss": table.Loss, "draw": table.Draw, "indeterminate": table.Indeterminate} {
		if v < 0 {
			return models.RewardTable{}, fmt.Errorf("reward %s cannot be negative: %d", name, v)
		}
	}
	return table, nil
}
