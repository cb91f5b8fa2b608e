package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aspira-app/aspira/api/internal/governance"
)

/* governancePolicyFile is the YAML shape of an optional deployment-level
   override for the fail-closed system defaults. Omitted fields keep
   their documented defaults. */
type governancePolicyFile struct {
	ActionsEnabled      *bool           `yaml:"actions_enabled"`
	ConfidenceThreshold *float64        `yaml:"confidence_threshold"`
	ChannelPermission   map[string]bool `yaml:"channel_permission"`
	AutoApprove         map[string]bool `yaml:"auto_approve"`
}

/* LoadSystemDefaults returns the governance system defaults, applying
   overrides from the configured policy file when one is set. Critical
   auto-approval cannot be enabled from the file; the resolver hardcodes
   it off regardless. */
func (c *GovernanceConfig) LoadSystemDefaults() (governance.SystemDefaults, error) {
	defaults := governance.DefaultSystemDefaults()

	if c.PolicyFile == "" {
		return defaults, nil
	}

	data, err := os.ReadFile(c.PolicyFile)
	if err != nil {
		return defaults, fmt.Errorf("failed to read governance policy file: %w", err)
	}

	var file governancePolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return defaults, fmt.Errorf("failed to parse governance policy file: %w", err)
	}

	if file.ActionsEnabled != nil {
		defaults.ActionsEnabled = *file.ActionsEnabled
	}
	if file.ConfidenceThreshold != nil {
		defaults.ConfidenceThreshold = *file.ConfidenceThreshold
	}
	for name, allowed := range file.ChannelPermission {
		defaults.ChannelPermission[governance.Channel(name)] = allowed
	}
	for name, auto := range file.AutoApprove {
		defaults.AutoApprove[governance.RiskTier(name)] = auto
	}

	return defaults, nil
}
