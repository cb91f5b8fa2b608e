package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aspira-app/aspira/api/internal/governance"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Server.Port != "8081" {
		t.Errorf("expected default port 8081, got %s", cfg.Server.Port)
	}
	if cfg.Governance.SweepInterval != 60*time.Second {
		t.Errorf("expected default sweep interval 60s, got %v", cfg.Governance.SweepInterval)
	}
	if cfg.Governance.RolloutPercent != 100 {
		t.Errorf("expected default rollout 100, got %d", cfg.Governance.RolloutPercent)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	os.Setenv("GOVERNANCE_SWEEP_INTERVAL", "30s")
	defer os.Unsetenv("GOVERNANCE_SWEEP_INTERVAL")

	cfg := Load()
	if cfg.Governance.SweepInterval != 30*time.Second {
		t.Errorf("expected sweep interval 30s, got %v", cfg.Governance.SweepInterval)
	}
}

func TestLoadSystemDefaults_NoFile(t *testing.T) {
	gc := GovernanceConfig{}

	defaults, err := gc.LoadSystemDefaults()
	if err != nil {
		t.Fatalf("LoadSystemDefaults() error = %v", err)
	}

	if defaults.ActionsEnabled {
		t.Error("expected fail-closed defaults without a policy file")
	}
	if defaults.ConfidenceThreshold != 0.70 {
		t.Errorf("expected threshold 0.70, got %v", defaults.ConfidenceThreshold)
	}
}

func TestLoadSystemDefaults_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `
actions_enabled: true
confidence_threshold: 0.85
channel_permission:
  email: true
  sms: true
auto_approve:
  medium: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}

	gc := GovernanceConfig{PolicyFile: path}
	defaults, err := gc.LoadSystemDefaults()
	if err != nil {
		t.Fatalf("LoadSystemDefaults() error = %v", err)
	}

	if !defaults.ActionsEnabled {
		t.Error("expected actions enabled from file")
	}
	if defaults.ConfidenceThreshold != 0.85 {
		t.Errorf("expected threshold 0.85, got %v", defaults.ConfidenceThreshold)
	}
	if !defaults.ChannelPermission[governance.ChannelEmail] {
		t.Error("expected email channel enabled from file")
	}
	if !defaults.AutoApprove[governance.RiskMedium] {
		t.Error("expected medium auto-approve from file")
	}
	// Low stays on from the base defaults.
	if !defaults.AutoApprove[governance.RiskLow] {
		t.Error("expected low auto-approve preserved")
	}
}

func TestLoadSystemDefaults_MissingFile(t *testing.T) {
	gc := GovernanceConfig{PolicyFile: "/nonexistent/policy.yaml"}
	if _, err := gc.LoadSystemDefaults(); err == nil {
		t.Error("expected error for missing policy file")
	}
}
