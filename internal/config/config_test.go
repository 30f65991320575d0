package config

import (
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AgentCommand != "claude" {
		t.Errorf("unexpected agent command %q", cfg.AgentCommand)
	}
	if cfg.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("unexpected max attempts %d", cfg.MaxAttempts)
	}
	if cfg.StepTimeoutMS != DefaultStepTimeoutMS || cfg.VerifyTimeoutMS != DefaultVerifyTimeoutMS {
		t.Errorf("unexpected timeouts: %d / %d", cfg.StepTimeoutMS, cfg.VerifyTimeoutMS)
	}
	if cfg.BaseDir == "" {
		t.Error("expected a base directory")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvMaxAttempts, "5")
	t.Setenv(EnvStepTimeoutMS, "1000")
	t.Setenv(EnvVerifyTimeoutMS, "2000")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxAttempts != 5 {
		t.Errorf("env should override max attempts, got %d", cfg.MaxAttempts)
	}
	if cfg.StepTimeoutMS != 1000 || cfg.VerifyTimeoutMS != 2000 {
		t.Errorf("env should override timeouts, got %d / %d", cfg.StepTimeoutMS, cfg.VerifyTimeoutMS)
	}
}

func TestEnvOverridesIgnoreGarbage(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvMaxAttempts, "lots")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("garbage env value should be ignored, got %d", cfg.MaxAttempts)
	}
}

func TestStateLayout(t *testing.T) {
	cfg := &Config{BaseDir: "/base"}

	if got := cfg.LockPath("widget"); got != "/base/widget.lock" {
		t.Errorf("lock path: %q", got)
	}
	if got := cfg.CheckpointPath("widget"); got != "/base/widget.checkpoint.json" {
		t.Errorf("checkpoint path: %q", got)
	}
	if got := cfg.StepLogPath("widget", "1.2", "agent", 3); got != filepath.Join("/base", "logs", "widget", "step-1.2", "agent_attempt_3.txt") {
		t.Errorf("step log path: %q", got)
	}
	if got := cfg.GateLogPath("widget", 2); got != filepath.Join("/base", "logs", "widget", "phase_2_gate.txt") {
		t.Errorf("gate log path: %q", got)
	}
}
