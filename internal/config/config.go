// Package config holds orchestrator settings: the agent command, retry
// and timeout policy, and the base directory for persisted run state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Defaults. Timeouts are deliberately generous: agent invocations run
// real builds and test suites.
const (
	DefaultMaxAttempts     = 3
	DefaultStepTimeoutMS   = 30 * 60 * 1000
	DefaultVerifyTimeoutMS = 10 * 60 * 1000
	DefaultAgentCommand    = "claude"
)

// Environment overrides, applied on top of the config file.
const (
	EnvMaxAttempts     = "SPECRUN_MAX_ATTEMPTS"
	EnvStepTimeoutMS   = "SPECRUN_STEP_TIMEOUT_MS"
	EnvVerifyTimeoutMS = "SPECRUN_VERIFY_TIMEOUT_MS"
)

// Config is the flat specrun configuration.
type Config struct {
	AgentCommand    string   `json:"agent_command"`
	AgentArgs       []string `json:"agent_args,omitempty"`
	MaxAttempts     int      `json:"max_attempts"`
	StepTimeoutMS   int      `json:"step_timeout_ms"`
	VerifyTimeoutMS int      `json:"verify_timeout_ms"`
	BaseDir         string   `json:"base_dir,omitempty"`
}

// Default returns the built-in configuration with BaseDir under the
// user's home directory.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return &Config{
		AgentCommand:    DefaultAgentCommand,
		AgentArgs:       []string{"-p"},
		MaxAttempts:     DefaultMaxAttempts,
		StepTimeoutMS:   DefaultStepTimeoutMS,
		VerifyTimeoutMS: DefaultVerifyTimeoutMS,
		BaseDir:         filepath.Join(home, ".specrun"),
	}, nil
}

// Load builds the effective configuration: defaults, then the optional
// config.json in the base directory, then environment overrides.
func Load() (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	path := filepath.Join(cfg.BaseDir, "config.json")
	if data, err := os.ReadFile(path); err == nil {
		var file Config
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		cfg.merge(&file)
	}

	cfg.applyEnv()
	return cfg, nil
}

// Save writes the configuration to config.json in its base directory.
func Save(cfg *Config) error {
	if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
		return fmt.Errorf("failed to create base directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(cfg.BaseDir, "config.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) merge(file *Config) {
	if file.AgentCommand != "" {
		c.AgentCommand = file.AgentCommand
	}
	if len(file.AgentArgs) > 0 {
		c.AgentArgs = file.AgentArgs
	}
	if file.MaxAttempts > 0 {
		c.MaxAttempts = file.MaxAttempts
	}
	if file.StepTimeoutMS > 0 {
		c.StepTimeoutMS = file.StepTimeoutMS
	}
	if file.VerifyTimeoutMS > 0 {
		c.VerifyTimeoutMS = file.VerifyTimeoutMS
	}
	if file.BaseDir != "" {
		c.BaseDir = file.BaseDir
	}
}

func (c *Config) applyEnv() {
	if v := envInt(EnvMaxAttempts); v > 0 {
		c.MaxAttempts = v
	}
	if v := envInt(EnvStepTimeoutMS); v > 0 {
		c.StepTimeoutMS = v
	}
	if v := envInt(EnvVerifyTimeoutMS); v > 0 {
		c.VerifyTimeoutMS = v
	}
}

func envInt(name string) int {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}

// Persisted state layout, keyed by spec name under BaseDir.

// LockPath returns the lock file path for a spec.
func (c *Config) LockPath(specName string) string {
	return filepath.Join(c.BaseDir, specName+".lock")
}

// CheckpointPath returns the checkpoint file path for a spec.
func (c *Config) CheckpointPath(specName string) string {
	return filepath.Join(c.BaseDir, specName+".checkpoint.json")
}

// LogDir returns the transcript directory for a spec.
func (c *Config) LogDir(specName string) string {
	return filepath.Join(c.BaseDir, "logs", specName)
}

// StepLogPath returns the transcript path for one attempt of a step.
// kind is "agent" or "verify".
func (c *Config) StepLogPath(specName, stepID, kind string, attempt int) string {
	return filepath.Join(c.LogDir(specName), "step-"+stepID, fmt.Sprintf("%s_attempt_%d.txt", kind, attempt))
}

// GateLogPath returns the transcript path for a phase gate.
func (c *Config) GateLogPath(specName string, phase int) string {
	return filepath.Join(c.LogDir(specName), fmt.Sprintf("phase_%d_gate.txt", phase))
}

// WorkspacePath returns where a spec's isolated worktree lives.
func (c *Config) WorkspacePath(specName string) string {
	return filepath.Join(c.BaseDir, "workspaces", specName)
}

// DBPath returns the control-server registry database path.
func (c *Config) DBPath() string {
	return filepath.Join(c.BaseDir, "specrun.db")
}
