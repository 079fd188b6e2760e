// Package tags manages machine-specific tags used to gate step eligibility.
package tags

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"gopkg.in/yaml.v3"
)

// MachineConfig is the schema of ~/.config/rigup/machine.yaml.
type MachineConfig struct {
	Tags []string `yaml:"tags"`
}

// ConfigPath returns the path to the machine config file.
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "rigup", "machine.yaml")
}

// Load reads the machine config, returning an empty config if the file does not exist.
func Load() (*MachineConfig, error) {
	data, err := os.ReadFile(ConfigPath())
	if os.IsNotExist(err) {
		return &MachineConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read machine config: %w", err)
	}
	var cfg MachineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse machine config: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to the machine config file, creating parent directories.
func Save(cfg *MachineConfig) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// AutoDetect returns a baseline set of tags derived from the current machine.
func AutoDetect() []string {
	detected := []string{runtime.GOOS, runtime.GOARCH}
	if h, err := os.Hostname(); err == nil && h != "" {
		detected = append(detected, h)
	}
	return detected
}

// EnsureInitialised writes the machine config with auto-detected tags if it
// does not already exist.
func EnsureInitialised() error {
	if _, err := os.Stat(ConfigPath()); err == nil {
		return nil // already exists
	}
	return Save(&MachineConfig{Tags: AutoDetect()})
}

// Add appends tag to the machine config if not already present.
func Add(tag string) error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	if slices.Contains(cfg.Tags, tag) {
		return nil
	}
	cfg.Tags = append(cfg.Tags, tag)
	return Save(cfg)
}

// Matches returns true when machineTags satisfies the only/except constraints
// declared on a step.
//
//   - If only is non-empty, at least one entry must be present in machineTags.
//   - If except is non-empty, none may be present in machineTags.
func Matches(machineTags, only, except []string) bool {
	for _, t := range except {
		if slices.Contains(machineTags, t) {
			return false
		}
	}
	if len(only) == 0 {
		return true
	}
	for _, t := range only {
		if slices.Contains(machineTags, t) {
			return true
		}
	}
	return false
}
