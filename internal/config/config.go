// Package config defines the YAML step-list schema and its loader.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level bootstrap file.
type Config struct {
	// Age configures the key used by secret items and the
	// encrypt/decrypt commands.
	Age AgeConfig `yaml:"age,omitempty"`

	// Steps run in declaration order.
	Steps []Item `yaml:"steps"`
}

// AgeConfig points at the age credential. At most one field should be set.
type AgeConfig struct {
	Identity      string `yaml:"identity,omitempty"`       // path to an age identity file
	PassphraseEnv string `yaml:"passphrase_env,omitempty"` // env var holding a passphrase
}

// Item is a single declarative step. The step type is determined by which
// field is populated.
type Item struct {
	Name string   `yaml:"name"`
	Tags []string `yaml:"tags,omitempty"`

	// Machine-tag gates, evaluated at build time against the machine
	// config rather than the run's --tag filter.
	Only   []string `yaml:"only,omitempty"`
	Except []string `yaml:"except,omitempty"`

	// Package installation
	Package string `yaml:"package,omitempty"`

	// Script execution (local path or remote URL depending on via)
	Script string `yaml:"script,omitempty"`

	// Inline shell command
	Run string `yaml:"run,omitempty"`

	// Symlink from the repo into the system
	Link *LinkSpec `yaml:"link,omitempty"`

	// Age-encrypted file installed into the system
	Secret *SecretSpec `yaml:"secret,omitempty"`

	// macOS defaults write
	Defaults *DefaultsSpec `yaml:"defaults,omitempty"`

	// Shared: package manager ("brew", "apt", …) or script source
	// ("remote", "local")
	Via string `yaml:"via,omitempty"`

	// Check overrides the step type's default precondition.
	Check *CheckSpec `yaml:"check,omitempty"`
}

// CheckSpec is an explicit precondition. Exactly one field should be set.
type CheckSpec struct {
	Command string `yaml:"command,omitempty"` // satisfied when found on PATH
	Path    string `yaml:"path,omitempty"`    // satisfied when the path exists
	Shell   string `yaml:"shell,omitempty"`   // satisfied when the command exits 0
}

// LinkSpec declares a symlink from a repo-side source to a system target.
type LinkSpec struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"` // may contain ~ and $VARS
}

// SecretSpec declares an age-encrypted repo file decrypted into the system.
type SecretSpec struct {
	Source string `yaml:"source"`         // repo-side .age file
	Target string `yaml:"target"`         // may contain ~ and $VARS
	Mode   string `yaml:"mode,omitempty"` // Unix octal string, e.g. "0600"
}

// DefaultsSpec declares a macOS `defaults write` preference.
type DefaultsSpec struct {
	Domain string `yaml:"domain"`
	Key    string `yaml:"key"`
	Value  any    `yaml:"value"`
}

// Type returns the step type for this item.
func (i Item) Type() string {
	switch {
	case i.Package != "":
		return "package"
	case i.Script != "":
		return "script"
	case i.Run != "":
		return "run"
	case i.Link != nil:
		return "link"
	case i.Secret != nil:
		return "secret"
	case i.Defaults != nil:
		return "defaults"
	default:
		return "unknown"
	}
}

// Load reads, parses, and validates a YAML step file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate enforces that every step is named, recognised, and unique.
// Step names identify outcomes in run output and the history log.
func (c Config) validate() error {
	seen := make(map[string]bool, len(c.Steps))
	for idx, item := range c.Steps {
		if item.Name == "" {
			return fmt.Errorf("step %d: missing name", idx+1)
		}
		if seen[item.Name] {
			return fmt.Errorf("step %q: duplicate name", item.Name)
		}
		seen[item.Name] = true
		if item.Type() == "unknown" {
			return fmt.Errorf("step %q: no recognised type (want package, script, run, link, secret, or defaults)", item.Name)
		}
		if item.Package != "" && item.Via == "" {
			return fmt.Errorf("step %q: package requires via (package manager)", item.Name)
		}
		if item.Check != nil && item.Check.Command == "" && item.Check.Path == "" && item.Check.Shell == "" {
			return fmt.Errorf("step %q: empty check", item.Name)
		}
	}
	return nil
}

// Step returns the named step, or nil if not found.
func (c Config) Step(name string) *Item {
	for i := range c.Steps {
		if c.Steps[i].Name == name {
			return &c.Steps[i]
		}
	}
	return nil
}
