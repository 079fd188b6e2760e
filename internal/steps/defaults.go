package steps

import (
	"context"
	"fmt"
	"strconv"

	"github.com/atomikpanda/rigup/internal/shell"
)

// defaultsStep writes a macOS preference via `defaults write`.
type defaultsStep struct {
	Domain string // bundle ID, e.g. NSGlobalDomain
	Key    string
	Value  any
}

func (s *defaultsStep) Describe() string {
	return fmt.Sprintf("defaults write %s %s = %v", s.Domain, s.Key, s.Value)
}

// Check implements checker by comparing `defaults read` output against the
// declared value. A missing key reads as a non-zero exit: not satisfied.
func (s *defaultsStep) Check(ctx context.Context) (bool, error) {
	out, err := shell.Output(ctx, "defaults", "read", s.Domain, s.Key)
	if err != nil {
		return false, nil // key not set yet
	}
	return out == defaultsReadValue(s.Value), nil
}

func (s *defaultsStep) Apply(ctx context.Context) error {
	typeFlag, val := defaultsWriteArgs(s.Value)
	if _, err := shell.Output(ctx, "defaults", "write", s.Domain, s.Key, typeFlag, val); err != nil {
		return fmt.Errorf("defaults write %s %s: %w", s.Domain, s.Key, err)
	}
	return nil
}

// defaultsWriteArgs maps a YAML value to the typed flag `defaults write` expects.
func defaultsWriteArgs(value any) (typeFlag, val string) {
	switch v := value.(type) {
	case bool:
		return "-bool", strconv.FormatBool(v)
	case int:
		return "-int", strconv.Itoa(v)
	case float64:
		return "-float", strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return "-string", v
	default:
		return "-string", fmt.Sprintf("%v", v)
	}
}

// defaultsReadValue renders the declared value the way `defaults read` prints
// it (booleans come back as 1/0).
func defaultsReadValue(value any) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
