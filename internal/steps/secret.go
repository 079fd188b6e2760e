package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/atomikpanda/rigup/internal/backup"
	"github.com/atomikpanda/rigup/internal/platform"
	"github.com/atomikpanda/rigup/internal/secrets"
)

// secretStep decrypts an age-encrypted repo file into the system.
type secretStep struct {
	Source string // absolute repo-side .age file
	Target string // system-side path, may contain ~ and $VARS
	Mode   string // Unix octal string, e.g. "0600"
	Key    *secrets.Key
}

func (s *secretStep) Describe() string {
	return fmt.Sprintf("install secret %s -> %s", filepath.Base(s.Source), s.resolvedTarget())
}

func (s *secretStep) resolvedTarget() string {
	return platform.ExpandPath(s.Target)
}

// Check implements checker: satisfied when the target exists. Comparing
// contents would mean decrypting on every run; --strict forces a re-install
// when that matters.
func (s *secretStep) Check(context.Context) (bool, error) {
	_, err := os.Stat(s.resolvedTarget())
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *secretStep) Apply(_ context.Context) error {
	mode, err := parseMode(s.Mode)
	if err != nil {
		return err
	}

	target := s.resolvedTarget()
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}
	if _, err := backup.Keep(target); err != nil {
		return err
	}

	if err := s.Key.DecryptFile(s.Source, target, mode); err != nil {
		return fmt.Errorf("install secret: %w", err)
	}
	return nil
}

// parseMode converts a Unix octal string ("0600") to a FileMode.
// Empty means "use the default" (zero value).
func parseMode(mode string) (os.FileMode, error) {
	if mode == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(mode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: %w", mode, err)
	}
	return os.FileMode(n), nil
}
