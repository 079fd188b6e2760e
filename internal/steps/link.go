package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/atomikpanda/rigup/internal/backup"
	"github.com/atomikpanda/rigup/internal/platform"
)

// linkStep symlinks a repo-side path (file or directory) into the system.
type linkStep struct {
	Source string // absolute repo-side path
	Target string // system-side path, may contain ~ and $VARS
}

func (s *linkStep) Describe() string {
	return fmt.Sprintf("link %s -> %s", s.Source, s.resolvedTarget())
}

func (s *linkStep) resolvedTarget() string {
	return platform.ExpandPath(s.Target)
}

// Check implements checker: satisfied when the target is a symlink resolving
// to the absolute source path.
func (s *linkStep) Check(context.Context) (bool, error) {
	target := s.resolvedTarget()
	info, err := os.Lstat(target)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return false, nil
	}
	dest, err := os.Readlink(target)
	if err != nil {
		return false, err
	}
	return dest == s.Source, nil
}

func (s *linkStep) Apply(_ context.Context) error {
	if _, err := os.Stat(s.Source); err != nil {
		return fmt.Errorf("link source: %w", err)
	}

	target := s.resolvedTarget()
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}

	// Preserve any real file being replaced; a stale symlink just goes.
	if _, err := backup.Keep(target); err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing target: %w", err)
	}

	if err := os.Symlink(s.Source, target); err != nil {
		return fmt.Errorf("symlink: %w", err)
	}
	return nil
}
