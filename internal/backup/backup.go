// Package backup preserves files a step is about to replace, so converging a
// machine never silently destroys a hand-edited config.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Keep copies target into the backup directory when it is an existing regular
// file, returning the saved path. It returns "" when there is nothing to
// preserve: a missing target, or a symlink (the link itself carries no
// content worth keeping).
func Keep(target string) (string, error) {
	info, err := os.Lstat(target)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", target, err)
	}
	if !info.Mode().IsRegular() {
		return "", nil
	}

	dir, err := backupDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	saved := filepath.Join(dir, fmt.Sprintf("%s.%d", filepath.Base(target), time.Now().Unix()))
	if err := copyFile(target, saved, info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("back up %s: %w", target, err)
	}
	return saved, nil
}

func backupDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "rigup", "backup"), nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
