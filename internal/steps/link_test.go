package steps

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWithoutSymlinks(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("symlink tests need Unix semantics")
	}
	t.Setenv("HOME", t.TempDir()) // keep backups out of the real home
}

func TestLinkApplyAndCheck(t *testing.T) {
	skipWithoutSymlinks(t)
	dir := t.TempDir()
	source := filepath.Join(dir, "nvim")
	require.NoError(t, os.MkdirAll(source, 0o755))
	target := filepath.Join(dir, "config", "nvim")

	s := &linkStep{Source: source, Target: target}

	ok, err := s.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "not satisfied before apply")

	require.NoError(t, s.Apply(context.Background()))

	ok, err = s.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok, "satisfied after apply")

	dest, err := os.Readlink(target)
	require.NoError(t, err)
	assert.Equal(t, source, dest)
}

func TestLinkCheckWrongDestination(t *testing.T) {
	skipWithoutSymlinks(t)
	dir := t.TempDir()
	right := filepath.Join(dir, "right")
	wrong := filepath.Join(dir, "wrong")
	target := filepath.Join(dir, "link")
	require.NoError(t, os.WriteFile(right, nil, 0o644))
	require.NoError(t, os.WriteFile(wrong, nil, 0o644))
	require.NoError(t, os.Symlink(wrong, target))

	s := &linkStep{Source: right, Target: target}
	ok, err := s.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "a symlink to the wrong source is not satisfied")

	// Apply retargets the link.
	require.NoError(t, s.Apply(context.Background()))
	dest, err := os.Readlink(target)
	require.NoError(t, err)
	assert.Equal(t, right, dest)
}

func TestLinkCheckRegularFile(t *testing.T) {
	skipWithoutSymlinks(t)
	dir := t.TempDir()
	source := filepath.Join(dir, "zshrc")
	target := filepath.Join(dir, ".zshrc")
	require.NoError(t, os.WriteFile(source, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(target, []byte("old hand-edited"), 0o644))

	s := &linkStep{Source: source, Target: target}
	ok, err := s.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Apply(context.Background()))

	// The replaced file was preserved under the backup dir.
	home, _ := os.UserHomeDir()
	backups, err := filepath.Glob(filepath.Join(home, ".local", "share", "rigup", "backup", ".zshrc.*"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "old hand-edited", string(data))
}

func TestLinkApplyMissingSource(t *testing.T) {
	skipWithoutSymlinks(t)
	dir := t.TempDir()
	s := &linkStep{Source: filepath.Join(dir, "missing"), Target: filepath.Join(dir, "link")}
	assert.Error(t, s.Apply(context.Background()))
}
