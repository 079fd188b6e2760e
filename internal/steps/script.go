package steps

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// scriptStep runs a shell script, either from a local path or a remote URL.
// Typical use is a vendor installer (homebrew, rustup) fetched and executed
// once; pair it with a check: so re-runs can skip it.
type scriptStep struct {
	Script  string
	Via     string // "remote" or "local"
	BaseDir string // resolves relative local paths
}

func (s *scriptStep) Describe() string {
	via := s.Via
	if via == "" {
		via = "local"
	}
	return fmt.Sprintf("run script %q (via %s)", s.Script, via)
}

func (s *scriptStep) Apply(ctx context.Context) error {
	switch s.Via {
	case "remote":
		return runRemoteScript(ctx, s.Script)
	case "local", "":
		path := s.Script
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.BaseDir, path)
		}
		return execScript(ctx, path)
	default:
		return fmt.Errorf("unknown script source %q; expected \"remote\" or \"local\"", s.Via)
	}
}

func runRemoteScript(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}
	script, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "rigup-*.sh")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(script); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o755); err != nil {
		return err
	}

	return execScript(ctx, tmp.Name())
}

func execScript(ctx context.Context, path string) error {
	sh := "bash"
	if runtime.GOOS == "windows" {
		sh = "powershell"
	}
	cmd := exec.CommandContext(ctx, sh, path)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}
