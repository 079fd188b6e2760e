package steps

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/atomikpanda/rigup/internal/pkgmgr"
	"github.com/atomikpanda/rigup/internal/shell"
)

// packageStep installs a package via the specified package manager.
type packageStep struct {
	Package string
	Manager string // e.g. "brew", "winget", "apt"
}

func (s *packageStep) Describe() string {
	return fmt.Sprintf("install package %q via %s", s.Package, s.Manager)
}

// Check implements checker by asking the package manager.
func (s *packageStep) Check(ctx context.Context) (bool, error) {
	return pkgmgr.IsInstalled(ctx, shell.Output, s.Manager, s.Package)
}

func (s *packageStep) Apply(ctx context.Context) error {
	args, err := pkgmgr.InstallArgs(s.Manager, s.Package)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s install %s: %w", s.Manager, s.Package, err)
	}
	return nil
}
