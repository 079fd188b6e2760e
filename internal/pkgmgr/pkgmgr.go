// Package pkgmgr knows how to drive host package managers: the argv needed to
// install a package and a side-effect-free probe for whether it is already
// installed.
package pkgmgr

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes a probe command and returns its combined output. It exists
// so tests can substitute fake manager output; production code passes
// shell.Output.
type Runner func(ctx context.Context, argv ...string) (string, error)

// InstallArgs returns the command + arguments needed to install pkg with the
// given manager.
func InstallArgs(manager, pkg string) ([]string, error) {
	switch manager {
	case "brew":
		return []string{"brew", "install", pkg}, nil
	case "brew-cask":
		return []string{"brew", "install", "--cask", pkg}, nil
	case "mas":
		return []string{"mas", "install", pkg}, nil
	case "winget":
		return []string{"winget", "install", "--id", pkg, "-e", "--accept-source-agreements"}, nil
	case "choco":
		return []string{"choco", "install", pkg, "-y"}, nil
	case "scoop":
		return []string{"scoop", "install", pkg}, nil
	case "apt", "apt-get":
		return []string{"sudo", "apt-get", "install", "-y", pkg}, nil
	case "dnf":
		return []string{"sudo", "dnf", "install", "-y", pkg}, nil
	case "yum":
		return []string{"sudo", "yum", "install", "-y", pkg}, nil
	case "pacman":
		return []string{"sudo", "pacman", "-S", "--noconfirm", pkg}, nil
	case "snap":
		return []string{"sudo", "snap", "install", pkg}, nil
	case "flatpak":
		return []string{"flatpak", "install", "-y", pkg}, nil
	case "nix":
		return []string{"nix-env", "-iA", pkg}, nil
	default:
		return nil, fmt.Errorf("unknown package manager: %q", manager)
	}
}

// IsInstalled probes the manager for pkg. Managers without a cheap listing
// command fall back to a PATH lookup on the package name, which is right for
// CLI tools and conservatively wrong (false) for everything else. The
// install then simply re-runs, which every supported manager tolerates.
func IsInstalled(ctx context.Context, run Runner, manager, pkg string) (bool, error) {
	switch manager {
	case "brew":
		return listedExactly(ctx, run, pkg, "brew", "list", "--formula", "-1")
	case "brew-cask":
		return listedExactly(ctx, run, pkg, "brew", "list", "--cask", "-1")
	case "mas":
		return masInstalled(ctx, run, pkg)
	case "apt", "apt-get":
		return dpkgInstalled(ctx, run, pkg)
	case "pacman":
		_, err := run(ctx, "pacman", "-Qi", pkg)
		if err != nil {
			if _, exit := err.(*exec.ExitError); exit {
				return false, nil
			}
			return false, err
		}
		return true, nil
	case "snap":
		return listedInColumn(ctx, run, pkg, "snap", "list")
	case "flatpak":
		return listedInColumn(ctx, run, pkg, "flatpak", "list", "--app", "--columns=application")
	default:
		return onPath(pkg), nil
	}
}

// listedExactly runs argv and reports whether any output line equals pkg.
func listedExactly(ctx context.Context, run Runner, pkg string, argv ...string) (bool, error) {
	out, err := run(ctx, argv...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", argv[0], err)
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == pkg {
			return true, nil
		}
	}
	return false, nil
}

// listedInColumn matches pkg against the first whitespace column of each line.
func listedInColumn(ctx context.Context, run Runner, pkg string, argv ...string) (bool, error) {
	out, err := run(ctx, argv...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", argv[0], err)
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == pkg {
			return true, nil
		}
	}
	return false, nil
}

// masInstalled parses `mas list` output, whose lines start with the numeric
// app id followed by the app name.
func masInstalled(ctx context.Context, run Runner, appID string) (bool, error) {
	out, err := run(ctx, "mas", "list")
	if err != nil {
		return false, fmt.Errorf("mas list: %w", err)
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == appID {
			return true, nil
		}
	}
	return false, nil
}

// dpkgInstalled asks dpkg-query for the package status. A non-zero exit means
// "not installed" rather than a probe failure.
func dpkgInstalled(ctx context.Context, run Runner, pkg string) (bool, error) {
	out, err := run(ctx, "dpkg-query", "-W", "-f=${Status}", pkg)
	if err != nil {
		if _, exit := err.(*exec.ExitError); exit {
			return false, nil
		}
		return false, fmt.Errorf("dpkg-query: %w", err)
	}
	return strings.Contains(out, "install ok installed"), nil
}

func onPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
