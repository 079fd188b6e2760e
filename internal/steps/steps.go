// Package steps turns config items into executable engine steps, pairing each
// with its default idempotence check.
package steps

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/atomikpanda/rigup/internal/config"
	"github.com/atomikpanda/rigup/internal/engine"
	"github.com/atomikpanda/rigup/internal/platform"
	"github.com/atomikpanda/rigup/internal/secrets"
	"github.com/atomikpanda/rigup/internal/shell"
	"github.com/atomikpanda/rigup/internal/tags"
)

// step is a single executable unit produced from a config item.
type step interface {
	// Describe returns a human-readable summary of the step's action.
	Describe() string
	// Apply establishes the step's desired state.
	Apply(ctx context.Context) error
}

// checker is optionally implemented by step types that can self-check whether
// their desired state already holds.
//
// Idempotency contracts per step type:
//   - packageStep: queries the package manager. Side-effect free.
//   - linkStep: checks that the symlink exists and resolves to the correct
//     absolute source path.
//   - secretStep: checks that the target file exists (content comparison
//     would require decrypting on every run).
//   - defaultsStep: compares `defaults read` output against the value.
//   - scriptStep, runStep: no default check; use the item's check: field.
type checker interface {
	Check(ctx context.Context) (bool, error)
}

// Built couples an engine step with display metadata for the CLI.
type Built struct {
	engine.Step
	Type string
	Desc string
}

// Skip records an item excluded at build time, before the engine ever sees it.
type Skip struct {
	Name   string
	Reason string
}

// Builder converts config items into engine steps for the current machine.
type Builder struct {
	DryRun      bool
	OS          string   // runtime.GOOS value
	MachineTags []string // from the machine config
	BaseDir     string   // directory of the step file; resolves repo-relative sources
	AgeKey      *secrets.Key
	Out         io.Writer

	// Confirm, when set, is asked before each pending step's action runs.
	// A declined step is skipped for this run with a distinct reason.
	Confirm func(desc string) (bool, error)
}

// NewBuilder creates a Builder for the current platform.
func NewBuilder(baseDir string, machineTags []string, ageKey *secrets.Key, dryRun bool) *Builder {
	return &Builder{
		DryRun:      dryRun,
		OS:          platform.Current(),
		MachineTags: machineTags,
		BaseDir:     baseDir,
		AgeKey:      ageKey,
		Out:         os.Stdout,
	}
}

// Build converts every eligible item, preserving declaration order. Items
// gated out by machine tags or a foreign package manager are returned as
// build-time skips rather than engine outcomes: they can never converge on
// this host, so re-running will not change their status.
func (b *Builder) Build(items []config.Item) ([]Built, []Skip, error) {
	var built []Built
	var skipped []Skip

	for _, item := range items {
		if !tags.Matches(b.MachineTags, item.Only, item.Except) {
			skipped = append(skipped, Skip{item.Name, "machine tags"})
			continue
		}
		if item.Type() == "package" && b.foreignManager(item.Via) {
			skipped = append(skipped, Skip{item.Name, fmt.Sprintf("%s not available on %s", item.Via, b.OS)})
			continue
		}

		s, err := b.construct(item)
		if err != nil {
			return nil, nil, fmt.Errorf("step %q: %w", item.Name, err)
		}
		built = append(built, b.assemble(item, s))
	}
	return built, skipped, nil
}

// construct picks the concrete step type for an item.
func (b *Builder) construct(item config.Item) (step, error) {
	switch item.Type() {
	case "package":
		return &packageStep{Package: item.Package, Manager: item.Via}, nil
	case "script":
		return &scriptStep{Script: item.Script, Via: item.Via, BaseDir: b.BaseDir}, nil
	case "run":
		return &runStep{Command: item.Run}, nil
	case "link":
		return &linkStep{
			Source: absSource(b.BaseDir, item.Link.Source),
			Target: item.Link.Target,
		}, nil
	case "secret":
		if b.AgeKey == nil {
			return nil, fmt.Errorf("secret item requires an age key (set age: in the step file or %s)", secrets.EnvIdentity)
		}
		return &secretStep{
			Source: absSource(b.BaseDir, secrets.EncryptedPath(item.Secret.Source)),
			Target: item.Secret.Target,
			Mode:   item.Secret.Mode,
			Key:    b.AgeKey,
		}, nil
	case "defaults":
		if b.OS != "darwin" {
			return nil, fmt.Errorf("defaults items only apply on macOS (gate with only: [darwin])")
		}
		return &defaultsStep{
			Domain: item.Defaults.Domain,
			Key:    item.Defaults.Key,
			Value:  item.Defaults.Value,
		}, nil
	default:
		return nil, fmt.Errorf("no recognised type: %+v", item)
	}
}

// assemble wires the concrete step, the item's check override, dry-run, and
// the interactive confirm into an engine step.
func (b *Builder) assemble(item config.Item, s step) Built {
	check := b.checkFunc(item, s)
	apply := s.Apply
	desc := s.Describe()

	if b.DryRun {
		apply = func(context.Context) error {
			fmt.Fprintf(b.Out, "    [dry-run] %s\n", desc)
			return nil
		}
	}
	if b.Confirm != nil && !b.DryRun {
		inner := check
		check = func(ctx context.Context) (bool, error) {
			if inner != nil {
				satisfied, err := inner(ctx)
				if err != nil || satisfied {
					return satisfied, err
				}
			}
			ok, err := b.Confirm(desc)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, &engine.SkipError{Reason: engine.ReasonDeclined}
			}
			return false, nil
		}
	}

	return Built{
		Step: engine.Step{
			Name:  item.Name,
			Tags:  item.Tags,
			Check: check,
			Apply: apply,
		},
		Type: item.Type(),
		Desc: desc,
	}
}

// checkFunc resolves the precondition: an explicit check: override wins,
// otherwise the step type's own check is used when it has one.
func (b *Builder) checkFunc(item config.Item, s step) func(context.Context) (bool, error) {
	if item.Check != nil {
		return explicitCheck(*item.Check)
	}
	if c, ok := s.(checker); ok {
		return c.Check
	}
	return nil
}

// explicitCheck builds the precondition for a check: override.
func explicitCheck(spec config.CheckSpec) func(context.Context) (bool, error) {
	switch {
	case spec.Command != "":
		return func(context.Context) (bool, error) {
			_, err := exec.LookPath(spec.Command)
			return err == nil, nil
		}
	case spec.Path != "":
		return func(context.Context) (bool, error) {
			_, err := os.Stat(platform.ExpandPath(spec.Path))
			if err == nil {
				return true, nil
			}
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, err
		}
	default:
		return func(ctx context.Context) (bool, error) {
			return shell.Eval(ctx, spec.Shell)
		}
	}
}

// foreignManager returns true when the package manager is known to be
// unavailable on the current OS.
func (b *Builder) foreignManager(manager string) bool {
	targetOS := platform.PackageManagerOS(manager)
	if targetOS == "" {
		return false // cross-platform manager, never skip
	}
	return targetOS != b.OS
}

// absSource resolves a repo-relative source against the step file's directory.
func absSource(baseDir, source string) string {
	expanded := platform.ExpandPath(source)
	if filepath.IsAbs(expanded) {
		return expanded
	}
	return filepath.Join(baseDir, expanded)
}
