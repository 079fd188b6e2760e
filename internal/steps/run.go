package steps

import (
	"context"
	"fmt"

	"github.com/atomikpanda/rigup/internal/shell"
)

// runStep executes an inline shell command declared directly in the step file.
// Commands that are not naturally idempotent (append to a file, clone a repo)
// should carry a check: so convergence can skip them.
type runStep struct {
	Command string
}

func (s *runStep) Describe() string {
	return fmt.Sprintf("run %q", s.Command)
}

func (s *runStep) Apply(ctx context.Context) error {
	return shell.Run(ctx, s.Command)
}
