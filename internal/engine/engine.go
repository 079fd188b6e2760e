// Package engine runs an ordered list of declarative steps to convergence.
// Each step pairs an idempotence check with an apply action; the engine only
// orchestrates and never interprets what an action does.
package engine

import (
	"context"
	"errors"
	"slices"
)

// Step is one declarative unit of desired system state.
//
// The idempotence contract: once Apply has succeeded, a subsequent Check must
// return true. A step that violates this is misconfigured; the engine surfaces
// the violation in strict mode but does not work around it.
type Step struct {
	Name string
	Tags []string

	// Check reports whether the desired state already holds. A nil Check
	// means the step is never considered satisfied up front (always apply).
	Check func(ctx context.Context) (bool, error)

	// Apply establishes the desired state. All host mutation happens here.
	Apply func(ctx context.Context) error
}

// Options controls a single run.
type Options struct {
	// TagFilter limits the run to steps whose tags intersect it. Empty
	// means no filtering. Untagged steps are universal and always eligible.
	TagFilter []string

	// AbortOnError stops the run at the first failed step.
	AbortOnError bool

	// StrictVerify re-runs Check after a successful Apply and fails the
	// step when the postcondition still does not hold.
	StrictVerify bool
}

// Status classifies one step attempt.
type Status string

const (
	StatusApplied Status = "applied"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Skip / failure reasons recorded on an Outcome.
const (
	ReasonFiltered      = "filtered"
	ReasonSatisfied     = "already-satisfied"
	ReasonDeclined      = "declined"
	ReasonActionError   = "action-error"
	ReasonPostcondition = "postcondition-not-met"
)

// SkipError can be returned from a Check to withdraw the step from this run
// with a caller-supplied reason. It is not an evaluation failure: the step is
// recorded as skipped and its action never runs.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string { return e.Reason }

// Outcome records what happened to a single step.
type Outcome struct {
	Name   string
	Status Status
	Reason string // skip or failure reason, empty for applied
	Detail string // failure detail (e.g. captured error text)

	// CheckErr is set when the precondition itself could not be evaluated.
	// The step still proceeds to apply in that case, but the evaluation
	// failure is reported distinctly from a clean "not satisfied".
	CheckErr string
}

// RunStatus is the overall verdict of a run.
type RunStatus string

const (
	Completed             RunStatus = "completed"
	CompletedWithFailures RunStatus = "completed-with-failures"
	Aborted               RunStatus = "aborted"
)

// Result holds per-step outcomes in input order plus the overall status.
type Result struct {
	Outcomes []Outcome
	Status   RunStatus
}

// ExitCode maps the run status to a process exit code: 0 for a clean run,
// 1 when the run aborted early, 2 when it completed with failures.
func (r Result) ExitCode() int {
	switch r.Status {
	case Aborted:
		return 1
	case CompletedWithFailures:
		return 2
	default:
		return 0
	}
}

// Failed reports whether any recorded step failed.
func (r Result) Failed() bool {
	return r.Status != Completed
}

// Run executes steps strictly in declaration order, one at a time. A failed
// step ends the run immediately under AbortOnError; otherwise the run
// continues and the failure is reflected in the overall status. When the run
// aborts at step k, outcomes exist for steps 1..k only.
func Run(ctx context.Context, steps []Step, opts Options) Result {
	res := Result{Status: Completed}

	for _, step := range steps {
		out := runStep(ctx, step, opts)
		res.Outcomes = append(res.Outcomes, out)

		if out.Status == StatusFailed {
			if opts.AbortOnError {
				res.Status = Aborted
				return res
			}
			res.Status = CompletedWithFailures
		}
	}
	return res
}

// runStep attempts a single step: filter, check, apply, optionally verify.
func runStep(ctx context.Context, step Step, opts Options) Outcome {
	out := Outcome{Name: step.Name}

	if len(opts.TagFilter) > 0 && len(step.Tags) > 0 && !intersects(step.Tags, opts.TagFilter) {
		out.Status = StatusSkipped
		out.Reason = ReasonFiltered
		return out
	}

	if step.Check != nil {
		satisfied, err := step.Check(ctx)
		var skip *SkipError
		switch {
		case errors.As(err, &skip):
			out.Status = StatusSkipped
			out.Reason = skip.Reason
			return out
		case err != nil:
			// An unevaluable check is treated as "not satisfied" so the
			// action still gets a chance to converge the state.
			out.CheckErr = err.Error()
		case satisfied:
			out.Status = StatusSkipped
			out.Reason = ReasonSatisfied
			return out
		}
	}

	if err := step.Apply(ctx); err != nil {
		out.Status = StatusFailed
		out.Reason = ReasonActionError
		out.Detail = err.Error()
		return out
	}

	if opts.StrictVerify && step.Check != nil {
		satisfied, err := step.Check(ctx)
		var skip *SkipError
		switch {
		case errors.As(err, &skip):
			// Verification withdrawn; the apply stands.
		case err != nil:
			// Both evaluation failures are worth reporting, so the
			// pre-apply one is kept alongside the verify one.
			if out.CheckErr != "" {
				out.CheckErr += "; " + err.Error()
			} else {
				out.CheckErr = err.Error()
			}
		case !satisfied:
			out.Status = StatusFailed
			out.Reason = ReasonPostcondition
			return out
		}
	}

	out.Status = StatusApplied
	return out
}

func intersects(a, b []string) bool {
	for _, t := range a {
		if slices.Contains(b, t) {
			return true
		}
	}
	return false
}
