package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost simulates host state as a set of "present" markers so steps can be
// exercised without touching the real system.
type fakeHost struct {
	present map[string]bool
	applied []string
}

func newFakeHost(present ...string) *fakeHost {
	h := &fakeHost{present: make(map[string]bool)}
	for _, p := range present {
		h.present[p] = true
	}
	return h
}

func (h *fakeHost) step(name string, tags ...string) Step {
	return Step{
		Name: name,
		Tags: tags,
		Check: func(context.Context) (bool, error) {
			return h.present[name], nil
		},
		Apply: func(context.Context) error {
			h.applied = append(h.applied, name)
			h.present[name] = true
			return nil
		},
	}
}

func (h *fakeHost) failingStep(name string) Step {
	s := h.step(name)
	s.Apply = func(context.Context) error {
		h.applied = append(h.applied, name)
		return errors.New("installer exited 1")
	}
	return s
}

func TestRunAppliesUnsatisfiedSteps(t *testing.T) {
	host := newFakeHost("git")
	steps := []Step{host.step("homebrew"), host.step("git"), host.step("rustup")}

	res := Run(context.Background(), steps, Options{AbortOnError: true})

	assert.Equal(t, Completed, res.Status)
	assert.Equal(t, 0, res.ExitCode())
	assert.False(t, res.Failed())
	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, StatusApplied, res.Outcomes[0].Status)
	assert.Equal(t, StatusSkipped, res.Outcomes[1].Status)
	assert.Equal(t, ReasonSatisfied, res.Outcomes[1].Reason)
	assert.Equal(t, StatusApplied, res.Outcomes[2].Status)
	assert.Equal(t, []string{"homebrew", "rustup"}, host.applied)
}

func TestRunIsIdempotent(t *testing.T) {
	host := newFakeHost()
	steps := []Step{host.step("homebrew"), host.step("rustup")}

	first := Run(context.Background(), steps, Options{AbortOnError: true})
	require.Equal(t, Completed, first.Status)

	second := Run(context.Background(), steps, Options{AbortOnError: true})
	require.Equal(t, Completed, second.Status)
	for _, out := range second.Outcomes {
		assert.Equal(t, StatusSkipped, out.Status, "step %s", out.Name)
		assert.Equal(t, ReasonSatisfied, out.Reason, "step %s", out.Name)
	}
	// Each step applied exactly once across both runs.
	assert.Equal(t, []string{"homebrew", "rustup"}, host.applied)
}

func TestRunPreservesOrder(t *testing.T) {
	host := newFakeHost("b")
	steps := []Step{host.step("a"), host.step("b"), host.failingStep("c"), host.step("d")}

	res := Run(context.Background(), steps, Options{})

	require.Len(t, res.Outcomes, 4)
	for i, want := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, want, res.Outcomes[i].Name)
	}
}

func TestRunTagFilter(t *testing.T) {
	host := newFakeHost()
	steps := []Step{
		host.step("base"),                 // untagged: always eligible
		host.step("rustup", "dev"),        // matches filter
		host.step("spotify", "desktop"),   // filtered out
		host.step("docker", "dev", "srv"), // matches via one tag
	}

	res := Run(context.Background(), steps, Options{TagFilter: []string{"dev"}, AbortOnError: true})

	require.Len(t, res.Outcomes, 4)
	assert.Equal(t, StatusApplied, res.Outcomes[0].Status)
	assert.Equal(t, StatusApplied, res.Outcomes[1].Status)
	assert.Equal(t, StatusSkipped, res.Outcomes[2].Status)
	assert.Equal(t, ReasonFiltered, res.Outcomes[2].Reason)
	assert.Equal(t, StatusApplied, res.Outcomes[3].Status)
	assert.NotContains(t, host.applied, "spotify", "filtered step's action must never run")
}

func TestRunAbortOnError(t *testing.T) {
	host := newFakeHost()
	steps := []Step{host.step("a"), host.failingStep("b"), host.step("c")}

	res := Run(context.Background(), steps, Options{AbortOnError: true})

	assert.Equal(t, Aborted, res.Status)
	assert.Equal(t, 1, res.ExitCode())
	// Steps after the failure are absent, not marked skipped.
	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, StatusFailed, res.Outcomes[1].Status)
	assert.Equal(t, ReasonActionError, res.Outcomes[1].Reason)
	assert.Equal(t, "installer exited 1", res.Outcomes[1].Detail)
	assert.NotContains(t, host.applied, "c")
}

func TestRunKeepGoing(t *testing.T) {
	host := newFakeHost()
	steps := []Step{host.step("a"), host.failingStep("b"), host.step("c")}

	res := Run(context.Background(), steps, Options{AbortOnError: false})

	assert.Equal(t, CompletedWithFailures, res.Status)
	assert.Equal(t, 2, res.ExitCode())
	assert.True(t, res.Failed())
	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, StatusApplied, res.Outcomes[2].Status)
}

func TestRunCheckErrorProceedsToApply(t *testing.T) {
	host := newFakeHost()
	broken := host.step("x")
	broken.Check = func(context.Context) (bool, error) {
		return false, errors.New("query failed")
	}

	res := Run(context.Background(), []Step{broken}, Options{AbortOnError: true})

	assert.Equal(t, Completed, res.Status)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, StatusApplied, res.Outcomes[0].Status)
	assert.Equal(t, "query failed", res.Outcomes[0].CheckErr)
	assert.Equal(t, []string{"x"}, host.applied)
}

func TestRunCheckSkipError(t *testing.T) {
	host := newFakeHost()
	declined := host.step("x")
	declined.Check = func(context.Context) (bool, error) {
		return false, &SkipError{Reason: ReasonDeclined}
	}

	res := Run(context.Background(), []Step{declined}, Options{AbortOnError: true})

	assert.Equal(t, Completed, res.Status)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, StatusSkipped, res.Outcomes[0].Status)
	assert.Equal(t, ReasonDeclined, res.Outcomes[0].Reason)
	assert.Empty(t, res.Outcomes[0].CheckErr, "a skip is not an evaluation failure")
	assert.Empty(t, host.applied, "a withdrawn step's action must never run")
}

func TestRunNilCheckAlwaysApplies(t *testing.T) {
	applied := 0
	step := Step{
		Name:  "run-script",
		Apply: func(context.Context) error { applied++; return nil },
	}

	res := Run(context.Background(), []Step{step, step}, Options{AbortOnError: true})

	assert.Equal(t, Completed, res.Status)
	assert.Equal(t, 2, applied)
}

func TestRunStrictVerify(t *testing.T) {
	// Apply succeeds but never makes the check pass: a misconfigured step.
	lying := Step{
		Name:  "broken",
		Check: func(context.Context) (bool, error) { return false, nil },
		Apply: func(context.Context) error { return nil },
	}

	res := Run(context.Background(), []Step{lying}, Options{AbortOnError: true, StrictVerify: true})

	assert.Equal(t, Aborted, res.Status)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, StatusFailed, res.Outcomes[0].Status)
	assert.Equal(t, ReasonPostcondition, res.Outcomes[0].Reason)

	// Without strict verification the same step passes.
	res = Run(context.Background(), []Step{lying}, Options{AbortOnError: true})
	assert.Equal(t, Completed, res.Status)
}

func TestRunStrictVerifyKeepsBothCheckErrors(t *testing.T) {
	calls := 0
	flaky := Step{
		Name: "flaky",
		Check: func(context.Context) (bool, error) {
			calls++
			return false, fmt.Errorf("query failed (%d)", calls)
		},
		Apply: func(context.Context) error { return nil },
	}

	res := Run(context.Background(), []Step{flaky}, Options{AbortOnError: true, StrictVerify: true})

	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, StatusApplied, res.Outcomes[0].Status)
	assert.Equal(t, "query failed (1); query failed (2)", res.Outcomes[0].CheckErr)
}

// The canonical three-step scenario: A applies, B is already satisfied,
// C fails, abort-on-error stops the run.
func TestRunMixedScenario(t *testing.T) {
	host := newFakeHost("B")
	steps := []Step{host.step("A"), host.step("B"), host.failingStep("C")}

	res := Run(context.Background(), steps, Options{AbortOnError: true})

	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, StatusApplied, res.Outcomes[0].Status)
	assert.Equal(t, StatusSkipped, res.Outcomes[1].Status)
	assert.Equal(t, ReasonSatisfied, res.Outcomes[1].Reason)
	assert.Equal(t, StatusFailed, res.Outcomes[2].Status)
	assert.Equal(t, Aborted, res.Status)
	assert.Equal(t, 1, res.ExitCode())
}

func TestRunEmptySteps(t *testing.T) {
	res := Run(context.Background(), nil, Options{AbortOnError: true})
	assert.Equal(t, Completed, res.Status)
	assert.Empty(t, res.Outcomes)
}
