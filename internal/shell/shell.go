// Package shell evaluates user-supplied shell commands: run steps, shell
// preconditions, and package-manager probes.
package shell

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Run executes command in a shell with the caller's stdio attached and
// returns an error if the exit code is non-zero.
func Run(ctx context.Context, command string) error {
	cmd := shellCmd(ctx, command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}

// Eval executes command and returns true when it exits 0 (success).
// A non-zero exit is not treated as a Go error; only execution failures are.
// Shell preconditions rely on this split: "grep found nothing" is a clean
// "not satisfied", while "grep is missing" is an evaluation error.
func Eval(ctx context.Context, command string) (exitsZero bool, err error) {
	runErr := shellCmd(ctx, command).Run()
	if runErr == nil {
		return true, nil
	}
	if _, ok := runErr.(*exec.ExitError); ok {
		return false, nil // non-zero exit is expected and not an error
	}
	return false, runErr // real execution failure (binary not found, etc.)
}

// Output executes argv directly (no shell) and returns its combined output,
// trimmed. The output is returned even when the command fails, so callers can
// attach it as failure detail.
func Output(ctx context.Context, argv ...string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func shellCmd(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "powershell", "-Command", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}
