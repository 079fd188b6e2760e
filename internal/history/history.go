// Package history keeps an append-only structured record of every step
// outcome across runs, one JSON line per step.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Entry records a single step outcome. Field names mirror the zerolog keys
// used when writing, so read-back is a plain unmarshal.
type Entry struct {
	Time    time.Time `json:"time"`
	Command string    `json:"command"` // "apply" | "verify"
	Step    string    `json:"step"`
	Outcome string    `json:"outcome"` // "applied" | "skipped" | "failed"
	Reason  string    `json:"reason,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

// Record appends e to the history log. Errors are silently ignored so that
// logging never halts a run.
func Record(e Entry) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	path, err := logPath()
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	logger := zerolog.New(f)
	evt := logger.Log().
		Time("time", e.Time).
		Str("command", e.Command).
		Str("step", e.Step).
		Str("outcome", e.Outcome)
	if e.Reason != "" {
		evt = evt.Str("reason", e.Reason)
	}
	if e.Detail != "" {
		evt = evt.Str("detail", e.Detail)
	}
	evt.Send()
}

// Read loads history entries, optionally filtered by step name.
// It returns the last limit entries (all if limit <= 0).
func Read(stepFilter string, limit int) ([]Entry, error) {
	path, err := logPath()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue // skip malformed lines
		}
		if stepFilter != "" && e.Step != stepFilter {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// LogPath returns the path of the history log file.
func LogPath() string {
	p, _ := logPath()
	return p
}

func logPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "rigup", "history.log"), nil
}
