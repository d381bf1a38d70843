// Package remote is the host side of the call framework: it owns the
// worker child processes, multiplexes analysis sessions over them,
// and hands out handles for objects that live only in a worker.
package remote

import (
	"strings"
	"time"
)

// Command is the executable identity of a worker. Two Commands with
// the same identity share one child process; the registry never
// spawns duplicates.
type Command struct {
	// Exec is the worker executable path.
	Exec string
	// Args are the fixed bootstrap arguments, if any.
	Args []string
	// SupportRoot is passed as the final argument so the worker can
	// locate the same analysis-support libraries as the host.
	SupportRoot string
	// Env holds extra KEY=VALUE pairs appended to the host's
	// environment.
	Env []string
}

// Identity keys the worker cache. It covers everything that changes
// what the spawned process is.
func (c Command) Identity() string {
	parts := append([]string{c.Exec}, c.Args...)
	parts = append(parts, c.SupportRoot)
	parts = append(parts, c.Env...)
	return strings.Join(parts, "\x00")
}

func (c Command) argv() []string {
	args := append([]string(nil), c.Args...)
	if c.SupportRoot != "" {
		args = append(args, c.SupportRoot)
	}
	return args
}

// CallRecorder receives one entry per completed exchange with a
// worker. Implementations must be safe for concurrent use. A nil
// recorder costs nothing.
type CallRecorder interface {
	RecordCall(workerID string, session *uint64, fn string, elapsed time.Duration, callErr error)
}
