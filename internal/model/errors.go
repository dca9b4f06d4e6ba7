package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFitted is returned by Predict and PredictProba before a successful
// Fit.
var ErrNotFitted = errors.New("model has not been fitted")

// ValidationError carries the rule violations and warnings a validation
// pass reported. Fatal structural rules short-circuit, so Problems usually
// names the first rule the input broke.
type ValidationError struct {
	Stage    string
	Problems []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Stage, strings.Join(e.Problems, "; "))
}

// ExecutionError reports a backend that launched but did not produce usable
// output: container exits, timeouts, API failures.
type ExecutionError struct {
	Backend  string
	Stage    string
	ExitCode int
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *ExecutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s failed", e.Backend, e.Stage)
	if e.TimedOut {
		b.WriteString(": timed out")
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	} else if e.ExitCode != 0 {
		fmt.Fprintf(&b, ": exit status %d", e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		if len(s) > 500 {
			s = s[len(s)-500:]
		}
		fmt.Fprintf(&b, " (stderr: %s)", s)
	}
	return b.String()
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// oomPatterns are substrings that identify a resource-exhaustion failure in
// provider or runtime error text. Used to decide whether a smaller batch is
// worth retrying.
var oomPatterns = []string{
	"out of memory",
	"oom",
	"resource exhausted",
	"resource_exhausted",
	"request payload size",
	"context length",
	"token limit",
	"too large",
}

// IsResourceExhausted reports whether err looks like a size or memory limit
// rather than a hard failure.
func IsResourceExhausted(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range oomPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
