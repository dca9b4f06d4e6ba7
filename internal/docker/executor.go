// Package docker runs the InSilicoVA R stack inside a container. It wraps
// the docker CLI: daemon detection, image inspection, pull, local build and
// a single timeout-bounded run with bind-mounted file exchange.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"vaclassify/internal/logging"
	"vaclassify/internal/validation"
)

// DaemonProbeTimeout bounds the availability check so a wedged daemon cannot
// stall validation.
const DaemonProbeTimeout = 10 * time.Second

// maxCapturedOutput caps stdout/stderr capture per stream. MCMC progress
// output can be large.
const maxCapturedOutput = 4 << 20

// Executor invokes the docker CLI. Construct with NewExecutor; the zero
// value reports unavailable.
type Executor struct {
	dockerPath string
	available  bool
	probeErr   error
}

// NewExecutor locates the docker binary and probes the daemon.
func NewExecutor() *Executor {
	e := &Executor{}
	e.detect()
	return e
}

func (e *Executor) detect() {
	path, err := exec.LookPath("docker")
	if err != nil {
		e.probeErr = fmt.Errorf("docker is not installed or not in PATH")
		return
	}
	e.dockerPath = path

	ctx, cancel := context.WithTimeout(context.Background(), DaemonProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "info")
	if err := cmd.Run(); err != nil {
		e.probeErr = fmt.Errorf("docker daemon is not running: %w", err)
		return
	}
	e.available = true
}

// Available reports whether the docker CLI and daemon are reachable.
func (e *Executor) Available() bool {
	return e.available
}

// ProbeError returns the reason the runtime is unavailable, nil otherwise.
func (e *Executor) ProbeError() error {
	return e.probeErr
}

// ImageExists checks whether an image is staged locally.
func (e *Executor) ImageExists(ctx context.Context, image string) bool {
	if !e.available {
		return false
	}
	cmd := exec.CommandContext(ctx, e.dockerPath, "image", "inspect", image)
	return cmd.Run() == nil
}

// Pull fetches an image from its registry.
func (e *Executor) Pull(ctx context.Context, image string) error {
	if !e.available {
		return fmt.Errorf("docker is not available")
	}
	logging.Docker("pulling image %s", image)
	cmd := exec.CommandContext(ctx, e.dockerPath, "pull", image)
	return cmd.Run()
}

// Build builds an image from a local build context and tags it. Used by the
// fallback path when the configured image cannot be run.
func (e *Executor) Build(ctx context.Context, contextDir, tag string) error {
	if !e.available {
		return fmt.Errorf("docker is not available")
	}
	logging.Docker("building image %s from %s", tag, contextDir)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.dockerPath, "build", "-t", tag, contextDir)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker build failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Mount binds a host path into the container.
type Mount struct {
	Host      string
	Container string
}

// RunSpec describes one container run.
type RunSpec struct {
	Image    string
	Platform string
	Mounts   []Mount
	// Args is the command executed inside the container.
	Args    []string
	Timeout time.Duration
}

// RunResult captures the outcome of one run.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
}

// Run executes one blocking container run with --rm and the spec's timeout.
// A non-zero exit status is reported in the result, not as a Go error;
// errors are reserved for failures to launch at all.
func (e *Executor) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	if !e.available {
		return nil, fmt.Errorf("docker is not available")
	}

	args := []string{"run", "--rm"}
	if spec.Platform != "" {
		args = append(args, "--platform", spec.Platform)
	}
	for _, m := range spec.Mounts {
		args = append(args, "-v", fmt.Sprintf("%s:%s", m.Host, m.Container))
	}
	args = append(args, spec.Image)
	args = append(args, spec.Args...)

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = time.Hour
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logging.DockerDebug("docker %s", strings.Join(args, " "))

	cmd := exec.CommandContext(runCtx, e.dockerPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, max: maxCapturedOutput}
	cmd.Stderr = &limitedWriter{w: &stderr, max: maxCapturedOutput}

	start := time.Now()
	err := cmd.Run()
	result := &RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		result.ExitCode = -1
	case err == nil:
		result.ExitCode = 0
	default:
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("docker run failed to start: %w", err)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	return result, nil
}

// ValidateRuntime checks the execution environment for the container-backed
// backend. Missing daemon is fatal; a missing image is advisory since it can
// be pulled or built at execution time.
func ValidateRuntime(e *Executor, image string, fallbackConfigured bool) *validation.Result {
	result := &validation.Result{IsValid: true, Metadata: make(map[string]interface{})}

	if !e.Available() {
		result.IsValid = false
		result.Errors = append(result.Errors, e.ProbeError().Error())
		result.Metadata["docker_available"] = false
		return result
	}
	result.Metadata["docker_available"] = true

	ctx, cancel := context.WithTimeout(context.Background(), DaemonProbeTimeout)
	defer cancel()

	if e.ImageExists(ctx, image) {
		result.Metadata["image_exists"] = true
		return result
	}
	result.Metadata["image_exists"] = false
	result.Warnings = append(result.Warnings,
		fmt.Sprintf("docker image %s not found locally; will attempt to pull when needed", image))
	if !fallbackConfigured {
		result.Warnings = append(result.Warnings,
			"consider enabling use_fallback_build to build from a local Dockerfile if the image pull fails")
	}
	return result
}

// limitedWriter truncates output past max instead of failing the run.
type limitedWriter struct {
	w       io.Writer
	max     int
	written int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.written >= l.max {
		return len(p), nil
	}
	room := l.max - l.written
	if len(p) > room {
		if _, err := l.w.Write(p[:room]); err != nil {
			return 0, err
		}
		l.written = l.max
		return len(p), nil
	}
	n, err := l.w.Write(p)
	l.written += n
	return n, err
}
