// Package installer invokes the package manager inside an entered chroot.
//
// Commands run as "chroot <base> yum ...": the tool's own process never
// changes root, so a wedged installer cannot strand the process inside the
// image. Outcomes are reported as a Result rather than an error: a failed
// install is an expected operational outcome, and only the Success flag and
// captured stderr feed into the caller's decisions.
package installer

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"github.com/imgforge/chroot-provision/internal/log"
)

// Result is the uniform outcome of one external command invocation.
type Result struct {
	Success bool
	Stdout  string
	Stderr  string
}

// runFunc executes a command and captures its outcome. Tests substitute
// their own implementation.
type runFunc func(ctx context.Context, name string, args ...string) Result

// Yum drives yum inside the chroot rooted at base.
type Yum struct {
	base string
	run  runFunc
}

// NewYum creates an installer for the chroot environment at base.
func NewYum(base string) *Yum {
	return &Yum{base: base, run: runCommand}
}

// Install installs the given package spec. The spec is passed through
// verbatim; callers validate it first.
func (y *Yum) Install(ctx context.Context, pkg string) Result {
	log.Info("installing package", "package", pkg, "base", y.base)
	return y.run(ctx, "chroot", y.base, "yum", "--assumeyes", "install", pkg)
}

// CleanMetadata clears the yum metadata caches inside the chroot so the
// install resolves against fresh repository data.
func (y *Yum) CleanMetadata(ctx context.Context) Result {
	log.Debug("cleaning yum metadata", "base", y.base)
	return y.run(ctx, "chroot", y.base, "yum", "clean", "metadata")
}

// runCommand executes the command, capturing stdout and stderr separately.
//
// A non-zero exit is a failed Result, not a Go error; failures to launch at
// all (chroot binary missing, context cancelled) are folded into Stderr so
// every caller sees one uniform shape.
func runCommand(ctx context.Context, name string, args ...string) Result {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Success: err == nil,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// The command never ran; surface the launch error as diagnostics
		if res.Stderr != "" {
			res.Stderr += "\n"
		}
		res.Stderr += err.Error()
	}

	return res
}
