package chroot

import (
	"errors"
	"fmt"
)

// Lifecycle invariant violations. These indicate a programming error in the
// caller, not an operational failure, and are never retried.
var (
	// ErrAlreadyEntered is returned by Enter on a session that was already
	// entered (or is mid-teardown).
	ErrAlreadyEntered = errors.New("session already entered")
	// ErrNotEntered is returned by Exit on a session that never entered,
	// or that already completed teardown.
	ErrNotEntered = errors.New("session not entered")
	// ErrBaseInUse is returned by Enter when another live session in this
	// process targets the same base mountpoint.
	ErrBaseInUse = errors.New("base mountpoint already in use by another session")
)

// SetupError is an operational failure while bringing the chroot
// environment up. The session is left partially configured; the caller is
// expected to call Exit to reverse whatever state exists.
type SetupError struct {
	Op     string // "mount", "resolv-copy"
	Target string // mountpoint or file involved
	Err    error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("chroot setup failed: %s %s: %v", e.Op, e.Target, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// TeardownError is an operational failure while dismantling the chroot
// environment. It is the loudest error class this package produces: a
// failed teardown leaves privileged mounts live on the host and needs
// operator attention, so it must never be masked by whatever the work
// inside the chroot returned.
type TeardownError struct {
	Step   string // "busy-check", "unmount", "stray-unmount"
	Target string // mountpoint involved, if any
	Err    error
}

func (e *TeardownError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("chroot teardown failed at %s (%s): %v", e.Step, e.Target, e.Err)
	}
	return fmt.Sprintf("chroot teardown failed at %s: %v", e.Step, e.Err)
}

func (e *TeardownError) Unwrap() error {
	return e.Err
}
