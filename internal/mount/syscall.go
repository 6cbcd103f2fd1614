package mount

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/imgforge/chroot-provision/internal/log"
	"github.com/imgforge/chroot-provision/internal/procmounts"
)

// SyscallMounter implements Mounter using Linux syscalls
type SyscallMounter struct{}

// NewSyscallMounter creates a new syscall-based mounter
func NewSyscallMounter() *SyscallMounter {
	return &SyscallMounter{}
}

// Mount mounts the filesystem described by spec.
//
// The mountpoint must already exist: the chroot base comes from an image
// that ships its own /proc, /dev and /sys directories, and a missing
// directory means the image (or the base path) is wrong, which should
// surface as a failure rather than be papered over with MkdirAll.
func (m *SyscallMounter) Mount(spec Spec) error {
	target, err := filepath.Abs(spec.Mountpoint)
	if err != nil {
		return &Error{Op: "mount", Target: spec.Mountpoint, Err: err}
	}

	info, err := os.Stat(target)
	if err != nil {
		return &Error{Op: "stat", Target: target, Err: err}
	}
	if !info.IsDir() {
		return &Error{Op: "stat", Target: target, Err: fmt.Errorf("not a directory")}
	}

	flags, data := parseOptions(spec.Options)

	log.Debug("mounting filesystem",
		"device", spec.Device, "target", target, "type", spec.FSType, "options", spec.Options)

	if err := unix.Mount(spec.Device, target, spec.FSType, flags, data); err != nil {
		return &Error{
			Op:     "mount",
			Target: target,
			Detail: fmt.Sprintf("device=%s type=%s", spec.Device, spec.FSType),
			Err:    err,
		}
	}

	log.Debug("mounted successfully", "device", spec.Device, "target", target)
	return nil
}

// Unmount unmounts the target path. No force and no lazy detach: a busy
// target must fail so the caller can report it instead of leaving a
// half-dismantled tree behind.
func (m *SyscallMounter) Unmount(target string) error {
	log.Debug("unmounting", "target", target)

	if err := unix.Unmount(target, 0); err != nil {
		if errors.Is(err, unix.EBUSY) {
			return &Error{Op: "unmount", Target: target, Err: fmt.Errorf("target busy: %w", err)}
		}
		if errors.Is(err, unix.EINVAL) {
			return &Error{Op: "unmount", Target: target, Err: fmt.Errorf("not a mountpoint: %w", err)}
		}
		return &Error{Op: "unmount", Target: target, Err: err}
	}

	log.Debug("unmounted successfully", "target", target)
	return nil
}

// IsMounted checks if the target is currently a mountpoint
func (m *SyscallMounter) IsMounted(target string) (bool, error) {
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return false, fmt.Errorf("get absolute path: %w", err)
	}

	table, err := procmounts.Read()
	if err != nil {
		return false, fmt.Errorf("unable to read mount table: %w", err)
	}

	return table.IsMounted(absTarget), nil
}

// MountsUnder returns the mountpoints nested below base in unmount order
func (m *SyscallMounter) MountsUnder(base string) ([]string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("get absolute path: %w", err)
	}

	table, err := procmounts.Read()
	if err != nil {
		return nil, fmt.Errorf("unable to read mount table: %w", err)
	}

	return table.Under(absBase), nil
}
