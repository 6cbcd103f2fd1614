// Package mount performs and reverses the filesystem mounts that make up a
// chroot environment, and answers questions about live mount state.
package mount

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Spec describes one mount operation. It is a plain value: construct it
// once and pass it around, identity is the mountpoint.
type Spec struct {
	// Device is the source device or pseudo-device (e.g. "proc", "/dev/vdb1")
	Device string
	// FSType is the filesystem type (e.g. "proc", "devtmpfs", "sysfs", "ext4")
	FSType string
	// Mountpoint is the absolute target path
	Mountpoint string
	// Options is the comma-separated mount option string (e.g. "ro,nosuid")
	Options string
}

// Rebase returns a copy of the spec with its mountpoint joined under base.
// A configured mountpoint of "/proc" with base "/mnt/image" becomes
// "/mnt/image/proc".
func (s Spec) Rebase(base string) Spec {
	s.Mountpoint = filepath.Join(base, strings.TrimPrefix(s.Mountpoint, "/"))
	return s
}

func (s Spec) String() string {
	return fmt.Sprintf("%s on %s type %s (%s)", s.Device, s.Mountpoint, s.FSType, s.Options)
}

// Mounter defines the interface for mount/unmount operations and for
// querying live mount state. The OS mount table is the source of truth;
// implementations must not cache it.
type Mounter interface {
	// Mount mounts the filesystem described by spec. The mountpoint must
	// already exist and must not already be mounted; callers are expected
	// to check IsMounted first.
	Mount(spec Spec) error
	// Unmount unmounts the target path. Fails if the target is busy or is
	// not a mountpoint.
	Unmount(target string) error
	// IsMounted checks if the target is currently a mountpoint
	IsMounted(target string) (bool, error)
	// MountsUnder returns the mountpoints nested below base, in the order
	// they must be unmounted (innermost and most recent first)
	MountsUnder(base string) ([]string, error)
	// IsBusy reports whether any other process holds an open reference
	// under base, meaning an unmount would fail with EBUSY
	IsBusy(base string) (bool, error)
}

// Error represents a failed mount or unmount operation.
type Error struct {
	Op     string // "mount", "unmount", "stat"
	Target string // Target path (absolute)
	Detail string // Extra context (device, fstype) for mount operations
	Err    error  // Underlying error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s failed (%s): %v", e.Op, e.Target, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Op, e.Target, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
