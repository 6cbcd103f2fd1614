// Package procmounts exposes the kernel mount table as a read-only view.
//
// The table is re-read from /proc/mounts on every query. Nothing is cached:
// mounts made or removed by other processes (or by commands this tool runs)
// are visible on the next call, so decisions are always taken against live
// system state.
package procmounts

import "strings"

// Entry represents an entry in /proc/mounts
type Entry struct {
	Device     string
	MountPoint string
	FSType     string
	Options    string
}

// Table is a point-in-time snapshot of the mount table, in the order the
// kernel lists it (mount order, oldest first).
type Table []Entry

// Read parses /proc/mounts and returns the current mount table.
func Read() (Table, error) {
	return readFile(procMountsPath)
}

// IsMounted reports whether path is currently a mountpoint.
func (t Table) IsMounted(path string) bool {
	for _, e := range t {
		if e.MountPoint == path {
			return true
		}
	}
	return false
}

// Under returns the mountpoints strictly nested below base, deepest and
// most recently mounted first. This is the order in which they must be
// unmounted: the kernel lists mounts oldest first, so the reversed scan
// yields a safe last-in-first-out teardown sequence.
func (t Table) Under(base string) []string {
	base = strings.TrimSuffix(base, "/")

	var nested []string
	for i := len(t) - 1; i >= 0; i-- {
		mp := t[i].MountPoint
		if mp != base && strings.HasPrefix(mp, base+"/") {
			nested = append(nested, mp)
		}
	}
	return nested
}
