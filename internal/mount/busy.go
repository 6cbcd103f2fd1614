package mount

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/imgforge/chroot-provision/internal/log"
)

const procPath = "/proc"

// IsBusy reports whether any other process holds a reference under base.
//
// This is a userspace equivalent of fuser(1): every /proc/[pid] entry is
// checked for a root, working directory, executable, or open file
// descriptor inside base. Teardown runs this check first and treats the
// answer as authoritative, so the scan errs on the side of reporting busy:
// any reference found means the subsequent unmounts would hit EBUSY.
func (m *SyscallMounter) IsBusy(base string) (bool, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return false, err
	}

	entries, err := os.ReadDir(procPath)
	if err != nil {
		return false, err
	}

	self := os.Getpid()
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid == self {
			continue
		}

		if ref := processRefUnder(pid, absBase); ref != "" {
			log.Debug("process holds reference under base", "pid", pid, "ref", ref, "base", absBase)
			return true, nil
		}
	}

	return false, nil
}

// processRefUnder returns the first reference pid holds under base, or ""
// if it holds none. Unreadable proc entries are skipped: processes we
// cannot inspect are either gone or owned by another user outside the
// chroot we created.
func processRefUnder(pid int, base string) string {
	pidDir := filepath.Join(procPath, strconv.Itoa(pid))

	for _, name := range []string{"root", "cwd", "exe"} {
		target, err := os.Readlink(filepath.Join(pidDir, name))
		if err == nil && pathUnder(target, base) {
			return target
		}
	}

	fdDir := filepath.Join(pidDir, "fd")
	fds, err := os.ReadDir(fdDir)
	if err != nil {
		return ""
	}
	for _, fd := range fds {
		target, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
		if err == nil && pathUnder(target, base) {
			return target
		}
	}

	return ""
}

func pathUnder(path, base string) bool {
	return path == base || strings.HasPrefix(path, base+"/")
}
