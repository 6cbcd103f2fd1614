// Package chroot manages the lifecycle of a transient chroot environment
// used to run installation steps against a mounted disk image.
//
// A Session brings the environment up (ordered mounts plus a resolver file
// so name resolution works inside), and guarantees it is dismantled
// afterward: busy check, reverse-ordered unmounts, then a sweep for stray
// mounts left behind by the work that ran inside. The OS mount table is the
// source of truth throughout; the session keeps no mount bookkeeping beyond
// the configured order.
package chroot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/imgforge/chroot-provision/internal/log"
	"github.com/imgforge/chroot-provision/internal/mount"
)

// State is the lifecycle state of a Session.
type State int

const (
	// StateUnconfigured is the initial state before Enter
	StateUnconfigured State = iota
	// StateConfiguring means Enter started but has not completed; the
	// environment may be partially mounted
	StateConfiguring
	// StateEntered means the chroot environment is up and usable
	StateEntered
	// StateTearingDown means Exit is in progress
	StateTearingDown
	// StateTornDown is the terminal success state
	StateTornDown
	// StateTeardownFailed is the terminal failure state; mounts may still
	// be live on the host and an operator must intervene
	StateTeardownFailed
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfiguring:
		return "configuring"
	case StateEntered:
		return "entered"
	case StateTearingDown:
		return "tearing-down"
	case StateTornDown:
		return "torn-down"
	case StateTeardownFailed:
		return "teardown-failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// hostResolvConf is the well-known host resolver file copied into the
// chroot. Overridable for tests.
var hostResolvConf = "/etc/resolv.conf"

// activeBases guards against two sessions in this process targeting the
// same base mountpoint. The mount namespace is global process state, so
// overlapping sessions cannot be made safe; callers are expected to run one
// provisioning job per volume, and this registry turns a violation into an
// immediate conflict error instead of interleaved mount operations. It is
// not a cross-process lock.
var (
	activeMu    sync.Mutex
	activeBases = map[string]struct{}{}
)

func registerBase(base string) error {
	activeMu.Lock()
	defer activeMu.Unlock()
	if _, exists := activeBases[base]; exists {
		return fmt.Errorf("%w: %s", ErrBaseInUse, base)
	}
	activeBases[base] = struct{}{}
	return nil
}

func releaseBase(base string) {
	activeMu.Lock()
	defer activeMu.Unlock()
	delete(activeBases, base)
}

// Session orchestrates one chroot environment over a mounted volume.
//
// Sessions are single-use: create, Enter, do the work, Exit, discard.
// Enter and Exit must always be paired, even when Enter fails; Exit is
// safe to call from any partially configured state.
type Session struct {
	base    string
	specs   []mount.Spec // rebased under base; order = mount order
	mounter mount.Mounter

	state          State
	resolvInjected bool
	resolvMissing  bool
}

// NewSession creates a session over the volume mounted at base. The specs
// describe the sub-mounts the chroot needs (e.g. /proc, /dev, /sys), in
// mount order; their mountpoints are interpreted relative to base.
func NewSession(base string, specs []mount.Spec, mounter mount.Mounter) *Session {
	rebased := make([]mount.Spec, 0, len(specs))
	for _, spec := range specs {
		rebased = append(rebased, spec.Rebase(base))
	}
	return &Session{
		base:    filepath.Clean(base),
		specs:   rebased,
		mounter: mounter,
	}
}

// BasePath returns the base mountpoint the session targets.
func (s *Session) BasePath() string { return s.base }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// ResolvConfMissing reports whether Enter could not find a host resolver
// file to copy in. Name resolution inside the chroot will not work.
func (s *Session) ResolvConfMissing() bool { return s.resolvMissing }

// Enter configures the chroot environment: the configured mounts in order,
// then the resolver file.
//
// Mounts that are already present are skipped; the first mount failure
// aborts, leaving prior mounts in place. The caller must still call Exit
// afterward to reverse the partial state: Enter never rolls back on its
// own, and never silently proceeds with a subset of the mounts.
func (s *Session) Enter() error {
	if s.state != StateUnconfigured {
		return fmt.Errorf("%w: state is %s", ErrAlreadyEntered, s.state)
	}
	if err := registerBase(s.base); err != nil {
		return err
	}
	s.state = StateConfiguring

	log.Debug("configuring chroot", "base", s.base)

	for _, spec := range s.specs {
		mounted, err := s.mounter.IsMounted(spec.Mountpoint)
		if err != nil {
			return &SetupError{Op: "mount", Target: spec.Mountpoint, Err: err}
		}
		if mounted {
			log.Debug("already mounted, skipping", "target", spec.Mountpoint)
			continue
		}
		if err := s.mounter.Mount(spec); err != nil {
			log.Error("unable to configure chroot", "target", spec.Mountpoint, "error", err)
			return &SetupError{Op: "mount", Target: spec.Mountpoint, Err: err}
		}
	}

	if err := s.injectResolvConf(); err != nil {
		return err
	}

	s.state = StateEntered
	log.Debug("chroot environment ready", "base", s.base)
	return nil
}

// injectResolvConf copies the host resolver file into the chroot so
// in-chroot name resolution works. A missing host file is a warning, not an
// error: installation from local media needs no resolver.
func (s *Session) injectResolvConf() error {
	data, err := os.ReadFile(hostResolvConf)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("no host resolver file to copy into the chroot", "path", hostResolvConf)
			s.resolvMissing = true
			return nil
		}
		return &SetupError{Op: "resolv-copy", Target: hostResolvConf, Err: err}
	}

	dst := s.resolvConfPath()
	log.Debug("copying in a temporary resolv.conf", "src", hostResolvConf, "dst", dst)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return &SetupError{Op: "resolv-copy", Target: dst, Err: err}
	}
	s.resolvInjected = true
	return nil
}

func (s *Session) resolvConfPath() string {
	return filepath.Join(s.base, "etc", "resolv.conf")
}

// Exit tears the chroot environment down: busy check, resolver cleanup,
// configured mounts in exact reverse of their mount order, then a sweep for
// stray mounts left under the base.
//
// Ordering is load-bearing: mounts nested inside other mounts must go
// innermost-first or the kernel refuses. Any unmount failure aborts
// immediately with the remaining mounts untouched: the tree below an
// unremovable mount cannot be safely altered, and retrying blind would only
// mask whatever is holding it.
func (s *Session) Exit() error {
	switch s.state {
	case StateConfiguring, StateEntered:
		// proceed
	default:
		return fmt.Errorf("%w: state is %s", ErrNotEntered, s.state)
	}
	s.state = StateTearingDown

	log.Debug("tearing down chroot", "base", s.base)

	if err := s.teardown(); err != nil {
		s.state = StateTeardownFailed
		return err
	}

	s.state = StateTornDown
	releaseBase(s.base)
	return nil
}

func (s *Session) teardown() error {
	busy, err := s.mounter.IsBusy(s.base)
	if err != nil {
		return &TeardownError{Step: "busy-check", Err: err}
	}
	if busy {
		log.Error("unable to tear down chroot: device busy", "base", s.base)
		return &TeardownError{Step: "busy-check", Target: s.base, Err: errors.New("device busy")}
	}

	baseMounted, err := s.mounter.IsMounted(s.base)
	if err != nil {
		return &TeardownError{Step: "busy-check", Target: s.base, Err: err}
	}
	if !baseMounted {
		log.Warn("base not mounted, nothing to tear down", "base", s.base)
		return nil
	}

	s.removeResolvConf()

	for i := len(s.specs) - 1; i >= 0; i-- {
		target := s.specs[i].Mountpoint
		mounted, err := s.mounter.IsMounted(target)
		if err != nil {
			return &TeardownError{Step: "unmount", Target: target, Err: err}
		}
		if !mounted {
			log.Warn("not mounted, skipping", "target", target)
			continue
		}
		log.Debug("unmounting", "target", target)
		if err := s.mounter.Unmount(target); err != nil {
			return &TeardownError{Step: "unmount", Target: target, Err: err}
		}
	}

	log.Debug("checking for stray mounts", "base", s.base)
	strays, err := s.mounter.MountsUnder(s.base)
	if err != nil {
		return &TeardownError{Step: "stray-unmount", Err: err}
	}
	for _, stray := range strays {
		log.Warn("stray mount found, unmounting", "target", stray)
		if err := s.mounter.Unmount(stray); err != nil {
			return &TeardownError{Step: "stray-unmount", Target: stray, Err: err}
		}
	}

	return nil
}

// removeResolvConf removes the injected resolver file. Best effort:
// absence is fine, and a failure to remove it never blocks teardown.
func (s *Session) removeResolvConf() {
	path := s.resolvConfPath()
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			log.Warn("unable to remove temporary resolv.conf", "path", path, "error", err)
		}
		return
	}
	log.Debug("removed temporary resolv.conf", "path", path)
}

// Run executes body inside an entered session and guarantees teardown on
// every path: whether Enter fails partway, body returns an error, or both.
//
// A teardown failure is surfaced ahead of whatever body returned, since
// leaked privileged mounts on the host outrank a failed installation; the
// body error is joined in so it is not lost.
func (s *Session) Run(body func() error) error {
	enterErr := s.Enter()
	if errors.Is(enterErr, ErrBaseInUse) || errors.Is(enterErr, ErrAlreadyEntered) {
		// Nothing was configured; there is no partial state to reverse.
		return enterErr
	}

	var bodyErr error
	if enterErr == nil {
		bodyErr = body()
	}

	workErr := enterErr
	if workErr == nil {
		workErr = bodyErr
	}

	if exitErr := s.Exit(); exitErr != nil {
		if workErr != nil {
			log.Error("teardown failed after an earlier error", "earlier", workErr)
		}
		return errors.Join(exitErr, workErr)
	}

	return workErr
}
