// Package shortcircuit temporarily replaces scripts inside the target
// image with a harmless stand-in, so package post-install scripts cannot
// start services in the build environment, and restores them afterward.
//
// All paths are image paths (e.g. "/sbin/service") resolved under the
// session base on the host; the stand-in destination is left verbatim so
// the symlink resolves inside the chroot.
package shortcircuit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/imgforge/chroot-provision/internal/log"
)

// savedSuffix marks where a short-circuited script is parked. Rewire looks
// for this exact name; if provisioning dies between the two calls, the
// original is still sitting next to the symlink for manual recovery.
const savedSuffix = ".provision-saved"

// ShortCircuit parks the script at the image path and symlinks it to the
// stand-in dst (typically /bin/true). Fails if the script does not exist
// or is already short-circuited.
func ShortCircuit(base, path, dst string) error {
	target := resolve(base, path)
	saved := target + savedSuffix

	if _, err := os.Lstat(target); err != nil {
		return fmt.Errorf("short-circuit %s: %w", path, err)
	}
	if _, err := os.Lstat(saved); err == nil {
		return fmt.Errorf("short-circuit %s: already short-circuited (%s exists)", path, saved)
	}

	if err := os.Rename(target, saved); err != nil {
		return fmt.Errorf("short-circuit %s: park original: %w", path, err)
	}

	if err := os.Symlink(dst, target); err != nil {
		// Put the original back so the image is not left without the script
		if restoreErr := os.Rename(saved, target); restoreErr != nil {
			log.Error("unable to restore script after failed symlink",
				"path", target, "saved", saved, "error", restoreErr)
		}
		return fmt.Errorf("short-circuit %s: symlink stand-in: %w", path, err)
	}

	log.Debug("short-circuited script", "path", target, "standin", dst)
	return nil
}

// Rewire restores a short-circuited script: removes the stand-in symlink
// and moves the parked original back into place.
func Rewire(base, path string) error {
	target := resolve(base, path)
	saved := target + savedSuffix

	if _, err := os.Lstat(saved); err != nil {
		return fmt.Errorf("rewire %s: no parked original: %w", path, err)
	}

	if info, err := os.Lstat(target); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return fmt.Errorf("rewire %s: target is not the stand-in symlink", path)
		}
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("rewire %s: remove stand-in: %w", path, err)
		}
	}

	if err := os.Rename(saved, target); err != nil {
		return fmt.Errorf("rewire %s: restore original: %w", path, err)
	}

	log.Debug("rewired script", "path", target)
	return nil
}

func resolve(base, path string) string {
	return filepath.Join(base, strings.TrimPrefix(path, "/"))
}
