//go:build integration

package integration

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const provisionTimeout = 5 * time.Minute

// runTool runs the provisioner inside the VM against the target image.
func runTool(t *testing.T, args string) (string, error) {
	t.Helper()
	cmd := fmt.Sprintf("sudo %s --verbose provision --mountpoint %s --journal /var/tmp/runs.db %s",
		toolPath, imageMount, args)
	return testVM.RunWithTimeout(t.Context(), cmd, provisionTimeout)
}

// mountsUnderImage returns the live mountpoints nested under the image
// base, straight from the VM's /proc/mounts.
func mountsUnderImage(t *testing.T) []string {
	t.Helper()
	output, _ := testVM.Run(fmt.Sprintf("awk '$2 ~ \"^%s/\" {print $2}' /proc/mounts", imageMount))

	var mounts []string
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line != "" {
			mounts = append(mounts, line)
		}
	}
	return mounts
}

// assertImageClean verifies nothing is mounted under the image base. This
// is the teardown contract: the kernel mount table is the authority, not
// the tool's own logging.
func assertImageClean(t *testing.T) {
	t.Helper()
	require.Empty(t, mountsUnderImage(t), "mounts left under %s", imageMount)

	output, _ := testVM.Run(fmt.Sprintf("sudo test -e %s/etc/resolv.conf && echo present || echo absent", imageMount))
	require.Equal(t, "absent", strings.TrimSpace(output), "injected resolv.conf left behind")
}

// cleanupImageMounts force-cleans anything a failing test left mounted so
// subsequent tests start from a clean tree.
func cleanupImageMounts(t *testing.T) {
	t.Cleanup(func() {
		for _, mp := range mountsUnderImage(t) {
			_, _ = testVM.Run(fmt.Sprintf("sudo umount -l %s 2>/dev/null || true", mp))
		}
		_, _ = testVM.Run(fmt.Sprintf("sudo rm -f %s/etc/resolv.conf", imageMount))
	})
}

// journalStatus returns the STATUS column of the most recent run.
func journalStatus(t *testing.T) string {
	t.Helper()
	// Columns: date, time, package, mountpoint, status, detail...
	output, err := testVM.Run(fmt.Sprintf(
		"sudo %s history --journal /var/tmp/runs.db | sed -n 2p | awk '{print $5}'", toolPath))
	require.NoError(t, err, "history should succeed: %s", output)
	return strings.TrimSpace(output)
}
