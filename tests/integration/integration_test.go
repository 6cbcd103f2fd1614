//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/imgforge/chroot-provision/tests/integration/log"
	"github.com/imgforge/chroot-provision/tests/integration/vm"
)

const (
	// toolPath is where the binary lands inside the VM
	toolPath = "/usr/local/bin/chroot-provision"
	// imageMount is the base mountpoint the provisioner targets
	imageMount = "/mnt/image"
	// imageFile is the loopback-backed disk image provisioned in tests
	imageFile = "/var/tmp/target.img"
	// seedTimeout bounds the dnf --installroot seeding of the target image
	seedTimeout = 10 * time.Minute
)

var testVM vm.VM

// TestMain sets up a shared VM for all integration tests
func TestMain(m *testing.M) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fatalf("\nInterrupted, shutting down...")
	}()

	ctx := context.Background()
	var err error
	testVM, err = vm.StartQEMUVM(ctx)
	if err != nil {
		fatalf("Failed to start VM: %v", err)
	}

	setupVM(ctx, testVM)

	log.Status("Running tests...")
	code := m.Run()

	testVM.Stop()
	os.Exit(code)
}

// fatalf prints a formatted error message to stderr and exits with code 1.
// Use this in TestMain or setup code where *testing.T is not available.
func fatalf(format string, args ...any) {
	log.Status(format, args...)
	if testVM != nil {
		testVM.Stop()
	}
	os.Exit(1)
}

func setupVM(ctx context.Context, v vm.VM) {
	binaryPath := os.Getenv("PROVISION_BINARY")
	if binaryPath == "" {
		binaryPath = "../../build/dist/chroot-provision"
	}
	if _, err := os.Stat(binaryPath); err != nil {
		fatalf("Tool binary not found at %s. Run 'make build' first.", binaryPath)
	}

	if err := v.WaitForSSH(ctx); err != nil {
		fatalf("Failed waiting for SSH: %v", err)
	}

	if err := v.CopyFile(binaryPath, toolPath); err != nil {
		fatalf("Failed to copy tool binary: %v", err)
	}

	// Build the target disk image: a loopback ext4 volume seeded with a
	// minimal yum-capable root, mounted where the provisioner expects it.
	log.Status("Creating target disk image...")
	steps := []string{
		fmt.Sprintf("sudo truncate -s 4G %s", imageFile),
		fmt.Sprintf("sudo mkfs.ext4 -q %s", imageFile),
		fmt.Sprintf("sudo mkdir -p %s", imageMount),
		fmt.Sprintf("sudo mount -o loop %s %s", imageFile, imageMount),
	}
	for _, step := range steps {
		if output, err := v.Run(step); err != nil {
			fatalf("Image setup failed (%s): %v\n%s", step, err, output)
		}
	}

	log.Status("Seeding target image root (this takes a while)...")
	seed := fmt.Sprintf(
		"sudo dnf -y --installroot=%s --use-host-config --setopt=install_weak_deps=False install bash coreutils yum",
		imageMount)
	if output, err := v.RunWithTimeout(ctx, seed, seedTimeout); err != nil {
		fatalf("Failed to seed target image: %v\n%s", err, output)
	}

	log.Status("Target image ready at %s", imageMount)
}
