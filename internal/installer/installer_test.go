package installer

import (
	"context"
	"strings"
	"testing"
)

func TestInstallCommandShape(t *testing.T) {
	var gotName string
	var gotArgs []string

	y := NewYum("/mnt/image")
	y.run = func(_ context.Context, name string, args ...string) Result {
		gotName = name
		gotArgs = args
		return Result{Success: true}
	}

	res := y.Install(context.Background(), "httpd-2.4.62")
	if !res.Success {
		t.Fatal("expected success")
	}

	if gotName != "chroot" {
		t.Errorf("command = %q, want chroot", gotName)
	}
	want := []string{"/mnt/image", "yum", "--assumeyes", "install", "httpd-2.4.62"}
	if strings.Join(gotArgs, " ") != strings.Join(want, " ") {
		t.Errorf("args = %v, want %v", gotArgs, want)
	}
}

func TestCleanMetadataCommandShape(t *testing.T) {
	var gotArgs []string

	y := NewYum("/mnt/image")
	y.run = func(_ context.Context, _ string, args ...string) Result {
		gotArgs = args
		return Result{Success: true}
	}

	y.CleanMetadata(context.Background())
	want := "/mnt/image yum clean metadata"
	if strings.Join(gotArgs, " ") != want {
		t.Errorf("args = %v, want %q", gotArgs, want)
	}
}

func TestRunCommandCapturesOutput(t *testing.T) {
	res := runCommand(context.Background(), "sh", "-c", "echo out; echo err >&2")
	if !res.Success {
		t.Fatalf("expected success, stderr: %s", res.Stderr)
	}
	if strings.TrimSpace(res.Stdout) != "out" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "err" {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

func TestRunCommandNonZeroExitIsFailedResult(t *testing.T) {
	res := runCommand(context.Background(), "sh", "-c", "echo broken >&2; exit 3")
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Stderr, "broken") {
		t.Errorf("stderr should carry the diagnostic text, got %q", res.Stderr)
	}
}

func TestRunCommandLaunchFailure(t *testing.T) {
	res := runCommand(context.Background(), "/nonexistent/binary-for-test")
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Stderr == "" {
		t.Error("launch errors must surface in stderr")
	}
}
