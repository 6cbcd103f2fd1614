package mount

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name      string
		options   string
		wantFlags uintptr
		wantData  string
	}{
		{"empty", "", 0, ""},
		{"defaults only", "defaults", 0, ""},
		{"rw is the default", "rw", 0, ""},
		{"read only", "ro", unix.MS_RDONLY, ""},
		{"hardening set", "ro,nosuid,nodev,noexec",
			unix.MS_RDONLY | unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC, ""},
		{"bind", "bind", unix.MS_BIND, ""},
		{"recursive bind", "rbind", unix.MS_BIND | unix.MS_REC, ""},
		{"fs specific passthrough", "size=16g,mode=0755", 0, "size=16g,mode=0755"},
		{"mixed flags and data", "rw,nosuid,size=64g", unix.MS_NOSUID, "size=64g"},
		{"whitespace tolerated", "ro, nosuid", unix.MS_RDONLY | unix.MS_NOSUID, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, data := parseOptions(tt.options)
			if flags != tt.wantFlags {
				t.Errorf("parseOptions(%q) flags = %#x, want %#x", tt.options, flags, tt.wantFlags)
			}
			if data != tt.wantData {
				t.Errorf("parseOptions(%q) data = %q, want %q", tt.options, data, tt.wantData)
			}
		})
	}
}

func TestSpecRebase(t *testing.T) {
	spec := Spec{Device: "proc", FSType: "proc", Mountpoint: "/proc", Options: "rw"}

	rebased := spec.Rebase("/mnt/image")
	if rebased.Mountpoint != "/mnt/image/proc" {
		t.Errorf("Rebase mountpoint = %q, want /mnt/image/proc", rebased.Mountpoint)
	}

	// Original spec is unchanged
	if spec.Mountpoint != "/proc" {
		t.Errorf("Rebase mutated the original spec: %q", spec.Mountpoint)
	}

	// Mountpoints without leading slash behave the same
	if got := (Spec{Mountpoint: "dev"}).Rebase("/mnt/image").Mountpoint; got != "/mnt/image/dev" {
		t.Errorf("Rebase without leading slash = %q, want /mnt/image/dev", got)
	}
}

func TestPathUnder(t *testing.T) {
	if !pathUnder("/mnt/image", "/mnt/image") {
		t.Error("base itself counts as under base")
	}
	if !pathUnder("/mnt/image/etc/resolv.conf", "/mnt/image") {
		t.Error("nested path counts as under base")
	}
	if pathUnder("/mnt/image2", "/mnt/image") {
		t.Error("sibling with common prefix must not count")
	}
}
