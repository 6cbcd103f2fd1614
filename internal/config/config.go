package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/imgforge/chroot-provision/internal/mount"
)

const (
	// DefaultConfigPath is the default location for the config file
	DefaultConfigPath = "/etc/chroot-provision/config.toml"
	// DefaultJournalPath is the default location for the run journal
	DefaultJournalPath = "/var/lib/chroot-provision/runs.db"
	// DefaultShortCircuitDst is the default no-op stand-in for
	// short-circuited scripts
	DefaultShortCircuitDst = "/bin/true"
)

// MountDef is one configured chroot sub-mount. Mountpoint is the path
// inside the image (e.g. "/proc").
type MountDef struct {
	Device     string `toml:"device"`
	FSType     string `toml:"fstype"`
	Mountpoint string `toml:"mountpoint"`
	Options    string `toml:"options"`
}

// Config holds the provisioner configuration
type Config struct {
	// Mountpoint is the base path where the target image volume is mounted
	Mountpoint string `toml:"mountpoint"`
	// Mounts are the chroot sub-mounts, in mount order
	Mounts []MountDef `toml:"mounts"`
	// ShortCircuitService toggles short-circuiting of service-control
	// scripts during installation
	ShortCircuitService bool `toml:"short_circuit_service"`
	// ShortCircuitFiles are the image script paths to short-circuit
	ShortCircuitFiles []string `toml:"short_circuit_files"`
	// ShortCircuitDst is the stand-in the scripts are redirected to
	ShortCircuitDst string `toml:"short_circuit_dst"`
	// JournalPath is where run records are kept
	JournalPath string `toml:"journal_path"`
}

// Load loads configuration from a TOML file
// Returns an empty config if the file doesn't exist
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// Merge merges CLI flags into the config, with CLI flags taking precedence
// over config file values. Empty CLI values are ignored.
func (c *Config) Merge(mountpoint, journalPath string) {
	if mountpoint != "" {
		c.Mountpoint = mountpoint
	}
	if journalPath != "" {
		c.JournalPath = journalPath
	}
}

// ApplyDefaults applies default values for any unset fields. The default
// mount list covers what package scripts expect to find in a chroot.
func (c *Config) ApplyDefaults() {
	if len(c.Mounts) == 0 {
		c.Mounts = []MountDef{
			{Device: "proc", FSType: "proc", Mountpoint: "/proc", Options: "rw,nosuid,nodev,noexec"},
			{Device: "devtmpfs", FSType: "devtmpfs", Mountpoint: "/dev", Options: "rw,nosuid"},
			{Device: "sysfs", FSType: "sysfs", Mountpoint: "/sys", Options: "rw,nosuid,nodev,noexec"},
		}
	}
	if c.ShortCircuitDst == "" {
		c.ShortCircuitDst = DefaultShortCircuitDst
	}
	if len(c.ShortCircuitFiles) == 0 && c.ShortCircuitService {
		c.ShortCircuitFiles = []string{"/sbin/service"}
	}
	if c.JournalPath == "" {
		c.JournalPath = DefaultJournalPath
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Mountpoint == "" {
		return fmt.Errorf("mountpoint is required (use --mountpoint or set 'mountpoint' in config file)")
	}
	if !strings.HasPrefix(c.Mountpoint, "/") {
		return fmt.Errorf("mountpoint must be an absolute path, got %q", c.Mountpoint)
	}

	for i, m := range c.Mounts {
		if m.FSType == "" {
			return fmt.Errorf("mounts[%d]: fstype is required", i)
		}
		if !strings.HasPrefix(m.Mountpoint, "/") {
			return fmt.Errorf("mounts[%d]: mountpoint must be an absolute image path, got %q", i, m.Mountpoint)
		}
	}

	for _, f := range c.ShortCircuitFiles {
		if !strings.HasPrefix(f, "/") {
			return fmt.Errorf("short_circuit_files entries must be absolute image paths, got %q", f)
		}
	}

	return nil
}

// MountSpecs converts the configured mount definitions into mount specs,
// preserving order.
func (c *Config) MountSpecs() []mount.Spec {
	specs := make([]mount.Spec, 0, len(c.Mounts))
	for _, m := range c.Mounts {
		specs = append(specs, mount.Spec{
			Device:     m.Device,
			FSType:     m.FSType,
			Mountpoint: m.Mountpoint,
			Options:    m.Options,
		})
	}
	return specs
}
