package mount

import (
	"strings"

	"golang.org/x/sys/unix"
)

// optionFlags maps mount option words to their mount(2) flag bits.
var optionFlags = map[string]uintptr{
	"ro":         unix.MS_RDONLY,
	"nosuid":     unix.MS_NOSUID,
	"nodev":      unix.MS_NODEV,
	"noexec":     unix.MS_NOEXEC,
	"noatime":    unix.MS_NOATIME,
	"nodiratime": unix.MS_NODIRATIME,
	"relatime":   unix.MS_RELATIME,
	"sync":       unix.MS_SYNCHRONOUS,
	"bind":       unix.MS_BIND,
	"rbind":      unix.MS_BIND | unix.MS_REC,
	"remount":    unix.MS_REMOUNT,
}

// parseOptions splits a mount(8)-style option string into mount(2) flags
// and a data string for filesystem-specific options.
//
// Words that name a flag bit become flags; "rw" and "defaults" are the
// kernel defaults and are dropped; everything else (e.g. "size=16g",
// "mode=0755") is passed through in the data string.
func parseOptions(options string) (flags uintptr, data string) {
	if options == "" {
		return 0, ""
	}

	var passthrough []string
	for _, opt := range strings.Split(options, ",") {
		opt = strings.TrimSpace(opt)
		switch {
		case opt == "" || opt == "rw" || opt == "defaults":
			// kernel default
		case optionFlags[opt] != 0:
			flags |= optionFlags[opt]
		default:
			passthrough = append(passthrough, opt)
		}
	}

	return flags, strings.Join(passthrough, ",")
}
