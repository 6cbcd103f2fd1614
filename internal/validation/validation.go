package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// packageSpecPattern matches what yum accepts as an install argument:
// package names with optional version/arch qualifiers (e.g. "vim",
// "httpd-2.4.62-1.el9.x86_64"), local rpm paths, or plain URLs. The
// character class is deliberately tight: a spec is handed to an external
// command, so anything resembling shell metacharacters is rejected.
var packageSpecPattern = regexp.MustCompile(`^[a-zA-Z0-9._+:/@^~=-]+$`)

// ValidatePackageSpec validates a package argument before it is passed to
// the installer:
// - non-empty, no whitespace
// - must not begin with "-" (would be parsed as an option)
// - restricted to rpm name/version/URL characters
func ValidatePackageSpec(spec string) error {
	if spec == "" {
		return fmt.Errorf("package spec is empty")
	}

	if strings.HasPrefix(spec, "-") {
		return fmt.Errorf("package spec %q must not begin with a dash", spec)
	}

	if !packageSpecPattern.MatchString(spec) {
		return fmt.Errorf("package spec %q contains invalid characters", spec)
	}

	return nil
}
