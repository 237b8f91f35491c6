package version

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Build information set by the compiler flags
var (
	// Version is the engine version, also written into new ledgers'
	// refreshmint.json.
	Version = "1.0.0"

	// GitCommit is the git commit hash
	GitCommit = "unknown"

	// BuildTime is the time the binary was built
	BuildTime = "unknown"

	// GoVersion is the version of Go used to build the binary
	GoVersion = runtime.Version()
)

// FullVersion returns the full version string including git commit and build time
func FullVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, %s)", Version, GitCommit, BuildTime, GoVersion)
}

// UserAgent returns a string identifying this engine to the browser/CDP side.
func UserAgent() string {
	return fmt.Sprintf("Refreshmint/%s", Version)
}

// Semver is a parsed "major.minor.patch" version. Refreshmint ledgers only
// ever carry this shape in refreshmint.json; it is not a general semver parser.
type Semver struct {
	Major, Minor, Patch int
}

func (v Semver) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseSemver parses a "X.Y.Z" string. It returns an error for anything else,
// including build metadata or pre-release suffixes, which Refreshmint does
// not use in ledger version manifests.
func ParseSemver(s string) (Semver, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return Semver{}, fmt.Errorf("version: malformed semver %q", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Semver{}, fmt.Errorf("version: malformed semver component %q in %q", p, s)
		}
		nums[i] = n
	}
	return Semver{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// CompatibleWith reports whether a ledger stamped with ledgerVersion can be
// opened by an engine at engineVersion: same major version, and the ledger's
// minor version must not exceed the engine's (an older minor version is a
// migration opportunity, not a rejection).
func CompatibleWith(engineVersion, ledgerVersion Semver) bool {
	if engineVersion.Major != ledgerVersion.Major {
		return false
	}
	return ledgerVersion.Minor <= engineVersion.Minor
}
