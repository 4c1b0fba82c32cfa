package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Set at build time, e.g.
// -ldflags "-X appcrane/internal/application/version.version=v1.2.3 -X appcrane/internal/application/version.commit=abc123"
var (
	version = "0.0.0"
	commit  = "unknown"
)

func GetVersion() string {
	return version
}

func GetNumericVersion() int {
	return ParseNumericVersion(version)
}

// ParseNumericVersion folds "1.2.3" into 1002003. Pre-release and build
// suffixes are ignored; unparseable versions give 0.
func ParseNumericVersion(v string) int {
	sv, err := semver.NewVersion(v)
	if err != nil {
		return 0
	}
	return int(sv.Major())*1_000_000 + int(sv.Minor())*1_000 + int(sv.Patch())
}

// Info is the one-line description printed by --version.
func Info() string {
	return fmt.Sprintf("%s (#%d, commit %s)", version, GetNumericVersion(), commit)
}
