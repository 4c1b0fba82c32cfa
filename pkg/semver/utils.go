package semver

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// IsValid reports whether v parses as a semantic version (a leading "v" is accepted).
func IsValid(v string) bool {
	_, err := semver.NewVersion(strings.TrimSpace(v))
	return err == nil
}

// SatisfiesMinimum reports whether current >= minimum.
//
// An empty minimum is always satisfied. Development builds satisfy every
// minimum: versions that do not parse ("nightly") and 0.0.0 with or without a
// pre-release suffix, which is what an unstamped build reports.
// A malformed minimum is an error because it comes from an app descriptor.
func SatisfiesMinimum(current, minimum string) (bool, error) {
	minimum = strings.TrimSpace(minimum)
	if minimum == "" {
		return true, nil
	}
	min, err := semver.NewVersion(minimum)
	if err != nil {
		return false, fmt.Errorf("invalid minimum version %q: %w", minimum, err)
	}
	cur, err := semver.NewVersion(strings.TrimSpace(current))
	if err != nil || IsDevelopment(cur) {
		return true, nil
	}
	return !cur.LessThan(min), nil
}

// IsDevelopment reports whether v is an unreleased 0.0.0 build.
func IsDevelopment(v *semver.Version) bool {
	return v.Major() == 0 && v.Minor() == 0 && v.Patch() == 0
}
