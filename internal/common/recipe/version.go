package recipe

import (
	"errors"
	"fmt"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

var ErrInvalidVersion = errors.New("invalid version")

// ParseVersion parses a version string into its normalized release form.
// "1.2.0", "v1.2.0" and "1.2.0.0" all normalize to the same version.
func ParseVersion(v string) (pep440.Version, error) {
	parsed, err := pep440.Parse(strings.TrimSpace(v))
	if err != nil {
		return pep440.Version{}, fmt.Errorf("%w %q: %v", ErrInvalidVersion, v, err)
	}
	return parsed, nil
}

// CompareVersions compares two version strings after normalization.
// Returns -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2.
func CompareVersions(v1, v2 string) (int, error) {
	a, err := ParseVersion(v1)
	if err != nil {
		return 0, err
	}
	b, err := ParseVersion(v2)
	if err != nil {
		return 0, err
	}
	return a.Compare(b), nil
}

// IsNewer reports whether upstream is strictly greater than current
func IsNewer(upstream, current string) (bool, error) {
	cmp, err := CompareVersions(upstream, current)
	if err != nil {
		return false, err
	}
	return cmp > 0, nil
}
