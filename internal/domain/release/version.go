package release

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// versionSegments is the number of dotted parts in a component version.
const versionSegments = 3

// FirstVersion is the version assigned to a component that has never been published.
//
//nolint:gochecknoglobals // Immutable value used as a well-known constant.
var FirstVersion = Version{Major: 1, Minor: 0, Build: 0}

var errInvalidVersion = errors.New("invalid version")

// Version is a dotted three-part component version.
// Only Build takes part in ordering; Major and Minor are carried as is.
type Version struct {
	// Major is the first dotted segment.
	Major int
	// Minor is the second dotted segment.
	Minor int
	// Build is the trailing counter incremented on every publish.
	Build int
}

// ParseVersion parses a "major.minor.build" string with non-negative decimal segments.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != versionSegments {
		return Version{}, fmt.Errorf("%w %q: expected %d segments", errInvalidVersion, s, versionSegments)
	}

	values := make([]int, versionSegments)

	for i, part := range parts {
		value, err := strconv.Atoi(part)
		if err != nil || value < 0 || part == "" || (len(part) > 1 && part[0] == '0') {
			return Version{}, fmt.Errorf("%w %q: segment %q", errInvalidVersion, s, part)
		}

		values[i] = value
	}

	return Version{Major: values[0], Minor: values[1], Build: values[2]}, nil
}

// MustParseVersion is like ParseVersion but panics on malformed input.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}

	return v
}

// String renders the version in dotted form.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}

// IsZero reports whether v is the unset version.
func (v Version) IsZero() bool {
	return v == Version{}
}

// Next returns the version with the trailing segment incremented by one.
func (v Version) Next() Version {
	v.Build++

	return v
}

// Previous returns up to n versions preceding v, nearest first.
// The sequence stops once the trailing segment reaches zero.
func (v Version) Previous(n int) []Version {
	if n <= 0 || v.Build <= 0 {
		return nil
	}

	if n > v.Build {
		n = v.Build
	}

	result := make([]Version, 0, n)

	for i := 1; i <= n; i++ {
		result = append(result, Version{Major: v.Major, Minor: v.Minor, Build: v.Build - i})
	}

	return result
}

// Less reports whether v orders before other.
func (v Version) Less(other Version) bool {
	return v.Build < other.Build
}

// FileTag renders the version with underscores, as used in artifact file names.
func (v Version) FileTag() string {
	return strings.ReplaceAll(v.String(), ".", "_")
}
