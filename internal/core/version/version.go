// Package version normalises loose version strings and declared version ranges.
//
// Everything here is pure. Versions reported by probes ("16.2 (Debian 16.2-1)",
// "v1.24.2", "7.2") and declared by manifests ("^1.5.0", ">=1.4,<2") are
// reduced to semantic versions so they can be compared and bucketed.
package version

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/blang/semver"
)

var (
	// ErrInvalidVersion is returned when no numeric version can be extracted.
	ErrInvalidVersion = errors.New("invalid version")

	// ErrInvalidRequirement is returned for a range expression that cannot be parsed.
	ErrInvalidRequirement = errors.New("invalid version requirement")
)

// leadingVersion captures up to three numeric components at the start of a
// string, after an optional "v" prefix.
var leadingVersion = regexp.MustCompile(`^\s*[vV]?(\d+)(?:\.(\d+))?(?:\.(\d+))?`)

// components returns the numeric components present in s and how many were given.
func components(s string) ([3]uint64, int, error) {
	var out [3]uint64
	m := leadingVersion.FindStringSubmatch(s)
	if m == nil {
		return out, 0, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	given := 0
	for i := 1; i <= 3; i++ {
		if m[i] == "" {
			break
		}
		n, err := strconv.ParseUint(m[i], 10, 64)
		if err != nil {
			return out, 0, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		out[i-1] = n
		given++
	}
	return out, given, nil
}

// Parse extracts a semantic version from a loose version string. Missing
// minor and patch components default to zero; trailing text is ignored.
//
// Example:
//
//	Parse("16.2 (Debian 16.2-1.pgdg120+1)") // 16.2.0
//	Parse("v1.24.2")                        // 1.24.2
func Parse(s string) (semver.Version, error) {
	c, _, err := components(s)
	if err != nil {
		return semver.Version{}, err
	}
	return semver.Version{Major: c[0], Minor: c[1], Patch: c[2]}, nil
}

// Canonical returns the "major.minor.patch" form of s.
func Canonical(s string) (string, error) {
	v, err := Parse(s)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// Bucket returns the "major.minor" bucket of s, used as a compatibility key.
func Bucket(s string) (string, error) {
	v, err := Parse(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%d", v.Major, v.Minor), nil
}

// MajorBucket returns the major component of s as a string.
func MajorBucket(s string) (string, error) {
	v, err := Parse(s)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(v.Major, 10), nil
}

// Compare returns -1, 0 or 1 comparing a to b.
func Compare(a, b string) (int, error) {
	va, err := Parse(a)
	if err != nil {
		return 0, err
	}
	vb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// WithinBucket reports whether v falls in [min, max] where max names a whole
// bucket: a max of "16" admits every 16.x, a max of "1.24" admits every 1.24.x.
// Empty bounds are open.
func WithinBucket(v, min, max string) (bool, error) {
	pv, err := Parse(v)
	if err != nil {
		return false, err
	}
	if min != "" {
		pmin, err := Parse(min)
		if err != nil {
			return false, err
		}
		if pv.LT(pmin) {
			return false, nil
		}
	}
	if max != "" {
		upper, err := bucketCeiling(max)
		if err != nil {
			return false, err
		}
		if pv.GTE(upper) {
			return false, nil
		}
	}
	return true, nil
}

// bucketCeiling returns the exclusive upper bound for the bucket named by s.
func bucketCeiling(s string) (semver.Version, error) {
	c, given, err := components(s)
	if err != nil {
		return semver.Version{}, err
	}
	return bump(c, given), nil
}

// bump increments the most specific of the given components and zeroes the
// rest: bump(1.2.3, 3) = 1.2.4, bump(1.2, 2) = 1.3.0, bump(1, 1) = 2.0.0.
func bump(c [3]uint64, given int) semver.Version {
	switch given {
	case 1:
		return semver.Version{Major: c[0] + 1}
	case 2:
		return semver.Version{Major: c[0], Minor: c[1] + 1}
	default:
		return semver.Version{Major: c[0], Minor: c[1], Patch: c[2] + 1}
	}
}
