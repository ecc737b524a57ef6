package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// VersionInfo is a parsed Unity engine version such as "2019.4.40f1".
type VersionInfo struct {
	Major int
	Minor int
	Patch int
	// Type is the release letter: a (alpha), b (beta), f (final), p (patch)
	// or x (experimental). Zero when the string has none.
	Type  byte
	Build int
}

func (v VersionInfo) String() string {
	if v.Type == 0 {
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
	return fmt.Sprintf("%d.%d.%d%c%d", v.Major, v.Minor, v.Patch, v.Type, v.Build)
}

// ParseVersionInfo parses an engine version string. Bundles written by
// stripped players carry "0.0.0", which parses fine.
func ParseVersionInfo(version string) (*VersionInfo, error) {
	if version == "" {
		return nil, fmt.Errorf("version string cannot be empty")
	}

	parts := strings.Split(version, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid version format: %s (expected at least major.minor)", version)
	}

	info := &VersionInfo{}
	var err error

	info.Major, err = strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid major version: %s", parts[0])
	}

	info.Minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid minor version: %s", parts[1])
	}

	if len(parts) > 2 && parts[2] != "" {
		patch := parts[2]
		// the patch field may carry the release letter and build: 40f1
		if i := strings.IndexAny(patch, "abfpx"); i >= 0 {
			info.Type = patch[i]
			if build := patch[i+1:]; build != "" {
				if info.Build, err = strconv.Atoi(build); err != nil {
					return nil, fmt.Errorf("invalid build number: %s", build)
				}
			}
			patch = patch[:i]
		}
		info.Patch, err = strconv.Atoi(patch)
		if err != nil {
			return nil, fmt.Errorf("invalid patch version: %s", parts[2])
		}
	}

	return info, nil
}

var releaseOrder = map[byte]int{'x': 0, 'a': 1, 'b': 2, 0: 3, 'f': 3, 'p': 4}

// CompareVersions compares two engine versions.
// Returns -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
func CompareVersions(v1, v2 string) (int, error) {
	info1, err := ParseVersionInfo(v1)
	if err != nil {
		return 0, fmt.Errorf("error parsing version %s: %w", v1, err)
	}

	info2, err := ParseVersionInfo(v2)
	if err != nil {
		return 0, fmt.Errorf("error parsing version %s: %w", v2, err)
	}

	a := []int{info1.Major, info1.Minor, info1.Patch, releaseOrder[info1.Type], info1.Build}
	b := []int{info2.Major, info2.Minor, info2.Patch, releaseOrder[info2.Type], info2.Build}
	for i := range a {
		if a[i] < b[i] {
			return -1, nil
		}
		if a[i] > b[i] {
			return 1, nil
		}
	}
	return 0, nil
}
