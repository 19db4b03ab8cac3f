/*
   deacon: a native Go devcontainer orchestrator
   Copyright (C) 2026  The deacon authors

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU General Public License as published by
   the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU General Public License for more details.
*/

package ociclient

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// PublishTarget is the {major, major.minor, full, latest} quartet computed
// for a publish target (spec §4.3 semver_utils).
type PublishTarget struct {
	Major      string
	MajorMinor string
	Full       string
	Latest     bool
}

// ParseSemver strips a leading "v" and parses the remainder with
// Masterminds/semver, which is lenient about missing minor/patch segments.
func ParseSemver(tag string) (*semver.Version, error) {
	return semver.NewVersion(strings.TrimPrefix(tag, "v"))
}

// FilterSemverTags keeps only tags that parse as semantic versions.
func FilterSemverTags(tags []string) []*semver.Version {
	var out []*semver.Version
	for _, t := range tags {
		v, err := ParseSemver(t)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// SortDescending sorts versions from newest to oldest in place and returns
// the slice for chaining.
func SortDescending(versions []*semver.Version) []*semver.Version {
	sort.Slice(versions, func(i, j int) bool { return versions[i].GreaterThan(versions[j]) })
	return versions
}

// LatestStable returns the highest version with no pre-release component,
// as required by the outdated analyzer (spec §4.13 step 2).
func LatestStable(versions []*semver.Version) (*semver.Version, bool) {
	for _, v := range SortDescending(append([]*semver.Version(nil), versions...)) {
		if v.Prerelease() == "" {
			return v, true
		}
	}
	return nil, false
}

// PublishTargets computes the quartet of tags a publish operation should
// apply for version v: the bare major, major.minor, the full version, and
// "latest" when isLatest is true.
func PublishTargets(v *semver.Version, isLatest bool) []string {
	tags := []string{
		fmt.Sprintf("%d", v.Major()),
		fmt.Sprintf("%d.%d", v.Major(), v.Minor()),
		v.String(),
	}
	if isLatest {
		tags = append(tags, "latest")
	}
	return tags
}

// VersionFragment extracts the version-like fragment from a declared
// image/feature tag, e.g. "node:18" -> "18"; an OCI ref with no tag at all
// yields "" (spec §4.13 step 3, "wanted").
func VersionFragment(ref string) string {
	if i := strings.LastIndex(ref, ":"); i >= 0 {
		return ref[i+1:]
	}
	return ""
}

// MajorComponent returns the leading major component of a version
// fragment, e.g. "18.1.0" -> "18", "18" -> "18".
func MajorComponent(fragment string) string {
	if fragment == "" {
		return ""
	}
	if v, err := ParseSemver(fragment); err == nil {
		return fmt.Sprintf("%d", v.Major())
	}
	parts := strings.SplitN(fragment, ".", 2)
	return parts[0]
}
