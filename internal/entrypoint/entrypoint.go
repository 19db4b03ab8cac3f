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

// Package entrypoint merges feature-declared entrypoints with the
// container's own, per the wrap/ignore/replace policies of spec §4.9.
package entrypoint

import (
	"fmt"
	"strings"

	"github.com/get2knowio/deacon/internal/feature"
)

// Policy selects how feature entrypoints combine with the base entrypoint.
type Policy string

const (
	// PolicyWrap generates a shell script invoking every feature entrypoint
	// in plan order, then execs the prior entrypoint. Default.
	PolicyWrap Policy = "wrap"
	// PolicyIgnore discards every feature-declared entrypoint.
	PolicyIgnore Policy = "ignore"
	// PolicyReplace keeps only the last feature's entrypoint.
	PolicyReplace Policy = "replace"
)

// Merge computes the effective entrypoint command. base is the prior
// entrypoint (compose-supplied, else the base image's own); an explicit
// composeEntrypoint always wins outright regardless of policy, per spec
// §4.9 "Compose precedence".
func Merge(policy Policy, plan *feature.InstallationPlan, base string, composeEntrypoint string) string {
	if composeEntrypoint != "" {
		return composeEntrypoint
	}

	var featureEntrypoints []string
	if plan != nil {
		for _, r := range plan.Features {
			if r.Metadata.Entrypoint != nil && *r.Metadata.Entrypoint != "" {
				featureEntrypoints = append(featureEntrypoints, *r.Metadata.Entrypoint)
			}
		}
	}

	switch policy {
	case PolicyIgnore:
		return base

	case PolicyReplace:
		if len(featureEntrypoints) == 0 {
			return base
		}
		return featureEntrypoints[len(featureEntrypoints)-1]

	case PolicyWrap, "":
		if len(featureEntrypoints) == 0 {
			return base
		}
		return wrapScript(featureEntrypoints, base)

	default:
		return base
	}
}

// wrapScript renders the generated shell script that runs every feature
// entrypoint in order before exec-ing the prior entrypoint with the
// container's own arguments (spec §4.9 "Wrap").
func wrapScript(featureEntrypoints []string, base string) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\nset -e\n")
	for _, ep := range featureEntrypoints {
		fmt.Fprintf(&b, "%s\n", ep)
	}
	if base == "" {
		base = `exec "$@"`
	} else {
		fmt.Fprintf(&b, "exec %s \"$@\"\n", base)
		return b.String()
	}
	b.WriteString(base + "\n")
	return b.String()
}
