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

// Package security merges the privileged/capAdd/securityOpt declarations
// of the root config and every installed feature into one effective
// container-security posture (spec §4.8).
package security

import (
	"sort"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/get2knowio/deacon/internal/feature"
)

// Merged is the effective security posture after combining the root config
// with every feature in installation order.
type Merged struct {
	Privileged bool
	CapAdd     []string
	SecurityOpt []string

	// PrivilegedConflict is set when one contributor explicitly requested
	// privileged:false while another requested privileged:true; the merge
	// still resolves to true (any true wins) but callers may want to warn.
	PrivilegedConflict bool
}

type contributor struct {
	source      string
	privileged  *bool
	capAdd      []string
	securityOpt []string
}

// Merge combines cfg's own security fields with every feature's, in plan
// order, producing one effective posture (spec §4.8).
func Merge(cfg *config.DevContainerConfig, plan *feature.InstallationPlan) Merged {
	var contributors []contributor
	if plan != nil {
		for _, r := range plan.Features {
			contributors = append(contributors, contributor{
				source:      r.ID,
				privileged:  r.Metadata.Privileged,
				capAdd:      r.Metadata.CapAdd,
				securityOpt: r.Metadata.SecurityOpt,
			})
		}
	}
	contributors = append(contributors, contributor{
		source:      "config",
		privileged:  cfg.Privileged,
		capAdd:      cfg.CapAdd,
		securityOpt: cfg.SecurityOpt,
	})

	var merged Merged
	sawTrue, sawFalse := false, false
	capSet := map[string]struct{}{}
	optSet := map[string]struct{}{}

	for _, c := range contributors {
		if c.privileged != nil {
			if *c.privileged {
				sawTrue = true
			} else {
				sawFalse = true
			}
		}
		for _, cap := range c.capAdd {
			capSet[cap] = struct{}{}
		}
		for _, opt := range c.securityOpt {
			optSet[opt] = struct{}{}
		}
	}

	merged.Privileged = sawTrue
	merged.PrivilegedConflict = sawTrue && sawFalse
	merged.CapAdd = sortedKeys(capSet)
	merged.SecurityOpt = sortedKeys(optSet)
	return merged
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ToEngineArgs flattens Merged to flat docker/podman run CLI arguments
// (spec §4.8 "flat CLI arg output").
func (m Merged) ToEngineArgs() []string {
	var args []string
	if m.Privileged {
		args = append(args, "--privileged")
	}
	for _, cap := range m.CapAdd {
		args = append(args, "--cap-add", cap)
	}
	for _, opt := range m.SecurityOpt {
		args = append(args, "--security-opt", opt)
	}
	return args
}
