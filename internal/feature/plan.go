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

package feature

import (
	"fmt"
	"sort"

	"github.com/heimdalr/dag"
)

// InstallationPlan is the ordered-by-levels execution schedule from spec
// §3.1: features in declaration order, and the level grouping used to drive
// parallel-safe installation.
type InstallationPlan struct {
	Features []*Resolved
	Levels   [][]string
}

// CycleError names the participants of a dependsOn/installsAfter cycle
// (spec §4.4 step 6).
type CycleError struct {
	Participants []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic feature dependency involving: %v", e.Participants)
}

// canonicalRef maps a raw dependsOn/installsAfter reference onto a vertex
// id already present in resolved. OCI and tarball references canonicalize
// deterministically from the raw string; local-path references must be
// matched against the already-resolved feature's declared source, since
// their canonical id is the resolved absolute directory (spec §4.4 step 1),
// which resolve.Resolver computed but a raw reference string alone can't
// reproduce without a config-directory anchor.
func canonicalRef(resolved map[string]*Resolved, raw string) string {
	parsed, err := ParseRef(raw)
	if err != nil {
		return raw
	}
	if parsed.Kind != RefLocalPath {
		return parsed.CanonicalID()
	}
	for id, r := range resolved {
		if r.Source == raw {
			return id
		}
	}
	return raw
}

// BuildPlan constructs the InstallationPlan for resolved, generalizing
// brig.Command.BuildFeaturesInstallationGraph (which used the same
// AddVertexByID/AddEdge/GetVertex heimdalr/dag calls) into full level
// computation with override-order tie-breaking (spec §4.4 steps 4-6).
//
// declarationOrder is the canonical ids in the order features were declared
// in the source map. Ids missing from it (features pulled in only through
// dependsOn) all count as position 0 when ties are broken. overrideOrder is
// the optional overrideFeatureInstallOrder list of canonical ids.
func BuildPlan(resolved map[string]*Resolved, declarationOrder []string, overrideOrder []string) (*InstallationPlan, error) {
	d := dag.NewDAG()
	for id, r := range resolved {
		if err := d.AddVertexByID(id, r); err != nil {
			return nil, fmt.Errorf("adding feature %s to dependency graph: %w", id, err)
		}
	}

	successors := make(map[string][]string)
	indegree := make(map[string]int, len(resolved))
	for id := range resolved {
		indegree[id] = 0
	}

	addEdge := func(from, to string) error {
		if _, ok := resolved[from]; !ok {
			return nil // a dependency outside the resolved set is not installable; ignore
		}
		if _, ok := resolved[to]; !ok {
			return nil
		}
		if err := d.AddEdge(from, to); err != nil {
			return &CycleError{Participants: []string{from, to}}
		}
		successors[from] = append(successors[from], to)
		indegree[to]++
		return nil
	}

	for id, r := range resolved {
		for depID := range r.Metadata.DependsOn {
			if err := addEdge(canonicalRef(resolved, depID), id); err != nil {
				return nil, err
			}
		}
		for _, after := range r.Metadata.InstallsAfter {
			if err := addEdge(canonicalRef(resolved, after), id); err != nil {
				return nil, err
			}
		}
	}

	declPos := make(map[string]int, len(declarationOrder))
	for i, id := range declarationOrder {
		declPos[id] = i
	}
	overridePos := make(map[string]int, len(overrideOrder))
	for i, id := range overrideOrder {
		overridePos[id] = i
	}

	order := func(ids []string) {
		sort.Slice(ids, func(i, j int) bool {
			a, b := ids[i], ids[j]
			if len(overrideOrder) > 0 {
				pa, aok := overridePos[a]
				pb, bok := overridePos[b]
				switch {
				case aok && bok:
					return pa < pb
				case aok:
					return true
				case bok:
					return false
				}
			}
			return declPos[a] < declPos[b]
		})
	}

	remaining := indegree
	var levels [][]string
	installed := 0
	for installed != len(resolved) {
		var level []string
		for id, deg := range remaining {
			if deg == 0 {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			var stuck []string
			for id := range remaining {
				stuck = append(stuck, id)
			}
			sort.Strings(stuck)
			return nil, &CycleError{Participants: stuck}
		}
		order(level)
		for _, id := range level {
			delete(remaining, id)
			installed++
			for _, to := range successors[id] {
				remaining[to]--
			}
		}
		levels = append(levels, level)
	}

	var features []*Resolved
	ordered := append([]string(nil), declarationOrder...)
	seen := make(map[string]bool, len(ordered))
	for _, id := range ordered {
		if r, ok := resolved[id]; ok && !seen[id] {
			features = append(features, r)
			seen[id] = true
		}
	}
	for _, level := range levels {
		for _, id := range level {
			if !seen[id] {
				features = append(features, resolved[id])
				seen[id] = true
			}
		}
	}

	return &InstallationPlan{Features: features, Levels: levels}, nil
}
