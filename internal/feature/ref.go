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

// Package feature implements the feature reference parser and resolver
// (spec §3.1, §4.4): classifying a feature identifier, downloading its
// artifact, merging options against declared defaults, and producing an
// ordered InstallationPlan.
package feature

import (
	"fmt"
	"strings"
)

// RefKind discriminates the three feature reference shapes (spec §3.1).
type RefKind int

const (
	RefOCI RefKind = iota
	RefLocalPath
	RefHTTPSTarball
)

// Ref is the discriminated-union FeatureRef from spec §3.1.
type Ref struct {
	Kind RefKind
	Raw  string

	// OCI fields, populated when Kind == RefOCI.
	Registry  string
	Namespace string
	Name      string
	Tag       string

	// LocalPath fields, populated when Kind == RefLocalPath.
	Path string

	// HTTPSTarball fields, populated when Kind == RefHTTPSTarball.
	URL string
}

// CanonicalID returns the stable id used for dependency-graph vertices and
// cache keys: "registry/namespace/name" for OCI, the path as written for
// local, the URL for tarballs (spec §3.1, glossary "Canonical id").
// Resolver.ResolveAll keys local features by their absolute directory
// instead, since only it knows the config directory.
func (r Ref) CanonicalID() string {
	switch r.Kind {
	case RefOCI:
		return fmt.Sprintf("%s/%s/%s", r.Registry, r.Namespace, r.Name)
	case RefLocalPath:
		return r.Path
	case RefHTTPSTarball:
		return r.URL
	default:
		return r.Raw
	}
}

// ParseRef classifies a feature identifier per spec §3.1: absolute paths
// and plain HTTP are rejected.
func ParseRef(raw string) (Ref, error) {
	switch {
	case strings.HasPrefix(raw, "/"):
		return Ref{}, fmt.Errorf("locally-stored features may not be referenced by an absolute path: %s", raw)

	case strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../"):
		return Ref{Kind: RefLocalPath, Raw: raw, Path: raw}, nil

	case strings.HasPrefix(raw, "http://"):
		return Ref{}, fmt.Errorf("plain HTTP feature references are rejected, use https://: %s", raw)

	case strings.HasPrefix(raw, "https://"):
		return Ref{Kind: RefHTTPSTarball, Raw: raw, URL: raw}, nil

	default:
		registry, namespace, name, tag := parseOCIRef(raw)
		return Ref{
			Kind:      RefOCI,
			Raw:       raw,
			Registry:  registry,
			Namespace: namespace,
			Name:      name,
			Tag:       tag,
		}, nil
	}
}

// parseOCIRef splits a feature reference of the form
// "registry/namespace/name[:tag]" (namespace may itself contain slashes).
func parseOCIRef(raw string) (registry, namespace, name, tag string) {
	ref := raw
	if i := strings.LastIndex(ref, ":"); i >= 0 && !strings.Contains(ref[i:], "/") {
		tag = ref[i+1:]
		ref = ref[:i]
	}
	parts := strings.Split(ref, "/")
	if len(parts) < 2 {
		return "", "", ref, tag
	}
	registry = parts[0]
	name = parts[len(parts)-1]
	namespace = strings.Join(parts[1:len(parts)-1], "/")
	return registry, namespace, name, tag
}
