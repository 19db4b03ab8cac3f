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

// Package mount implements the mount resolver (spec §4.7): normalizing the
// three accepted mounts syntaxes into a MountSpec and round-tripping it to
// engine CLI arguments, generalizing trill.Client.bindMounts's direct cast
// from *config.MobyMount to mount.Mount into a syntax-agnostic parser.
package mount

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/get2knowio/deacon/internal/substitute"
)

// Spec is the engine-neutral, validated mount descriptor (spec §4.7
// "MountSpec").
type Spec struct {
	Type        string // bind | volume | tmpfs
	Source      string
	Target      string
	ReadOnly    bool
	Consistency string
	Options     map[string]string
}

// Parse normalizes one mounts-array entry (already variable-substituted by
// the caller per spec §4.7 "Variable substitution is applied to
// source/target before validation") into a Spec.
func Parse(raw *config.MobyMount, workspaceFolder string) (Spec, error) {
	var spec Spec
	switch {
	case raw.Raw != "" && strings.Contains(raw.Raw, "="):
		var err error
		spec, err = parseFullForm(raw.Raw)
		if err != nil {
			return Spec{}, err
		}
	case raw.Raw != "":
		var err error
		spec, err = parseShortOrNamed(raw.Raw)
		if err != nil {
			return Spec{}, err
		}
	default:
		spec = Spec{
			Type:        defaultString(raw.Type, "bind"),
			Source:      raw.Source,
			Target:      raw.Target,
			ReadOnly:    raw.ReadOnly,
			Consistency: raw.Consistency,
			Options:     raw.Options,
		}
	}

	if spec.Target == "" || !filepath.IsAbs(spec.Target) {
		return Spec{}, fmt.Errorf("mount target must be an absolute path: %q", spec.Target)
	}
	if spec.Type == "tmpfs" && spec.Source != "" {
		return Spec{}, fmt.Errorf("tmpfs mounts may not specify a source")
	}
	if spec.Type == "bind" && spec.Source != "" && !filepath.IsAbs(spec.Source) {
		spec.Source = filepath.Join(workspaceFolder, spec.Source)
	}
	return spec, nil
}

// parseFullForm handles the comma-separated key=value syntax, e.g.
// "type=bind,source=/x,target=/y,ro,consistency=cached".
func parseFullForm(raw string) (Spec, error) {
	spec := Spec{Type: "bind", Options: map[string]string{}}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		key := kv[0]
		var val string
		if len(kv) == 2 {
			val = kv[1]
		}
		switch key {
		case "type":
			spec.Type = val
		case "source", "src":
			spec.Source = val
		case "target", "dst", "destination":
			spec.Target = val
		case "readonly", "ro":
			spec.ReadOnly = true
		case "consistency":
			spec.Consistency = val
		default:
			spec.Options[key] = val
		}
	}
	return spec, nil
}

// parseShortOrNamed handles "/host:/container[:mode]" (bind, when source
// begins with "/" or ".") and "name:/container[:mode]" (named volume).
func parseShortOrNamed(raw string) (Spec, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 {
		return Spec{}, fmt.Errorf("invalid mount shorthand: %q", raw)
	}
	source, target := parts[0], parts[1]
	spec := Spec{Source: source, Target: target}
	if strings.HasPrefix(source, "/") || strings.HasPrefix(source, ".") {
		spec.Type = "bind"
	} else {
		spec.Type = "volume"
	}
	if len(parts) >= 3 {
		switch parts[2] {
		case "ro", "readonly":
			spec.ReadOnly = true
		case "rw", "":
		default:
			spec.Consistency = parts[2]
		}
	}
	return spec, nil
}

// Substitute applies the variable substitution engine to source/target
// before Parse validates the result (spec §4.7).
func Substitute(raw *config.MobyMount, eng *substitute.Engine) (*config.MobyMount, error) {
	cp := *raw
	if cp.Source != "" {
		s, err := eng.SubstituteString(cp.Source)
		if err != nil {
			return nil, err
		}
		cp.Source = s
	}
	if cp.Target != "" {
		t, err := eng.SubstituteString(cp.Target)
		if err != nil {
			return nil, err
		}
		cp.Target = t
	}
	if cp.Raw != "" {
		r, err := eng.SubstituteString(cp.Raw)
		if err != nil {
			return nil, err
		}
		cp.Raw = r
	}
	return &cp, nil
}

// ToEngineArgs renders a Spec back to its `--mount` CLI argument form,
// satisfying the round-trip testable property from spec §8 invariant 7.
func (s Spec) ToEngineArgs() []string {
	fields := []string{"type=" + s.Type}
	if s.Source != "" {
		fields = append(fields, "source="+s.Source)
	}
	fields = append(fields, "target="+s.Target)
	if s.ReadOnly {
		fields = append(fields, "readonly")
	}
	if s.Consistency != "" {
		fields = append(fields, "consistency="+s.Consistency)
	}

	keys := make([]string, 0, len(s.Options))
	for k := range s.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := s.Options[k]; v != "" {
			fields = append(fields, k+"="+v)
		} else {
			fields = append(fields, k)
		}
	}

	return []string{"--mount", strings.Join(fields, ",")}
}

func defaultString(s, d string) string {
	if s == "" {
		return d
	}
	return s
}
