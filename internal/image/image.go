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

// Package image builds the extended devcontainer image from an
// InstallationPlan: one Dockerfile RUN block per feature, each bind-mounting
// that feature's content out of a side build context (spec §4.5).
package image

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strings"

	"github.com/get2knowio/deacon/internal/feature"
)

// BuildOptions carries the cache/buildx surface spec §4.5 requires to be
// exposed as CLI arguments when non-default.
type BuildOptions struct {
	CacheFrom []string
	CacheTo   []string
	Builder   string
	NoCache   bool
}

var idSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeFeatureID maps a canonical feature id onto the character set
// Docker permits in a --mount source name.
func SanitizeFeatureID(id string) string {
	return idSanitizer.ReplaceAllString(id, "_")
}

// Tag formats the image name/tag pair
// "deacon-devcontainer-features:<workspace-hash>". Extended builds do not use
// it: DockerEngine.BuildImage tags each build
// "deacon-devcontainer-features:<context basename>-<random suffix>".
func Tag(workspaceHash string) string {
	return fmt.Sprintf("deacon-devcontainer-features:%s", workspaceHash)
}

// GenerateDockerfile renders the Dockerfile body described in spec §4.5: one
// RUN --mount=type=bind block per feature, in plan order within each level,
// each exporting the feature's options as uppercase env vars ahead of
// running its install.sh.
func GenerateDockerfile(plan *feature.InstallationPlan, baseImage string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "ARG _DEV_CONTAINERS_BASE_IMAGE=%s\n", baseImage)
	b.WriteString("FROM ${_DEV_CONTAINERS_BASE_IMAGE} AS dev_containers_target_stage\n")
	b.WriteString("RUN mkdir -p /tmp/dev-container-features\n")

	levelOf := make(map[string]int, len(plan.Features))
	for level, ids := range plan.Levels {
		for _, id := range ids {
			levelOf[id] = level
		}
	}

	for _, f := range plan.Features {
		sanitized := SanitizeFeatureID(f.ID)
		level := levelOf[f.ID]
		mountName := fmt.Sprintf("%s_%d", sanitized, level)
		mountTarget := fmt.Sprintf("/tmp/dev-container-features/%s", sanitized)

		fmt.Fprintf(&b, "RUN --mount=type=bind,from=%s,source=%s,target=%s,rw \\\n", sanitized, mountName, mountTarget)

		env := optionEnv(f)
		if len(env) > 0 {
			b.WriteString("    " + strings.Join(env, " ") + " \\\n")
		}
		fmt.Fprintf(&b, "    cd %s && chmod +x install.sh && ./install.sh\n", mountTarget)
	}

	return b.String()
}

// optionEnv renders a feature's resolved options as NAME="val" tokens,
// uppercased and deterministically ordered.
func optionEnv(f *feature.Resolved) []string {
	names := make([]string, 0, len(f.Options))
	for name := range f.Options {
		names = append(names, name)
	}
	sort.Strings(names)

	env := make([]string, 0, len(names))
	for _, name := range names {
		val := f.Options[name].ToEnvString()
		env = append(env, fmt.Sprintf("%s=%q", strings.ToUpper(name), val))
	}
	return env
}

// ErrBuildKitRequired is returned when the build needs BuildKit-only
// directives (the feature RUN --mount blocks) but buildx isn't available.
type ErrBuildKitRequired struct {
	Options []string
}

func (e *ErrBuildKitRequired) Error() string {
	return fmt.Sprintf("BuildKit is required for this build (uses %s) but `docker buildx` is not available", strings.Join(e.Options, ", "))
}

// RequiresBuildKit reports which of the cache/buildx-only options opts
// actually uses, for ErrBuildKitRequired's message.
func RequiresBuildKit(opts BuildOptions) []string {
	var used []string
	if len(opts.CacheFrom) > 0 {
		used = append(used, "--cache-from")
	}
	if len(opts.CacheTo) > 0 {
		used = append(used, "--cache-to")
	}
	if opts.Builder != "" {
		used = append(used, "--builder")
	}
	return used
}

// ProbeBuildKit runs `docker buildx version` to fail fast before attempting
// a build that relies on BuildKit-only mount directives (spec §4.5).
func ProbeBuildKit(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "docker", "buildx", "version")
	if err := cmd.Run(); err != nil {
		return &ErrBuildKitRequired{Options: []string{"--cache-from", "--cache-to", "--builder"}}
	}
	return nil
}

// CLIArgs renders the non-default cache/buildx fields of opts as docker
// build CLI arguments (spec §4.5).
func (o BuildOptions) CLIArgs() []string {
	var args []string
	for _, c := range o.CacheFrom {
		args = append(args, "--cache-from", c)
	}
	for _, c := range o.CacheTo {
		args = append(args, "--cache-to", c)
	}
	if o.Builder != "" {
		args = append(args, "--builder", o.Builder)
	}
	if o.NoCache {
		args = append(args, "--no-cache")
	}
	return args
}
