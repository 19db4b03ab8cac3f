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

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/get2knowio/deacon/internal/feature"
	"github.com/get2knowio/deacon/internal/ociclient"
	"github.com/get2knowio/deacon/internal/redact"
	"github.com/get2knowio/deacon/internal/runtime"
	"github.com/get2knowio/deacon/internal/state"
)

// standardConfigPaths mirrors brig.StandardDevcontainerJSONPatterns: the
// well-known locations a devcontainer.json may live, tried in order when
// --config is not given (spec.md glossary "Standard discovery").
var standardConfigPaths = []string{
	".devcontainer/devcontainer.json",
	".devcontainer.json",
}

// Environment bundles the process-wide collaborators every verb needs:
// the selected container engine, the OCI client/cache pair, the state
// manager, and the process-wide redaction registry.
type Environment struct {
	Engine runtime.Engine
	State  *state.Manager
	OCI    *ociclient.Client
	Cache  *ociclient.Cache
	Redact *redact.Registry
}

// NewEnvironment resolves the runtime backend (flag, else DEACON_RUNTIME,
// else docker) and constructs the shared collaborators (spec §6 env var
// table).
func NewEnvironment(runtimeFlag string) (*Environment, error) {
	name := runtimeFlag
	if name == "" {
		name = os.Getenv("DEACON_RUNTIME")
	}
	if name == "" {
		name = "docker"
	}

	var eng runtime.Engine
	switch name {
	case "docker":
		d, err := runtime.NewDockerEngine("")
		if err != nil {
			return nil, fmt.Errorf("connecting to docker: %w", err)
		}
		eng = d
	case "podman":
		eng = runtime.NewPodmanEngine()
	default:
		return nil, fmt.Errorf("unknown runtime %q (expected docker or podman)", name)
	}

	cache, err := ociclient.NewCache()
	if err != nil {
		return nil, fmt.Errorf("opening feature/template cache: %w", err)
	}
	oci := ociclient.NewClient(cache, 0)

	st, err := state.NewManager()
	if err != nil {
		return nil, fmt.Errorf("opening state manager: %w", err)
	}

	return &Environment{Engine: eng, State: st, OCI: oci, Cache: cache, Redact: redact.NewRegistry()}, nil
}

// Workspace is the result of resolving, parsing and feature-planning one
// devcontainer.json invocation.
type Workspace struct {
	ConfigPath string
	Config     *config.DevContainerConfig
	Resolved   map[string]*feature.Resolved
	Plan       *feature.InstallationPlan
	Lockfile   *config.Lockfile
}

// FindConfigPath locates devcontainer.json under workspaceFolder when
// explicit is empty, trying the standard locations in order (spec.md
// glossary, generalizing brig.findDevcontainerJSON).
func FindConfigPath(workspaceFolder, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	for _, candidate := range standardConfigPaths {
		path := filepath.Join(workspaceFolder, candidate)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no devcontainer.json found under %s (tried %v)", workspaceFolder, standardConfigPaths)
}

// LoadConfig parses and merges configPath without resolving any feature,
// for verbs (down, exec) that only need the config to
// compute the workspace identity hash or remoteUser, not to build an image.
func LoadConfig(configPath, overridePath string) (*config.DevContainerConfig, error) {
	parser, err := config.NewParser()
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	cfg, err := parser.Load(configPath, overridePath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", configPath, err)
	}
	return cfg, nil
}

// LoadWorkspace parses configPath (following its extends chain and
// overridePath), resolves every declared feature, and builds the
// installation plan (spec §4.2 + §4.4).
func LoadWorkspace(env *Environment, configPath, overridePath string) (*Workspace, error) {
	cfg, err := LoadConfig(configPath, overridePath)
	if err != nil {
		return nil, err
	}

	lockPath := config.LockfilePath(configPath)
	lock, err := config.LoadLockfile(lockPath)
	if err != nil {
		return nil, fmt.Errorf("loading lockfile %s: %w", lockPath, err)
	}

	resolver := feature.NewResolver(env.OCI, env.Cache, filepath.Dir(configPath))
	resolved, err := resolver.ResolveAll(context.Background(), cfg.Features)
	if err != nil {
		return nil, fmt.Errorf("resolving features: %w", err)
	}

	// BuildPlan breaks ties by canonical id, so map each declared key to the
	// id its feature was resolved under.
	declared := make([]string, 0, len(resolved))
	for _, ref := range cfg.Features.Keys() {
		for id, r := range resolved {
			if r.Source == ref {
				declared = append(declared, id)
			}
		}
	}
	plan, err := feature.BuildPlan(resolved, declared, cfg.OverrideFeatureInstallOrder)
	if err != nil {
		return nil, fmt.Errorf("building feature installation plan: %w", err)
	}

	updated := &config.Lockfile{Features: map[string]config.LockedFeature{}}
	for id, r := range resolved {
		updated.Features[id] = config.LockedFeature{Version: r.Metadata.Version, Resolved: r.Source}
	}
	merged := config.MergeLockfile(lock, updated)
	if err := merged.Save(lockPath); err != nil {
		return nil, fmt.Errorf("writing lockfile %s: %w", lockPath, err)
	}

	return &Workspace{ConfigPath: configPath, Config: cfg, Resolved: resolved, Plan: plan, Lockfile: merged}, nil
}

// remoteUser returns the effective remote user, falling back to the
// container user, then root (spec §3.1 containerUser/remoteUser).
func remoteUser(cfg *config.DevContainerConfig) string {
	if cfg.RemoteUser != nil && *cfg.RemoteUser != "" {
		return *cfg.RemoteUser
	}
	if cfg.ContainerUser != nil && *cfg.ContainerUser != "" {
		return *cfg.ContainerUser
	}
	return "root"
}

// workspaceFolder returns the in-container workspace folder, defaulting
// to /workspaces the way internal/orchestrator does.
func workspaceFolder(cfg *config.DevContainerConfig) string {
	if cfg.WorkspaceFolder != nil && *cfg.WorkspaceFolder != "" {
		return *cfg.WorkspaceFolder
	}
	return "/workspaces"
}
