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

// Package orchestrator implements the `up`/`down` reconcile state machine
// (spec §4.6), wiring the mount, security, entrypoint, lifecycle, runtime,
// state and workspace packages together around a single devcontainer
// invocation.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/get2knowio/deacon/internal/entrypoint"
	"github.com/get2knowio/deacon/internal/feature"
	"github.com/get2knowio/deacon/internal/lifecycle"
	"github.com/get2knowio/deacon/internal/mount"
	"github.com/get2knowio/deacon/internal/redact"
	"github.com/get2knowio/deacon/internal/runtime"
	"github.com/get2knowio/deacon/internal/security"
	"github.com/get2knowio/deacon/internal/state"
	"github.com/get2knowio/deacon/internal/workspace"
)

const identityLabel = "deacon.workspace-hash"

// UpOptions carries the CLI-level knobs for `up` that affect the reconcile
// policy (spec §4.6 steps 4-5).
type UpOptions struct {
	RemoveExistingContainer bool
	ExpectExistingContainer bool
	SkipNonBlockingCommands bool
	EntrypointPolicy        entrypoint.Policy
}

// UpResult summarizes the outcome of an `up` invocation for observability.
type UpResult struct {
	ContainerID string
	Reused      bool
	Started     bool
	Created     bool
}

// Orchestrator drives up/down against a single container engine.
type Orchestrator struct {
	Engine runtime.Engine
	State  *state.Manager
	Redact *redact.Registry
}

// New builds an Orchestrator.
func New(eng runtime.Engine, st *state.Manager) *Orchestrator {
	return &Orchestrator{Engine: eng, State: st, Redact: redact.NewRegistry()}
}

// Up implements the reconcile policy from spec §4.6: find-or-create the
// identity-labeled container, then run the lifecycle phases appropriate to
// whichever branch was taken.
func (o *Orchestrator) Up(ctx context.Context, cfg *config.DevContainerConfig, plan *feature.InstallationPlan, workspacePath string, image string, opts UpOptions) (*UpResult, error) {
	canonicalPath, err := workspace.Resolve(workspacePath)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}

	configBytes, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing config: %w", err)
	}
	hash := workspace.Fingerprint(canonicalPath, configBytes)

	matches, err := o.Engine.FindMatchingContainers(ctx, runtime.ContainerIdentity{
		WorkspaceHash: hash,
		Labels:        map[string]string{identityLabel: hash},
	})
	if err != nil {
		return nil, fmt.Errorf("listing matching containers: %w", err)
	}

	switch {
	case len(matches) == 1 && !opts.RemoveExistingContainer:
		existing := matches[0]
		if existing.State == "running" {
			slog.Info("reusing running container", "container", existing.ID)
			if err := o.runNonBlockingOnly(ctx, cfg, plan, existing.ID, opts); err != nil {
				return nil, err
			}
			return &UpResult{ContainerID: existing.ID, Reused: true}, nil
		}

		slog.Info("starting stopped container", "container", existing.ID)
		if err := o.Engine.StartContainer(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("starting existing container: %w", err)
		}
		if err := o.runFromPostStart(ctx, cfg, plan, existing.ID, opts); err != nil {
			return nil, err
		}
		return &UpResult{ContainerID: existing.ID, Reused: true, Started: true}, nil

	case len(matches) >= 1 && opts.RemoveExistingContainer:
		for _, m := range matches {
			slog.Info("removing existing container", "container", m.ID)
			if err := o.Engine.RemoveContainer(ctx, m.ID, true); err != nil {
				return nil, fmt.Errorf("removing existing container %s: %w", m.ID, err)
			}
		}

	case len(matches) == 0 && opts.ExpectExistingContainer:
		return nil, fmt.Errorf("--expect-existing-container was set but no container matches workspace %s", canonicalPath)
	}

	return o.create(ctx, cfg, plan, canonicalPath, hash, image, opts)
}

func (o *Orchestrator) create(ctx context.Context, cfg *config.DevContainerConfig, plan *feature.InstallationPlan, canonicalPath, hash, image string, opts UpOptions) (*UpResult, error) {
	sec := security.Merge(cfg, plan)
	if sec.PrivilegedConflict {
		slog.Warn("privileged conflict across contributors; retaining strictest value", "privileged", sec.Privileged)
	}

	var mounts []runtime.MountArg
	for _, raw := range cfg.Mounts {
		spec, err := mount.Parse(raw, canonicalPath)
		if err != nil {
			return nil, fmt.Errorf("resolving mount: %w", err)
		}
		mounts = append(mounts, runtime.MountArg{Type: spec.Type, Source: spec.Source, Target: spec.Target, ReadOnly: spec.ReadOnly})
	}

	base := ""
	if cfg.Image != nil {
		base = *cfg.Image
	}
	entry := entrypoint.Merge(opts.EntrypointPolicy, plan, base, "")

	var portBindings []runtime.PortBinding
	for _, raw := range cfg.AppPort {
		pb, err := parseAppPort(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing appPort %q: %w", raw, err)
		}
		portBindings = append(portBindings, pb)
	}

	createCfg := runtime.ContainerCreateConfig{
		Image:        image,
		Entrypoint:   splitEntrypoint(entry),
		Privileged:   sec.Privileged,
		CapAdd:       sec.CapAdd,
		SecurityOpt:  sec.SecurityOpt,
		Mounts:       mounts,
		RunArgs:      cfg.RunArgs,
		PortBindings: portBindings,
		Labels:       map[string]string{identityLabel: hash},
	}

	containerID, err := o.Engine.CreateContainer(ctx, runtime.ContainerIdentity{
		WorkspaceHash: hash,
		Labels:        map[string]string{identityLabel: hash},
	}, createCfg, canonicalPath)
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	if err := o.Engine.StartContainer(ctx, containerID); err != nil {
		return nil, fmt.Errorf("starting container: %w", err)
	}

	if o.State != nil {
		err := o.State.Put(hash, &state.WorkspaceState{
			ContainerID:     containerID,
			WorkspaceFolder: canonicalPath,
			ConfigHash:      hash,
		})
		if err != nil {
			slog.Error("recording workspace state failed", "error", err)
		}
	}

	if err := o.runAllPhases(ctx, cfg, plan, containerID, opts); err != nil {
		return nil, err
	}

	return &UpResult{ContainerID: containerID, Created: true}, nil
}

// FindContainer returns the first container whose identity label matches
// workspacePath+cfg, whatever its state, for verbs (exec, run-user-commands) that
// need to re-enter an already-created container without going through Up.
func FindContainer(ctx context.Context, engine runtime.Engine, cfg *config.DevContainerConfig, workspacePath string) (string, error) {
	canonicalPath, err := workspace.Resolve(workspacePath)
	if err != nil {
		return "", fmt.Errorf("resolving workspace: %w", err)
	}
	configBytes, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("canonicalizing config: %w", err)
	}
	hash := workspace.Fingerprint(canonicalPath, configBytes)

	matches, err := engine.FindMatchingContainers(ctx, runtime.ContainerIdentity{
		WorkspaceHash: hash,
		Labels:        map[string]string{identityLabel: hash},
	})
	if err != nil {
		return "", fmt.Errorf("listing matching containers: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no container found for this workspace; run `deacon up` first")
	}
	return matches[0].ID, nil
}

// Down stops the container associated with workspacePath, removing it (and
// its state record) only when remove is set (spec §6 down's --remove).
func (o *Orchestrator) Down(ctx context.Context, cfg *config.DevContainerConfig, workspacePath string, remove bool) error {
	canonicalPath, err := workspace.Resolve(workspacePath)
	if err != nil {
		return fmt.Errorf("resolving workspace: %w", err)
	}
	configBytes, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("canonicalizing config: %w", err)
	}
	hash := workspace.Fingerprint(canonicalPath, configBytes)

	matches, err := o.Engine.FindMatchingContainers(ctx, runtime.ContainerIdentity{
		WorkspaceHash: hash,
		Labels:        map[string]string{identityLabel: hash},
	})
	if err != nil {
		return fmt.Errorf("listing matching containers: %w", err)
	}

	for _, m := range matches {
		if err := o.Engine.StopContainer(ctx, m.ID, nil); err != nil {
			slog.Error("stopping container failed", "container", m.ID, "error", err)
		}
		if !remove {
			continue
		}
		if err := o.Engine.RemoveContainer(ctx, m.ID, true); err != nil {
			return fmt.Errorf("removing container %s: %w", m.ID, err)
		}
	}

	if remove && o.State != nil {
		if err := o.State.Remove(hash); err != nil {
			slog.Error("removing workspace state failed", "error", err)
		}
	}
	return nil
}

// RunUserCommandsOptions configures RunUserCommands (spec §6 run-user-commands).
type RunUserCommandsOptions struct {
	SkipPostCreate          bool
	SkipPostAttach          bool
	SkipNonBlockingCommands bool
}

// RunUserCommands re-runs postCreate/postStart/postAttach against an
// already-created container, for re-entering a devcontainer whose image
// and container already exist without going through the full Up reconcile
// (spec §6 run-user-commands).
func (o *Orchestrator) RunUserCommands(ctx context.Context, cfg *config.DevContainerConfig, plan *feature.InstallationPlan, containerID string, opts RunUserCommandsOptions) error {
	runner := &runtime.LifecycleRunner{Engine: o.Engine, ContainerID: containerID}
	ex := lifecycle.NewExecutor(runner, o.Redact, cfg.ContainerEnv, o.workspaceFolder(cfg))
	ex.NonBlocking = !opts.SkipNonBlockingCommands

	phases := []lifecycle.Phase{lifecycle.PhasePostCreate, lifecycle.PhasePostStart, lifecycle.PhasePostAttach}
	for _, phase := range phases {
		if opts.SkipPostCreate && phase == lifecycle.PhasePostCreate {
			continue
		}
		if opts.SkipPostAttach && phase == lifecycle.PhasePostAttach {
			continue
		}
		if opts.SkipNonBlockingCommands && (phase == lifecycle.PhasePostStart || phase == lifecycle.PhasePostAttach) {
			continue
		}
		if res := ex.RunPhase(ctx, cfg, plan, phase); res.FailErr != nil {
			return res.FailErr
		}
	}
	return nil
}

func (o *Orchestrator) runAllPhases(ctx context.Context, cfg *config.DevContainerConfig, plan *feature.InstallationPlan, containerID string, opts UpOptions) error {
	runner := &runtime.LifecycleRunner{Engine: o.Engine, ContainerID: containerID}
	ex := lifecycle.NewExecutor(runner, o.Redact, cfg.ContainerEnv, o.workspaceFolder(cfg))
	ex.NonBlocking = !opts.SkipNonBlockingCommands

	for _, phase := range lifecycle.Order {
		if opts.SkipNonBlockingCommands && (phase == lifecycle.PhasePostStart || phase == lifecycle.PhasePostAttach) {
			continue
		}
		if res := ex.RunPhase(ctx, cfg, plan, phase); res.FailErr != nil {
			return res.FailErr
		}
	}
	return nil
}

// runFromPostStart resumes the phase sequence for a container that was
// reused from stopped state, per spec §4.6 step 3.
func (o *Orchestrator) runFromPostStart(ctx context.Context, cfg *config.DevContainerConfig, plan *feature.InstallationPlan, containerID string, opts UpOptions) error {
	runner := &runtime.LifecycleRunner{Engine: o.Engine, ContainerID: containerID}
	ex := lifecycle.NewExecutor(runner, o.Redact, cfg.ContainerEnv, o.workspaceFolder(cfg))
	ex.NonBlocking = !opts.SkipNonBlockingCommands

	resumeFrom := []lifecycle.Phase{lifecycle.PhasePostStart, lifecycle.PhasePostAttach}
	for _, phase := range resumeFrom {
		if opts.SkipNonBlockingCommands {
			continue
		}
		if res := ex.RunPhase(ctx, cfg, plan, phase); res.FailErr != nil {
			return res.FailErr
		}
	}
	return nil
}

// runNonBlockingOnly is the spec §4.6 step 2 branch: a running container is
// reused outright, only postStart/postAttach still run.
func (o *Orchestrator) runNonBlockingOnly(ctx context.Context, cfg *config.DevContainerConfig, plan *feature.InstallationPlan, containerID string, opts UpOptions) error {
	return o.runFromPostStart(ctx, cfg, plan, containerID, opts)
}

func (o *Orchestrator) workspaceFolder(cfg *config.DevContainerConfig) string {
	if cfg.WorkspaceFolder != nil {
		return *cfg.WorkspaceFolder
	}
	return "/workspaces"
}

// parseAppPort accepts appPort's two forms (spec §3.1): a bare container
// port, published on the same host port, or "hostPort:containerPort".
func parseAppPort(raw string) (runtime.PortBinding, error) {
	host, container, ok := strings.Cut(raw, ":")
	if !ok {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return runtime.PortBinding{}, fmt.Errorf("expected a port number, got %q", raw)
		}
		return runtime.PortBinding{ContainerPort: p, HostPort: p, Protocol: "tcp"}, nil
	}
	hostPort, err := strconv.Atoi(host)
	if err != nil {
		return runtime.PortBinding{}, fmt.Errorf("expected hostPort:containerPort, got %q", raw)
	}
	containerPort, err := strconv.Atoi(container)
	if err != nil {
		return runtime.PortBinding{}, fmt.Errorf("expected hostPort:containerPort, got %q", raw)
	}
	return runtime.PortBinding{ContainerPort: containerPort, HostPort: hostPort, Protocol: "tcp"}, nil
}

func splitEntrypoint(script string) []string {
	if script == "" {
		return nil
	}
	return []string{"/bin/sh", "-c", script}
}
