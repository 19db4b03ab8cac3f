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

// Package runtime is the uniform container-engine surface (spec §4.11):
// ping/list/inspect/exec/stop/build plus container and compose operations,
// implemented for Docker (generalizing internal/trill's direct MobyClient
// calls) and stubbed for Podman.
package runtime

import (
	"context"
	"io"
)

// ContainerInfo is the subset of container inspection data the
// orchestrator needs to drive reconcile and port reporting.
type ContainerInfo struct {
	ID      string
	Name    string
	Image   string
	State   string
	Labels  map[string]string
	Ports   []PortBinding
	Created int64
}

// PortBinding is one published container port.
type PortBinding struct {
	ContainerPort int
	Protocol      string
	HostIP        string
	HostPort      int
}

// ExecOptions configures a single exec invocation.
type ExecOptions struct {
	User       string
	WorkingDir string
	Env        map[string]string
	TTY        bool
	Interactive bool
	Detach     bool
}

// ExecResult is the outcome of a non-detached exec.
type ExecResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// ContainerIdentity is the fingerprint reconcile matches existing
// containers against (spec §4.6).
type ContainerIdentity struct {
	WorkspaceHash string
	ConfigHash    string
	Labels        map[string]string
}

// ContainerCreateConfig is the engine-neutral container spec reconcile
// hands to CreateContainer.
type ContainerCreateConfig struct {
	Image        string
	Entrypoint   []string
	Cmd          []string
	Env          []string
	User         string
	WorkingDir   string
	Privileged   bool
	CapAdd       []string
	SecurityOpt  []string
	Mounts       []MountArg
	PortBindings []PortBinding
	Labels       map[string]string
	RunArgs      []string
}

// MountArg is one engine-neutral mount to attach at container creation.
type MountArg struct {
	Type     string
	Source   string
	Target   string
	ReadOnly bool
}

// ComposeRequest describes a compose invocation (spec §4.11 "Compose
// ops").
type ComposeRequest struct {
	BasePath    string
	Files       []string
	ProjectName string
}

// Engine is the uniform surface every container runtime backend
// implements.
type Engine interface {
	Ping(ctx context.Context) error
	ListContainers(ctx context.Context, labelSelector map[string]string) ([]ContainerInfo, error)
	InspectContainer(ctx context.Context, id string) (*ContainerInfo, error)
	Exec(ctx context.Context, id string, args []string, opts ExecOptions) (*ExecResult, error)
	StopContainer(ctx context.Context, id string, timeoutSeconds *int) error
	BuildImage(ctx context.Context, contextDir string, dockerfile string, buildArgs map[string]string, out io.Writer) (string, error)

	FindMatchingContainers(ctx context.Context, identity ContainerIdentity) ([]ContainerInfo, error)
	CreateContainer(ctx context.Context, identity ContainerIdentity, cfg ContainerCreateConfig, workspacePath string) (string, error)
	StartContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string, force bool) error
	GetContainerImage(ctx context.Context, id string) (string, error)

	ComposeUp(ctx context.Context, req ComposeRequest, services []string, detach bool, out io.Writer) error
	ComposeDown(ctx context.Context, req ComposeRequest, out io.Writer) error
	ComposePS(ctx context.Context, req ComposeRequest) ([]byte, error)
}

// ErrNotImplemented is returned by every Podman method (spec §4.11): the
// abstraction's presence guarantees callers never need to branch on engine
// kind, even where an implementation is still absent.
type ErrNotImplemented struct {
	Engine string
	Method string
}

func (e *ErrNotImplemented) Error() string {
	return e.Engine + ": " + e.Method + " is not implemented"
}
