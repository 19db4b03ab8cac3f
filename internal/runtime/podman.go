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

package runtime

import (
	"context"
	"io"
)

// PodmanEngine is an explicit stub (spec §4.11): every method returns
// ErrNotImplemented so that selecting --engine podman fails loudly at the
// call site rather than silently behaving like Docker.
type PodmanEngine struct{}

// NewPodmanEngine returns a PodmanEngine. It never fails to construct;
// every method call fails instead.
func NewPodmanEngine() *PodmanEngine { return &PodmanEngine{} }

func (e *PodmanEngine) notImplemented(method string) error {
	return &ErrNotImplemented{Engine: "podman", Method: method}
}

func (e *PodmanEngine) Ping(ctx context.Context) error { return e.notImplemented("Ping") }

func (e *PodmanEngine) ListContainers(ctx context.Context, labelSelector map[string]string) ([]ContainerInfo, error) {
	return nil, e.notImplemented("ListContainers")
}

func (e *PodmanEngine) InspectContainer(ctx context.Context, id string) (*ContainerInfo, error) {
	return nil, e.notImplemented("InspectContainer")
}

func (e *PodmanEngine) Exec(ctx context.Context, id string, args []string, opts ExecOptions) (*ExecResult, error) {
	return nil, e.notImplemented("Exec")
}

func (e *PodmanEngine) StopContainer(ctx context.Context, id string, timeoutSeconds *int) error {
	return e.notImplemented("StopContainer")
}

func (e *PodmanEngine) BuildImage(ctx context.Context, contextDir string, dockerfile string, buildArgs map[string]string, out io.Writer) (string, error) {
	return "", e.notImplemented("BuildImage")
}

func (e *PodmanEngine) FindMatchingContainers(ctx context.Context, identity ContainerIdentity) ([]ContainerInfo, error) {
	return nil, e.notImplemented("FindMatchingContainers")
}

func (e *PodmanEngine) CreateContainer(ctx context.Context, identity ContainerIdentity, cfg ContainerCreateConfig, workspacePath string) (string, error) {
	return "", e.notImplemented("CreateContainer")
}

func (e *PodmanEngine) StartContainer(ctx context.Context, id string) error {
	return e.notImplemented("StartContainer")
}

func (e *PodmanEngine) RemoveContainer(ctx context.Context, id string, force bool) error {
	return e.notImplemented("RemoveContainer")
}

func (e *PodmanEngine) GetContainerImage(ctx context.Context, id string) (string, error) {
	return "", e.notImplemented("GetContainerImage")
}

func (e *PodmanEngine) ComposeUp(ctx context.Context, req ComposeRequest, services []string, detach bool, out io.Writer) error {
	return e.notImplemented("ComposeUp")
}

func (e *PodmanEngine) ComposeDown(ctx context.Context, req ComposeRequest, out io.Writer) error {
	return e.notImplemented("ComposeDown")
}

func (e *PodmanEngine) ComposePS(ctx context.Context, req ComposeRequest) ([]byte, error) {
	return nil, e.notImplemented("ComposePS")
}

var _ Engine = (*PodmanEngine)(nil)
var _ Engine = (*DockerEngine)(nil)
