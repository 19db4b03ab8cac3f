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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docker/go-connections/nat"
	gonanoid "github.com/matoous/go-nanoid/v2"
	archive "github.com/moby/go-archive"
	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	mobyclient "github.com/moby/moby/client"
	"github.com/moby/patternmatcher/ignorefile"
)

// DockerEngine implements Engine over the Docker/Podman-compatible moby
// REST API, generalizing internal/trill's direct Client methods
// (ExecInContainer, StartContainer/buildHostConfig, BuildContainerImage)
// into the engine-neutral surface spec §4.11 describes.
type DockerEngine struct {
	client *mobyclient.Client
}

// NewDockerEngine connects to the daemon at socketAddr (DOCKER_HOST
// convention: empty defers to the client library's own default).
func NewDockerEngine(socketAddr string) (*DockerEngine, error) {
	var opts []mobyclient.Opt
	if socketAddr != "" {
		opts = append(opts, mobyclient.WithHost(socketAddr))
	}
	c, err := mobyclient.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to docker daemon: %w", err)
	}
	return &DockerEngine{client: c}, nil
}

func (e *DockerEngine) Ping(ctx context.Context) error {
	_, err := e.client.Ping(ctx)
	return err
}

func (e *DockerEngine) ListContainers(ctx context.Context, labelSelector map[string]string) ([]ContainerInfo, error) {
	list, err := e.client.ContainerList(ctx, mobyclient.ContainerListOptions{All: true})
	if err != nil {
		return nil, err
	}
	out := make([]ContainerInfo, 0, len(list))
	for _, c := range list {
		info := containerInfoFromSummary(c)
		if labelsMatch(info.Labels, labelSelector) {
			out = append(out, info)
		}
	}
	return out, nil
}

// labelsMatch reports whether every key/value in want is present in have;
// used instead of a server-side filter query so ListContainers doesn't
// depend on the exact shape of the moby filters API.
func labelsMatch(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

func (e *DockerEngine) InspectContainer(ctx context.Context, id string) (*ContainerInfo, error) {
	resp, err := e.client.ContainerInspect(ctx, id, mobyclient.ContainerInspectOptions{})
	if err != nil {
		if mobyclient.IsErrNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	info := ContainerInfo{
		ID:     resp.ID,
		Name:   strings.TrimPrefix(resp.Name, "/"),
		State:  resp.State.Status,
		Labels: resp.Config.Labels,
	}
	if resp.Config != nil {
		info.Image = resp.Config.Image
	}
	return &info, nil
}

func (e *DockerEngine) Exec(ctx context.Context, id string, args []string, opts ExecOptions) (*ExecResult, error) {
	createOpts := mobyclient.ExecCreateOptions{
		User:         opts.User,
		WorkingDir:   opts.WorkingDir,
		TTY:          opts.TTY,
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          args,
	}
	for k, v := range opts.Env {
		createOpts.Env = append(createOpts.Env, k+"="+v)
	}

	created, err := e.client.ExecCreate(ctx, id, createOpts)
	if err != nil {
		return nil, fmt.Errorf("creating exec: %w", err)
	}
	if opts.Detach {
		if err := e.client.ExecStart(ctx, created.ID, mobyclient.ExecStartOptions{}); err != nil {
			return nil, fmt.Errorf("starting detached exec: %w", err)
		}
		return &ExecResult{}, nil
	}

	attached, err := e.client.ExecAttach(ctx, created.ID, mobyclient.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("attaching to exec: %w", err)
	}
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attached.Reader); err != nil {
		return nil, fmt.Errorf("demultiplexing exec output: %w", err)
	}
	inspected, err := e.client.ExecInspect(ctx, created.ID, mobyclient.ExecInspectOptions{})
	if err != nil {
		return nil, fmt.Errorf("inspecting exec result: %w", err)
	}
	return &ExecResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: inspected.ExitCode}, nil
}

func (e *DockerEngine) StopContainer(ctx context.Context, id string, timeoutSeconds *int) error {
	opts := mobyclient.ContainerStopOptions{}
	if timeoutSeconds != nil {
		opts.Timeout = timeoutSeconds
	}
	_, err := e.client.ContainerStop(ctx, id, opts)
	return err
}

// BuildImage tars contextDir (honoring .containerignore/.dockerignore)
// and streams the build, returning the built image's tag/id.
func (e *DockerEngine) BuildImage(ctx context.Context, contextDir string, dockerfile string, buildArgs map[string]string, out io.Writer) (string, error) {
	archivePath, err := buildContextArchive(contextDir)
	if err != nil {
		return "", err
	}
	defer os.Remove(archivePath)

	f, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	args := map[string]*string{}
	for k, v := range buildArgs {
		val := v
		args[k] = &val
	}

	// filepath.Base(contextDir) alone collides across checkouts that share a
	// directory basename (e.g. two clones both named "app"); suffix with a
	// short random id the way trill names its own throwaway containers.
	suffix, err := gonanoid.New(8)
	if err != nil {
		return "", fmt.Errorf("generating image tag suffix: %w", err)
	}
	tag := fmt.Sprintf("deacon-devcontainer-features:%s-%s", filepath.Base(contextDir), suffix)
	resp, err := e.client.ImageBuild(ctx, f, mobyclient.ImageBuildOptions{
		Dockerfile: dockerfile,
		Tags:       []string{tag},
		BuildArgs:  args,
		Remove:     true,
	})
	if err != nil {
		return "", fmt.Errorf("building image: %w", err)
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	for {
		var msg struct {
			Stream string `json:"stream"`
			Error  string `json:"error"`
		}
		if err := decoder.Decode(&msg); err == io.EOF {
			break
		} else if err != nil {
			return "", fmt.Errorf("decoding build output: %w", err)
		}
		if msg.Error != "" {
			return "", fmt.Errorf("build failed: %s", msg.Error)
		}
		if msg.Stream != "" && out != nil {
			fmt.Fprint(out, msg.Stream)
		}
	}
	return tag, nil
}

func (e *DockerEngine) FindMatchingContainers(ctx context.Context, identity ContainerIdentity) ([]ContainerInfo, error) {
	labels := map[string]string{
		"deacon.workspace-hash": identity.WorkspaceHash,
	}
	for k, v := range identity.Labels {
		labels[k] = v
	}
	return e.ListContainers(ctx, labels)
}

func (e *DockerEngine) CreateContainer(ctx context.Context, identity ContainerIdentity, cfg ContainerCreateConfig, workspacePath string) (string, error) {
	labels := map[string]string{
		"deacon.workspace-hash": identity.WorkspaceHash,
		"deacon.config-hash":    identity.ConfigHash,
	}
	for k, v := range identity.Labels {
		labels[k] = v
	}
	for k, v := range cfg.Labels {
		labels[k] = v
	}

	containerCfg := &container.Config{
		Image:      cfg.Image,
		Entrypoint: cfg.Entrypoint,
		Cmd:        cfg.Cmd,
		Env:        cfg.Env,
		User:       cfg.User,
		WorkingDir: cfg.WorkingDir,
		Labels:     labels,
	}

	hostCfg := &container.HostConfig{
		Privileged:  cfg.Privileged,
		CapAdd:      cfg.CapAdd,
		SecurityOpt: cfg.SecurityOpt,
	}
	for _, m := range cfg.Mounts {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:     mount.Type(m.Type),
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}
	if len(cfg.PortBindings) > 0 {
		containerCfg.ExposedPorts, hostCfg.PortBindings = exposedAppPorts(cfg.PortBindings)
	}

	resp, err := e.client.ContainerCreate(ctx, mobyclient.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}
	return resp.ID, nil
}

// exposedAppPorts builds the ExposedPorts/PortBindings pair hostCfg needs to
// publish appPort entries, following trill's bindAppPorts (containers.go):
// nat.Port encodes "<num>/<proto>", and every exposed port gets an explicit
// host binding rather than relying on Docker's own ephemeral-port default.
func exposedAppPorts(ports []PortBinding) (nat.PortSet, nat.PortMap) {
	exposed := make(nat.PortSet, len(ports))
	bindings := make(nat.PortMap, len(ports))
	for _, p := range ports {
		proto := p.Protocol
		if proto == "" {
			proto = "tcp"
		}
		port := nat.Port(fmt.Sprintf("%d/%s", p.ContainerPort, proto))
		exposed[port] = struct{}{}

		hostPort := p.HostPort
		if hostPort == 0 {
			hostPort = p.ContainerPort
		}
		hostIP := p.HostIP
		if hostIP == "" {
			hostIP = "127.0.0.1"
		}
		bindings[port] = append(bindings[port], nat.PortBinding{HostIP: hostIP, HostPort: strconv.Itoa(hostPort)})
	}
	return exposed, bindings
}

func (e *DockerEngine) StartContainer(ctx context.Context, id string) error {
	_, err := e.client.ContainerStart(ctx, id, mobyclient.ContainerStartOptions{})
	return err
}

func (e *DockerEngine) RemoveContainer(ctx context.Context, id string, force bool) error {
	_, err := e.client.ContainerRemove(ctx, id, mobyclient.ContainerRemoveOptions{Force: force})
	return err
}

func (e *DockerEngine) GetContainerImage(ctx context.Context, id string) (string, error) {
	info, err := e.InspectContainer(ctx, id)
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", fmt.Errorf("container %s not found", id)
	}
	return info.Image, nil
}

func containerInfoFromSummary(c mobyclient.ContainerSummary) ContainerInfo {
	info := ContainerInfo{
		ID:      c.ID,
		Image:   c.Image,
		State:   c.State,
		Labels:  c.Labels,
		Created: c.Created,
	}
	if len(c.Names) > 0 {
		info.Name = strings.TrimPrefix(c.Names[0], "/")
	}
	for _, p := range c.Ports {
		hostPort, _ := strconv.Atoi(fmt.Sprint(p.PublicPort))
		info.Ports = append(info.Ports, PortBinding{
			ContainerPort: int(p.PrivatePort),
			Protocol:      p.Type,
			HostIP:        p.IP,
			HostPort:      hostPort,
		})
	}
	return info
}

// buildContextExcludes reads .containerignore, falling back to
// .dockerignore (trill.buildContextExcludesList's precedence order).
func buildContextExcludes(ctxDir string) ([]string, error) {
	ignoreFile := filepath.Join(ctxDir, ".containerignore")
	if _, err := os.Stat(ignoreFile); os.IsNotExist(err) {
		ignoreFile = filepath.Join(ctxDir, ".dockerignore")
	}
	f, err := os.Open(ignoreFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return ignorefile.ReadAll(f)
}

func buildContextArchive(ctxDir string) (string, error) {
	excludes, err := buildContextExcludes(ctxDir)
	if err != nil {
		slog.Warn("could not read ignore file", "dir", ctxDir, "error", err)
	}

	tempFile, err := os.CreateTemp("", fmt.Sprintf(".ctx-%s-*.tar", filepath.Base(ctxDir)))
	if err != nil {
		return "", err
	}
	defer tempFile.Close()

	reader, err := archive.TarWithOptions(ctxDir, &archive.TarOptions{
		ExcludePatterns:  excludes,
		IncludeSourceDir: false,
	})
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tempFile, reader); err != nil {
		return "", err
	}
	return tempFile.Name(), nil
}
