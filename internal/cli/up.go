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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/get2knowio/deacon/internal/entrypoint"
	"github.com/get2knowio/deacon/internal/gpu"
	"github.com/get2knowio/deacon/internal/image"
	"github.com/get2knowio/deacon/internal/orchestrator"
	"github.com/get2knowio/deacon/internal/usermap"
	"github.com/spf13/cobra"
)

type upOptions struct {
	configPath              string
	overrideConfigPath      string
	removeExistingContainer bool
	expectExistingContainer bool
	skipNonBlockingCommands bool
	gpuMode                 string
	buildOpts               image.BuildOptions
}

func newUpCommand(flags *globalFlags, exit *ExitCode) *cobra.Command {
	opts := &upOptions{}
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Resolve, build, create/reconcile, and run lifecycle commands for a devcontainer",
		RunE: func(cmd *cobra.Command, args []string) error {
			*exit = runUp(flags, opts)
			return nil
		},
	}
	registerUpFlags(cmd, opts)
	return cmd
}

func registerUpFlags(cmd *cobra.Command, opts *upOptions) {
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to devcontainer.json (default: standard discovery)")
	cmd.Flags().StringVar(&opts.overrideConfigPath, "override-config", "", "path to an override devcontainer.json merged on top")
	cmd.Flags().BoolVar(&opts.removeExistingContainer, "remove-existing-container", false, "remove any container already matching this workspace before creating")
	cmd.Flags().BoolVar(&opts.expectExistingContainer, "expect-existing-container", false, "fail if no container already matches this workspace")
	cmd.Flags().BoolVar(&opts.skipNonBlockingCommands, "skip-non-blocking-commands", false, "don't run postStart/postAttach")
	cmd.Flags().StringVar(&opts.gpuMode, "gpu-mode", "none", "GPU request mode: all, detect, or none")
	cmd.Flags().StringSliceVar(&opts.buildOpts.CacheFrom, "cache-from", nil, "BuildKit cache-from source(s); triggers the BuildKit check, not passed to the build")
	cmd.Flags().StringSliceVar(&opts.buildOpts.CacheTo, "cache-to", nil, "BuildKit cache-to destination(s); triggers the BuildKit check, not passed to the build")
	cmd.Flags().StringVar(&opts.buildOpts.Builder, "builder", "", "named buildx builder; triggers the BuildKit check, not passed to the build")
	cmd.Flags().BoolVar(&opts.buildOpts.NoCache, "no-cache", false, "accepted; not passed to the build")
}

func runUp(flags *globalFlags, opts *upOptions) ExitCode {
	rep := NewReporter(os.Stdout, nil)

	env, err := NewEnvironment(flags.runtimeName)
	if err != nil {
		return rep.Error(NewError("failed to initialize runtime environment", err))
	}
	rep.Redactor = env.Redact

	configPath, err := FindConfigPath(flags.workspaceFolder, opts.configPath)
	if err != nil {
		return rep.Error(NewError("no devcontainer configuration found", err))
	}

	ws, err := LoadWorkspace(env, configPath, opts.overrideConfigPath)
	if err != nil {
		return rep.Error(NewError("failed to resolve devcontainer configuration", err))
	}

	ctx := context.Background()
	imageTag, err := buildExtendedImage(ctx, env, ws, flags.workspaceFolder, opts.buildOpts)
	if err != nil {
		return rep.Error(NewError("failed to build devcontainer image", err))
	}

	mode, err := gpu.ParseMode(opts.gpuMode)
	if err != nil {
		return rep.Error(NewError("invalid --gpu-mode", err))
	}
	if gpuArgs := gpu.Resolve(ctx, mode, "docker", gpu.NewApplication(mode)); len(gpuArgs) > 0 {
		ws.Config.RunArgs = append(append([]string{}, ws.Config.RunArgs...), gpuArgs...)
	}

	orch := orchestrator.New(env.Engine, env.State)
	result, err := orch.Up(ctx, ws.Config, ws.Plan, flags.workspaceFolder, imageTag, orchestrator.UpOptions{
		RemoveExistingContainer: opts.removeExistingContainer,
		ExpectExistingContainer: opts.expectExistingContainer,
		SkipNonBlockingCommands: opts.skipNonBlockingCommands,
		EntrypointPolicy:        entrypoint.PolicyWrap,
	})
	if err != nil {
		return rep.Error(NewError("up failed", err))
	}

	if ws.Config.UpdateRemoteUserUID != nil && *ws.Config.UpdateRemoteUserUID {
		reconcileRemoteUserUID(ctx, env, ws, result.ContainerID)
	}

	return rep.Success(SuccessRecord{
		ContainerID:           result.ContainerID,
		RemoteUser:            remoteUser(ws.Config),
		RemoteWorkspaceFolder: workspaceFolder(ws.Config),
		MergedConfiguration:   ws.Config,
	})
}

// buildExtendedImage renders and builds the feature-extended Dockerfile
// (spec §4.5) on top of the config's image. With no features declared it
// returns that image unchanged. A dockerFile/build section is not built
// here: a config without an image fails.
func buildExtendedImage(ctx context.Context, env *Environment, ws *Workspace, workspacePath string, buildOpts image.BuildOptions) (string, error) {
	base := ""
	if ws.Config.Image != nil {
		base = *ws.Config.Image
	}
	if len(ws.Plan.Features) == 0 {
		if base == "" {
			return "", fmt.Errorf("devcontainer.json declares neither image nor features to build from")
		}
		return base, nil
	}

	if used := image.RequiresBuildKit(buildOpts); len(used) > 0 {
		if err := image.ProbeBuildKit(ctx); err != nil {
			var bk *image.ErrBuildKitRequired
			if errors.As(err, &bk) {
				bk.Options = used
			}
			return "", err
		}
	}

	contextDir := workspacePath
	if ws.Config.Context != nil && *ws.Config.Context != "" {
		contextDir = filepath.Join(filepath.Dir(ws.ConfigPath), *ws.Config.Context)
	}

	dockerfileName := ".deacon-extended.Dockerfile"
	dockerfilePath := filepath.Join(contextDir, dockerfileName)
	if err := os.WriteFile(dockerfilePath, []byte(image.GenerateDockerfile(ws.Plan, base)), 0o644); err != nil {
		return "", fmt.Errorf("writing generated Dockerfile: %w", err)
	}
	defer os.Remove(dockerfilePath)

	tag, err := env.Engine.BuildImage(ctx, contextDir, dockerfileName, nil, os.Stderr)
	if err != nil {
		return "", err
	}
	return tag, nil
}

// reconcileRemoteUserUID implements updateRemoteUserUID (spec supplement,
// grounded in original_source's docker_user_mapper.rs): if the container
// user's UID differs from the host user's, remap it once.
func reconcileRemoteUserUID(ctx context.Context, env *Environment, ws *Workspace, containerID string) {
	mapper := &usermap.Mapper{Engine: env.Engine}
	user := remoteUser(ws.Config)
	info, err := mapper.GetUserInfo(ctx, containerID, user)
	if err != nil {
		return
	}
	hostUID := os.Getuid()
	hostGID := os.Getgid()
	if info.UID == hostUID {
		return
	}
	if err := mapper.UpdateUserUID(ctx, containerID, user, hostUID, hostGID); err != nil {
		return
	}
	_ = mapper.SetWorkspaceOwnership(ctx, containerID, workspaceFolder(ws.Config), hostUID, hostGID)
}
