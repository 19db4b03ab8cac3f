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
	"os"

	"github.com/get2knowio/deacon/internal/orchestrator"
	"github.com/spf13/cobra"
)

type runUserCommandsOptions struct {
	configPath              string
	skipPostCreate          bool
	skipPostAttach          bool
	skipNonBlockingCommands bool
}

func newRunUserCommandsCommand(flags *globalFlags, exit *ExitCode) *cobra.Command {
	opts := &runUserCommandsOptions{}
	cmd := &cobra.Command{
		Use:   "run-user-commands",
		Short: "Re-run lifecycle phases in an existing container",
		RunE: func(cmd *cobra.Command, args []string) error {
			*exit = runRunUserCommands(flags, opts)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to devcontainer.json (default: standard discovery)")
	cmd.Flags().BoolVar(&opts.skipPostCreate, "skip-post-create", false, "don't run postCreateCommand")
	cmd.Flags().BoolVar(&opts.skipPostAttach, "skip-post-attach", false, "don't run postAttachCommand")
	cmd.Flags().BoolVar(&opts.skipNonBlockingCommands, "skip-non-blocking-commands", false, "don't run postStart/postAttach")
	return cmd
}

func runRunUserCommands(flags *globalFlags, opts *runUserCommandsOptions) ExitCode {
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

	ws, err := LoadWorkspace(env, configPath, "")
	if err != nil {
		return rep.Error(NewError("failed to resolve devcontainer configuration", err))
	}

	ctx := context.Background()
	containerID, err := orchestrator.FindContainer(ctx, env.Engine, ws.Config, flags.workspaceFolder)
	if err != nil {
		return rep.Error(NewError("run-user-commands failed", err))
	}

	orch := orchestrator.New(env.Engine, env.State)
	if err := orch.RunUserCommands(ctx, ws.Config, ws.Plan, containerID, orchestrator.RunUserCommandsOptions{
		SkipPostCreate:          opts.skipPostCreate,
		SkipPostAttach:          opts.skipPostAttach,
		SkipNonBlockingCommands: opts.skipNonBlockingCommands,
	}); err != nil {
		return rep.Error(NewError("run-user-commands failed", err))
	}

	return rep.Success(SuccessRecord{ContainerID: containerID})
}
