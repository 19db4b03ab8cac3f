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

type downOptions struct {
	configPath string
	remove     bool
}

func newDownCommand(flags *globalFlags, exit *ExitCode) *cobra.Command {
	opts := &downOptions{}
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop (and optionally remove) the container matching this workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			*exit = runDown(flags, opts)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to devcontainer.json (default: standard discovery)")
	cmd.Flags().BoolVar(&opts.remove, "remove", false, "remove the container after stopping it")
	return cmd
}

func runDown(flags *globalFlags, opts *downOptions) ExitCode {
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

	cfg, err := LoadConfig(configPath, "")
	if err != nil {
		return rep.Error(NewError("failed to resolve devcontainer configuration", err))
	}

	ctx := context.Background()
	orch := orchestrator.New(env.Engine, env.State)
	if err := orch.Down(ctx, cfg, flags.workspaceFolder, opts.remove); err != nil {
		return rep.Error(NewError("down failed", err))
	}

	return rep.Success(SuccessRecord{})
}
