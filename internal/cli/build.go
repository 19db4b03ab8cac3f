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

	"github.com/get2knowio/deacon/internal/image"
	"github.com/spf13/cobra"
)

type buildOptions struct {
	configPath string
	buildOpts  image.BuildOptions
}

func newBuildCommand(flags *globalFlags, exit *ExitCode) *cobra.Command {
	opts := &buildOptions{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the extended image without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			*exit = runBuild(flags, opts)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to devcontainer.json (default: standard discovery)")
	cmd.Flags().StringSliceVar(&opts.buildOpts.CacheFrom, "cache-from", nil, "BuildKit cache-from source(s); triggers the BuildKit check, not passed to the build")
	cmd.Flags().StringSliceVar(&opts.buildOpts.CacheTo, "cache-to", nil, "BuildKit cache-to destination(s); triggers the BuildKit check, not passed to the build")
	cmd.Flags().StringVar(&opts.buildOpts.Builder, "builder", "", "named buildx builder; triggers the BuildKit check, not passed to the build")
	cmd.Flags().BoolVar(&opts.buildOpts.NoCache, "no-cache", false, "accepted; not passed to the build")
	return cmd
}

func runBuild(flags *globalFlags, opts *buildOptions) ExitCode {
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

	tag, err := buildExtendedImage(context.Background(), env, ws, flags.workspaceFolder, opts.buildOpts)
	if err != nil {
		return rep.Error(NewError("build failed", err))
	}

	return rep.Success(SuccessRecord{Extra: map[string]interface{}{"imageName": tag}})
}
