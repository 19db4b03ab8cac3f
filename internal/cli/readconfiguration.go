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
	"os"

	"github.com/spf13/cobra"
)

type readConfigurationOptions struct {
	configPath                   string
	overrideConfigPath           string
	includeFeaturesConfiguration bool
	includeMergedConfiguration   bool
	containerID                  string
	idLabel                      []string
}

func newReadConfigurationCommand(flags *globalFlags, exit *ExitCode) *cobra.Command {
	opts := &readConfigurationOptions{}
	cmd := &cobra.Command{
		Use:   "read-configuration",
		Short: "Resolve and emit the effective devcontainer configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			*exit = runReadConfiguration(flags, opts)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to devcontainer.json (default: standard discovery)")
	cmd.Flags().StringVar(&opts.overrideConfigPath, "override-config", "", "path to an override devcontainer.json merged on top")
	cmd.Flags().BoolVar(&opts.includeFeaturesConfiguration, "include-features-configuration", false, "include resolved feature metadata and options in the output")
	cmd.Flags().BoolVar(&opts.includeMergedConfiguration, "include-merged-configuration", false, "include the fully merged configuration in the output")
	cmd.Flags().StringVar(&opts.containerID, "container-id", "", "accepted and ignored; configuration is always read from the workspace")
	cmd.Flags().StringArrayVar(&opts.idLabel, "id-label", nil, "label k=v (repeatable); accepted and ignored")
	return cmd
}

func runReadConfiguration(flags *globalFlags, opts *readConfigurationOptions) ExitCode {
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

	extra := map[string]interface{}{"configuration": ws.Config}
	if opts.includeMergedConfiguration {
		extra["mergedConfiguration"] = ws.Config
	}
	if opts.includeFeaturesConfiguration {
		extra["featuresConfiguration"] = ws.Resolved
	}

	return rep.Success(SuccessRecord{
		RemoteUser:            remoteUser(ws.Config),
		RemoteWorkspaceFolder: workspaceFolder(ws.Config),
		Extra:                 extra,
	})
}
