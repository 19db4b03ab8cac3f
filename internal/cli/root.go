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
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-cz/devslog"
	"github.com/spf13/cobra"
)

// globalFlags are the persistent flags every verb inherits, mirroring
// brig.Command.Options's debug/verbose pair but generalized to cobra's
// per-command flag registration.
type globalFlags struct {
	workspaceFolder string
	verbose         bool
	debug           bool
	runtimeName     string
}

// Execute runs the deacon command line, returning the process exit code
// spec §6 defines (0 success, 1 general failure, 2 outdated-features-
// detected). Every verb reports through a Reporter instead of returning a
// bare error, so this is the single place a non-zero code originates from
// cobra's own parsing failures (bad flags, unknown subcommand).
func Execute(appName, appVersion string, args []string) ExitCode {
	exit := ExitSuccess
	root := newRootCommand(appName, appVersion, &exit)
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		rep := NewReporter(os.Stdout, nil)
		return rep.Error(NewError("command line error", err))
	}
	return exit
}

// newRootCommand builds the deacon cobra command tree: one subcommand per
// verb in spec §6's CLI surface table, sharing the persistent flags above
// and writing the invocation's final exit code into *exit.
func newRootCommand(appName, appVersion string, exit *ExitCode) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           appName,
		Version:       appVersion,
		Short:         "deacon: a native Go devcontainer orchestrator",
		Long:          fmt.Sprintf("%s, %s: resolves, builds, and reconciles devcontainer.json environments.", appName, appVersion),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(flags)
		},
	}

	root.PersistentFlags().StringVar(&flags.workspaceFolder, "workspace-folder", ".", "path to the workspace root")
	root.PersistentFlags().StringVar(&flags.runtimeName, "runtime", "", "container runtime to use (docker|podman); defaults to $DEACON_RUNTIME or docker")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable informational logging on stderr")
	root.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "enable debug logging on stderr")

	root.AddCommand(
		newUpCommand(flags, exit),
		newDownCommand(flags, exit),
		newExecCommand(flags, exit),
		newBuildCommand(flags, exit),
		newReadConfigurationCommand(flags, exit),
		newConfigCommand(flags, exit),
		newFeaturesCommand(flags, exit),
		newTemplatesCommand(flags, exit),
		newOutdatedCommand(flags, exit),
		newRunUserCommandsCommand(flags, exit),
	)

	return root
}

// configureLogging wires devslog to stderr exactly as brig.Command.parseOptions
// does, keeping stdout free for the Reporter's single JSON document (spec
// §6 I/O discipline).
func configureLogging(flags *globalFlags) {
	level := new(slog.LevelVar)
	switch {
	case flags.debug:
		level.Set(slog.LevelDebug)
	case flags.verbose:
		level.Set(slog.LevelInfo)
	default:
		level.Set(slog.LevelWarn)
	}

	slog.SetDefault(slog.New(devslog.NewHandler(os.Stderr, &devslog.Options{
		HandlerOptions: &slog.HandlerOptions{
			Level: level,
		},
		NewLineAfterLog: false,
		SortKeys:        true,
	})))
}
