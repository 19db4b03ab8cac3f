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
	"fmt"
	"os"
	"strconv"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/get2knowio/deacon/internal/outdated"
	"github.com/spf13/cobra"
)

type outdatedOptions struct {
	configPath    string
	failOnOutdated bool
	output        string
}

func newOutdatedCommand(flags *globalFlags, exit *ExitCode) *cobra.Command {
	opts := &outdatedOptions{}
	cmd := &cobra.Command{
		Use:   "outdated",
		Short: "Report feature version drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			*exit = runOutdated(flags, opts)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to devcontainer.json (default: standard discovery)")
	cmd.Flags().BoolVar(&opts.failOnOutdated, "fail-on-outdated", false, "exit 2 if any feature is behind its wanted or latest version")
	cmd.Flags().StringVar(&opts.output, "output", "json", "output format: text or json")
	return cmd
}

func runOutdated(flags *globalFlags, opts *outdatedOptions) ExitCode {
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

	parser, err := config.NewParser()
	if err != nil {
		return rep.Error(NewError("compiling schema", err))
	}
	cfg, err := parser.Load(configPath, "")
	if err != nil {
		return rep.Error(NewError("failed to resolve devcontainer configuration", err))
	}

	lockPath := config.LockfilePath(configPath)
	lock, err := config.LoadLockfile(lockPath)
	if err != nil {
		return rep.Error(NewError("loading lockfile", err))
	}

	analyzer := outdated.NewAnalyzer(env.OCI)
	if n := os.Getenv("DEACON_OUTDATED_CONCURRENCY"); n != "" {
		if v, err := strconv.ParseInt(n, 10, 64); err == nil && v > 0 {
			analyzer.Concurrency = v
		}
	}

	reports := analyzer.Analyze(context.Background(), cfg.Features, lock)

	anyOutdated := false
	for _, r := range reports {
		if r.IsOutdated() {
			anyOutdated = true
			break
		}
	}

	if opts.output == "text" {
		for _, r := range reports {
			fmt.Fprintf(os.Stdout, "%s: current=%s wanted=%s latest=%s\n", r.ID, deref(r.Current), deref(r.Wanted), deref(r.Latest))
		}
	} else {
		rec := SuccessRecord{Extra: map[string]interface{}{"reports": reports}}
		if opts.failOnOutdated && anyOutdated {
			return rep.Error(&VerbError{
				Record: ErrorRecord{Message: "outdated features detected", Description: "one or more features trail their wanted or latest version"},
				Exit:   ExitOutdatedDetected,
			})
		}
		return rep.Success(rec)
	}

	if opts.failOnOutdated && anyOutdated {
		return ExitOutdatedDetected
	}
	return ExitSuccess
}

func deref(s *string) string {
	if s == nil {
		return "?"
	}
	return *s
}
