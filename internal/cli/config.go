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
	"os"

	"github.com/get2knowio/deacon/internal/substitute"
	"github.com/spf13/cobra"
)

type configSubstituteOptions struct {
	configPath         string
	dryRun             bool
	strictSubstitution bool
	maxDepth           int
	nested             bool
	output             string
}

func newConfigCommand(flags *globalFlags, exit *ExitCode) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and transform devcontainer configuration documents",
	}
	cmd.AddCommand(newConfigSubstituteCommand(flags, exit))
	return cmd
}

func newConfigSubstituteCommand(flags *globalFlags, exit *ExitCode) *cobra.Command {
	opts := &configSubstituteOptions{nested: true, maxDepth: substitute.DefaultMaxDepth, output: "json"}
	cmd := &cobra.Command{
		Use:   "substitute",
		Short: "Preview or execute variable substitution over devcontainer.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			*exit = runConfigSubstitute(flags, opts)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to devcontainer.json (default: standard discovery)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "report replacements without writing the substituted document anywhere")
	cmd.Flags().BoolVar(&opts.strictSubstitution, "strict-substitution", false, "fail on any unresolved variable instead of leaving it unchanged")
	cmd.Flags().IntVar(&opts.maxDepth, "max-depth", substitute.DefaultMaxDepth, "maximum number of resolution passes")
	cmd.Flags().BoolVar(&opts.nested, "nested", true, "allow a replacement value to itself contain a variable reference")
	cmd.Flags().StringVar(&opts.output, "output", "json", "output format: text or json")
	return cmd
}

func runConfigSubstitute(flags *globalFlags, opts *configSubstituteOptions) ExitCode {
	rep := NewReporter(os.Stdout, nil)

	configPath, err := FindConfigPath(flags.workspaceFolder, opts.configPath)
	if err != nil {
		return rep.Error(NewError("no devcontainer configuration found", err))
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return rep.Error(NewError("reading devcontainer.json", err))
	}

	mode := substitute.Lenient
	if opts.strictSubstitution {
		mode = substitute.Strict
	}
	engine := substitute.New(substitute.Context{
		LocalWorkspaceFolder: flags.workspaceFolder,
		MaxDepth:             opts.maxDepth,
		Nested:               opts.nested,
		Mode:                 mode,
	})

	substituted, err := engine.SubstituteString(string(raw))
	if err != nil {
		return rep.Error(NewError("variable substitution failed", err))
	}
	report := engine.Report()

	if opts.output == "text" {
		if !opts.dryRun {
			fmt.Fprintln(os.Stdout, substituted)
		}
		for name, val := range report.Replacements {
			fmt.Fprintf(os.Stderr, "%s -> %s\n", name, val)
		}
		return ExitSuccess
	}

	extra := map[string]interface{}{"report": report}
	if !opts.dryRun {
		extra["document"] = substituted
	}
	return rep.Success(SuccessRecord{Extra: extra})
}
