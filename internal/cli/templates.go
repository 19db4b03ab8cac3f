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
	"path/filepath"
	"strings"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/get2knowio/deacon/internal/orchestrator"
	"github.com/spf13/cobra"
)

type templatesPullOptions struct {
	ref string
}

type templatesApplyOptions struct {
	ref       string
	localPath string
	output    string
	options   []string
	force     bool
	dryRun    bool
}

func newTemplatesCommand(flags *globalFlags, exit *ExitCode) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Fetch a devcontainer template and apply it into a directory",
	}
	cmd.AddCommand(
		newTemplatesPullCommand(flags, exit),
		newTemplatesApplyCommand(flags, exit),
	)
	return cmd
}

func newTemplatesPullCommand(flags *globalFlags, exit *ExitCode) *cobra.Command {
	opts := &templatesPullOptions{}
	cmd := &cobra.Command{
		Use:   "pull REF",
		Short: "Download a template into the local cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ref = args[0]
			*exit = runTemplatesPull(flags, opts)
			return nil
		},
	}
	return cmd
}

func runTemplatesPull(flags *globalFlags, opts *templatesPullOptions) ExitCode {
	rep := NewReporter(os.Stdout, nil)

	env, err := NewEnvironment(flags.runtimeName)
	if err != nil {
		return rep.Error(NewError("failed to initialize runtime environment", err))
	}
	rep.Redactor = env.Redact

	artifact, err := env.OCI.PullTemplate(context.Background(), opts.ref)
	if err != nil {
		return rep.Error(NewError("pulling template", err))
	}

	return rep.Success(SuccessRecord{Extra: map[string]interface{}{"ref": artifact.Ref, "digest": artifact.Digest, "path": artifact.Path}})
}

func newTemplatesApplyCommand(flags *globalFlags, exit *ExitCode) *cobra.Command {
	opts := &templatesApplyOptions{}
	cmd := &cobra.Command{
		Use:   "apply REF",
		Short: "Pull (if needed) and copy-and-substitute a template into --output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ref = args[0]
			*exit = runTemplatesApply(flags, opts)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.localPath, "local-path", "", "apply from a local template directory instead of pulling --ref from a registry")
	cmd.Flags().StringVar(&opts.output, "output", ".", "directory to apply the template into")
	cmd.Flags().StringArrayVar(&opts.options, "option", nil, "template option k=v (repeatable)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "overwrite files that already exist in --output")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "report planned actions without writing anything")
	return cmd
}

func runTemplatesApply(flags *globalFlags, opts *templatesApplyOptions) ExitCode {
	rep := NewReporter(os.Stdout, nil)

	templateDir := opts.localPath
	if templateDir == "" {
		env, err := NewEnvironment(flags.runtimeName)
		if err != nil {
			return rep.Error(NewError("failed to initialize runtime environment", err))
		}
		rep.Redactor = env.Redact

		artifact, err := env.OCI.PullTemplate(context.Background(), opts.ref)
		if err != nil {
			return rep.Error(NewError("pulling template", err))
		}
		templateDir = artifact.Path
	}

	metadataPath := filepath.Join(templateDir, "devcontainer-template.json")
	metadata, err := orchestrator.ParseTemplateMetadata(metadataPath)
	if err != nil {
		return rep.Error(NewError("parsing template metadata", err))
	}

	supplied, err := parseTemplateOptions(opts.options)
	if err != nil {
		return rep.Error(NewError("invalid --option", err))
	}

	resolved, err := orchestrator.ResolveOptions(metadata, supplied)
	if err != nil {
		return rep.Error(NewError("resolving template options", err))
	}

	result, err := orchestrator.Apply(templateDir, opts.output, orchestrator.ApplyOptions{
		Options:   resolved,
		Overwrite: opts.force,
		DryRun:    opts.dryRun,
	})
	if err != nil {
		return rep.Error(NewError("applying template", err))
	}

	return rep.Success(SuccessRecord{Extra: map[string]interface{}{
		"filesProcessed": result.FilesProcessed,
		"filesSkipped":   result.FilesSkipped,
		"actions":        result.Actions,
	}})
}

func parseTemplateOptions(pairs []string) (map[string]config.OptionValue, error) {
	out := make(map[string]config.OptionValue, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("expected k=v, got %q", p)
		}
		val := v
		out[k] = config.OptionValue{String: &val}
	}
	return out, nil
}
