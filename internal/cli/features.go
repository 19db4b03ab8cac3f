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
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	archive "github.com/moby/go-archive"
	"github.com/spf13/cobra"

	"github.com/get2knowio/deacon/internal/feature"
	"github.com/get2knowio/deacon/internal/ociclient"
)

type featuresPackageOptions struct {
	sourceDir string
	outputDir string
}

type featuresPublishOptions struct {
	sourceDir string
	registry  string
	dryRun    bool
}

type featuresTestOptions struct {
	sourceDir string
}

func newFeaturesCommand(flags *globalFlags, exit *ExitCode) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Test, package, and publish devcontainer features",
	}
	cmd.AddCommand(
		newFeaturesTestCommand(flags, exit),
		newFeaturesPackageCommand(flags, exit),
		newFeaturesPublishCommand(flags, exit),
	)
	return cmd
}

func newFeaturesTestCommand(flags *globalFlags, exit *ExitCode) *cobra.Command {
	opts := &featuresTestOptions{}
	cmd := &cobra.Command{
		Use:   "test SOURCE_DIR",
		Short: "Run a feature's test scenarios against a built container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.sourceDir = args[0]
			*exit = runFeaturesTest(flags, opts)
			return nil
		},
	}
	return cmd
}

func runFeaturesTest(flags *globalFlags, opts *featuresTestOptions) ExitCode {
	rep := NewReporter(os.Stdout, nil)

	testDir := filepath.Join(opts.sourceDir, "test")
	entries, err := os.ReadDir(testDir)
	if err != nil {
		return rep.Error(NewError("reading test directory", err))
	}

	var ran, failed []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sh" {
			continue
		}
		script := filepath.Join(testDir, e.Name())
		cmd := exec.Command("/bin/sh", script)
		cmd.Stdout = os.Stderr
		cmd.Stderr = os.Stderr
		ran = append(ran, e.Name())
		if err := cmd.Run(); err != nil {
			failed = append(failed, e.Name())
		}
	}

	if len(failed) > 0 {
		return rep.Error(NewError("feature tests failed", fmt.Errorf("failing scenarios: %v", failed)))
	}
	return rep.Success(SuccessRecord{Extra: map[string]interface{}{"scenariosRun": ran}})
}

func newFeaturesPackageCommand(flags *globalFlags, exit *ExitCode) *cobra.Command {
	opts := &featuresPackageOptions{}
	cmd := &cobra.Command{
		Use:   "package SOURCE_DIR",
		Short: "Build a feature's devcontainer-feature.json + install.sh into an OCI-ready tarball",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.sourceDir = args[0]
			*exit = runFeaturesPackage(flags, opts)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.outputDir, "output", "", "directory to write the packaged tarball into (default: source dir)")
	return cmd
}

func runFeaturesPackage(flags *globalFlags, opts *featuresPackageOptions) ExitCode {
	rep := NewReporter(os.Stdout, nil)

	metadata, err := feature.ParseMetadataFile(opts.sourceDir)
	if err != nil {
		return rep.Error(NewError("parsing devcontainer-feature.json", err))
	}

	tarBytes, err := packageFeatureTarball(opts.sourceDir)
	if err != nil {
		return rep.Error(NewError("packaging feature", err))
	}

	outDir := opts.outputDir
	if outDir == "" {
		outDir = opts.sourceDir
	}
	outPath := filepath.Join(outDir, fmt.Sprintf("devcontainer-feature-%s.tgz", metadata.ID))
	if err := os.WriteFile(outPath, tarBytes, 0o644); err != nil {
		return rep.Error(NewError("writing packaged tarball", err))
	}

	return rep.Success(SuccessRecord{Extra: map[string]interface{}{"id": metadata.ID, "version": metadata.Version, "path": outPath}})
}

func newFeaturesPublishCommand(flags *globalFlags, exit *ExitCode) *cobra.Command {
	opts := &featuresPublishOptions{}
	cmd := &cobra.Command{
		Use:   "publish SOURCE_DIR",
		Short: "Package and publish a feature as an OCI artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.sourceDir = args[0]
			*exit = runFeaturesPublish(flags, opts)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.registry, "registry", "", "registry/namespace/name to publish under, e.g. ghcr.io/org/features/my-feature")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "package and compute tags without pushing")
	return cmd
}

func runFeaturesPublish(flags *globalFlags, opts *featuresPublishOptions) ExitCode {
	rep := NewReporter(os.Stdout, nil)

	if opts.registry == "" {
		return rep.Error(NewError("publishing requires --registry", fmt.Errorf("no --registry given")))
	}

	metadata, err := feature.ParseMetadataFile(opts.sourceDir)
	if err != nil {
		return rep.Error(NewError("parsing devcontainer-feature.json", err))
	}

	version, err := ociclient.ParseSemver(metadata.Version)
	if err != nil {
		return rep.Error(NewError("feature version is not valid semver", err))
	}
	tags := ociclient.PublishTargets(version, true)

	tarBytes, err := packageFeatureTarball(opts.sourceDir)
	if err != nil {
		return rep.Error(NewError("packaging feature", err))
	}

	if opts.dryRun {
		return rep.Success(SuccessRecord{Extra: map[string]interface{}{"id": metadata.ID, "tags": tags, "dryRun": true}})
	}

	env, err := NewEnvironment(flags.runtimeName)
	if err != nil {
		return rep.Error(NewError("failed to initialize runtime environment", err))
	}
	rep.Redactor = env.Redact

	result, err := env.OCI.PublishFeatureMultiTag(context.Background(), opts.registry, tags, tarBytes, map[string]string{
		"org.opencontainers.feature.id":      metadata.ID,
		"org.opencontainers.feature.version": metadata.Version,
	})
	if err != nil {
		return rep.Error(NewError("publishing feature", err))
	}

	return rep.Success(SuccessRecord{Extra: map[string]interface{}{
		"digest":      result.Digest,
		"appliedTags": result.AppliedTags,
		"skippedTags": result.SkippedTags,
	}})
}

// packageFeatureTarball tars a feature's source directory exactly as the
// runtime engine tars a build context, for upload as the feature artifact's
// single layer (spec §4.3 feature packaging).
func packageFeatureTarball(sourceDir string) ([]byte, error) {
	reader, err := archive.TarWithOptions(sourceDir, &archive.TarOptions{IncludeSourceDir: false})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
