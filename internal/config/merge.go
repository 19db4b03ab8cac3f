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

package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Load resolves the extends chain rooted at path (bottom-up: base first,
// then each subsequent link overriding the accumulated result), then
// applies overridePath (if non-empty) as one final override link. Cycle
// detection tracks the set of visited absolute paths as the frontier;
// reentry produces ExtendsCycle naming the chain (spec §4.2).
func (p *Parser) Load(path string, overridePath string) (*DevContainerConfig, error) {
	chain, err := p.resolveChain(path, nil)
	if err != nil {
		return nil, err
	}

	merged := chain[0]
	for _, link := range chain[1:] {
		merged = mergeConfigs(merged, link)
	}

	if overridePath != "" {
		override, err := p.ParseFile(overridePath)
		if err != nil {
			return nil, err
		}
		merged = mergeConfigs(merged, override)
	}

	merged.Extends = nil
	return merged, nil
}

// resolveChain returns the chain of configs from the base of the extends
// graph down to path, in merge order (base first).
func (p *Parser) resolveChain(path string, visited []string) ([]*DevContainerConfig, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	for _, v := range visited {
		if v == abs {
			chain := append(append([]string(nil), visited...), abs)
			return nil, &Error{Kind: KindExtendsCycle, Message: "extends cycle detected", Chain: chain}
		}
	}
	visited = append(visited, abs)

	cfg, err := p.ParseFile(abs)
	if err != nil {
		return nil, err
	}

	if cfg.Extends == nil || len(*cfg.Extends) == 0 {
		return []*DevContainerConfig{cfg}, nil
	}

	var out []*DevContainerConfig
	for _, ref := range *cfg.Extends {
		if isOCIReference(ref) {
			return nil, &Error{Kind: KindNotImplemented, Message: fmt.Sprintf("extends: OCI references are not implemented: %s", ref)}
		}
		base := ref
		if !filepath.IsAbs(base) {
			base = filepath.Join(filepath.Dir(abs), base)
		}
		baseChain, err := p.resolveChain(base, visited)
		if err != nil {
			return nil, err
		}
		out = append(out, baseChain...)
	}
	out = append(out, cfg)
	return out, nil
}

// isOCIReference is a conservative heuristic: anything that isn't a
// relative/absolute filesystem path (and doesn't end in .json) is treated
// as a registry reference, matching the spec's explicit NotImplemented
// carve-out for OCI extends targets.
func isOCIReference(ref string) bool {
	if strings.HasSuffix(ref, ".json") {
		return false
	}
	if strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "../") || strings.HasPrefix(ref, "/") {
		return false
	}
	return strings.Contains(ref, "/") || strings.Contains(ref, ":")
}

// mergeConfigs applies override on top of base per the per-field rules in
// spec §4.2. base is mutated and returned for convenience.
func mergeConfigs(base, override *DevContainerConfig) *DevContainerConfig {
	if override.Schema != nil {
		base.Schema = override.Schema
	}
	if override.Name != nil {
		base.Name = override.Name
	}
	if override.Image != nil {
		base.Image = override.Image
	}
	if override.DockerFile != nil {
		base.DockerFile = override.DockerFile
	}
	if override.Context != nil {
		base.Context = override.Context
	}
	if override.Build != nil {
		base.Build = override.Build
	}
	if override.DockerComposeFile != nil {
		base.DockerComposeFile = override.DockerComposeFile
	}
	if override.Service != nil {
		base.Service = override.Service
	}
	if len(override.RunServices) > 0 {
		base.RunServices = override.RunServices
	}
	if override.WorkspaceFolder != nil {
		base.WorkspaceFolder = override.WorkspaceFolder
	}
	if override.WorkspaceMount != nil {
		base.WorkspaceMount = override.WorkspaceMount
	}
	if override.ContainerUser != nil {
		base.ContainerUser = override.ContainerUser
	}
	if override.RemoteUser != nil {
		base.RemoteUser = override.RemoteUser
	}
	if override.UpdateRemoteUserUID != nil {
		base.UpdateRemoteUserUID = override.UpdateRemoteUserUID
	}
	if override.ShutdownAction != nil {
		base.ShutdownAction = override.ShutdownAction
	}
	if override.OverrideCommand != nil {
		base.OverrideCommand = override.OverrideCommand
	}
	if override.Privileged != nil {
		base.Privileged = override.Privileged
	}
	if len(override.OverrideFeatureInstallOrder) > 0 {
		base.OverrideFeatureInstallOrder = override.OverrideFeatureInstallOrder
	}

	// runArgs: concatenation in chain order (base ... override).
	base.RunArgs = append(append([]string(nil), base.RunArgs...), override.RunArgs...)

	// mounts: concatenation in chain order.
	base.Mounts = append(append([]*MobyMount(nil), base.Mounts...), override.Mounts...)

	// capAdd/securityOpt: treated as scalars-in-a-list per spec (not
	// explicitly listed as concatenation rules); later override replaces
	// wholesale when non-empty, consistent with "scalars: later overrides
	// earlier" applied to the whole list.
	if len(override.CapAdd) > 0 {
		base.CapAdd = override.CapAdd
	}
	if len(override.SecurityOpt) > 0 {
		base.SecurityOpt = override.SecurityOpt
	}

	// containerEnv / remoteEnv: key-wise union, later wins.
	base.ContainerEnv = mergeStringMap(base.ContainerEnv, override.ContainerEnv)
	base.RemoteEnv = mergeStringPtrMap(base.RemoteEnv, override.RemoteEnv)

	// features: deep merge keyed by feature reference; later options
	// override earlier per key, keys not in the later map are preserved.
	base.Features = mergeFeatureMaps(base.Features, override.Features)

	// lifecycle commands: later overrides earlier as a whole, no
	// concatenation.
	if override.InitializeCommand != nil {
		base.InitializeCommand = override.InitializeCommand
	}
	if override.OnCreateCommand != nil {
		base.OnCreateCommand = override.OnCreateCommand
	}
	if override.UpdateContentCommand != nil {
		base.UpdateContentCommand = override.UpdateContentCommand
	}
	if override.PostCreateCommand != nil {
		base.PostCreateCommand = override.PostCreateCommand
	}
	if override.PostStartCommand != nil {
		base.PostStartCommand = override.PostStartCommand
	}
	if override.PostAttachCommand != nil {
		base.PostAttachCommand = override.PostAttachCommand
	}

	if override.Customizations != nil {
		if base.Customizations == nil {
			base.Customizations = map[string]interface{}{}
		}
		for k, v := range override.Customizations {
			base.Customizations[k] = v
		}
	}

	if override.HostRequirements != nil {
		base.HostRequirements = override.HostRequirements
	}
	if len(override.ForwardPorts) > 0 {
		base.ForwardPorts = override.ForwardPorts
	}
	if len(override.AppPort) > 0 {
		base.AppPort = override.AppPort
	}
	if override.PortsAttributes != nil {
		if base.PortsAttributes == nil {
			base.PortsAttributes = map[string]PortAttributes{}
		}
		for k, v := range override.PortsAttributes {
			base.PortsAttributes[k] = v
		}
	}
	if override.OtherPortsAttributes != nil {
		base.OtherPortsAttributes = override.OtherPortsAttributes
	}

	if override.SourcePath() != "" {
		base.SetSourcePath(override.SourcePath())
	}

	slog.Debug("merged configuration link", "override", override.SourcePath())
	return base
}

func mergeStringMap(base, override map[string]string) map[string]string {
	if override == nil {
		return base
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func mergeStringPtrMap(base, override map[string]*string) map[string]*string {
	if override == nil {
		return base
	}
	out := make(map[string]*string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func mergeFeatureMaps(base, override FeatureMap) FeatureMap {
	if override.Len() == 0 {
		return base
	}
	merged := FeatureMap{
		keys:   append([]string(nil), base.keys...),
		values: make(map[string]FeatureOptionsMap, base.Len()+override.Len()),
	}
	for k, v := range base.values {
		merged.values[k] = v
	}
	for _, k := range override.keys {
		existing, ok := merged.values[k]
		if !ok {
			merged.keys = append(merged.keys, k)
			merged.values[k] = override.values[k]
			continue
		}
		combined := make(FeatureOptionsMap, len(existing))
		for name, val := range existing {
			combined[name] = val
		}
		for name, val := range override.values[k] {
			combined[name] = val
		}
		merged.values[k] = combined
	}
	return merged
}
