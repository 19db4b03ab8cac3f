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

package feature

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/tailscale/hujson"
)

// OptionType is the declared type of a feature option (spec §4.4 step 3).
type OptionType string

const (
	OptionTypeBoolean OptionType = "boolean"
	OptionTypeString  OptionType = "string"
)

// OptionDef is one entry of a feature's declared options map (spec §3.1
// ResolvedFeature.metadata.options).
type OptionDef struct {
	Type        OptionType            `json:"type"`
	Default     config.OptionValue    `json:"default"`
	Description *string               `json:"description,omitempty"`
	Enum        []string              `json:"enum,omitempty"`
	Proposals   []string              `json:"proposals,omitempty"`
}

// Metadata is devcontainer-feature.json, generalizing
// writ.DevcontainerFeatureConfig to the ResolvedFeature.metadata shape from
// spec §3.1.
type Metadata struct {
	ID               string                         `json:"id"`
	Version          string                         `json:"version"`
	Name             *string                        `json:"name,omitempty"`
	Description      *string                        `json:"description,omitempty"`
	Options          map[string]OptionDef           `json:"options,omitempty"`
	ContainerEnv     map[string]string              `json:"containerEnv,omitempty"`
	Mounts           []*config.MobyMount            `json:"mounts,omitempty"`
	Init             *bool                          `json:"init,omitempty"`
	Privileged       *bool                          `json:"privileged,omitempty"`
	CapAdd           []string                       `json:"capAdd,omitempty"`
	SecurityOpt      []string                       `json:"securityOpt,omitempty"`
	Entrypoint       *string                        `json:"entrypoint,omitempty"`
	InstallsAfter    []string                       `json:"installsAfter,omitempty"`
	DependsOn        map[string]config.FeatureOptionsMap `json:"dependsOn,omitempty"`
	Deprecated       *bool                          `json:"deprecated,omitempty"`
	LegacyIDs        []string                       `json:"legacyIds,omitempty"`

	OnCreateCommand      *config.LifecycleCommand `json:"onCreateCommand,omitempty"`
	UpdateContentCommand *config.LifecycleCommand `json:"updateContentCommand,omitempty"`
	PostCreateCommand    *config.LifecycleCommand `json:"postCreateCommand,omitempty"`
	PostStartCommand     *config.LifecycleCommand `json:"postStartCommand,omitempty"`
	PostAttachCommand    *config.LifecycleCommand `json:"postAttachCommand,omitempty"`
}

// ParseMetadataFile reads and standardizes devcontainer-feature.json from
// dir, mirroring writ.DevcontainerFeatureParser.Parse.
func ParseMetadataFile(dir string) (*Metadata, error) {
	path := filepath.Join(dir, "devcontainer-feature.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading feature metadata %s: %w", path, err)
	}
	ast, err := hujson.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing feature metadata %s: %w", path, err)
	}
	ast.Standardize()

	var m Metadata
	if err := json.Unmarshal(ast.Pack(), &m); err != nil {
		return nil, fmt.Errorf("decoding feature metadata %s: %w", path, err)
	}
	if m.ID == "" {
		return nil, fmt.Errorf("feature metadata %s is missing required id", path)
	}
	return &m, nil
}

// FillDefaults returns the effective option set for declared, validating
// each declared value's type against the option definition and filling in
// the default for every option the caller omitted (spec §4.4 step 3).
func (m *Metadata) FillDefaults(declared config.FeatureOptionsMap) (config.FeatureOptionsMap, error) {
	effective := make(config.FeatureOptionsMap, len(m.Options))
	for name, def := range m.Options {
		if v, ok := declared[name]; ok {
			if err := validateOptionType(name, def, v); err != nil {
				return nil, err
			}
			effective[name] = v
			continue
		}
		effective[name] = def.Default
	}
	for name := range declared {
		if _, known := m.Options[name]; !known {
			return nil, fmt.Errorf("feature %s: unknown option %q", m.ID, name)
		}
	}
	return effective, nil
}

func validateOptionType(name string, def OptionDef, v config.OptionValue) error {
	switch def.Type {
	case OptionTypeBoolean:
		if v.Bool == nil {
			return fmt.Errorf("option %q must be a boolean", name)
		}
	case OptionTypeString:
		if v.String == nil {
			return fmt.Errorf("option %q must be a string", name)
		}
		if len(def.Enum) > 0 && !contains(def.Enum, *v.String) {
			return fmt.Errorf("option %q value %q is not one of %v", name, *v.String, def.Enum)
		}
	}
	return nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
