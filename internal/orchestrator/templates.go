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

package orchestrator

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/tailscale/hujson"
)

// TemplateOptionDef is one entry of devcontainer-template.json's options map.
type TemplateOptionDef struct {
	Type        string             `json:"type"`
	Enum        []string           `json:"enum,omitempty"`
	Default     config.OptionValue `json:"default"`
	Description *string            `json:"description,omitempty"`
}

// TemplateMetadata is devcontainer-template.json.
type TemplateMetadata struct {
	ID      string                       `json:"id"`
	Name    *string                      `json:"name,omitempty"`
	Options map[string]TemplateOptionDef `json:"options,omitempty"`
}

// ParseTemplateMetadata reads and JSONC-parses a devcontainer-template.json
// file, generalizing internal/config.Parser's hujson-standardization step
// (spec supplement, grounded in original_source's parse_template_metadata).
func ParseTemplateMetadata(path string) (*TemplateMetadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template metadata: %w", err)
	}
	std, err := hujson.Standardize(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing template metadata: %w", err)
	}
	var m TemplateMetadata
	if err := json.Unmarshal(std, &m); err != nil {
		return nil, fmt.Errorf("decoding template metadata: %w", err)
	}
	return &m, nil
}

// ApplyOptions configures Apply (spec supplement, grounded in
// original_source/crates/deacon/src/commands/templates.rs's ApplyOptions).
type ApplyOptions struct {
	Options   map[string]config.OptionValue
	Overwrite bool
	DryRun    bool
}

// ActionKind names one planned file action.
type ActionKind string

const (
	ActionCopy      ActionKind = "copy"
	ActionOverwrite ActionKind = "overwrite"
	ActionSkip      ActionKind = "skip"
)

// PlannedAction is one file-level effect of applying a template.
type PlannedAction struct {
	Kind             ActionKind
	Source           string
	Dest             string
	HasSubstitutions bool
}

// ApplyResult summarizes a completed (or dry-run) template application.
type ApplyResult struct {
	FilesProcessed int
	FilesSkipped   int
	Actions        []PlannedAction
	Replacements   map[string]string
}

const metadataFileName = "devcontainer-template.json"

var templateVarPattern = regexp.MustCompile(`\$\{templateOption:([a-zA-Z0-9_]+)\}`)

// ResolveOptions validates options against metadata, applying declared
// defaults for anything left unspecified, failing on unknown keys and on
// options with neither a supplied value nor a default (spec supplement).
func ResolveOptions(metadata *TemplateMetadata, supplied map[string]config.OptionValue) (map[string]config.OptionValue, error) {
	resolved := make(map[string]config.OptionValue, len(metadata.Options))

	for name, v := range supplied {
		def, ok := metadata.Options[name]
		if !ok {
			return nil, fmt.Errorf("unknown template option %q", name)
		}
		if len(def.Enum) > 0 && v.String != nil {
			valid := false
			for _, e := range def.Enum {
				if e == *v.String {
					valid = true
					break
				}
			}
			if !valid {
				return nil, fmt.Errorf("invalid value %q for option %q: valid choices are %v", *v.String, name, def.Enum)
			}
		}
		resolved[name] = v
	}

	for name, def := range metadata.Options {
		if _, ok := resolved[name]; ok {
			continue
		}
		d := def.Default
		if d.IsNull || (d.Bool == nil && d.String == nil && d.Number == nil && d.Array == nil && d.Object == nil) {
			return nil, fmt.Errorf("missing required template option %q: provide --option %s=<value> or define a default", name, name)
		}
		resolved[name] = def.Default
	}

	return resolved, nil
}

// Apply copies templateDir's contents into outputDir, substituting
// ${templateOption:name} references in every file's text with the resolved
// option values (spec supplement, grounded in original_source's
// apply_template/execute_templates_apply). devcontainer-template.json
// itself is not copied.
func Apply(templateDir, outputDir string, opts ApplyOptions) (*ApplyResult, error) {
	result := &ApplyResult{Replacements: make(map[string]string)}

	if !opts.DryRun {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}

	err := filepath.WalkDir(templateDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(templateDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.Name() == metadataFileName && filepath.Dir(rel) == "." {
			return nil
		}
		dest := filepath.Join(outputDir, rel)

		if d.IsDir() {
			if !opts.DryRun {
				return os.MkdirAll(dest, 0o755)
			}
			return nil
		}

		return applyFile(path, dest, rel, opts, result)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func applyFile(src, dest, rel string, opts ApplyOptions, result *ApplyResult) error {
	if _, err := os.Stat(dest); err == nil && !opts.Overwrite {
		result.FilesSkipped++
		result.Actions = append(result.Actions, PlannedAction{Kind: ActionSkip, Source: rel, Dest: dest})
		return nil
	} else if err == nil {
		result.Actions = append(result.Actions, PlannedAction{Kind: ActionOverwrite, Source: rel, Dest: dest, HasSubstitutions: true})
	} else {
		result.Actions = append(result.Actions, PlannedAction{Kind: ActionCopy, Source: rel, Dest: dest, HasSubstitutions: true})
	}

	raw, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading template file %s: %w", rel, err)
	}

	substituted := templateVarPattern.ReplaceAllStringFunc(string(raw), func(match string) string {
		name := templateVarPattern.FindStringSubmatch(match)[1]
		v, ok := opts.Options[name]
		if !ok {
			return match
		}
		val := v.ToEnvString()
		result.Replacements[name] = val
		return val
	})

	result.FilesProcessed++
	if opts.DryRun {
		return nil
	}
	return os.WriteFile(dest, []byte(substituted), 0o644)
}
