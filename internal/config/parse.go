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
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tailscale/hujson"
)

//go:embed schema/devcontainer.schema.json
var devcontainerSchemaJSON []byte

const schemaURL = "https://deacon.dev/schemas/devContainer.schema.json"

// Kind enumerates the Config error taxonomy from spec §7.
type Kind int

const (
	KindNotFound Kind = iota
	KindParsing
	KindValidation
	KindExtendsCycle
	KindNotImplemented
	KindMultipleConfigs
	KindIO
)

// Error is a typed config-layer error.
type Error struct {
	Kind    Kind
	Message string
	Chain   []string // populated for KindExtendsCycle
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Parser loads and validates devcontainer.json documents. It holds a
// compiled schema so repeated Parse calls (e.g. across an extends chain)
// don't recompile it every time, mirroring writ.Parser.
type Parser struct {
	schema *jsonschema.Schema
}

// NewParser compiles the embedded schema once.
func NewParser() (*Parser, error) {
	compiler := jsonschema.NewCompiler()
	var doc interface{}
	if err := json.Unmarshal(devcontainerSchemaJSON, &doc); err != nil {
		return nil, fmt.Errorf("unable to unmarshal embedded schema: %w", err)
	}
	if err := compiler.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("unable to add embedded schema as a resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("unable to compile embedded schema: %w", err)
	}
	return &Parser{schema: schema}, nil
}

// standardizeJSON strips comments/trailing commas using hujson, matching
// writ.standardizeJSON.
func standardizeJSON(raw []byte) ([]byte, error) {
	ast, err := hujson.Parse(raw)
	if err != nil {
		return nil, &Error{Kind: KindParsing, Message: "unable to parse JSON-with-comments", Err: err}
	}
	ast.Standardize()
	return ast.Pack(), nil
}

// ParseFile loads, standardizes, validates, and unmarshals path into a
// DevContainerConfig. It does not run variable substitution or extends
// merging; callers compose those separately (spec §4.2, §4.1).
func (p *Parser) ParseFile(path string) (*DevContainerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Kind: KindNotFound, Message: fmt.Sprintf("configuration file not found: %s", path), Err: err}
		}
		return nil, &Error{Kind: KindIO, Message: "unable to read configuration file", Err: err}
	}
	return p.Parse(raw, path)
}

// Parse standardizes, validates, and unmarshals raw JSONC bytes. path is
// recorded on the result for extends/mount resolution and is used only in
// error messages otherwise.
func (p *Parser) Parse(raw []byte, path string) (*DevContainerConfig, error) {
	standardized, err := standardizeJSON(raw)
	if err != nil {
		return nil, err
	}

	var generic interface{}
	if err := json.Unmarshal(standardized, &generic); err != nil {
		return nil, &Error{Kind: KindParsing, Message: "invalid JSON", Err: err}
	}
	if _, ok := generic.(map[string]interface{}); !ok {
		return nil, &Error{Kind: KindParsing, Message: "top-level value must be a JSON object"}
	}

	if err := p.schema.Validate(generic); err != nil {
		return nil, &Error{Kind: KindValidation, Message: "schema validation failed", Err: err}
	}

	var cfg DevContainerConfig
	dec := json.NewDecoder(bytes.NewReader(standardized))
	if err := dec.Decode(&cfg); err != nil {
		return nil, &Error{Kind: KindParsing, Message: "unable to decode configuration", Err: err}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	cfg.SetSourcePath(abs)

	if cfg.DockerComposeFile != nil && len(*cfg.DockerComposeFile) > 0 && cfg.Service == nil {
		return nil, &Error{Kind: KindValidation, Message: "service is required when dockerComposeFile is set"}
	}

	slog.Debug("parsed devcontainer configuration", "path", abs)
	return &cfg, nil
}
