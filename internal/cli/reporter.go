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

// Package cli wires every library package into the ten devcontainer verbs
// (spec §6), through cobra commands and a Reporter that enforces the
// stdout/stderr separation contract: exactly one JSON document on stdout
// per command, everything else on stderr via slog. Generalizes
// original_source's crates/core/src/io.rs Output helper.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/get2knowio/deacon/internal/redact"
)

// ExitCode mirrors spec §6's three-value exit contract.
type ExitCode int

const (
	ExitSuccess         ExitCode = 0
	ExitFailure         ExitCode = 1
	ExitOutdatedDetected ExitCode = 2
)

// SuccessRecord is the `up` success document from spec §6. Other verbs
// reuse it loosely (only the fields they populate are non-zero); `up` is
// the one whose full shape the spec pins down.
type SuccessRecord struct {
	Outcome                  string            `json:"outcome"`
	ContainerID              string            `json:"containerId,omitempty"`
	ComposeProjectName       string            `json:"composeProjectName,omitempty"`
	RemoteUser               string            `json:"remoteUser,omitempty"`
	RemoteWorkspaceFolder    string            `json:"remoteWorkspaceFolder,omitempty"`
	EffectiveMounts          []EffectiveMount  `json:"effectiveMounts,omitempty"`
	EffectiveEnv             map[string]string `json:"effectiveEnv,omitempty"`
	ProfilesApplied          []string          `json:"profilesApplied,omitempty"`
	ExternalVolumesPreserved []string          `json:"externalVolumesPreserved,omitempty"`
	Configuration            interface{}       `json:"configuration,omitempty"`
	MergedConfiguration      interface{}       `json:"mergedConfiguration,omitempty"`

	// Extra carries verb-specific payload fields (read-configuration's
	// configuration dump, outdated's reports, templates apply's actions,
	// ...) that don't fit the `up` shape above.
	Extra map[string]interface{} `json:"-"`
}

// MarshalJSON folds Extra's verb-specific fields in alongside the fixed
// `up`-shaped ones, so read-configuration's configuration dump,
// outdated's reports, and templates apply's actions ride the same single
// stdout document without SuccessRecord needing a field for every verb.
func (r SuccessRecord) MarshalJSON() ([]byte, error) {
	type alias SuccessRecord
	base, err := json.Marshal(alias(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}
	var merged map[string]interface{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// EffectiveMount is one entry of SuccessRecord.EffectiveMounts.
type EffectiveMount struct {
	Source  string   `json:"source"`
	Target  string   `json:"target"`
	Options []string `json:"options,omitempty"`
}

// ErrorRecord is the error document from spec §6, returned by any verb.
type ErrorRecord struct {
	Outcome             string `json:"outcome"`
	Message             string `json:"message"`
	Description         string `json:"description"`
	ContainerID         string `json:"containerId,omitempty"`
	DisallowedFeatureID string `json:"disallowedFeatureId,omitempty"`
	DidStopContainer    *bool  `json:"didStopContainer,omitempty"`
	LearnMoreURL        string `json:"learnMoreUrl,omitempty"`
}

// VerbError pairs an ErrorRecord with the exit code it should produce,
// letting a command distinguish a general failure (1) from the
// fail-on-outdated gate (2) without the Reporter needing to inspect
// message text.
type VerbError struct {
	Record ErrorRecord
	Exit   ExitCode
}

func (e *VerbError) Error() string { return e.Record.Message }

// NewError builds a VerbError with exit code 1, the common case.
func NewError(message string, err error) *VerbError {
	desc := message
	if err != nil {
		desc = err.Error()
	}
	return &VerbError{Record: ErrorRecord{Outcome: "error", Message: message, Description: desc}, Exit: ExitFailure}
}

// Reporter writes exactly one JSON document to stdout per command
// invocation and redacts it first, per spec §6's "Secrets are redacted in
// both records."
type Reporter struct {
	Stdout   io.Writer
	Redactor *redact.Registry
}

// NewReporter builds a Reporter writing to out, redacting through
// registry; a nil registry disables redaction. Verbs pass nil and assign
// Redactor once their Environment is built, so output written before that
// is not redacted.
func NewReporter(out io.Writer, registry *redact.Registry) *Reporter {
	return &Reporter{Stdout: out, Redactor: registry}
}

func (r *Reporter) write(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	line := string(raw)
	if r.Redactor != nil {
		line = r.Redactor.Redact(line)
	}
	_, err = fmt.Fprintln(r.Stdout, line)
	return err
}

// Success emits rec as the command's single stdout document and returns
// exit code 0.
func (r *Reporter) Success(rec SuccessRecord) ExitCode {
	rec.Outcome = "success"
	if err := r.write(rec); err != nil {
		return r.Error(NewError("failed to write success report", err))
	}
	return ExitSuccess
}

// Error emits verr's ErrorRecord as the command's single stdout document
// and returns the exit code the verb should terminate with.
func (r *Reporter) Error(verr *VerbError) ExitCode {
	verr.Record.Outcome = "error"
	if err := r.write(verr.Record); err != nil {
		// Nothing more to report through; fall back to the contract's
		// general-failure code.
		return ExitFailure
	}
	return verr.Exit
}
