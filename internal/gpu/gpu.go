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

// Package gpu resolves how GPU resources should be requested for
// devcontainer operations, including best-effort host detection.
package gpu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Mode selects how GPU requests are handled across run/build/compose.
type Mode string

const (
	ModeAll    Mode = "all"
	ModeDetect Mode = "detect"
	ModeNone   Mode = "none"
)

// ParseMode parses a CLI-supplied --gpu-mode value, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "all":
		return ModeAll, nil
	case "detect":
		return ModeDetect, nil
	case "none", "":
		return ModeNone, nil
	default:
		return "", fmt.Errorf("invalid GPU mode %q: valid values are all, detect, none", s)
	}
}

// HostCapability is the result of probing the host for a GPU-capable
// container runtime.
type HostCapability struct {
	Available   bool
	RuntimeName string
	ProbeError  string
}

// Application tracks how a selected Mode was applied to a single up/build
// invocation, for observability.
type Application struct {
	SelectedMode     Mode
	AppliesToRun     bool
	AppliesToBuild   bool
	AppliesToCompose bool
	WarningEmitted   bool
}

// NewApplication starts tracking mode, with every contributor flag unset.
func NewApplication(mode Mode) *Application {
	return &Application{SelectedMode: mode}
}

// DetectCapability probes the host by querying the container runtime for
// its configured OCI runtimes and checking for an nvidia entry. Detection
// is best-effort: a failed probe never fails the overall operation, it
// only yields HostCapability.ProbeError for diagnostics.
func DetectCapability(ctx context.Context, runtimePath string) HostCapability {
	out, err := exec.CommandContext(ctx, runtimePath, "info", "--format", "{{json .Runtimes}}").Output()
	if err != nil {
		msg := fmt.Sprintf("failed to execute runtime info command: %v", err)
		slog.Debug(msg)
		return HostCapability{ProbeError: msg}
	}

	var runtimes map[string]interface{}
	if err := json.Unmarshal(out, &runtimes); err != nil {
		msg := fmt.Sprintf("failed to parse runtime info JSON: %v", err)
		slog.Debug(msg)
		return HostCapability{ProbeError: msg}
	}

	if _, ok := runtimes["nvidia"]; ok {
		return HostCapability{Available: true, RuntimeName: "nvidia"}
	}
	return HostCapability{}
}

// Resolve applies mode against the host's detected capability, updating
// app in place and returning the device request arguments to append to
// the container create/build invocation (a bare "--gpus all" for Docker).
func Resolve(ctx context.Context, mode Mode, runtimePath string, app *Application) []string {
	switch mode {
	case ModeAll:
		app.AppliesToRun = true
		app.AppliesToBuild = true
		return []string{"--gpus", "all"}

	case ModeDetect:
		cap := DetectCapability(ctx, runtimePath)
		if !cap.Available {
			app.WarningEmitted = true
			slog.Warn("GPU mode is detect but no GPU-capable runtime was found on the host", "probeError", cap.ProbeError)
			return nil
		}
		app.AppliesToRun = true
		app.AppliesToBuild = true
		return []string{"--gpus", "all"}

	default:
		return nil
	}
}
