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

package runtime

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os/exec"
)

// composeArgs builds the shared `docker compose -f ... -p ...` prefix from
// req (spec §4.11 "Compose ops": "build a compose command from {base_path,
// compose_files[], project_name?}"), generalizing trill's compose-go
// project construction (composer.go's DeployComposerProject) into a plain
// CLI invocation, which is what every engine's compose plugin actually
// exposes. An unset project_name is derived deterministically from
// base_path rather than left to compose's own directory-basename default,
// so that the same workspace always resolves to the same project across
// separate up/down/ps invocations even when its basename collides with
// another checkout.
func composeArgs(req ComposeRequest) []string {
	args := []string{"compose"}
	for _, f := range req.Files {
		args = append(args, "-f", f)
	}
	args = append(args, "-p", projectName(req))
	return args
}

func projectName(req ComposeRequest) string {
	if req.ProjectName != "" {
		return req.ProjectName
	}
	h := sha256.Sum256([]byte(req.BasePath))
	return "deacon-" + hex.EncodeToString(h[:])[:12]
}

func runCompose(ctx context.Context, req ComposeRequest, out io.Writer, extra ...string) error {
	args := append(composeArgs(req), extra...)
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Dir = req.BasePath
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker %v: %w: %s", args, err, stderr.String())
	}
	return nil
}

func (e *DockerEngine) ComposeUp(ctx context.Context, req ComposeRequest, services []string, detach bool, out io.Writer) error {
	args := []string{"up"}
	if detach {
		args = append(args, "-d")
	}
	args = append(args, services...)
	return runCompose(ctx, req, out, args...)
}

func (e *DockerEngine) ComposeDown(ctx context.Context, req ComposeRequest, out io.Writer) error {
	return runCompose(ctx, req, out, "down")
}

func (e *DockerEngine) ComposePS(ctx context.Context, req ComposeRequest) ([]byte, error) {
	var buf bytes.Buffer
	if err := runCompose(ctx, req, &buf, "ps", "--format", "json"); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
