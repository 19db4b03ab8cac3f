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
	"os/exec"

	"github.com/get2knowio/deacon/internal/lifecycle"
)

// LifecycleRunner adapts an Engine to lifecycle.Runner: RunOnHost shells
// out locally (only "initialize" runs here), RunInContainer execs inside
// ContainerID.
type LifecycleRunner struct {
	Engine      Engine
	ContainerID string
}

var _ lifecycle.Runner = (*LifecycleRunner)(nil)

func (r *LifecycleRunner) RunOnHost(ctx context.Context, env map[string]string, workdir string, shell bool, args []string) (lifecycle.CommandResult, error) {
	name, cmdArgs := splitCommand(shell, args)
	cmd := exec.CommandContext(ctx, name, cmdArgs...)
	cmd.Dir = workdir
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
		err = nil
	}
	return lifecycle.CommandResult{
		Args:     args,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, err
}

func (r *LifecycleRunner) RunInContainer(ctx context.Context, env map[string]string, workdir string, shell bool, args []string) (lifecycle.CommandResult, error) {
	execArgs := args
	if shell {
		execArgs = append([]string{"/bin/sh", "-c"}, args...)
	}
	res, err := r.Engine.Exec(ctx, r.ContainerID, execArgs, ExecOptions{
		WorkingDir: workdir,
		Env:        env,
	})
	if err != nil {
		return lifecycle.CommandResult{Args: args}, err
	}
	return lifecycle.CommandResult{
		Args:     args,
		Stdout:   string(res.Stdout),
		Stderr:   string(res.Stderr),
		ExitCode: res.ExitCode,
	}, nil
}

// splitCommand returns the host-exec (name, args) pair RunOnHost runs for a
// lifecycle "shell vs sequence" command value: /bin/sh -c for a shell
// string, the sequence's own argv otherwise. RunInContainer builds its argv
// itself.
func splitCommand(shell bool, args []string) (string, []string) {
	if shell {
		return "/bin/sh", append([]string{"-c"}, args...)
	}
	if len(args) == 0 {
		return "", nil
	}
	return args[0], args[1:]
}
