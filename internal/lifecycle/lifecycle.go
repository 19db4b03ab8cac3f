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

// Package lifecycle implements the lifecycle executor (spec §4.10):
// running initializeCommand/onCreateCommand/updateContentCommand/
// postCreateCommand/postStartCommand/postAttachCommand in order, with
// feature commands prepended to the config command per phase, and
// redacted streaming logs. Generalizes brig's lifecycleHandler
// (internal/brig/lifecycle.go), which ran the same phases over a
// channel-driven state machine against a single trill client.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/get2knowio/deacon/internal/feature"
	"github.com/get2knowio/deacon/internal/redact"
)

// Phase names the six lifecycle phases, in strict execution order.
type Phase string

const (
	PhaseInitialize     Phase = "initialize"
	PhaseOnCreate       Phase = "onCreate"
	PhaseUpdateContent  Phase = "updateContent"
	PhasePostCreate     Phase = "postCreate"
	PhasePostStart      Phase = "postStart"
	PhasePostAttach     Phase = "postAttach"
)

// Order lists every phase in the order the executor must run them.
var Order = []Phase{PhaseInitialize, PhaseOnCreate, PhaseUpdateContent, PhasePostCreate, PhasePostStart, PhasePostAttach}

// nonBlocking phases don't block `up`'s return when Executor.NonBlocking is
// set; the executor then logs that they run asynchronously.
var nonBlocking = map[Phase]bool{PhasePostStart: true, PhasePostAttach: true}

// RunsOnHost reports whether phase executes on the host rather than inside
// the target container (only "initialize" does, per spec §4.10).
func (p Phase) RunsOnHost() bool { return p == PhaseInitialize }

// CommandResult is one executed shell invocation's outcome.
type CommandResult struct {
	Args     []string
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a single command either on the host or inside the
// target container; implementations live in internal/runtime.
type Runner interface {
	RunOnHost(ctx context.Context, env map[string]string, workdir string, shell bool, args []string) (CommandResult, error)
	RunInContainer(ctx context.Context, env map[string]string, workdir string, shell bool, args []string) (CommandResult, error)
}

// UnitResult is the outcome of one sub-command (a bare invocation, or one
// entry of a parallel map).
type UnitResult struct {
	Label  string
	Result CommandResult
	Err    error
}

// PhaseResult aggregates every unit run for a phase.
type PhaseResult struct {
	Phase   Phase
	Async   bool
	Units   []UnitResult
	FailErr error
}

// block is one command contributor to a phase: a feature's own command, or
// the top-level config command, executed strictly after every earlier
// block (spec §4.10 "Aggregation").
type block struct {
	source string
	lc     *config.LifecycleCommand
}

// Executor runs lifecycle phases against a Runner, redacting output
// through registry before logging it.
type Executor struct {
	Runner      Runner
	Redactor    *redact.Registry
	Env         map[string]string
	Workdir     string
	NonBlocking bool // if true, postStart/postAttach are launched and not awaited
}

// NewExecutor builds an Executor.
func NewExecutor(runner Runner, redactor *redact.Registry, env map[string]string, workdir string) *Executor {
	if redactor == nil {
		redactor = redact.NewRegistry()
	}
	return &Executor{Runner: runner, Redactor: redactor, Env: env, Workdir: workdir, NonBlocking: true}
}

// featureCommand selects a resolved feature's lifecycle command field for
// phase; features only ever expose onCreate/updateContent/postCreate/
// postStart/postAttach (spec §3.1 ResolvedFeature.metadata).
func featureCommand(r *feature.Resolved, phase Phase) *config.LifecycleCommand {
	switch phase {
	case PhaseOnCreate:
		return r.Metadata.OnCreateCommand
	case PhaseUpdateContent:
		return r.Metadata.UpdateContentCommand
	case PhasePostCreate:
		return r.Metadata.PostCreateCommand
	case PhasePostStart:
		return r.Metadata.PostStartCommand
	case PhasePostAttach:
		return r.Metadata.PostAttachCommand
	default:
		return nil
	}
}

// configCommand selects the root config's lifecycle command field for
// phase.
func configCommand(cfg *config.DevContainerConfig, phase Phase) *config.LifecycleCommand {
	switch phase {
	case PhaseInitialize:
		return cfg.InitializeCommand
	case PhaseOnCreate:
		return cfg.OnCreateCommand
	case PhaseUpdateContent:
		return cfg.UpdateContentCommand
	case PhasePostCreate:
		return cfg.PostCreateCommand
	case PhasePostStart:
		return cfg.PostStartCommand
	case PhasePostAttach:
		return cfg.PostAttachCommand
	default:
		return nil
	}
}

// buildBlocks aggregates, in plan order, every feature's non-empty command
// for phase, then the config's own command last (spec §4.10 Aggregation).
func buildBlocks(cfg *config.DevContainerConfig, plan *feature.InstallationPlan, phase Phase) []block {
	var blocks []block
	if plan != nil {
		for _, r := range plan.Features {
			if lc := featureCommand(r, phase); lc != nil && !lc.Empty() {
				blocks = append(blocks, block{source: r.ID, lc: lc})
			}
		}
	}
	if lc := configCommand(cfg, phase); lc != nil && !lc.Empty() {
		blocks = append(blocks, block{source: "config", lc: lc})
	}
	return blocks
}

// RunPhase executes every block for phase in order; a parallel block's
// sub-commands run concurrently with each other but the block as a whole
// still sits in sequence relative to adjacent blocks.
func (e *Executor) RunPhase(ctx context.Context, cfg *config.DevContainerConfig, plan *feature.InstallationPlan, phase Phase) *PhaseResult {
	result := &PhaseResult{Phase: phase}

	run := func() {
		for _, b := range buildBlocks(cfg, plan, phase) {
			units := e.runBlock(ctx, phase, b)
			result.Units = append(result.Units, units...)
			for _, u := range units {
				if u.Err != nil {
					result.FailErr = fmt.Errorf("phase %s: command %v from %s: %w", phase, u.Result.Args, b.source, u.Err)
					return
				}
			}
		}
	}

	if nonBlocking[phase] && e.NonBlocking {
		result.Async = true
		go func() {
			run()
			if result.FailErr != nil {
				slog.Error("non-blocking lifecycle phase failed", "phase", phase, "error", e.Redactor.Redact(result.FailErr.Error()))
			}
		}()
		slog.Info("running non-blocking lifecycle phase asynchronously", "phase", phase)
		return result
	}

	run()
	return result
}

func (e *Executor) runBlock(ctx context.Context, phase Phase, b block) []UnitResult {
	switch {
	case b.lc.Parallel != nil:
		var wg sync.WaitGroup
		results := make([]UnitResult, len(b.lc.Parallel))
		i := 0
		for name, cb := range b.lc.Parallel {
			idx := i
			i++
			wg.Add(1)
			go func(name string, cb config.CommandBase) {
				defer wg.Done()
				results[idx] = e.runUnit(ctx, phase, name, cb)
			}(name, cb)
		}
		wg.Wait()
		return results

	default:
		return []UnitResult{e.runUnit(ctx, phase, "", b.lc.CommandBase)}
	}
}

func (e *Executor) runUnit(ctx context.Context, phase Phase, label string, cb config.CommandBase) UnitResult {
	shell := cb.Single != nil
	args := cb.Sequence
	if shell {
		args = []string{*cb.Single}
	}

	logger := slog.With("phase", phase, "label", label)
	var res CommandResult
	var err error
	if phase.RunsOnHost() {
		res, err = e.Runner.RunOnHost(ctx, e.Env, e.Workdir, shell, args)
	} else {
		res, err = e.Runner.RunInContainer(ctx, e.Env, e.Workdir, shell, args)
	}

	if res.Stdout != "" {
		logger.Info(e.Redactor.Redact(res.Stdout))
	}
	if res.Stderr != "" {
		logger.Info(e.Redactor.Redact(res.Stderr))
	}
	if err == nil && res.ExitCode != 0 {
		err = fmt.Errorf("exit code %d", res.ExitCode)
	}
	if err != nil {
		logger.Error("lifecycle command failed", "error", e.Redactor.Redact(err.Error()))
	}
	return UnitResult{Label: label, Result: res, Err: err}
}
