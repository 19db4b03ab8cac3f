// Package substitute implements the deacon variable substitution engine
// (spec §4.1): it resolves ${...} references inside a devcontainer.json
// document against workspace paths, the host environment, the merged
// container environment, and a deterministic devcontainerId fingerprint.
//
// writ.DevcontainerParser.ExpandEnv leans on mvdan.cc/sh/v3/shell.Expand,
// but that helper speaks POSIX parameter-expansion syntax (${NAME:-default},
// ${NAME:=default}); devcontainer.json's ${localEnv:NAME:default} syntax
// isn't POSIX shape, so this engine parses it directly instead of bending
// shell.Expand to a grammar it wasn't built for. It adds multi-pass
// resolution, cycle detection, and a SubstitutionReport on top, none of
// which the single-pass teacher implementation needed.
package substitute

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Mode controls behavior when an unknown variable is encountered.
type Mode int

const (
	// Lenient leaves unknown variables textually unchanged and records them
	// in the report. This is the default.
	Lenient Mode = iota
	// Strict fails fast on any unknown variable.
	Strict
)

// DefaultMaxDepth is the default number of resolution passes.
const DefaultMaxDepth = 5

// Context supplies the values the engine resolves variables against.
type Context struct {
	LocalWorkspaceFolder     string
	ContainerWorkspaceFolder string
	// ContainerEnv is the merged containerEnv+remoteEnv table; resolved
	// once the up orchestrator knows it. May be nil earlier in the pipeline,
	// in which case ${containerEnv:*} is treated as unknown.
	ContainerEnv map[string]string
	// IDLabels contribute to the devcontainerId fingerprint; order does not
	// affect the result (sorted before hashing, invariant 1 in spec §8).
	IDLabels []string
	// LocalEnv overrides os.LookupEnv for ${localEnv:*}; if nil, the real
	// process environment is used.
	LocalEnv map[string]string

	Mode     Mode
	MaxDepth int
	// Nested disables/enables resolving a variable whose replacement value
	// itself contains a variable reference. New does not change it; the
	// config substitute command sets it to true unless --nested is false.
	Nested bool
}

// Report is the SubstitutionReport from spec §4.1.
type Report struct {
	Replacements     map[string]string
	UnknownVariables []string
	CycleWarnings    []string
	FailedVariables  []string
	Passes           int
}

// CycleError is returned in Strict mode when a cyclic reference is detected.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic variable reference: %s", strings.Join(e.Chain, " -> "))
}

// UnknownVariableError is returned in Strict mode for any unresolved ${...}.
type UnknownVariableError struct {
	Name string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable: %s", e.Name)
}

var varPattern = regexp.MustCompile(`\$\{([a-zA-Z0-9_.:/-]+)\}`)

// Engine resolves variables against a fixed Context, tracking a
// SubstitutionReport across the whole walk of a config document.
type Engine struct {
	ctx    Context
	report Report
	// resolving tracks variable names currently being expanded, to detect
	// self-reference cycles across nested resolution.
	resolving map[string]bool
}

// New returns an Engine for ctx, filling in the MaxDepth default; Nested is
// used as given.
func New(ctx Context) *Engine {
	if ctx.MaxDepth <= 0 {
		ctx.MaxDepth = DefaultMaxDepth
	}
	return &Engine{
		ctx: ctx,
		report: Report{
			Replacements: make(map[string]string),
		},
		resolving: make(map[string]bool),
	}
}

// Report returns the accumulated SubstitutionReport.
func (e *Engine) Report() Report { return e.report }

// SubstituteString resolves every ${...} in s, running up to MaxDepth
// passes, each pass resolving one variable depth, as required when Nested
// is true (the value of one variable may contain another reference).
func (e *Engine) SubstituteString(s string) (string, error) {
	out := s
	passes := 0
	for passes < e.ctx.MaxDepth {
		passes++
		next, changed, err := e.substitutePass(out)
		if err != nil {
			return "", err
		}
		out = next
		if !changed || !e.ctx.Nested {
			break
		}
	}
	if e.report.Passes < passes {
		e.report.Passes = passes
	}
	return out, nil
}

func (e *Engine) substitutePass(s string) (string, bool, error) {
	changed := false
	var firstErr error
	result := varPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		name := varPattern.FindStringSubmatch(match)[1]
		if e.resolving[name] {
			chain := append(e.cycleChain(), name)
			e.report.CycleWarnings = append(e.report.CycleWarnings, strings.Join(chain, " -> "))
			if e.ctx.Mode == Strict {
				firstErr = &CycleError{Chain: chain}
			}
			return match
		}
		val, ok, err := e.resolveOne(name)
		if err != nil {
			firstErr = err
			return match
		}
		if !ok {
			e.report.UnknownVariables = appendUnique(e.report.UnknownVariables, name)
			if e.ctx.Mode == Strict {
				firstErr = &UnknownVariableError{Name: name}
			}
			return match
		}
		e.report.Replacements[match] = val
		changed = true
		return val
	})
	if firstErr != nil {
		return "", false, firstErr
	}
	return result, changed, nil
}

func (e *Engine) cycleChain() []string {
	chain := make([]string, 0, len(e.resolving))
	for k := range e.resolving {
		chain = append(chain, k)
	}
	sort.Strings(chain)
	return chain
}

func (e *Engine) resolveOne(name string) (string, bool, error) {
	e.resolving[name] = true
	defer delete(e.resolving, name)

	switch {
	case name == "localWorkspaceFolder":
		return e.ctx.LocalWorkspaceFolder, e.ctx.LocalWorkspaceFolder != "", nil
	case name == "localWorkspaceFolderBasename":
		return baseName(e.ctx.LocalWorkspaceFolder), e.ctx.LocalWorkspaceFolder != "", nil
	case name == "containerWorkspaceFolder":
		return e.ctx.ContainerWorkspaceFolder, e.ctx.ContainerWorkspaceFolder != "", nil
	case name == "containerWorkspaceFolderBasename":
		return baseName(e.ctx.ContainerWorkspaceFolder), e.ctx.ContainerWorkspaceFolder != "", nil
	case name == "devcontainerId":
		return e.devcontainerID(), true, nil
	case strings.HasPrefix(name, "localEnv:"):
		return e.resolveLocalEnv(strings.TrimPrefix(name, "localEnv:"))
	case strings.HasPrefix(name, "containerEnv:"):
		envName := strings.TrimPrefix(name, "containerEnv:")
		val, ok := e.ctx.ContainerEnv[envName]
		return val, ok, nil
	default:
		return "", false, nil
	}
}

func (e *Engine) resolveLocalEnv(rest string) (string, bool, error) {
	name, def, hasDefault := strings.Cut(rest, ":")
	var val string
	var ok bool
	if e.ctx.LocalEnv != nil {
		val, ok = e.ctx.LocalEnv[name]
	} else {
		val, ok = os.LookupEnv(name)
	}
	if ok {
		return val, true, nil
	}
	if hasDefault {
		return def, true, nil
	}
	return "", false, nil
}

// devcontainerID computes a deterministic fingerprint over the workspace
// path and the sorted set of id-labels (invariant 1 in spec §8: the result
// must not depend on label input order).
func (e *Engine) devcontainerID() string {
	labels := append([]string(nil), e.ctx.IDLabels...)
	sort.Strings(labels)
	h := sha256.New()
	h.Write([]byte(e.ctx.LocalWorkspaceFolder))
	for _, l := range labels {
		h.Write([]byte{0})
		h.Write([]byte(l))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func baseName(p string) string {
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
