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

// Package config houses the DevContainerConfig entity, its JSONC/schema
// parser, the extends/override merger, and the lockfile model (spec §3.1,
// §4.2).
package config

// DevContainerConfig represents the effective contents of a
// devcontainer.json document after parsing but before variable
// substitution and extends/override merging have been applied.
type DevContainerConfig struct {
	Schema *string `json:"$schema,omitempty"`
	Name   *string `json:"name,omitempty"`

	// Exactly one of Image / DockerFile / Build / DockerComposeFile selects
	// the container source (spec §3.1 invariant).
	Image             *string            `json:"image,omitempty"`
	DockerFile        *string            `json:"dockerFile,omitempty"`
	Context           *string            `json:"context,omitempty"`
	Build             *BuildOptions      `json:"build,omitempty"`
	DockerComposeFile *DockerComposeFile `json:"dockerComposeFile,omitempty"`
	Service           *string            `json:"service,omitempty"`
	RunServices       []string           `json:"runServices,omitempty"`

	// Extends is resolved and stripped by the merger (spec §4.2); it never
	// survives into the final merged config.
	Extends *StringOrArray `json:"extends,omitempty"`

	WorkspaceFolder *string `json:"workspaceFolder,omitempty"`
	WorkspaceMount  *string `json:"workspaceMount,omitempty"`

	Mounts []*MobyMount `json:"mounts,omitempty"`

	ContainerEnv map[string]string  `json:"containerEnv,omitempty"`
	RemoteEnv    map[string]*string `json:"remoteEnv,omitempty"`

	ContainerUser       *string `json:"containerUser,omitempty"`
	RemoteUser          *string `json:"remoteUser,omitempty"`
	UpdateRemoteUserUID *bool   `json:"updateRemoteUserUID,omitempty"`

	ForwardPorts         ForwardPorts              `json:"forwardPorts,omitempty"`
	AppPort              AppPort                   `json:"appPort,omitempty"`
	PortsAttributes      map[string]PortAttributes `json:"portsAttributes,omitempty"`
	OtherPortsAttributes *PortAttributes           `json:"otherPortsAttributes,omitempty"`

	RunArgs        []string        `json:"runArgs,omitempty"`
	ShutdownAction *ShutdownAction `json:"shutdownAction,omitempty"`
	OverrideCommand *bool          `json:"overrideCommand,omitempty"`

	InitializeCommand    *LifecycleCommand `json:"initializeCommand,omitempty"`
	OnCreateCommand      *LifecycleCommand `json:"onCreateCommand,omitempty"`
	UpdateContentCommand *LifecycleCommand `json:"updateContentCommand,omitempty"`
	PostCreateCommand    *LifecycleCommand `json:"postCreateCommand,omitempty"`
	PostStartCommand     *LifecycleCommand `json:"postStartCommand,omitempty"`
	PostAttachCommand    *LifecycleCommand `json:"postAttachCommand,omitempty"`

	Privileged  *bool    `json:"privileged,omitempty"`
	CapAdd      []string `json:"capAdd,omitempty"`
	SecurityOpt []string `json:"securityOpt,omitempty"`

	Features                    FeatureMap             `json:"features,omitempty"`
	OverrideFeatureInstallOrder []string               `json:"overrideFeatureInstallOrder,omitempty"`
	Customizations              map[string]interface{} `json:"customizations,omitempty"`

	HostRequirements *HostRequirements `json:"hostRequirements,omitempty"`

	// sourcePath is the absolute path this document was loaded from; not
	// serialized, used by the merger to resolve relative extends/mounts.
	sourcePath string `json:"-"`
}

// SourcePath returns the absolute path the document was parsed from.
func (c *DevContainerConfig) SourcePath() string { return c.sourcePath }

// SetSourcePath records where the document was loaded from.
func (c *DevContainerConfig) SetSourcePath(p string) { c.sourcePath = p }

// BuildOptions are the Docker build-related options (spec §4.5 surfaces
// CacheFrom/CacheTo/Builder/NoCache as BuildKit CLI arguments).
type BuildOptions struct {
	Context    *string           `json:"context,omitempty"`
	Dockerfile *string           `json:"dockerfile,omitempty"`
	Args       map[string]string `json:"args,omitempty"`
	Target     *string           `json:"target,omitempty"`
	CacheFrom  *StringOrArray    `json:"cacheFrom,omitempty"`
	CacheTo    *StringOrArray    `json:"cacheTo,omitempty"`
	Builder    *string           `json:"builder,omitempty"`
	NoCache    *bool             `json:"noCache,omitempty"`
	Options    []string          `json:"options,omitempty"`
}

// DockerComposeFile is a single path or an ordered list of compose file
// paths.
type DockerComposeFile []string

// FeatureMap preserves JSON object key insertion order, which defines the
// tie-breaking order for dependency resolution (spec §3.1, §4.4). Plain Go
// maps don't preserve order, so this is backed by a parallel key slice
// populated during UnmarshalJSON.
type FeatureMap struct {
	keys   []string
	values map[string]FeatureOptionsMap
}

// Keys returns feature references in declaration order.
func (m FeatureMap) Keys() []string { return m.keys }

// Get returns the options for a declared feature reference.
func (m FeatureMap) Get(ref string) (FeatureOptionsMap, bool) {
	v, ok := m.values[ref]
	return v, ok
}

// Len reports the number of declared features.
func (m FeatureMap) Len() int { return len(m.keys) }

// FeatureOptionsMap maps an option name to its declared value.
type FeatureOptionsMap map[string]OptionValue

// HostRequirements describe hardware requirements of the devcontainer.
type HostRequirements struct {
	CPUs    *int64  `json:"cpus,omitempty"`
	Memory  *string `json:"memory,omitempty"`
	Storage *string `json:"storage,omitempty"`
	GPU     *GPU    `json:"gpu,omitempty"`
}

// GPU models the polymorphic hostRequirements.gpu field: boolean, the
// literal "optional", or a detailed class.
type GPU struct {
	Bool     *bool
	Optional bool
	Class    *GPUClass
}

// GPUClass is the detailed form of hostRequirements.gpu.
type GPUClass struct {
	Cores  *int64  `json:"cores,omitempty"`
	Memory *string `json:"memory,omitempty"`
}

// PortAttributes is per-port configuration under portsAttributes /
// otherPortsAttributes.
type PortAttributes struct {
	Label            *string        `json:"label,omitempty"`
	OnAutoForward    *OnAutoForward `json:"onAutoForward,omitempty"`
	Protocol         *Protocol      `json:"protocol,omitempty"`
	ElevateIfNeeded  *bool          `json:"elevateIfNeeded,omitempty"`
	RequireLocalPort *bool          `json:"requireLocalPort,omitempty"`
}

type OnAutoForward string

const (
	OnAutoForwardIgnore      OnAutoForward = "ignore"
	OnAutoForwardNotify      OnAutoForward = "notify"
	OnAutoForwardOpenBrowser OnAutoForward = "openBrowser"
	OnAutoForwardOpenPreview OnAutoForward = "openPreview"
	OnAutoForwardSilent      OnAutoForward = "silent"
)

type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
	ProtocolTCP   Protocol = "tcp"
)

type ShutdownAction string

const (
	ShutdownActionNone          ShutdownAction = "none"
	ShutdownActionStopContainer ShutdownAction = "stopContainer"
	ShutdownActionStopCompose   ShutdownAction = "stopCompose"
	ShutdownActionRemoveContainer ShutdownAction = "removeContainer"
)

// AppPort and ForwardPorts accept either a bare number or a string; both
// are normalized to strings (matching writ.AppPort/ForwardPorts).
type AppPort []string
type ForwardPorts []string

// StringOrArray accepts either a bare string or an array of strings.
type StringOrArray []string

// MobyMount is the engine-neutral mount descriptor parsed from one of the
// three mount syntaxes (spec §4.7); populated fully by internal/mount, but
// declared here because it's a DevContainerConfig field.
type MobyMount struct {
	Type        string            `json:"type,omitempty"`
	Source      string            `json:"source,omitempty"`
	Target      string            `json:"target,omitempty"`
	ReadOnly    bool              `json:"readonly,omitempty"`
	Consistency string            `json:"consistency,omitempty"`
	Options     map[string]string `json:"-"`
	// Raw holds the original string form when the mount was declared using
	// the short or named-volume syntax, for round-trip fidelity.
	Raw string `json:"-"`
}

// CommandBase is either a single shell string or an ordered sequence run
// without a shell.
type CommandBase struct {
	Single   *string
	Sequence []string
}

// Empty reports whether the command carries no content at all.
func (c *CommandBase) Empty() bool {
	return c == nil || (c.Single == nil && len(c.Sequence) == 0)
}

// LifecycleCommand is the tagged variant from spec §9: Empty | Single |
// Sequence | Parallel(name -> CommandBase).
type LifecycleCommand struct {
	CommandBase
	Parallel map[string]CommandBase
}

// Empty reports whether the lifecycle field was entirely absent or
// resolved to no-op content (null, "", [], {}) per spec §4.10 aggregation
// filtering.
func (l *LifecycleCommand) Empty() bool {
	if l == nil {
		return true
	}
	if l.Parallel != nil {
		return len(l.Parallel) == 0
	}
	return l.CommandBase.Empty()
}

// OptionValue is the polymorphic feature-option/value type from spec §9:
// bool | string | number | array | object | null.
type OptionValue struct {
	Bool   *bool
	String *string
	Number *float64
	Array  []interface{}
	Object map[string]interface{}
	IsNull bool
}

// ToEnvString implements the option-to-env mapping from spec §4.5: arrays
// and objects serialize as JSON, null becomes "", booleans become
// true/false, numbers become their decimal representation.
func (v OptionValue) ToEnvString() string {
	switch {
	case v.IsNull:
		return ""
	case v.Bool != nil:
		if *v.Bool {
			return "true"
		}
		return "false"
	case v.String != nil:
		return *v.String
	case v.Number != nil:
		return formatNumber(*v.Number)
	case v.Array != nil:
		return mustJSON(v.Array)
	case v.Object != nil:
		return mustJSON(v.Object)
	default:
		return ""
	}
}
