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

// Package state persists WorkspaceState records keyed by workspace hash
// under <XDG data home>/state (spec §4.12). Up writes a record when it
// creates a container and down --remove deletes it; nothing in this module
// reads records back, so reconcile and teardown rely on container labels.
package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/OpenPeeDeeP/xdg"
)

const vendorName = "deacon"
const appName = "deacon"

var dirs = xdg.New(vendorName, appName)

// WorkspaceState is the record kept for a devcontainer instance between
// `up` and `down` (spec §3.1, §4.12).
type WorkspaceState struct {
	ContainerID     string            `json:"containerId"`
	WorkspaceFolder string            `json:"workspaceFolder"`
	ConfigHash      string            `json:"configHash"`
	ComposeProject  string            `json:"composeProject,omitempty"`
	Labels          map[string]string `json:"labels,omitempty"`
}

// Manager persists WorkspaceState to one JSON file per workspace hash.
type Manager struct {
	dir string
}

// NewManager opens the state directory, creating it if necessary.
func NewManager() (*Manager, error) {
	return NewManagerAt(filepath.Join(dirs.DataHome(), "state"))
}

// NewManagerAt opens a state directory rooted at dir instead of the XDG
// default, creating it if necessary. Used directly by tests.
func NewManagerAt(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Manager{dir: dir}, nil
}

func (m *Manager) path(hash string) string {
	return filepath.Join(m.dir, hash+".json")
}

// Get returns the persisted state for hash, or (nil, nil) if absent.
func (m *Manager) Get(hash string) (*WorkspaceState, error) {
	data, err := os.ReadFile(m.path(hash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var s WorkspaceState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Put persists state for hash, overwriting any prior record.
func (m *Manager) Put(hash string, s *WorkspaceState) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path(hash), data, 0o644)
}

// Remove deletes the persisted state for hash, if any.
func (m *Manager) Remove(hash string) error {
	err := os.Remove(m.path(hash))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
