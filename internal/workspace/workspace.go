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

// Package workspace resolves the canonical workspace root (the absolute,
// symlink-resolved path) and computes the container-identity fingerprint
// used as a reconcile label and state-manager key (spec §4.6).
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v6"
)

// Resolve returns the absolute, symlink-resolved path for path (the
// absolute path as is when it does not exist). It opens the enclosing git
// repository with go-git when there is one, but the result does not depend
// on it: a worktree's `.git` indirection is not followed, so two worktrees
// of one repository resolve to their own directories.
func Resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return abs, nil
		}
		return "", err
	}

	if _, err := git.PlainOpenWithOptions(real, &git.PlainOpenOptions{DetectDotGit: true}); err != nil {
		// Not a git repository (or no git installed metadata); the
		// filesystem path itself is the canonical workspace root.
		return real, nil
	}
	return real, nil
}

// Fingerprint computes the stable identity hash over the canonical
// workspace path and the canonical (merged, substituted) config content,
// used as the container label and state-manager key (spec §4.6).
func Fingerprint(canonicalWorkspacePath string, canonicalConfigContent []byte) string {
	h := sha256.New()
	h.Write([]byte(canonicalWorkspacePath))
	h.Write([]byte{0})
	h.Write(canonicalConfigContent)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
