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

// Package usermap resolves containerUser/remoteUser forms and, when
// updateRemoteUserUID is set, reconciles the in-container user's UID/GID
// with the host user so bind-mounted files keep sane ownership.
package usermap

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/get2knowio/deacon/internal/runtime"
)

// Info mirrors one /etc/passwd row for the user of interest.
type Info struct {
	Username string
	UID      int
	GID      int
	HomeDir  string
	Shell    string
}

// ParsePasswdLine parses a single colon-delimited /etc/passwd row.
func ParsePasswdLine(line string) (Info, bool) {
	parts := strings.Split(line, ":")
	if len(parts) < 7 {
		return Info{}, false
	}
	uid, err := strconv.Atoi(parts[2])
	if err != nil {
		return Info{}, false
	}
	gid, err := strconv.Atoi(parts[3])
	if err != nil {
		return Info{}, false
	}
	return Info{Username: parts[0], UID: uid, GID: gid, HomeDir: parts[5], Shell: parts[6]}, true
}

// ParseContainerUser splits the three accepted containerUser/remoteUser
// forms: a bare name, a numeric uid, or a "uid:gid" pair.
func ParseContainerUser(raw string) (name string, uid, gid *int) {
	if raw == "" {
		return "", nil, nil
	}
	if strings.Contains(raw, ":") {
		parts := strings.SplitN(raw, ":", 2)
		u, uerr := strconv.Atoi(parts[0])
		g, gerr := strconv.Atoi(parts[1])
		if uerr == nil && gerr == nil {
			return "", &u, &g
		}
		return raw, nil, nil
	}
	if u, err := strconv.Atoi(raw); err == nil {
		return "", &u, nil
	}
	return raw, nil, nil
}

// Mapper reconciles in-container user identity against the host, driving
// the exec calls through a runtime.Engine.
type Mapper struct {
	Engine runtime.Engine
}

func (m *Mapper) exec(ctx context.Context, containerID string, args []string) (string, error) {
	res, err := m.Engine.Exec(ctx, containerID, args, runtime.ExecOptions{})
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("command %v exited %d: %s", args, res.ExitCode, string(res.Stderr))
	}
	return string(res.Stdout), nil
}

// GetUserInfo looks up username in the container's /etc/passwd, preferring
// getent (not every base image ships it) and falling back to a raw read.
func (m *Mapper) GetUserInfo(ctx context.Context, containerID, username string) (*Info, error) {
	out, err := m.exec(ctx, containerID, []string{"getent", "passwd", username})
	if err != nil {
		out, err = m.exec(ctx, containerID, []string{"cat", "/etc/passwd"})
		if err != nil {
			return nil, err
		}
	}
	for _, line := range strings.Split(out, "\n") {
		info, ok := ParsePasswdLine(strings.TrimSpace(line))
		if ok && info.Username == username {
			return &info, nil
		}
	}
	return nil, nil
}

// IsRoot reports whether the container's default exec user is uid 0.
func (m *Mapper) IsRoot(ctx context.Context, containerID string) (bool, error) {
	out, err := m.exec(ctx, containerID, []string{"id", "-u"})
	if err != nil {
		return false, err
	}
	uid, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return false, nil
	}
	return uid == 0, nil
}

// UpdateUserUID implements updateRemoteUserUID: usermod the named user to
// newUID/newGID, requiring root in the container.
func (m *Mapper) UpdateUserUID(ctx context.Context, containerID, username string, newUID, newGID int) error {
	isRoot, err := m.IsRoot(ctx, containerID)
	if err != nil {
		return err
	}
	if !isRoot {
		return fmt.Errorf("insufficient permissions to update user %q: container must run as root", username)
	}
	_, err = m.exec(ctx, containerID, []string{
		"usermod", "-u", strconv.Itoa(newUID), "-g", strconv.Itoa(newGID), username,
	})
	return err
}

// SetWorkspaceOwnership chowns workspacePath recursively to uid:gid.
func (m *Mapper) SetWorkspaceOwnership(ctx context.Context, containerID, workspacePath string, uid, gid int) error {
	_, err := m.exec(ctx, containerID, []string{
		"chown", "-R", fmt.Sprintf("%d:%d", uid, gid), workspacePath,
	})
	return err
}
