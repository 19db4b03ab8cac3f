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

// Package ports emits PortEvent records for every configured port the
// runtime reports as exposed or mapped (spec §3.1 "PortEvent", §8 S4).
package ports

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/get2knowio/deacon/internal/redact"
)

// Event is the PortEvent entity from spec §3.1.
type Event struct {
	Port             int     `json:"port"`
	Protocol         string  `json:"protocol"`
	Label            *string `json:"label,omitempty"`
	OnAutoForward    *string `json:"onAutoForward,omitempty"`
	AutoForwarded    bool    `json:"autoForwarded"`
	LocalPort        *int    `json:"localPort,omitempty"`
	HostIP           *string `json:"hostIp,omitempty"`
	Description      *string `json:"description,omitempty"`
	OpenPreview      *bool   `json:"openPreview,omitempty"`
	RequireLocalPort *bool   `json:"requireLocalPort,omitempty"`
}

// Reported is one port the runtime actually exposed or mapped, supplied by
// the runtime/container-inspection layer.
type Reported struct {
	Port      int
	Protocol  string
	LocalPort int
	HostIP    string
}

// Build derives PortEvents for every reported port, decorating each with
// its matching portsAttributes/otherPortsAttributes entry when present,
// and returns them sorted by port number ascending (spec §3.1, §8 S4).
func Build(cfg *config.DevContainerConfig, reported []Reported) []Event {
	events := make([]Event, 0, len(reported))
	for _, rp := range reported {
		ev := Event{
			Port:          rp.Port,
			Protocol:      defaultProtocol(rp.Protocol),
			AutoForwarded: true,
		}
		if rp.LocalPort != 0 {
			lp := rp.LocalPort
			ev.LocalPort = &lp
		}
		if rp.HostIP != "" {
			h := rp.HostIP
			ev.HostIP = &h
		}
		attrs := attributesFor(cfg, rp.Port)
		if attrs != nil {
			ev.Label = attrs.Label
			if attrs.OnAutoForward != nil {
				s := string(*attrs.OnAutoForward)
				ev.OnAutoForward = &s
			}
			ev.RequireLocalPort = attrs.RequireLocalPort
		}
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Port < events[j].Port })
	return events
}

func attributesFor(cfg *config.DevContainerConfig, port int) *config.PortAttributes {
	if cfg == nil {
		return nil
	}
	key := strconv.Itoa(port)
	if a, ok := cfg.PortsAttributes[key]; ok {
		return &a
	}
	return cfg.OtherPortsAttributes
}

func defaultProtocol(p string) string {
	if p == "" {
		return "tcp"
	}
	return p
}

// Emit writes one redacted "PORT_EVENT: <json>" line per event to w, the
// wire format scenario S4 exercises.
func Emit(w io.Writer, redactor *redact.Registry, events []Event) error {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		line := "PORT_EVENT: " + string(data)
		if redactor != nil {
			line = redactor.Redact(line)
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, "\n")); err != nil {
			return err
		}
	}
	return nil
}
