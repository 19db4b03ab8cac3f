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

package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// numberOrStringList handles the recurring JSON shape of AppPort/
// ForwardPorts: a bare scalar or an array of (string|number) scalars, all
// normalized to strings. Lifted from writ.AppPort/writ.ForwardPorts.
func numberOrStringList(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	var out []string
	switch v := raw.(type) {
	case []interface{}:
		for _, x := range v {
			s, err := scalarToString(x)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
	default:
		s, err := scalarToString(v)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func scalarToString(v interface{}) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return formatNumber(x), nil
	default:
		return "", fmt.Errorf("unsupported scalar type %T", v)
	}
}

func (a *AppPort) UnmarshalJSON(data []byte) error {
	v, err := numberOrStringList(data)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (f *ForwardPorts) UnmarshalJSON(data []byte) error {
	v, err := numberOrStringList(data)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func (s *StringOrArray) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var asArray []string
	if err := json.Unmarshal(data, &asArray); err == nil {
		*s = asArray
		return nil
	}
	var asString string
	if err := json.Unmarshal(data, &asString); err != nil {
		return err
	}
	*s = []string{asString}
	return nil
}

func (d *DockerComposeFile) UnmarshalJSON(data []byte) error {
	var s StringOrArray
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	*d = DockerComposeFile(s)
	return nil
}

// UnmarshalJSON for MobyMount accepts the full comma-separated form and
// the JSON-object form used by `devcontainer` readers; short-form and
// named-volume strings are left to internal/mount, which re-parses Raw.
func (m *MobyMount) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '{' {
		type alias MobyMount
		var a alias
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
		*m = MobyMount(a)
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Raw = raw
	if !strings.Contains(raw, "=") {
		// short-form or named-volume form, fully handled by internal/mount.
		return nil
	}
	for _, segment := range strings.Split(raw, ",") {
		kv := strings.SplitN(segment, "=", 2)
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		var val string
		if len(kv) == 2 {
			val = strings.TrimSpace(kv[1])
		}
		switch key {
		case "type":
			m.Type = strings.ToLower(val)
		case "source", "src":
			m.Source = val
		case "target", "dst", "destination":
			m.Target = val
		case "readonly", "ro":
			m.ReadOnly = val == "" || val == "true"
		case "consistency":
			m.Consistency = val
		default:
			if m.Options == nil {
				m.Options = make(map[string]string)
			}
			m.Options[key] = val
		}
	}
	return nil
}

// UnmarshalJSON for CommandBase: either a single shell string, or an
// ordered sequence of strings run without a shell.
func (c *CommandBase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Single = &s
		return nil
	}
	var seq []string
	if err := json.Unmarshal(data, &seq); err == nil {
		c.Sequence = seq
		return nil
	}
	return fmt.Errorf("command value must be a string or an array of strings")
}

// UnmarshalJSON for LifecycleCommand: null | string | [string] |
// {name -> string|[string]} (spec §9).
func (l *LifecycleCommand) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		return nil
	}
	if trimmed[0] == '{' {
		var m map[string]CommandBase
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		l.Parallel = m
		return nil
	}
	return l.CommandBase.UnmarshalJSON(data)
}

// UnmarshalJSON for FeatureMap preserves declaration order via a raw
// json.RawMessage pass so feature dependency tie-breaking (spec §4.4 step
// 6) is deterministic.
func (m *FeatureMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("features must be a JSON object")
	}

	m.values = make(map[string]FeatureOptionsMap)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("features keys must be strings")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		opts, err := parseFeatureOptions(raw)
		if err != nil {
			return fmt.Errorf("feature %q: %w", key, err)
		}
		m.keys = append(m.keys, key)
		m.values[key] = opts
	}
	return nil
}

func (m FeatureMap) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		b.Write(kb)
		b.WriteByte(':')
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		b.Write(vb)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// parseFeatureOptions handles the three shapes a feature's value may take:
// boolean/string shorthand, or an options object.
func parseFeatureOptions(raw json.RawMessage) (FeatureOptionsMap, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "{}" || trimmed == "" {
		return FeatureOptionsMap{}, nil
	}
	if trimmed[0] != '{' {
		var v OptionValue
		if err := v.UnmarshalJSON(raw); err != nil {
			return nil, err
		}
		return FeatureOptionsMap{"version": v}, nil
	}
	var m map[string]OptionValue
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return FeatureOptionsMap(m), nil
}

// UnmarshalJSON for OptionValue: bool | string | number | array | object |
// null (spec §9).
func (v *OptionValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		v.IsNull = true
		return nil
	case trimmed == "true" || trimmed == "false":
		b := trimmed == "true"
		v.Bool = &b
		return nil
	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v.String = &s
		return nil
	case len(trimmed) > 0 && trimmed[0] == '[':
		var arr []interface{}
		if err := json.Unmarshal(data, &arr); err != nil {
			return err
		}
		v.Array = arr
		return nil
	case len(trimmed) > 0 && trimmed[0] == '{':
		var obj map[string]interface{}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		v.Object = obj
		return nil
	default:
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return fmt.Errorf("invalid option value: %s", trimmed)
		}
		v.Number = &n
		return nil
	}
}

func (v OptionValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.IsNull:
		return []byte("null"), nil
	case v.Bool != nil:
		return json.Marshal(*v.Bool)
	case v.String != nil:
		return json.Marshal(*v.String)
	case v.Number != nil:
		return json.Marshal(*v.Number)
	case v.Array != nil:
		return json.Marshal(v.Array)
	case v.Object != nil:
		return json.Marshal(v.Object)
	default:
		return []byte("null"), nil
	}
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// sortedKeys returns m's keys in ascending order. The lockfile writer does
// not call it; it relies on encoding/json's own sorted map keys.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
