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

// Package ociclient implements the OCI client + cache component (spec
// §4.3): pull/push of feature & template artifacts, manifest-by-digest,
// tag listing with Link-header pagination, and a content-addressed local
// cache.
//
// Cache-root resolution uses github.com/OpenPeeDeeP/xdg, replacing the
// teacher's hand-rolled getCacheDirectoryBase prefix scan
// (internal/brig/cachedirectory.go) with the pack's standard XDG
// base-directory resolver (see jesseduffield-lazydocker's go.mod).
package ociclient

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/OpenPeeDeeP/xdg"
	"github.com/gocarina/gocsv"
)

const vendorName = "deacon"
const appName = "deacon"

var dirs = xdg.New(vendorName, appName)

// Cache is a content-addressed directory of extracted feature/template
// artifacts, keyed by manifest digest (spec §3.1, §4.3 "no TTL, immutable
// by digest").
type Cache struct {
	root   string
	digest *digestLedger
}

// digestLedgerEntry records the last digest observed for a canonical
// reference, accelerating "is this still fresh" checks ahead of a full
// directory scan — the CSV ledger brig.ArtifactDigest already keeps.
type digestLedgerEntry struct {
	Ref    string `csv:"ref"`
	Digest string `csv:"digest"`
}

type digestLedger struct {
	path    string
	entries map[string]string
}

func loadDigestLedger(path string) (*digestLedger, error) {
	ledger := &digestLedger{path: path, entries: make(map[string]string)}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []*digestLedgerEntry
	if err := gocsv.UnmarshalFile(f, &rows); err != nil && !errors.Is(err, gocsv.ErrEmptyCSVFile) {
		return nil, err
	}
	for _, row := range rows {
		ledger.entries[row.Ref] = row.Digest
	}
	return ledger, nil
}

func (l *digestLedger) save() error {
	rows := make([]*digestLedgerEntry, 0, len(l.entries))
	for ref, digest := range l.entries {
		rows = append(rows, &digestLedgerEntry{Ref: ref, Digest: digest})
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.MarshalFile(&rows, f)
}

// NewCache resolves the XDG cache directory for the app and opens the
// digest ledger, creating both if necessary.
func NewCache() (*Cache, error) {
	root := filepath.Join(dirs.CacheHome(), "features")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	ledger, err := loadDigestLedger(filepath.Join(dirs.CacheHome(), "digests.csv"))
	if err != nil {
		return nil, err
	}
	return &Cache{root: root, digest: ledger}, nil
}

// Root returns the cache root directory.
func (c *Cache) Root() string { return c.root }

// PathForDigest returns the on-disk directory an artifact with the given
// manifest digest should live under.
func (c *Cache) PathForDigest(digest string) string {
	return filepath.Join(c.root, sanitizeDigest(digest))
}

// Has reports whether digest is already extracted into the cache.
func (c *Cache) Has(digest string) bool {
	_, err := os.Stat(c.PathForDigest(digest))
	return err == nil
}

// LastKnownDigest returns the digest last recorded for ref, if any.
func (c *Cache) LastKnownDigest(ref string) (string, bool) {
	d, ok := c.digest.entries[ref]
	return d, ok
}

// Record stores the observed digest for ref and persists the ledger.
func (c *Cache) Record(ref, digest string) error {
	c.digest.entries[ref] = digest
	return c.digest.save()
}

// StagingDir returns a fresh temporary directory under the cache root to
// extract into before an atomic rename, so concurrent downloads of the
// same digest converge safely (spec §5 shared-resource policy).
func (c *Cache) StagingDir() (string, error) {
	return os.MkdirTemp(c.root, ".staging-*")
}

// Commit atomically renames staging into the cache slot for digest. If the
// slot already exists (a concurrent writer won the race), staging is
// discarded and the existing slot is kept — first writer for a given
// digest wins, which is safe since content is addressed by digest.
func (c *Cache) Commit(staging, digest string) (string, error) {
	final := c.PathForDigest(digest)
	if c.Has(digest) {
		if err := os.RemoveAll(staging); err != nil {
			slog.Warn("failed removing redundant staging directory", "path", staging, "error", err)
		}
		return final, nil
	}
	if err := os.Rename(staging, final); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return final, nil
		}
		return "", err
	}
	return final, nil
}

func sanitizeDigest(digest string) string {
	out := make([]rune, 0, len(digest))
	for _, r := range digest {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
