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

package feature

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/codeclysm/extract/v4"
	"github.com/get2knowio/deacon/internal/config"
	"github.com/get2knowio/deacon/internal/ociclient"
)

// Resolved is the ResolvedFeature entity from spec §3.1.
type Resolved struct {
	ID       string
	Source   string
	Options  config.FeatureOptionsMap
	Metadata *Metadata
	Dir      string
}

// Resolver fetches and parses feature references, generalizing
// brig.Command.PrepareFeaturesData/ParseFeaturesConfig into the three-shape
// fetch path from spec §4.4 step 2, including the HTTPS-tarball path brig
// left unimplemented.
type Resolver struct {
	OCI        *ociclient.Client
	Cache      *ociclient.Cache
	HTTPClient *http.Client
	ConfigDir  string
}

// NewResolver builds a Resolver rooted at configDir, the directory holding
// the devcontainer.json being resolved (used to anchor relative local-path
// references).
func NewResolver(oci *ociclient.Client, cache *ociclient.Cache, configDir string) *Resolver {
	return &Resolver{
		OCI:        oci,
		Cache:      cache,
		HTTPClient: http.DefaultClient,
		ConfigDir:  configDir,
	}
}

// ResolveAll resolves every feature declared in features, plus every
// transitive dependsOn reference not already declared, applying the
// dependsOn option override for features pulled in only as dependencies
// (spec §4.4 steps 1-4). The returned map is keyed by canonical id.
func (r *Resolver) ResolveAll(ctx context.Context, features config.FeatureMap) (map[string]*Resolved, error) {
	resolved := make(map[string]*Resolved)

	var resolveOne func(ref string, declared config.FeatureOptionsMap) error
	resolveOne = func(ref string, declared config.FeatureOptionsMap) error {
		parsed, err := ParseRef(ref)
		if err != nil {
			return err
		}

		dir, err := r.fetchDir(ctx, parsed)
		if err != nil {
			return fmt.Errorf("fetching feature %s: %w", ref, err)
		}

		// For local paths the canonical id is the resolved (absolute)
		// path rather than the raw reference, so two relative references
		// to the same directory collapse to one vertex (spec §4.4 step 1).
		id := parsed.CanonicalID()
		if parsed.Kind == RefLocalPath {
			id = dir
		}
		if _, ok := resolved[id]; ok {
			return nil
		}

		meta, err := ParseMetadataFile(dir)
		if err != nil {
			return err
		}
		effective, err := meta.FillDefaults(declared)
		if err != nil {
			return err
		}
		resolved[id] = &Resolved{ID: id, Source: ref, Options: effective, Metadata: meta, Dir: dir}

		for depRef, overrideOpts := range meta.DependsOn {
			if err := resolveOne(depRef, overrideOpts); err != nil {
				return err
			}
		}
		return nil
	}

	for _, ref := range features.Keys() {
		declared, _ := features.Get(ref)
		if err := resolveOne(ref, declared); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

func (r *Resolver) fetchDir(ctx context.Context, ref Ref) (string, error) {
	switch ref.Kind {
	case RefLocalPath:
		dir := ref.Path
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(r.ConfigDir, ref.Path)
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(abs); err != nil {
			return "", fmt.Errorf("referenced a locally-stored feature that doesn't exist: %s", abs)
		}
		return abs, nil

	case RefOCI:
		artifact, err := r.OCI.PullFeature(ctx, ref.Raw)
		if err != nil {
			return "", err
		}
		return artifact.Path, nil

	case RefHTTPSTarball:
		return r.fetchTarball(ctx, ref.URL)

	default:
		return "", fmt.Errorf("unsupported feature reference kind for %s", ref.Raw)
	}
}

// fetchTarball implements the HTTPS-distributed feature path (spec §4.4
// step 2), left as an unimplemented stub in brig's prepareFeatureDataURI:
// download the tarball, content-address it by the sha256 of its bytes, and
// extract into the shared cache exactly like an OCI layer.
func (r *Resolver) fetchTarball(ctx context.Context, url string) (string, error) {
	if last, ok := r.Cache.LastKnownDigest(url); ok && r.Cache.Has(last) {
		slog.Debug("https feature tarball already cached", "url", url, "digest", last)
		return r.Cache.PathForDigest(last), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return "", &ociclient.Error{Kind: ociclient.KindNetwork, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ociclient.Error{Kind: ociclient.KindNetwork, Err: err}
	}
	sum := sha256.Sum256(body)
	digest := "sha256:" + hex.EncodeToString(sum[:])

	if r.Cache.Has(digest) {
		if err := r.Cache.Record(url, digest); err != nil {
			return "", err
		}
		return r.Cache.PathForDigest(digest), nil
	}

	staging, err := r.Cache.StagingDir()
	if err != nil {
		return "", err
	}
	if err := extract.Tar(ctx, bytes.NewReader(body), staging, nil); err != nil {
		return "", fmt.Errorf("extracting tarball from %s: %w", url, err)
	}
	finalPath, err := r.Cache.Commit(staging, digest)
	if err != nil {
		return "", err
	}
	if err := r.Cache.Record(url, digest); err != nil {
		return "", err
	}
	return finalPath, nil
}
