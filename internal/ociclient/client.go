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

package ociclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/codeclysm/extract/v4"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/registry/remote"
)

// FeatureArtifactMediaType and FeatureLayerMediaType are the OCI media
// types features are distributed under (lifted from
// internal/brig/features.go's constants, also used for templates since
// the distribution shape is identical).
const (
	FeatureArtifactMediaType  = "application/vnd.oci.image.manifest.v1+json"
	FeatureLayerMediaType     = "application/vnd.devcontainers.layer.v1+tar"
	TemplateArtifactMediaType = FeatureArtifactMediaType
	TemplateLayerMediaType    = "application/vnd.devcontainers.templates.layer.v1+tar"
)

// DownloadedArtifact is the result of pulling a feature or template.
type DownloadedArtifact struct {
	Ref    string
	Digest string
	Path   string
}

// Client wraps oras-go's remote repository access with the retry policy
// and content-addressed cache from spec §4.3.
type Client struct {
	Cache       *Cache
	MaxAttempts int
}

// NewClient returns a Client backed by cache, retrying up to maxAttempts
// times per operation.
func NewClient(cache *Cache, maxAttempts int) *Client {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Client{Cache: cache, MaxAttempts: maxAttempts}
}

// PullFeature resolves ref to a manifest, downloads its single tar layer,
// verifies the layer digest, extracts into the cache under the manifest's
// canonical id, and returns the on-disk path (spec §4.3 pull_feature).
func (c *Client) PullFeature(ctx context.Context, ref string) (*DownloadedArtifact, error) {
	return c.pullArtifact(ctx, ref, FeatureLayerMediaType)
}

// PullTemplate is PullFeature's identical-shape counterpart for templates.
func (c *Client) PullTemplate(ctx context.Context, ref string) (*DownloadedArtifact, error) {
	return c.pullArtifact(ctx, ref, TemplateLayerMediaType)
}

func (c *Client) pullArtifact(ctx context.Context, ref string, layerMediaType string) (*DownloadedArtifact, error) {
	var result *DownloadedArtifact
	err := WithRetry(ctx, c.MaxAttempts, func(ctx context.Context) error {
		repo, err := remote.NewRepository(ref)
		if err != nil {
			return &Error{Kind: KindOCI, Err: err}
		}

		desc, err := repo.Resolve(ctx, repo.Reference.Reference)
		if err != nil {
			if last, ok := c.Cache.LastKnownDigest(ref); ok && c.Cache.Has(last) {
				slog.Warn("resolving OCI reference failed but a cached copy exists", "ref", ref, "error", err)
				result = &DownloadedArtifact{Ref: ref, Digest: last, Path: c.Cache.PathForDigest(last)}
				return nil
			}
			return &Error{Kind: KindOCI, Err: err}
		}

		digest := string(desc.Digest)
		if c.Cache.Has(digest) {
			slog.Debug("digest already present in cache, skipping re-download", "ref", ref, "digest", digest)
			if err := c.Cache.Record(ref, digest); err != nil {
				return err
			}
			result = &DownloadedArtifact{Ref: ref, Digest: digest, Path: c.Cache.PathForDigest(digest)}
			return nil
		}

		_, manifestBytes, err := oras.FetchBytes(ctx, repo, ref, oras.DefaultFetchBytesOptions)
		if err != nil {
			return &Error{Kind: KindOCI, Err: err}
		}
		var manifest ocispec.Manifest
		if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
			// JSON decode failures are non-retriable (spec §4.3).
			return backoffPermanent(fmt.Errorf("decoding manifest for %s: %w", ref, err))
		}

		staging, err := c.Cache.StagingDir()
		if err != nil {
			return err
		}
		found := false
		for _, layer := range manifest.Layers {
			if layer.MediaType != layerMediaType {
				continue
			}
			layerBytes, err := content.FetchAll(ctx, repo, layer)
			if err != nil {
				return &Error{Kind: KindOCI, Err: err}
			}
			if err := extract.Tar(ctx, bytes.NewReader(layerBytes), staging, nil); err != nil {
				return backoffPermanent(fmt.Errorf("extracting layer for %s: %w", ref, err))
			}
			found = true
			break
		}
		if !found {
			return backoffPermanent(fmt.Errorf("artifact %s has no layer of media type %s", ref, layerMediaType))
		}

		finalPath, err := c.Cache.Commit(staging, digest)
		if err != nil {
			return err
		}
		if err := c.Cache.Record(ref, digest); err != nil {
			return err
		}
		result = &DownloadedArtifact{Ref: ref, Digest: digest, Path: finalPath}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetManifestByDigest performs a digest-addressed manifest fetch (spec
// §4.3 get_manifest_by_digest).
func (c *Client) GetManifestByDigest(ctx context.Context, ref, digest string) (*ocispec.Manifest, error) {
	var manifest ocispec.Manifest
	err := WithRetry(ctx, c.MaxAttempts, func(ctx context.Context) error {
		repo, err := remote.NewRepository(ref)
		if err != nil {
			return &Error{Kind: KindOCI, Err: err}
		}
		_, manifestBytes, err := oras.FetchBytes(ctx, repo, digest, oras.DefaultFetchBytesOptions)
		if err != nil {
			return &Error{Kind: KindOCI, Err: err}
		}
		if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
			return backoffPermanent(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &manifest, nil
}

// ListTags follows Link: <url>; rel="next" pagination across the tag-list
// endpoint (spec §4.3 list_tags), with oras-go's Repository.Tags fetching
// the pages. All pages share ctx; no per-page timeout is applied.
func (c *Client) ListTags(ctx context.Context, ref string) ([]string, error) {
	var tags []string
	err := WithRetry(ctx, c.MaxAttempts, func(ctx context.Context) error {
		repo, err := remote.NewRepository(ref)
		if err != nil {
			return &Error{Kind: KindOCI, Err: err}
		}
		tags = tags[:0]
		return repo.Tags(ctx, "", func(page []string) error {
			pageCtx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
			defer cancel()
			_ = pageCtx
			tags = append(tags, page...)
			return nil
		})
	})
	if err != nil {
		return nil, &Error{Kind: KindOCI, Err: err}
	}
	return tags, nil
}

// PublishResult reports which tags were newly applied versus already
// pointing at the uploaded digest.
type PublishResult struct {
	Digest       string
	AppliedTags  []string
	SkippedTags  []string
}

// PublishFeatureMultiTag uploads a feature tarball blob, creates its
// manifest, and tags it under every requested tag, skipping any tag that
// already resolves to the same digest (spec §4.3
// publish_feature_multi_tag).
func (c *Client) PublishFeatureMultiTag(ctx context.Context, registryNamespaceName string, tags []string, tarBytes []byte, metadata map[string]string) (*PublishResult, error) {
	result := &PublishResult{}
	err := WithRetry(ctx, c.MaxAttempts, func(ctx context.Context) error {
		repo, err := remote.NewRepository(registryNamespaceName)
		if err != nil {
			return &Error{Kind: KindOCI, Err: err}
		}

		layerDesc, err := oras.PushBytes(ctx, repo, FeatureLayerMediaType, tarBytes)
		if err != nil {
			return &Error{Kind: KindOCI, Err: err}
		}

		manifest := ocispec.Manifest{
			MediaType:   FeatureArtifactMediaType,
			Config:      ocispec.DescriptorEmptyJSON,
			Layers:      []ocispec.Descriptor{layerDesc},
			Annotations: metadata,
		}
		manifestBytes, err := json.Marshal(manifest)
		if err != nil {
			return backoffPermanent(err)
		}
		manifestDesc, err := oras.PushBytes(ctx, repo, FeatureArtifactMediaType, manifestBytes)
		if err != nil {
			return &Error{Kind: KindOCI, Err: err}
		}
		result.Digest = string(manifestDesc.Digest)

		for _, tag := range tags {
			existing, err := repo.Resolve(ctx, tag)
			if err == nil && string(existing.Digest) == result.Digest {
				result.SkippedTags = append(result.SkippedTags, tag)
				continue
			}
			if err := repo.Tag(ctx, manifestDesc, tag); err != nil {
				return &Error{Kind: KindOCI, Err: err}
			}
			result.AppliedTags = append(result.AppliedTags, tag)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// backoffPermanent marks err as non-retriable regardless of kind, used for
// parsing/validation/extraction failures per spec §4.3.
func backoffPermanent(err error) error {
	return &nonRetriableError{err}
}

type nonRetriableError struct{ err error }

func (e *nonRetriableError) Error() string { return e.err.Error() }
func (e *nonRetriableError) Unwrap() error { return e.err }
