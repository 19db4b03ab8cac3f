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

// Package outdated implements the outdated analyzer (spec §4.13): for
// every OCI feature reference, compare the lockfile-resolved version
// against the latest stable tag, with bounded-concurrency tag listing.
package outdated

import (
	"context"
	"log/slog"
	"sync"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/get2knowio/deacon/internal/feature"
	"github.com/get2knowio/deacon/internal/ociclient"
	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the default bound on in-flight list_tags calls
// (spec §4.13 step 2).
const DefaultConcurrency = 6

// Report is one feature's outdated-ness assessment (spec §4.13 step 3).
type Report struct {
	ID           string
	Current      *string
	Wanted       *string
	Latest       *string
	WantedMajor  *string
	LatestMajor  *string
}

// IsOutdated reports whether current trails wanted, or wanted trails
// latest — the condition that drives --fail-on-outdated's exit code 2
// (spec §4.13 step 6).
func (r Report) IsOutdated() bool {
	return lessThan(r.Current, r.Wanted) || lessThan(r.Wanted, r.Latest)
}

func lessThan(a, b *string) bool {
	if a == nil || b == nil {
		return false
	}
	av, aerr := ociclient.ParseSemver(*a)
	bv, berr := ociclient.ParseSemver(*b)
	if aerr != nil || berr != nil {
		return false
	}
	return av.LessThan(bv)
}

// Analyzer lists tags for OCI feature references with bounded concurrency
// and compares them against a lockfile.
type Analyzer struct {
	OCI         *ociclient.Client
	Concurrency int64
}

// NewAnalyzer builds an Analyzer with the default concurrency bound.
func NewAnalyzer(oci *ociclient.Client) *Analyzer {
	return &Analyzer{OCI: oci, Concurrency: DefaultConcurrency}
}

// Analyze produces one Report per OCI feature reference in features, in
// declaration order, skipping non-OCI references entirely (spec §4.13
// step 1). A feature whose list_tags call errors or times out yields a
// Report with Latest == nil rather than failing the whole operation (step
// 5).
func (a *Analyzer) Analyze(ctx context.Context, features config.FeatureMap, lock *config.Lockfile) []Report {
	type job struct {
		index int
		ref    string
	}

	var jobs []job
	for i, ref := range features.Keys() {
		parsed, err := feature.ParseRef(ref)
		if err != nil || parsed.Kind != feature.RefOCI {
			continue
		}
		jobs = append(jobs, job{index: i, ref: ref})
	}

	reports := make([]Report, len(jobs))
	sem := semaphore.NewWeighted(a.concurrency())
	var wg sync.WaitGroup

	for i, j := range jobs {
		if err := sem.Acquire(ctx, 1); err != nil {
			reports[i] = a.buildReport(j.ref, nil, lock)
			continue
		}
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			defer sem.Release(1)
			tags, err := a.OCI.ListTags(ctx, j.ref)
			if err != nil {
				slog.Warn("listing tags for outdated check timed out or failed", "ref", j.ref, "error", err)
				reports[i] = a.buildReport(j.ref, nil, lock)
				return
			}
			reports[i] = a.buildReport(j.ref, tags, lock)
		}(i, j)
	}
	wg.Wait()

	return reports
}

func (a *Analyzer) concurrency() int64 {
	if a.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return a.Concurrency
}

func (a *Analyzer) buildReport(ref string, tags []string, lock *config.Lockfile) Report {
	parsed, err := feature.ParseRef(ref)
	id := ref
	if err == nil {
		id = parsed.CanonicalID()
	}

	report := Report{ID: id}

	if lock != nil {
		if locked, ok := lock.Features[id]; ok {
			v := locked.Version
			report.Current = &v
		}
	}

	fragment := ociclient.VersionFragment(ref)
	if fragment != "" {
		report.Wanted = &fragment
		major := ociclient.MajorComponent(fragment)
		report.WantedMajor = &major
	}

	if len(tags) > 0 {
		if latest, ok := ociclient.LatestStable(ociclient.FilterSemverTags(tags)); ok {
			v := latest.String()
			report.Latest = &v
			major := ociclient.MajorComponent(v)
			report.LatestMajor = &major
		}
	}

	return report
}
