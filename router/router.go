// Package router computes the work order for a sync run: the delta of
// artifacts not yet mirrored, the transfer size estimate, and the
// execution path selected by that estimate.
//
// Plan is pure and deterministic given its inputs — no network or storage
// calls — so every routing decision is directly testable.
package router

import (
	"sort"

	"github.com/pithecene-io/bottlesync/types"
)

// Plan filters the catalog to allow-listed platforms, computes the delta
// against the manifest, and selects the execution path.
//
// Delta membership: the artifact's key is absent from the manifest, or
// the stored hash differs from the catalog hash (a changed hash for the
// same key is a new version and appears in the delta exactly once).
// Artifacts with no allow-listed platform are dropped silently — out of
// scope for this mirror, not an error.
//
// Path selection: estimated bytes >= threshold routes heavy-duty.
// Equality routes heavy-duty deliberately: estimates can undercount, so
// the boundary case takes the path with the higher resource ceiling.
func Plan(catalog []types.Artifact, m *types.Manifest, platformAllowList []string, sizeThresholdBytes int64) *types.SyncPlan {
	allowed := make(map[string]bool, len(platformAllowList))
	for _, p := range platformAllowList {
		allowed[p] = true
	}

	plan := &types.SyncPlan{Path: types.PathLightweight}
	for _, artifact := range catalog {
		if !allowed[artifact.Platform] {
			continue
		}
		if m.Has(artifact.Key(), artifact.ContentHash) {
			plan.SkippedUpToDate++
			continue
		}
		plan.Delta = append(plan.Delta, artifact)
		plan.EstimatedBytes += artifact.SizeBytes
	}

	// Deterministic order: map-driven catalogs must not reorder the plan
	// between runs with identical inputs.
	sort.Slice(plan.Delta, func(i, j int) bool {
		return plan.Delta[i].Key() < plan.Delta[j].Key()
	})

	if plan.EstimatedBytes >= sizeThresholdBytes {
		plan.Path = types.PathHeavyDuty
	}
	return plan
}
