package types

// PathKind selects the execution environment for a sync run.
type PathKind string

const (
	// PathLightweight is the bounded compute path (hard wall-clock ceiling).
	PathLightweight PathKind = "lightweight"
	// PathHeavyDuty is the long-running compute path.
	PathHeavyDuty PathKind = "heavy-duty"
)

// SyncPlan is the work order produced by the router. It is derived, never
// persisted, and recomputed every run.
type SyncPlan struct {
	// Path is the selected execution path.
	Path PathKind `json:"path"`
	// Delta is the set of artifacts absent from the manifest or whose
	// hash differs from the stored entry. An empty delta is a valid plan
	// and short-circuits the run to a no-op success.
	Delta []Artifact `json:"delta"`
	// EstimatedBytes is the sum of advertised sizes over the delta.
	EstimatedBytes int64 `json:"estimated_bytes"`
	// SkippedUpToDate counts catalog artifacts already in the manifest.
	SkippedUpToDate int `json:"skipped_up_to_date"`
}

// Empty reports whether the plan carries no work.
func (p *SyncPlan) Empty() bool {
	return len(p.Delta) == 0
}
