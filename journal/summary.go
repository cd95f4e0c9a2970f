package journal

// Summary aggregates a replayed journal into per-run totals.
type Summary struct {
	RunID       string `json:"run_id"`
	Started     string `json:"started,omitempty"`
	Finished    string `json:"finished,omitempty"`
	Planned     int    `json:"planned"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	Quarantined int    `json:"quarantined"`
	Bytes       int64  `json:"bytes"`
	Checkpoints int    `json:"checkpoints"`
	Incomplete  bool   `json:"incomplete"`
	Truncated   bool   `json:"truncated"`
}

// Summarize folds records into a Summary. Truncated reports whether the
// journal ended in a partial record (the run crashed mid-write).
func Summarize(records []*Record, truncated bool) *Summary {
	s := &Summary{Truncated: truncated}
	for _, rec := range records {
		if s.RunID == "" {
			s.RunID = rec.RunID
		}
		switch rec.Type {
		case RecordRunStarted:
			s.Started = rec.Timestamp
			s.Planned = rec.Planned
		case RecordOutcome:
			switch rec.Status {
			case StatusSucceeded:
				s.Succeeded++
				s.Bytes += rec.Bytes
			case StatusQuarantined:
				s.Quarantined++
				s.Failed++
			default:
				s.Failed++
			}
		case RecordCheckpoint:
			s.Checkpoints++
		case RecordRunFinished:
			s.Finished = rec.Timestamp
			s.Incomplete = rec.Incomplete
		}
	}
	// A journal with no finish mark is an interrupted run even when every
	// record decoded cleanly.
	if s.Finished == "" {
		s.Incomplete = true
	}
	return s
}
