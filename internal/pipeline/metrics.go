package pipeline

import "sync/atomic"

// Metrics holds the pipeline's running counters.
type Metrics struct {
	batches     atomic.Uint64
	frames      atomic.Uint64
	stageErrors atomic.Uint64
	claimed     atomic.Uint64
	released    atomic.Uint64
}

// Stats is a point-in-time snapshot of the pipeline counters.
type Stats struct {
	Batches     uint64
	Frames      uint64
	StageErrors uint64
	Claimed     uint64
	Released    uint64
}

func (m *Metrics) snapshot() Stats {
	return Stats{
		Batches:     m.batches.Load(),
		Frames:      m.frames.Load(),
		StageErrors: m.stageErrors.Load(),
		Claimed:     m.claimed.Load(),
		Released:    m.released.Load(),
	}
}
