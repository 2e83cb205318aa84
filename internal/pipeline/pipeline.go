package pipeline

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// DefaultMaxStages is the stage bound applied when none is configured.
// It is a safety limit against runaway registration, not a hard ceiling.
const DefaultMaxStages = 8

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithMaxStages overrides the stage capacity bound.
func WithMaxStages(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxStages = n
		}
	}
}

// WithBatchCapacity sizes the shared batch for capture mechanisms that
// deliver frames in blocks. The file adapter uses one frame per batch.
func WithBatchCapacity(n int) Option {
	return func(p *Pipeline) { p.batch = NewPacketBatch(n) }
}

// Pipeline owns the ordered stage instances, the shared packet batch, the
// buffer pool, and the data-link type learned from the capture source.
// It runs single-threaded: stages execute in-line on the dispatching
// goroutine, strictly in registration order.
type Pipeline struct {
	stages    []*StageInstance
	nextIndex int
	maxStages int

	batch    *PacketBatch
	pool     *BufferPool
	linkType layers.LinkType

	metrics Metrics
}

// New creates an empty pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		maxStages: DefaultMaxStages,
		pool:      NewBufferPool(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.batch == nil {
		p.batch = NewPacketBatch(1)
	}
	return p
}

// SetLinkType records the link-layer framing of the capture source.
// Downstream decoder stages use it to select framing rules.
func (p *Pipeline) SetLinkType(lt layers.LinkType) { p.linkType = lt }

// LinkType returns the link-layer type recorded from the source.
func (p *Pipeline) LinkType() layers.LinkType { return p.linkType }

// StageCount reports how many stages registered successfully.
func (p *Pipeline) StageCount() int { return len(p.stages) }

// Register appends a stage to the end of the pipeline. It assigns the
// next sequential index (indices are never reused, even after a failed
// init) and runs the stage's Init synchronously. An init failure is fatal
// to pipeline construction; previously registered stages are kept as-is.
func (p *Pipeline) Register(s Stage) (*StageInstance, error) {
	if p.nextIndex >= p.maxStages {
		return nil, fmt.Errorf("%w: limit %d", ErrPipelineFull, p.maxStages)
	}
	inst := &StageInstance{stage: s, index: p.nextIndex}
	p.nextIndex++
	if err := s.Init(p, inst); err != nil {
		return nil, fmt.Errorf("%w: stage %q: %w", ErrStageInit, s.Name(), err)
	}
	p.stages = append(p.stages, inst)
	return inst, nil
}

// NewBuffer parses one frame's native metadata into a pooled buffer.
func (p *Pipeline) NewBuffer(ci gopacket.CaptureInfo, data []byte) *PacketBuffer {
	return p.pool.Get(ci, data)
}

// NewDescriptor wraps a buffer with scratch slots sized to the stage bound.
func (p *Pipeline) NewDescriptor(buf *PacketBuffer) *PacketDescriptor {
	return &PacketDescriptor{buf: buf, scratch: make([]any, p.maxStages)}
}

// LoadBatch repopulates the shared batch for one dispatch cycle and
// returns it. The caller hands it straight to Run; it must not be
// retained across cycles.
func (p *Pipeline) LoadBatch(descs ...*PacketDescriptor) *PacketBatch {
	p.batch.load(descs...)
	return p.batch
}

// BatchResult reports how one batch went through the pipeline.
type BatchResult struct {
	// StagesRun counts the stages whose Process was invoked.
	StagesRun int
	// FailedStage names the stage whose Process returned an error,
	// empty when the whole pipeline ran.
	FailedStage string
	// Err is the stage's error. Batch-scoped: the next batch runs
	// normally regardless.
	Err error
	// Released counts descriptors the engine returned to the pool
	// after the last stage.
	Released int
	// Claimed counts descriptors removed by stages during the batch.
	Claimed int
}

// Failed reports whether a stage stopped the batch early.
func (r BatchResult) Failed() bool { return r.Err != nil }

// Run drives one batch through all registered stages in registration
// order. Stages without a process operation are skipped. A stage error
// stops later stages for this batch only. Afterwards every descriptor
// still present is considered abandoned and its buffer goes back to the
// pool. The engine does not log stage errors; a stage wanting visibility
// logs on its own.
func (p *Pipeline) Run(batch *PacketBatch) BatchResult {
	var res BatchResult
	for _, inst := range p.stages {
		proc, ok := inst.stage.(Processor)
		if !ok {
			continue
		}
		res.StagesRun++
		if err := proc.Process(p, inst, batch); err != nil {
			res.FailedStage = inst.stage.Name()
			res.Err = err
			p.metrics.stageErrors.Add(1)
			break
		}
	}
	res.Released = batch.releaseRemaining()
	res.Claimed = batch.Extent() - res.Released

	p.metrics.batches.Add(1)
	p.metrics.frames.Add(uint64(batch.Extent()))
	p.metrics.released.Add(uint64(res.Released))
	p.metrics.claimed.Add(uint64(res.Claimed))
	return res
}

// Close shuts down stages that hold resources, in registration order.
// The first error is returned but every stage gets its Close call.
func (p *Pipeline) Close() error {
	var first error
	for _, inst := range p.stages {
		if c, ok := inst.stage.(Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats { return p.metrics.snapshot() }
