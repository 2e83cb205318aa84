package pipeline

// Stage is the contract every pipeline stage implements. Init runs once,
// synchronously, at registration time; the stage can store its private
// state on the instance it is handed.
//
// A stage that also implements Processor is invoked once per batch; a
// stage without a process operation is registered but skipped by the
// engine.
type Stage interface {
	Name() string
	Init(p *Pipeline, inst *StageInstance) error
}

// Processor is the optional per-batch operation of a stage. A non-nil
// error stops later stages for the current batch only; mutations already
// made by earlier stages persist.
type Processor interface {
	Process(p *Pipeline, inst *StageInstance, batch *PacketBatch) error
}

// Closer is an optional hook for stages that hold resources (open dump
// files, flushable writers). Pipeline.Close invokes it at shutdown.
type Closer interface {
	Close() error
}

// StageInstance binds a registered stage to its assigned index and holds
// the stage's private state. The index is assigned once at registration
// and never reused; the state is exclusively owned by the stage, the
// engine only stores it.
type StageInstance struct {
	stage Stage
	index int
	state any
}

// Stage returns the registered stage.
func (si *StageInstance) Stage() Stage { return si.stage }

// Index returns the stage's position in registration order, which is also
// its scratch-slot index on every descriptor.
func (si *StageInstance) Index() int { return si.index }

// State returns the stage's private state set during Init.
func (si *StageInstance) State() any { return si.state }

// SetState stores the stage's private state. Usually called from Init.
func (si *StageInstance) SetState(v any) { si.state = v }
