// Package pipeline implements the per-packet stage pipeline: the packet
// buffer/descriptor model, the stage registry, and the batch execution
// engine.
package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors for pipeline construction and execution.
var (
	// ErrPipelineFull is returned by Register once the stage bound is reached.
	ErrPipelineFull = errors.New("pktdump: pipeline stage capacity exceeded")

	// ErrStageInit wraps a stage init failure. Fatal to pipeline
	// construction; previously registered stages are not rolled back.
	ErrStageInit = errors.New("pktdump: stage init failed")

	// ErrSourceClosed is returned when an operation is attempted on a
	// closed capture source.
	ErrSourceClosed = errors.New("pktdump: capture source closed")

	// ErrBufferGrow is returned by Truncate when asked to grow the
	// captured range. Stages may only shrink it.
	ErrBufferGrow = errors.New("pktdump: capture length may only shrink")

	// ErrBufferConsumed is returned when a released buffer is mutated.
	ErrBufferConsumed = errors.New("pktdump: packet buffer already released")
)

// CaptureError reports a capture-level failure (open or read) together
// with the source path and the diagnostic text from the capture layer.
// Never retried internally.
type CaptureError struct {
	Path string
	Msg  string
	Err  error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pktdump: %s: %s: %v", e.Path, e.Msg, e.Err)
	}
	return fmt.Sprintf("pktdump: %s: %s", e.Path, e.Msg)
}

func (e *CaptureError) Unwrap() error { return e.Err }
