// Package file implements the file-replay capture source adapter. It
// bridges a recorded pcap stream to the pipeline engine, producing one
// single-frame batch per captured frame. A live-capture adapter would sit
// beside this one with the same Open/Dispatch/Close surface.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/pktpipe/pktdump/internal/log"
	"github.com/pktpipe/pktdump/internal/pipeline"
)

// State tracks the source lifecycle. Closed is terminal.
type State uint8

const (
	StateUnopened State = iota
	StateOpen
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpen:
		return "open"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options tune dispatch behavior.
type Options struct {
	// StopOnStageError makes Dispatch return after the first batch a
	// stage failed, instead of moving on to the next frame. The default
	// keeps dispatching: stage errors are batch-scoped.
	StopOnStageError bool `mapstructure:"stop_on_stage_error"`

	// MaxFrames bounds how many frames one Dispatch call processes.
	// Zero or negative means run until the source is exhausted.
	MaxFrames int `mapstructure:"max_frames"`
}

// PipelineSource owns one pipeline and the open capture handle. Created
// by Open, destroyed by Close.
type PipelineSource struct {
	name     string
	pipeline *pipeline.Pipeline
	reader   *pcapgo.Reader
	f        *os.File
	state    State
	opts     Options

	stageFailures uint64
}

// Open opens a recorded capture for replay and creates the pipeline the
// stages will register into. The source's data-link type is recorded on
// the pipeline for downstream decoder stages.
func Open(path string, opts Options, popts ...pipeline.Option) (*PipelineSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &pipeline.CaptureError{Path: path, Msg: "open capture file", Err: err}
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, &pipeline.CaptureError{Path: path, Msg: "read capture header", Err: err}
	}

	pl := pipeline.New(popts...)
	pl.SetLinkType(r.LinkType())

	log.GetLogger().WithFields(map[string]interface{}{
		"path":      path,
		"link_type": r.LinkType().String(),
	}).Debug("capture source opened")

	return &PipelineSource{
		name:     path,
		pipeline: pl,
		reader:   r,
		f:        f,
		state:    StateOpen,
		opts:     opts,
	}, nil
}

// Name returns the source path.
func (s *PipelineSource) Name() string { return s.name }

// State returns the current lifecycle state.
func (s *PipelineSource) State() State {
	if s == nil {
		return StateClosed
	}
	return s.state
}

// Pipeline returns the pipeline owned by this source.
func (s *PipelineSource) Pipeline() *pipeline.Pipeline { return s.pipeline }

// LinkType returns the link-layer framing of the recorded capture.
func (s *PipelineSource) LinkType() layers.LinkType { return s.reader.LinkType() }

// Register adds a stage to the source's pipeline.
func (s *PipelineSource) Register(st pipeline.Stage) (*pipeline.StageInstance, error) {
	if s == nil || s.state == StateClosed {
		return nil, pipeline.ErrSourceClosed
	}
	return s.pipeline.Register(st)
}

// StageFailures reports how many batches a stage stopped early.
func (s *PipelineSource) StageFailures() uint64 { return s.stageFailures }

// Dispatch blocks and replays the capture, driving one single-frame batch
// through the engine per captured frame. The frame bytes handed out by
// the reader are only valid until the next read, so each frame is copied
// into a pooled buffer before the engine runs. Cancellation is observed
// only at frame boundaries. Dispatch terminates the source: the handle is
// closed before it returns, even on error.
func (s *PipelineSource) Dispatch(ctx context.Context) (int, error) {
	if s == nil || s.state == StateClosed {
		return 0, pipeline.ErrSourceClosed
	}
	if s.state == StateRunning {
		return 0, fmt.Errorf("pktdump: dispatch already running on %s", s.name)
	}
	s.state = StateRunning
	defer s.Close()

	frames := 0
	for {
		if err := ctx.Err(); err != nil {
			return frames, err
		}
		if s.opts.MaxFrames > 0 && frames >= s.opts.MaxFrames {
			return frames, nil
		}

		data, ci, err := s.reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, &pipeline.CaptureError{Path: s.name, Msg: "read frame", Err: err}
		}

		buf := s.pipeline.NewBuffer(ci, data)
		desc := s.pipeline.NewDescriptor(buf)
		batch := s.pipeline.LoadBatch(desc)

		res := s.pipeline.Run(batch)
		frames++
		if res.Failed() {
			s.stageFailures++
			if s.opts.StopOnStageError {
				return frames, fmt.Errorf("pktdump: stage %q: %w", res.FailedStage, res.Err)
			}
		}
	}
}

// Close releases the capture handle and shuts down pipeline stages.
// Idempotent and nil-safe: closing a nil or already-closed source is a
// no-op. No transition leaves the closed state.
func (s *PipelineSource) Close() error {
	if s == nil || s.state == StateClosed {
		return nil
	}
	s.state = StateClosed

	var first error
	if s.pipeline != nil {
		first = s.pipeline.Close()
	}
	if s.f != nil {
		if err := s.f.Close(); err != nil && first == nil {
			first = err
		}
		s.f = nil
	}
	log.GetLogger().WithField("path", s.name).Debug("capture source closed")
	return first
}
