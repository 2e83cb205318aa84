// Package writer implements the pcap dumper stage: every frame still
// present when the stage runs is appended to an output capture file.
package writer

import (
	"fmt"
	"os"

	"github.com/google/gopacket/pcapgo"
	"github.com/mitchellh/mapstructure"

	"github.com/pktpipe/pktdump/internal/log"
	"github.com/pktpipe/pktdump/internal/pipeline"
	"github.com/pktpipe/pktdump/internal/stage"
)

// Name is the stage's registered name.
const Name = "write"

// Options configure the stage from config.
type Options struct {
	Path string `mapstructure:"path"`
	// SnapLen is recorded in the output file header. Defaults to the
	// pipeline's maximum captured length.
	SnapLen uint32 `mapstructure:"snap_len"`
}

type Stage struct {
	path    string
	snapLen uint32

	f *os.File
	w *pcapgo.Writer

	written uint64
}

func init() {
	stage.Register(Name, func(options map[string]interface{}) (pipeline.Stage, error) {
		var opts Options
		if err := mapstructure.Decode(options, &opts); err != nil {
			return nil, err
		}
		return New(opts)
	})
}

// New creates a pcap writer stage. The output file is created during
// Init, once the pipeline's data-link type is known.
func New(opts Options) (*Stage, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("write stage requires an output path")
	}
	if opts.SnapLen == 0 {
		opts.SnapLen = pipeline.MaxCaptureLen
	}
	return &Stage{path: opts.Path, snapLen: opts.SnapLen}, nil
}

func (s *Stage) Name() string { return Name }

func (s *Stage) Init(p *pipeline.Pipeline, _ *pipeline.StageInstance) error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create output capture %s: %w", s.path, err)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(s.snapLen, p.LinkType()); err != nil {
		f.Close()
		return fmt.Errorf("write capture header: %w", err)
	}
	s.f = f
	s.w = w
	return nil
}

func (s *Stage) Process(_ *pipeline.Pipeline, _ *pipeline.StageInstance, batch *pipeline.PacketBatch) error {
	for i := 0; i < batch.Extent(); i++ {
		desc, ok := batch.Packet(i)
		if !ok {
			continue
		}
		buf := desc.Buffer()
		if err := s.w.WritePacket(buf.CaptureInfo(), buf.Bytes()); err != nil {
			return fmt.Errorf("write frame to %s: %w", s.path, err)
		}
		s.written++
	}
	return nil
}

// Written reports how many frames went to the output file.
func (s *Stage) Written() uint64 { return s.written }

// Close flushes and closes the output capture file.
func (s *Stage) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	log.GetLogger().WithFields(map[string]interface{}{
		"path":   s.path,
		"frames": s.written,
	}).Info("output capture closed")
	return err
}
