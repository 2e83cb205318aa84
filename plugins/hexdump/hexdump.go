// Package hexdump implements the hexdumpc stage: each frame is emitted as
// a C byte-array literal, ready to paste into a decoder test fixture.
package hexdump

import (
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/mapstructure"

	"github.com/pktpipe/pktdump/internal/pipeline"
	"github.com/pktpipe/pktdump/internal/stage"
)

// Name is the stage's registered name.
const Name = "hexdump"

// Options configure the stage from config.
type Options struct {
	// Prefix names the emitted variables: <prefix>_000, <prefix>_001, ...
	Prefix string `mapstructure:"prefix"`
}

// state is the stage's private per-pipeline state.
type state struct {
	frameNum uint
}

// Stage writes every present frame in the batch as a C array.
type Stage struct {
	out    io.Writer
	prefix string
}

func init() {
	stage.Register(Name, func(options map[string]interface{}) (pipeline.Stage, error) {
		var opts Options
		if err := mapstructure.Decode(options, &opts); err != nil {
			return nil, err
		}
		return New(os.Stdout, opts.Prefix), nil
	})
}

// New creates a hexdump stage writing to out.
func New(out io.Writer, prefix string) *Stage {
	if prefix == "" {
		prefix = "packet"
	}
	return &Stage{out: out, prefix: prefix}
}

func (s *Stage) Name() string { return Name }

func (s *Stage) Init(_ *pipeline.Pipeline, inst *pipeline.StageInstance) error {
	inst.SetState(&state{})
	return nil
}

func (s *Stage) Process(_ *pipeline.Pipeline, inst *pipeline.StageInstance, batch *pipeline.PacketBatch) error {
	st := inst.State().(*state)
	for i := 0; i < batch.Extent(); i++ {
		desc, ok := batch.Packet(i)
		if !ok {
			continue
		}
		if err := s.dump(st, desc.Buffer().Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stage) dump(st *state, data []byte) error {
	if _, err := fmt.Fprintf(s.out, "char *%s_%03d = {\n", s.prefix, st.frameNum); err != nil {
		return err
	}
	st.frameNum++
	for i, b := range data {
		if i%8 == 0 {
			if _, err := io.WriteString(s.out, "        "); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(s.out, "0x%02x, ", b); err != nil {
			return err
		}
		if i%8 == 7 {
			if _, err := io.WriteString(s.out, "\n"); err != nil {
				return err
			}
		}
	}
	if len(data)%8 != 0 {
		if _, err := io.WriteString(s.out, "\n"); err != nil {
			return err
		}
	}
	_, err := io.WriteString(s.out, "};\n")
	return err
}
