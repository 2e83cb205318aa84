// Package printer implements a per-frame protocol summary stage. Frames
// are decoded with gopacket using the framing rules selected by the
// source's data-link type.
package printer

import (
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/mitchellh/mapstructure"

	"github.com/pktpipe/pktdump/internal/pipeline"
	"github.com/pktpipe/pktdump/internal/stage"
)

// Name is the stage's registered name.
const Name = "print"

// Options configure the stage from config.
type Options struct {
	// Verbose switches from one-line summaries to the full layer dump.
	Verbose bool `mapstructure:"verbose"`
}

type Stage struct {
	out     io.Writer
	verbose bool
}

func init() {
	stage.Register(Name, func(options map[string]interface{}) (pipeline.Stage, error) {
		var opts Options
		if err := mapstructure.Decode(options, &opts); err != nil {
			return nil, err
		}
		return New(os.Stdout, opts.Verbose), nil
	})
}

// New creates a printer stage writing to out.
func New(out io.Writer, verbose bool) *Stage {
	return &Stage{out: out, verbose: verbose}
}

func (s *Stage) Name() string { return Name }

func (s *Stage) Init(_ *pipeline.Pipeline, _ *pipeline.StageInstance) error {
	return nil
}

func (s *Stage) Process(p *pipeline.Pipeline, _ *pipeline.StageInstance, batch *pipeline.PacketBatch) error {
	for i := 0; i < batch.Extent(); i++ {
		desc, ok := batch.Packet(i)
		if !ok {
			continue
		}
		buf := desc.Buffer()
		pkt := gopacket.NewPacket(buf.Bytes(), p.LinkType(), gopacket.Lazy)
		if err := s.print(buf, pkt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stage) print(buf *pipeline.PacketBuffer, pkt gopacket.Packet) error {
	if s.verbose {
		_, err := fmt.Fprintln(s.out, pkt.Dump())
		return err
	}
	sec, nsec := buf.Timestamp()
	summary := "undecodable"
	if ls := pkt.Layers(); len(ls) > 0 {
		top := ls[len(ls)-1]
		summary = top.LayerType().String()
		if net := pkt.NetworkLayer(); net != nil {
			flow := net.NetworkFlow()
			summary = fmt.Sprintf("%s %s > %s", summary, flow.Src(), flow.Dst())
		}
	}
	_, err := fmt.Fprintf(s.out, "%d.%09d %s, length %d\n", sec, nsec, summary, buf.OrigLen())
	return err
}
