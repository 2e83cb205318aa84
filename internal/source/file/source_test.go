package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pktpipe/pktdump/internal/pipeline"
)

// writeCapture writes a pcap fixture with the given frame payloads.
func writeCapture(t *testing.T, frames ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(int64(100+i), int64(i)*1000),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	return path
}

// countingStage counts Process invocations and frames seen.
type countingStage struct {
	name      string
	batches   int
	frames    int
	initCalls int
	procErr   error
}

func (s *countingStage) Name() string { return s.name }

func (s *countingStage) Init(_ *pipeline.Pipeline, inst *pipeline.StageInstance) error {
	s.initCalls++
	return nil
}

func (s *countingStage) Process(_ *pipeline.Pipeline, _ *pipeline.StageInstance, batch *pipeline.PacketBatch) error {
	s.batches++
	for i := 0; i < batch.Extent(); i++ {
		if _, ok := batch.Packet(i); ok {
			s.frames++
		}
	}
	return s.procErr
}

func TestOpenRecordsLinkType(t *testing.T) {
	path := writeCapture(t, []byte{0x01, 0x02, 0x03})
	src, err := Open(path, Options{})
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, StateOpen, src.State())
	assert.Equal(t, layers.LinkTypeEthernet, src.LinkType())
	assert.Equal(t, layers.LinkTypeEthernet, src.Pipeline().LinkType())
}

func TestOpenMissingFileReturnsCaptureError(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.pcap"), Options{})
	require.Error(t, err)

	var ce *pipeline.CaptureError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Path, "nope.pcap")
}

func TestOpenGarbageFileReturnsCaptureError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.pcap")
	require.NoError(t, os.WriteFile(path, []byte("not a capture"), 0o644))

	_, err := Open(path, Options{})
	var ce *pipeline.CaptureError
	require.ErrorAs(t, err, &ce)
}

func TestDispatchThreeFramesEndToEnd(t *testing.T) {
	path := writeCapture(t,
		[]byte{0x01, 0x02},
		[]byte{0x03, 0x04, 0x05},
		[]byte{0x06},
	)
	src, err := Open(path, Options{})
	require.NoError(t, err)

	counter := &countingStage{name: "counter"}
	_, err = src.Register(counter)
	require.NoError(t, err)

	frames, err := src.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, frames)
	assert.Equal(t, 3, counter.batches, "one single-frame batch per captured frame")
	assert.Equal(t, 3, counter.frames)
	assert.Equal(t, 1, counter.initCalls)

	require.NoError(t, src.Close())
	assert.Equal(t, StateClosed, src.State())

	stats := src.Pipeline().Stats()
	assert.Equal(t, uint64(3), stats.Frames)
	assert.Equal(t, uint64(3), stats.Released)
}

func TestDispatchZeroFrames(t *testing.T) {
	path := writeCapture(t) // header only
	src, err := Open(path, Options{})
	require.NoError(t, err)

	counter := &countingStage{name: "counter"}
	_, err = src.Register(counter)
	require.NoError(t, err)

	frames, err := src.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, frames)
	assert.Equal(t, 0, counter.batches, "zero frames means zero stage invocations")
}

func TestDispatchContinuesPastStageErrors(t *testing.T) {
	path := writeCapture(t, []byte{1}, []byte{2}, []byte{3})
	src, err := Open(path, Options{})
	require.NoError(t, err)

	failing := &countingStage{name: "failing", procErr: errors.New("stage broke")}
	after := &countingStage{name: "after"}
	_, err = src.Register(failing)
	require.NoError(t, err)
	_, err = src.Register(after)
	require.NoError(t, err)

	frames, err := src.Dispatch(context.Background())
	require.NoError(t, err, "stage errors are batch-scoped, not dispatch errors")
	assert.Equal(t, 3, frames)
	assert.Equal(t, 3, failing.batches)
	assert.Equal(t, 0, after.batches, "later stages never run in a failed batch")
	assert.Equal(t, uint64(3), src.StageFailures())
}

func TestDispatchStopOnStageError(t *testing.T) {
	path := writeCapture(t, []byte{1}, []byte{2}, []byte{3})
	src, err := Open(path, Options{StopOnStageError: true})
	require.NoError(t, err)

	failing := &countingStage{name: "failing", procErr: errors.New("stage broke")}
	_, err = src.Register(failing)
	require.NoError(t, err)

	frames, err := src.Dispatch(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, frames)
	assert.Equal(t, StateClosed, src.State(), "dispatch termination closes the source")
}

func TestDispatchMaxFrames(t *testing.T) {
	path := writeCapture(t, []byte{1}, []byte{2}, []byte{3})
	src, err := Open(path, Options{MaxFrames: 2})
	require.NoError(t, err)

	counter := &countingStage{name: "counter"}
	_, err = src.Register(counter)
	require.NoError(t, err)

	frames, err := src.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, frames)
}

func TestDispatchHonorsCancellationAtFrameBoundary(t *testing.T) {
	path := writeCapture(t, []byte{1}, []byte{2})
	src, err := Open(path, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frames, err := src.Dispatch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, frames)
	assert.Equal(t, StateClosed, src.State())
}

func TestCloseIsIdempotentAndNilSafe(t *testing.T) {
	path := writeCapture(t, []byte{1})
	src, err := Open(path, Options{})
	require.NoError(t, err)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	assert.Equal(t, StateClosed, src.State())

	var nilSrc *PipelineSource
	assert.NoError(t, nilSrc.Close())
	assert.Equal(t, StateClosed, nilSrc.State())
}

func TestOperationsOnClosedSourceFail(t *testing.T) {
	path := writeCapture(t, []byte{1})
	src, err := Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, src.Close())

	_, err = src.Register(&countingStage{name: "late"})
	assert.ErrorIs(t, err, pipeline.ErrSourceClosed)

	_, err = src.Dispatch(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrSourceClosed)
}

func TestFrameMetadataReachesStages(t *testing.T) {
	payload := []byte{0xca, 0xfe, 0xba, 0xbe}
	path := writeCapture(t, payload)
	src, err := Open(path, Options{})
	require.NoError(t, err)

	var gotSec, gotNsec int64
	var gotBytes []byte
	probe := &probeStage{fn: func(batch *pipeline.PacketBatch) {
		d, ok := batch.Packet(0)
		if !ok {
			return
		}
		gotSec, gotNsec = d.Buffer().Timestamp()
		gotBytes = append([]byte(nil), d.Buffer().Bytes()...)
	}}
	_, err = src.Register(probe)
	require.NoError(t, err)

	_, err = src.Dispatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(100), gotSec)
	assert.Equal(t, int64(0), gotNsec)
	assert.Equal(t, payload, gotBytes)
}

type probeStage struct {
	fn func(*pipeline.PacketBatch)
}

func (s *probeStage) Name() string { return "probe" }

func (s *probeStage) Init(*pipeline.Pipeline, *pipeline.StageInstance) error { return nil }

func (s *probeStage) Process(_ *pipeline.Pipeline, _ *pipeline.StageInstance, batch *pipeline.PacketBatch) error {
	s.fn(batch)
	return nil
}
