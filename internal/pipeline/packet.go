package pipeline

import (
	"sync"
	"time"

	"github.com/google/gopacket"
)

const (
	// MaxCaptureLen is the largest captured range a buffer can hold.
	// Frames longer than this are clamped at construction.
	MaxCaptureLen = 65536

	// DefaultHeadroom is the payload offset inside the backing store.
	// Data begins at a fixed offset so a stage that replaces a frame
	// with a longer encapsulation can grow into the headroom.
	DefaultHeadroom = 2048
)

// BufferStatus tracks whether a buffer still holds a live frame.
type BufferStatus uint8

const (
	// StatusReady means the buffer holds a captured frame.
	StatusReady BufferStatus = iota
	// StatusConsumed means the storage went back to the pool.
	StatusConsumed
)

// PacketBuffer owns the raw bytes of one captured frame. It is the single
// place where native per-frame metadata is parsed into fields; every other
// component operates on the parsed form and on the byte range
// [offset, offset+captureLen) only.
type PacketBuffer struct {
	store      []byte
	offset     int
	captureLen int
	origLen    int
	sec        int64
	nsec       int64
	status     BufferStatus
	pool       *BufferPool

	releaseOnce sync.Once
}

// Timestamp returns the capture time as whole seconds plus the
// sub-second fraction in nanoseconds.
func (b *PacketBuffer) Timestamp() (sec, nsec int64) { return b.sec, b.nsec }

// Time returns the capture time as a time.Time.
func (b *PacketBuffer) Time() time.Time { return time.Unix(b.sec, b.nsec) }

// CaptureLen reports how many bytes were actually captured.
func (b *PacketBuffer) CaptureLen() int { return b.captureLen }

// OrigLen reports the original on-wire length of the frame.
func (b *PacketBuffer) OrigLen() int { return b.origLen }

// Offset reports where the payload begins inside the backing store.
func (b *PacketBuffer) Offset() int { return b.offset }

// Status reports whether the buffer is live or already released.
func (b *PacketBuffer) Status() BufferStatus { return b.status }

// Bytes exposes exactly the captured range. Stages must not write
// outside the returned slice.
func (b *PacketBuffer) Bytes() []byte {
	return b.store[b.offset : b.offset+b.captureLen]
}

// CaptureInfo rebuilds the per-frame metadata in gopacket form, for
// stages that hand frames back to a capture-format writer.
func (b *PacketBuffer) CaptureInfo() gopacket.CaptureInfo {
	return gopacket.CaptureInfo{
		Timestamp:     b.Time(),
		CaptureLength: b.captureLen,
		Length:        b.origLen,
	}
}

// Truncate shrinks the captured range to n bytes. Growing it is not
// allowed; a stage that needs more room must replace the frame instead.
func (b *PacketBuffer) Truncate(n int) error {
	if b.status == StatusConsumed {
		return ErrBufferConsumed
	}
	if n > b.captureLen || n < 0 {
		return ErrBufferGrow
	}
	b.captureLen = n
	return nil
}

// Release marks the buffer consumed and returns its storage to the pool.
// Safe to call more than once; only the first call has an effect.
func (b *PacketBuffer) Release() {
	b.releaseOnce.Do(func() {
		b.status = StatusConsumed
		if b.pool != nil {
			b.pool.put(b.store)
		}
		b.store = nil
		b.captureLen = 0
	})
}

// BufferPool hands out fixed-size backing arrays for packet buffers and
// takes them back once no stage holds a live reference. It stands in for
// the capture mechanism's own ring: returning a buffer here is what makes
// the slot reusable for the next frame.
type BufferPool struct {
	headroom int
	maxLen   int
	pool     sync.Pool
}

// NewBufferPool creates a pool of MaxCaptureLen+DefaultHeadroom stores.
func NewBufferPool() *BufferPool {
	p := &BufferPool{
		headroom: DefaultHeadroom,
		maxLen:   MaxCaptureLen,
	}
	p.pool.New = func() any {
		return make([]byte, p.headroom+p.maxLen)
	}
	return p
}

// Get builds a PacketBuffer from one frame's native metadata and bytes.
// The data slice is only valid for the duration of the capture callback,
// so the bytes are copied into pooled storage at the payload offset.
func (p *BufferPool) Get(ci gopacket.CaptureInfo, data []byte) *PacketBuffer {
	capLen := ci.CaptureLength
	if capLen > len(data) {
		capLen = len(data)
	}
	if capLen > p.maxLen {
		capLen = p.maxLen
	}
	store := p.pool.Get().([]byte)
	copy(store[p.headroom:], data[:capLen])
	return &PacketBuffer{
		store:      store,
		offset:     p.headroom,
		captureLen: capLen,
		origLen:    ci.Length,
		sec:        ci.Timestamp.Unix(),
		nsec:       int64(ci.Timestamp.Nanosecond()),
		status:     StatusReady,
		pool:       p,
	}
}

func (p *BufferPool) put(store []byte) {
	if cap(store) == p.headroom+p.maxLen {
		p.pool.Put(store[:cap(store)])
	}
}
