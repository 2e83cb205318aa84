package pipeline

// PacketDescriptor is the handle stages see for one frame: the packet
// buffer plus one scratch slot per registered stage index. The engine
// stores scratch values opaquely and never inspects them.
type PacketDescriptor struct {
	buf     *PacketBuffer
	scratch []any
}

// Buffer returns the frame's packet buffer.
func (d *PacketDescriptor) Buffer() *PacketBuffer { return d.buf }

// Scratch returns the value a stage previously stored under its index.
func (d *PacketDescriptor) Scratch(index int) any {
	if index < 0 || index >= len(d.scratch) {
		return nil
	}
	return d.scratch[index]
}

// SetScratch stores a per-packet value under the given stage index.
func (d *PacketDescriptor) SetScratch(index int, v any) {
	if index >= 0 && index < len(d.scratch) {
		d.scratch[index] = v
	}
}

// batchSlot models a batch entry explicitly as present-or-claimed rather
// than a nil sentinel, so a claimed slot cannot be mistaken for a bug.
type batchSlot struct {
	desc    *PacketDescriptor
	claimed bool
}

// PacketBatch is the ordered set of descriptors offered to stages during
// one dispatch cycle. The engine owns it exclusively for the cycle; it is
// never retained across cycles. The slot capacity may exceed the valid
// extent when the capture mechanism delivers frames in blocks.
type PacketBatch struct {
	slots  []batchSlot
	extent int
}

// NewPacketBatch creates a batch able to hold up to capacity descriptors.
func NewPacketBatch(capacity int) *PacketBatch {
	if capacity < 1 {
		capacity = 1
	}
	return &PacketBatch{slots: make([]batchSlot, capacity)}
}

// load repopulates the batch for a new dispatch cycle.
func (b *PacketBatch) load(descs ...*PacketDescriptor) {
	if len(descs) > len(b.slots) {
		b.slots = make([]batchSlot, len(descs))
	}
	for i := range b.slots {
		b.slots[i] = batchSlot{}
	}
	for i, d := range descs {
		b.slots[i] = batchSlot{desc: d}
	}
	b.extent = len(descs)
}

// Extent reports how many slots are valid for this cycle, claimed or not.
func (b *PacketBatch) Extent() int { return b.extent }

// Packet returns the descriptor at slot i, or ok=false when the slot was
// claimed by an earlier stage (or i is out of the valid extent).
func (b *PacketBatch) Packet(i int) (*PacketDescriptor, bool) {
	if i < 0 || i >= b.extent || b.slots[i].claimed {
		return nil, false
	}
	return b.slots[i].desc, true
}

// Claim removes slot i from further consideration and transfers ownership
// of the descriptor to the caller, which becomes responsible for releasing
// the buffer. Absence is permanent for the remainder of the batch.
func (b *PacketBatch) Claim(i int) (*PacketDescriptor, bool) {
	if i < 0 || i >= b.extent || b.slots[i].claimed {
		return nil, false
	}
	d := b.slots[i].desc
	b.slots[i].claimed = true
	b.slots[i].desc = nil
	return d, true
}

// releaseRemaining returns every still-present buffer to the pool after
// the last stage has run, and reports how many were released.
func (b *PacketBatch) releaseRemaining() int {
	released := 0
	for i := 0; i < b.extent; i++ {
		if s := &b.slots[i]; !s.claimed && s.desc != nil {
			s.desc.Buffer().Release()
			s.desc = nil
			s.claimed = true
			released++
		}
	}
	return released
}
