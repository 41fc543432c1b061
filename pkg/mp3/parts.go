package mp3

import "github.com/samber/lo"

// extraPad is how many spare elements a holder gets when it has to grow.
const extraPad = 8

// BitstreamElement is encoded data to be written to the bitstream.
// Length bits of Value are written msb-first.
type BitstreamElement struct {
	Value  uint32
	Length uint
}

// BitstreamPart is a group of elements written to the bitstream in order.
type BitstreamPart struct {
	Elements []BitstreamElement
}

// NrEntries returns the number of elements in the part.
func (p *BitstreamPart) NrEntries() int {
	if p == nil {
		return 0
	}
	return len(p.Elements)
}

// Length returns the number of bits in the part. A nil part is empty.
func (p *BitstreamPart) Length() int {
	if p == nil {
		return 0
	}
	return lo.SumBy(p.Elements, func(e BitstreamElement) int {
		return int(e.Length)
	})
}

// PartHolder owns the storage of a BitstreamPart and grows it on demand.
type PartHolder struct {
	maxElements int
	part        BitstreamPart
}

// NewPartHolder allocates an empty holder for maxElements elements.
func NewPartHolder(maxElements int) *PartHolder {
	if maxElements < 0 {
		maxElements = 0
	}
	return &PartHolder{
		maxElements: maxElements,
		part: BitstreamPart{
			Elements: make([]BitstreamElement, 0, maxElements),
		},
	}
}

// NewPartHolderFromPart allocates a holder sized for p and loads it.
func NewPartHolderFromPart(p *BitstreamPart) *PartHolder {
	h := NewPartHolder(p.NrEntries())
	h.LoadFromPart(p)
	return h
}

// Part returns the held part. It stays valid until the holder is modified.
func (h *PartHolder) Part() *BitstreamPart {
	return &h.part
}

// MaxElements returns the number of elements the holder can take without growing.
func (h *PartHolder) MaxElements() int {
	return h.maxElements
}

// AddElement appends e, growing the holder first if it is full.
func (h *PartHolder) AddElement(e BitstreamElement) {
	needed := len(h.part.Elements) + 1
	if needed > h.maxElements {
		h.Resize(needed + extraPad)
	}
	h.part.Elements = append(h.part.Elements, e)
}

// AddEntry appends length bits of value. Zero-length entries carry no bits and are dropped.
func (h *PartHolder) AddEntry(value uint32, length uint) {
	if length == 0 {
		return
	}
	h.AddElement(BitstreamElement{Value: value, Length: length})
}

// LoadFromPart replaces the contents of the holder with the elements of p,
// keeping the existing storage when it is large enough. Zero-length elements are skipped.
func (h *PartHolder) LoadFromPart(p *BitstreamPart) {
	h.Reset()
	if p == nil {
		return
	}
	for _, e := range p.Elements {
		h.AddEntry(e.Value, e.Length)
	}
}

// Reset empties the holder without releasing its storage.
func (h *PartHolder) Reset() {
	h.part.Elements = h.part.Elements[:0]
}

// Resize moves the elements to new storage of maxElements capacity.
// Elements which do not fit are dropped.
func (h *PartHolder) Resize(maxElements int) {
	if maxElements < 0 {
		maxElements = 0
	}
	elements := make([]BitstreamElement, min(len(h.part.Elements), maxElements), maxElements)
	copy(elements, h.part.Elements)
	h.part.Elements = elements
	h.maxElements = maxElements
}

// Free releases the storage of the holder.
func (h *PartHolder) Free() {
	h.part.Elements = nil
	h.maxElements = 0
}
