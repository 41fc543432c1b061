package mp3

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SideInfoSnapshot is a private copy of the header and side information of one frame.
type SideInfoSnapshot struct {
	FrameLength int
	SILength    int
	NGranules   int
	NChannels   int
	Header      *PartHolder
	FrameSI     *PartHolder
	ChannelSI   [MAX_CHANNELS]*PartHolder
	SpectrumSI  [MAX_GRANULES][MAX_CHANNELS]*PartHolder
}

// free releases the holders of the snapshot.
func (si *SideInfoSnapshot) free() {
	si.Header.Free()
	si.FrameSI.Free()
	for ch := range si.ChannelSI {
		if si.ChannelSI[ch] != nil {
			si.ChannelSI[ch].Free()
		}
	}
	for gr := range si.SpectrumSI {
		for ch := range si.SpectrumSI[gr] {
			if si.SpectrumSI[gr][ch] != nil {
				si.SpectrumSI[gr][ch].Free()
			}
		}
	}
	*si = SideInfoSnapshot{}
}

// sideInfoNode is a pool slot. Its geometry is fixed by the frame which caused the allocation.
type sideInfoNode struct {
	sideInfo  SideInfoSnapshot
	nGranules int
	nChannels int
}

// sideInfoQueue keeps the side info of frames whose header has not been written yet.
// Nodes are never released before close, they move between the pending and free queues.
type sideInfoQueue struct {
	nodes    []*sideInfoNode
	pending  []int
	free     []int
	maxNodes int
	log      *zap.Logger
}

func newSideInfoQueue(maxNodes int, log *zap.Logger) sideInfoQueue {
	return sideInfoQueue{
		maxNodes: maxNodes,
		log:      log,
	}
}

// store copies the header and side info of the frame to the end of the queue and returns its length in bits.
func (q *sideInfoQueue) store(info *FrameData) (int, error) {
	if info.NGranules < 1 || info.NGranules > MAX_GRANULES || info.NChannels < 1 || info.NChannels > MAX_CHANNELS {
		return 0, errors.Wrapf(ErrCapacityMismatch, "frame has %d granules and %d channels, maximum is %d and %d",
			info.NGranules, info.NChannels, MAX_GRANULES, MAX_CHANNELS)
	}

	bits := info.Header.Length() + info.FrameSI.Length()
	for ch := range info.NChannels {
		bits += info.ChannelSI[ch].Length()
	}
	for gr := range info.NGranules {
		for ch := range info.NChannels {
			bits += info.SpectrumSI[gr][ch].Length()
		}
	}
	if info.FrameLength < bits {
		return 0, errors.Wrapf(ErrInvalidFrame, "frame length %d is shorter than its side info %d",
			info.FrameLength, bits)
	}

	index, err := q.obtain(info)
	if err != nil {
		return 0, err
	}

	si := &q.nodes[index].sideInfo
	si.FrameLength = info.FrameLength
	si.NGranules = info.NGranules
	si.NChannels = info.NChannels
	si.SILength = bits
	si.Header.LoadFromPart(info.Header)
	si.FrameSI.LoadFromPart(info.FrameSI)
	for ch := range info.NChannels {
		si.ChannelSI[ch].LoadFromPart(info.ChannelSI[ch])
	}
	for gr := range info.NGranules {
		for ch := range info.NChannels {
			si.SpectrumSI[gr][ch].LoadFromPart(info.SpectrumSI[gr][ch])
		}
	}

	q.pending = append(q.pending, index)
	return bits, nil
}

// obtain takes a node from the free queue, or allocates a new one sized for the frame.
func (q *sideInfoQueue) obtain(info *FrameData) (int, error) {
	if len(q.free) > 0 {
		index := q.free[0]
		node := q.nodes[index]
		if info.NGranules > node.nGranules || info.NChannels > node.nChannels {
			return 0, errors.Wrapf(ErrCapacityMismatch,
				"frame has %d granules and %d channels, recycled side info holds %d and %d",
				info.NGranules, info.NChannels, node.nGranules, node.nChannels)
		}
		copy(q.free, q.free[1:])
		q.free = q.free[:len(q.free)-1]
		return index, nil
	}

	if q.maxNodes > 0 && len(q.nodes) >= q.maxNodes {
		return 0, errors.Wrapf(ErrAllocationFailure, "%d frames are already waiting for main data", len(q.pending))
	}

	node := &sideInfoNode{
		nGranules: info.NGranules,
		nChannels: info.NChannels,
		sideInfo: SideInfoSnapshot{
			Header:  NewPartHolder(info.Header.NrEntries()),
			FrameSI: NewPartHolder(info.FrameSI.NrEntries()),
		},
	}
	for ch := range info.NChannels {
		node.sideInfo.ChannelSI[ch] = NewPartHolder(info.ChannelSI[ch].NrEntries())
	}
	for gr := range info.NGranules {
		for ch := range info.NChannels {
			node.sideInfo.SpectrumSI[gr][ch] = NewPartHolder(info.SpectrumSI[gr][ch].NrEntries())
		}
	}
	q.nodes = append(q.nodes, node)

	q.log.Debug("Side info node allocated",
		zap.Int("nodes", len(q.nodes)),
		zap.Int("granules", info.NGranules),
		zap.Int("channels", info.NChannels))

	return len(q.nodes) - 1, nil
}

// get removes the oldest side info from the queue. The snapshot stays valid until the next call
// to get or store, whichever comes first.
func (q *sideInfoQueue) get() (*SideInfoSnapshot, error) {
	if len(q.pending) == 0 {
		return nil, errors.WithStack(ErrQueueUnderflow)
	}
	index := q.pending[0]
	copy(q.pending, q.pending[1:])
	q.pending = q.pending[:len(q.pending)-1]
	q.free = append(q.free, index)
	return &q.nodes[index].sideInfo, nil
}

// len returns the number of frames whose side info is still queued.
func (q *sideInfoQueue) len() int {
	return len(q.pending)
}

// pendingMainDataBits returns the main data capacity of all queued frames.
func (q *sideInfoQueue) pendingMainDataBits() int {
	var bits int
	for _, index := range q.pending {
		si := &q.nodes[index].sideInfo
		bits += si.FrameLength - si.SILength
	}
	return bits
}

// close releases every node, queued or free.
func (q *sideInfoQueue) close() {
	for _, node := range q.nodes {
		node.sideInfo.free()
	}
	q.nodes = nil
	q.pending = nil
	q.free = nil
}
