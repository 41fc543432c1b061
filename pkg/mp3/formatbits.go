package mp3

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FrameData contains everything the formatter needs to write one frame.
// Nil parts are written as empty parts.
type FrameData struct {
	// Frame length in bits, header and side info included.
	FrameLength   int
	NGranules     int
	NChannels     int
	Header        *BitstreamPart
	FrameSI       *BitstreamPart
	ChannelSI     [MAX_CHANNELS]*BitstreamPart
	SpectrumSI    [MAX_GRANULES][MAX_CHANNELS]*BitstreamPart
	ScaleFactors  [MAX_GRANULES][MAX_CHANNELS]*BitstreamPart
	CodedData     [MAX_GRANULES][MAX_CHANNELS]*BitstreamPart
	UserSpectrum  [MAX_GRANULES][MAX_CHANNELS]*BitstreamPart
	UserFrameData *BitstreamPart
}

// FrameResults reports what the formatter did with a frame.
type FrameResults struct {
	SILength       int
	MainDataLength int
	// NextBackPtr is the main_data_begin value, in bytes, for the next frame.
	NextBackPtr int
}

// Formatter writes main data to a sink, inserting the header and side info of each frame at
// its frame boundary. Main data of a frame may start in the frames before it, so side info
// waits in a queue until the main data reaches its frame.
//
// A Formatter is not safe for concurrent use.
type Formatter struct {
	sink  BitSink
	queue sideInfoQueue

	bitCount      int
	thisFrameSize int
	bitsRemaining int
}

// NewFormatter returns a formatter writing to sink. At most maxPending frames may wait for their
// main data, zero means no limit.
func NewFormatter(sink BitSink, maxPending int, log *zap.Logger) *Formatter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Formatter{
		sink:  sink,
		queue: newSideInfoQueue(maxPending, log),
	}
}

// BitstreamFrame writes one frame of main data, inserting queued side info to maintain framing.
//
// Header, side info and main data of each call must add up to a whole number of bytes over the
// stream, formatter does not add stuffing.
func (f *Formatter) BitstreamFrame(frameInfo *FrameData) (FrameResults, error) {
	var results FrameResults

	siLength, err := f.queue.store(frameInfo)
	if err != nil {
		return results, err
	}
	results.SILength = siLength

	mainDataLength, err := f.mainData(frameInfo)
	results.MainDataLength = mainDataLength
	if err != nil {
		return results, err
	}

	results.NextBackPtr = (f.bitsRemaining + f.queue.pendingMainDataBits()) / 8
	return results, nil
}

// Flush pads the stream with zeros until the side info of every stored frame has been written
// and the last frame is full. It returns the number of padding bits.
func (f *Formatter) Flush() (int, error) {
	var bits int
	for {
		if f.bitCount == f.thisFrameSize {
			if f.queue.len() == 0 {
				return bits, nil
			}
			if err := f.writeSideInfo(); err != nil {
				return bits, err
			}
			continue
		}

		n := min(f.bitsRemaining, MAX_LENGTH)
		f.sink.PutBits(0, uint(n))
		f.bitCount += n
		f.bitsRemaining -= n
		bits += n
	}
}

// Pending returns the number of frames whose side info has not been written yet.
func (f *Formatter) Pending() int {
	return f.queue.len()
}

// Close releases all the side info storage and resets the formatter.
func (f *Formatter) Close() {
	f.queue.close()
	f.bitCount = 0
	f.thisFrameSize = 0
	f.bitsRemaining = 0
}

func (f *Formatter) mainData(fi *FrameData) (int, error) {
	var bits int
	for gr := range fi.NGranules {
		for ch := range fi.NChannels {
			for _, part := range []*BitstreamPart{fi.ScaleFactors[gr][ch], fi.CodedData[gr][ch], fi.UserSpectrum[gr][ch]} {
				n, err := f.writePartMainData(part)
				bits += n
				if err != nil {
					return bits, errors.WithMessagef(err, "granule %d, channel %d", gr, ch)
				}
			}
		}
	}
	n, err := f.writePartMainData(fi.UserFrameData)
	return bits + n, err
}

func (f *Formatter) writePartMainData(part *BitstreamPart) (int, error) {
	if part == nil {
		return 0, nil
	}
	var bits int
	for _, e := range part.Elements {
		if err := f.writeMainDataBits(e.Value, e.Length); err != nil {
			return bits, err
		}
		bits += int(e.Length)
	}
	return bits, nil
}

func (f *Formatter) writePartSideInfo(part *BitstreamPart) int {
	var bits int
	for _, e := range part.Elements {
		f.sink.PutBits(e.Value, e.Length)
		bits += int(e.Length)
	}
	return bits
}

// writeMainDataBits writes nbits of val, making sure that the frame header and side info
// are inserted at the proper locations. When the bits cross a frame boundary the
// value is split and the side info goes between both halves.
func (f *Formatter) writeMainDataBits(val uint32, nbits uint) error {
	if nbits > MAX_LENGTH {
		return errors.Wrapf(ErrInvalidFrame, "element of %d bits is longer than %d", nbits, MAX_LENGTH)
	}
	if f.bitCount == f.thisFrameSize {
		if err := f.writeSideInfo(); err != nil {
			return err
		}
	}
	if nbits == 0 {
		return nil
	}
	for nbits > uint(f.bitsRemaining) {
		remaining := uint(f.bitsRemaining)
		f.sink.PutBits(val>>(nbits-remaining), remaining)
		nbits -= remaining
		f.bitCount = f.thisFrameSize
		f.bitsRemaining = 0
		if err := f.writeSideInfo(); err != nil {
			return err
		}
	}
	f.sink.PutBits(val, nbits)
	f.bitCount += int(nbits)
	f.bitsRemaining -= int(nbits)
	return nil
}

// writeSideInfo writes the header and side info of the next frame and starts that frame.
func (f *Formatter) writeSideInfo() error {
	si, err := f.queue.get()
	if err != nil {
		return errors.WithMessagef(err, "main data exceeds the stored frames at bit %d of %d",
			f.bitCount, f.thisFrameSize)
	}

	bits := f.writePartSideInfo(si.Header.Part())
	bits += f.writePartSideInfo(si.FrameSI.Part())
	for ch := range si.NChannels {
		bits += f.writePartSideInfo(si.ChannelSI[ch].Part())
	}
	for gr := range si.NGranules {
		for ch := range si.NChannels {
			bits += f.writePartSideInfo(si.SpectrumSI[gr][ch].Part())
		}
	}

	f.thisFrameSize = si.FrameLength
	f.bitCount = bits
	f.bitsRemaining = f.thisFrameSize - f.bitCount
	return nil
}
