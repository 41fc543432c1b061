// Layer3 bit reservoir: Described in C.1.5.4.2.2 of the IS
package mp3

import "github.com/pkg/errors"

// MaxReservoirBits is called by the quantizer at the beginning of each granule to get the max bit
// allowance for the current granule based on reservoir size and perceptual entropy.
func (enc *Encoder) MaxReservoirBits(pe float64) int64 {
	var (
		moreBits int64
		maxBits  int64
		addBits  int64
		overBits int64
		meanBits = enc.meanBits
	)
	meanBits /= enc.Wave.Channels
	maxBits = meanBits
	if maxBits > MAX_PART23_LENGTH {
		maxBits = MAX_PART23_LENGTH
	}
	if enc.reservoirMaxSize == 0 {
		return maxBits
	}
	moreBits = int64(pe*3.1 - float64(meanBits))
	addBits = 0
	if moreBits > 100 {
		frac := (enc.reservoirSize * 6) / 10
		if frac < moreBits {
			addBits = frac
		} else {
			addBits = moreBits
		}
	}
	overBits = enc.reservoirSize - (enc.reservoirMaxSize<<3)/10 - addBits
	if overBits > 0 {
		addBits += overBits
	}
	maxBits += addBits
	if maxBits > MAX_PART23_LENGTH {
		maxBits = MAX_PART23_LENGTH
	}
	return maxBits
}

// reservoirCheck verifies that the frame fits into the mean bits of the frame plus the reservoir.
func (enc *Encoder) reservoirCheck(fr *Frame) error {
	size := enc.reservoirSize - int64(fr.Ancillary.Length())
	for gr := range enc.Mpeg.GranulesPerFrame {
		for ch := range enc.Wave.Channels {
			size += enc.meanBits/enc.Wave.Channels - int64(fr.Granules[gr][ch].Info.Part2_3Length)
		}
	}
	if size < 0 {
		return errors.Wrapf(ErrReservoirOverdrawn, "frame needs %d bits more than available", -size)
	}
	return nil
}

// reservoirAdjust is called after a granule's bit allocation. It readjusts the size of
// the reservoir to reflect the granule's usage.
func (enc *Encoder) reservoirAdjust(gi *GranuleInfo) {
	enc.reservoirSize += enc.meanBits/enc.Wave.Channels - int64(gi.Part2_3Length)
}

// reservoirFrameEnd is called after all granules of a frame have been adjusted. Bits over the
// reservoir size, and bits keeping the reservoir from a byte boundary, are stuffed into the
// granules. Stuffing which does not fit into the granules is returned as drain bits.
func (enc *Encoder) reservoirFrameEnd(fr *Frame) int64 {
	if enc.Wave.Channels == 2 && (enc.meanBits&1) != 0 {
		enc.reservoirSize++
	}
	overBits := enc.reservoirSize - enc.reservoirMaxSize
	if overBits < 0 {
		overBits = 0
	}
	enc.reservoirSize -= overBits
	stuffingBits := overBits
	if overBits = enc.reservoirSize % 8; overBits != 0 {
		stuffingBits += overBits
		enc.reservoirSize -= overBits
	}
	if stuffingBits == 0 {
		return 0
	}

	gi := &fr.Granules[0][0].Info
	if gi.Part2_3Length+uint64(stuffingBits) < MAX_PART23_LENGTH {
		gi.Part2_3Length += uint64(stuffingBits)
		return 0
	}
	for gr := range enc.Mpeg.GranulesPerFrame {
		for ch := range enc.Wave.Channels {
			if stuffingBits == 0 {
				return 0
			}
			gi := &fr.Granules[gr][ch].Info
			bitsThisGr := min(int64(MAX_PART23_LENGTH-gi.Part2_3Length), stuffingBits)
			gi.Part2_3Length += uint64(bitsThisGr)
			stuffingBits -= bitsThisGr
		}
	}
	return stuffingBits
}
