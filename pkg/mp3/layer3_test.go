package mp3

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func readBits(data []uint8, offset, n int) uint32 {
	var v uint32
	for i := offset; i < offset+n; i++ {
		v = v<<1 | uint32(data[i/8]>>(7-i%8)&1)
	}
	return v
}

type frameHeader struct {
	offset        int
	size          int
	mainDataBegin uint32
	// part2_3_length of the first granule of the first channel
	part23Length uint32
}

// parseFrames walks the frame headers of an MPEG Layer III stream.
func parseFrames(requireT *require.Assertions, data []uint8) []frameHeader {
	var frames []frameHeader
	for offset := 0; offset < len(data); {
		bit := offset * 8
		requireT.Equal(uint32(0x7ff), readBits(data, bit, 11), "no sync at byte %d", offset)
		version := readBits(data, bit+11, 2)
		requireT.Equal(uint32(LAYER_III), readBits(data, bit+13, 2))
		bitrate := bitRates[readBits(data, bit+16, 4)][version]
		sampleRateIndex := int(readBits(data, bit+20, 2))
		switch mpegVersion(version) {
		case MPEG_II:
			sampleRateIndex += 3
		case MPEG_25:
			sampleRateIndex += 6
		}
		padding := int(readBits(data, bit+22, 1))
		stereo := readBits(data, bit+24, 2) != uint32(MONO)

		granules := int64(mpegGranulesPerFrame[version])
		size := int(granules*GRANULE_SIZE/8*bitrate*1000/sampleRates[sampleRateIndex]) + padding

		h := frameHeader{offset: offset, size: size}
		if mpegVersion(version) == MPEG_I {
			h.mainDataBegin = readBits(data, bit+32, 9)
			siStart := bit + 32 + 9 + 5 + 4
			if stereo {
				siStart = bit + 32 + 9 + 3 + 8
			}
			h.part23Length = readBits(data, siStart, 12)
		} else {
			h.mainDataBegin = readBits(data, bit+32, 8)
			siStart := bit + 32 + 8 + 1
			if stereo {
				siStart = bit + 32 + 8 + 2
			}
			h.part23Length = readBits(data, siStart, 12)
		}
		frames = append(frames, h)
		offset += size
	}
	requireT.Len(data, frames[len(frames)-1].offset+frames[len(frames)-1].size)
	return frames
}

func encodeSilence(requireT *require.Assertions, cfg Config, nFrames int) []uint8 {
	enc, err := NewEncoder(cfg)
	requireT.NoError(err)
	defer enc.Close()

	frames := make([]*Frame, 0, nFrames)
	for range nFrames {
		frames = append(frames, enc.SilentFrame())
	}
	out := &bytes.Buffer{}
	requireT.NoError(enc.Write(out, frames))
	requireT.NoError(enc.Finish(out))
	requireT.Zero(enc.formatter.Pending())
	return out.Bytes()
}

func TestNewEncoderRejectsUnsupportedConfig(t *testing.T) {
	requireT := require.New(t)

	for _, cfg := range []Config{
		{SampleRate: 44100, Channels: 3},
		{SampleRate: 44100, Channels: 0},
		{SampleRate: 44000, Channels: 2},
		{SampleRate: 22050, Channels: 2, Bitrate: 320},
		{SampleRate: 44100, Channels: 2, ReservoirMaxBits: -1},
	} {
		_, err := NewEncoder(cfg)
		requireT.True(errors.Is(err, ErrUnsupportedConfig), "%+v", cfg)
	}
}

func TestCheckConfig(t *testing.T) {
	requireT := require.New(t)

	version, err := CheckConfig(44100, 128)
	requireT.NoError(err)
	requireT.Equal(MPEG_I, version)

	version, err = CheckConfig(24000, 64)
	requireT.NoError(err)
	requireT.Equal(MPEG_II, version)

	version, err = CheckConfig(8000, 8)
	requireT.NoError(err)
	requireT.Equal(MPEG_25, version)

	_, err = CheckConfig(8000, 128)
	requireT.True(errors.Is(err, ErrUnsupportedConfig))
}

func TestSilentStreamFraming(t *testing.T) {
	for _, cfg := range []Config{
		{SampleRate: 44100, Channels: 2, Bitrate: 128},
		{SampleRate: 44100, Channels: 1, Bitrate: 64},
		{SampleRate: 48000, Channels: 2, Bitrate: 320},
		{SampleRate: 22050, Channels: 2, Bitrate: 64},
		{SampleRate: 16000, Channels: 1, Bitrate: 32},
		{SampleRate: 8000, Channels: 1, Bitrate: 8},
	} {
		t.Run("", func(t *testing.T) {
			requireT := require.New(t)

			data := encodeSilence(requireT, cfg, 20)
			frames := parseFrames(requireT, data)
			requireT.Len(frames, 20)
			for _, h := range frames {
				requireT.Zero(h.mainDataBegin)
			}
		})
	}
}

func TestSilentStreamStuffing(t *testing.T) {
	requireT := require.New(t)

	data := encodeSilence(requireT, Config{SampleRate: 44100, Channels: 2, Bitrate: 128}, 3)
	frames := parseFrames(requireT, data)
	requireT.Len(frames, 3)

	// 418 bytes minus 36 bytes of header and side info, all stuffed into the first granule
	requireT.Equal(418, frames[0].size)
	requireT.Equal(uint32(3056), frames[0].part23Length)
}

func TestReservoirMainDataBegin(t *testing.T) {
	requireT := require.New(t)

	data := encodeSilence(requireT, Config{SampleRate: 44100, Channels: 2, Bitrate: 128, ReservoirMaxBits: 8000}, 5)
	frames := parseFrames(requireT, data)
	requireT.Len(frames, 5)

	// first frame leaves all of its 3056 main data bits to the reservoir, the reservoir
	// is limited to what main_data_begin can address
	requireT.Equal(uint32(0), frames[0].mainDataBegin)
	requireT.Equal(uint32(0), frames[0].part23Length)
	requireT.Equal(uint32(382), frames[1].mainDataBegin)
	requireT.Equal(uint32(2024), frames[1].part23Length)
	requireT.Equal(uint32(511), frames[2].mainDataBegin)
	requireT.Equal(uint32(511), frames[3].mainDataBegin)
}

func TestEncodeFrameScaleFactors(t *testing.T) {
	requireT := require.New(t)

	enc, err := NewEncoder(Config{SampleRate: 44100, Channels: 2, Bitrate: 128})
	requireT.NoError(err)
	defer enc.Close()

	fr := enc.SilentFrame()
	fr.ScaleFactorSelectInfo[0] = [4]uint64{1, 1, 1, 1}
	for gr := range MAX_GRANULES {
		for ch := range MAX_CHANNELS {
			fr.Granules[gr][ch].Info.ScaleFactorCompress = 15
			for sfb := range fr.Granules[gr][ch].ScaleFactors {
				fr.Granules[gr][ch].ScaleFactors[sfb] = int32(sfb % 8)
			}
		}
	}

	_, err = enc.EncodeFrame(fr)
	requireT.NoError(err)
	requireT.Zero(fr.Granules[0][0].Info.Part2_3Length)

	p := &enc.parts
	requireT.Equal(11*4+10*3, p.scaleFactors[0][0].Part().Length())
	requireT.Equal(11*4+10*3, p.scaleFactors[0][1].Part().Length())
	requireT.Zero(p.scaleFactors[1][0].Part().Length())
	requireT.Equal(11*4+10*3, p.scaleFactors[1][1].Part().Length())
	requireT.Equal(BitstreamElement{Value: 5, Length: 4}, p.scaleFactors[0][0].Part().Elements[5])
	requireT.Equal(BitstreamElement{Value: 3, Length: 3}, p.scaleFactors[0][0].Part().Elements[11])

	// reservoir is disabled so the first granule takes the stuffing
	requireT.Equal(BitstreamElement{Value: 3056 - 2*74, Length: 12}, p.spectrumSI[0][0].Part().Elements[0])
	requireT.Equal(BitstreamElement{Value: 74, Length: 12}, p.spectrumSI[0][1].Part().Elements[0])
	requireT.Equal(3056-3*74, p.codedData[0][0].Part().Length())
	requireT.Zero(p.codedData[0][1].Part().Length())
}

func TestEncodeFrameAncillary(t *testing.T) {
	requireT := require.New(t)

	enc, err := NewEncoder(Config{SampleRate: 44100, Channels: 1, Bitrate: 128})
	requireT.NoError(err)
	defer enc.Close()

	fr := enc.SilentFrame()
	fr.Ancillary = &BitstreamPart{Elements: []BitstreamElement{{Value: 0xabcd, Length: 16}}}
	_, err = enc.EncodeFrame(fr)
	requireT.NoError(err)

	// 418 bytes minus 21 bytes of header and side info minus ancillary data
	requireT.Equal(BitstreamElement{Value: 418*8 - 168 - 16, Length: 12}, enc.parts.spectrumSI[0][0].Part().Elements[0])
	requireT.Equal([]BitstreamElement{{Value: 0xabcd, Length: 16}}, enc.parts.ancillary.Part().Elements)
}

func TestEncodeFrameReservoirOverdrawn(t *testing.T) {
	requireT := require.New(t)

	enc, err := NewEncoder(Config{SampleRate: 44100, Channels: 2, Bitrate: 128})
	requireT.NoError(err)
	defer enc.Close()

	fr := enc.SilentFrame()
	coded := &BitstreamPart{}
	for range 125 {
		coded.Elements = append(coded.Elements, BitstreamElement{Value: 0, Length: 32})
	}
	fr.Granules[0][0].CodedData = coded

	slotLag := enc.Mpeg.SlotLag
	_, err = enc.EncodeFrame(fr)
	requireT.True(errors.Is(err, ErrReservoirOverdrawn))
	requireT.Equal(slotLag, enc.Mpeg.SlotLag)
	requireT.Zero(enc.formatter.Pending())

	_, err = enc.EncodeFrame(enc.SilentFrame())
	requireT.NoError(err)
}

func TestEncodeFrameInvalidGranule(t *testing.T) {
	requireT := require.New(t)

	enc, err := NewEncoder(Config{SampleRate: 44100, Channels: 2, Bitrate: 320, ReservoirMaxBits: 4088})
	requireT.NoError(err)
	defer enc.Close()

	fr := enc.SilentFrame()
	fr.Granules[1][0].Info.ScaleFactorCompress = 16
	_, err = enc.EncodeFrame(fr)
	requireT.True(errors.Is(err, ErrInvalidFrame))

	fr = enc.SilentFrame()
	coded := &BitstreamPart{}
	for range 129 {
		coded.Elements = append(coded.Elements, BitstreamElement{Value: 0, Length: 32})
	}
	fr.Granules[0][1].CodedData = coded
	_, err = enc.EncodeFrame(fr)
	requireT.True(errors.Is(err, ErrInvalidFrame))
}

func TestMaxReservoirBits(t *testing.T) {
	requireT := require.New(t)

	enc, err := NewEncoder(Config{SampleRate: 44100, Channels: 2, Bitrate: 128})
	requireT.NoError(err)
	defer enc.Close()

	_, err = enc.EncodeFrame(enc.SilentFrame())
	requireT.NoError(err)
	requireT.Equal(int64(764), enc.MaxReservoirBits(1000))

	enc, err = NewEncoder(Config{SampleRate: 44100, Channels: 2, Bitrate: 128, ReservoirMaxBits: 4088})
	requireT.NoError(err)
	defer enc.Close()

	_, err = enc.EncodeFrame(enc.SilentFrame())
	requireT.NoError(err)
	requireT.Equal(int64(764), enc.MaxReservoirBits(0))
	// 60% of the 3056 bits in the reservoir
	requireT.Equal(int64(764+1833), enc.MaxReservoirBits(1000))
}

func TestEncodeFrameLowSamplingFrequencyScaleFactors(t *testing.T) {
	for _, tc := range []struct {
		sfc         uint64
		part2Length int
		first       BitstreamElement
	}{
		// slen {0, 0, 1, 1} over bands {6, 5, 5, 5}
		{sfc: 5, part2Length: 10, first: BitstreamElement{Value: 11, Length: 1}},
		// slen {0, 3, 2, 0} over bands {6, 5, 7, 3}
		{sfc: 414, part2Length: 29, first: BitstreamElement{Value: 6, Length: 3}},
		// slen {2, 1, 0, 0} over bands {11, 10, 0, 0}
		{sfc: 507, part2Length: 32, first: BitstreamElement{Value: 0, Length: 2}},
	} {
		t.Run("", func(t *testing.T) {
			requireT := require.New(t)

			enc, err := NewEncoder(Config{SampleRate: 22050, Channels: 1, Bitrate: 64})
			requireT.NoError(err)
			defer enc.Close()

			fr := enc.SilentFrame()
			fr.Granules[0][0].Info.ScaleFactorCompress = tc.sfc
			for sfb := range fr.Granules[0][0].ScaleFactors {
				fr.Granules[0][0].ScaleFactors[sfb] = int32(sfb)
			}
			_, err = enc.EncodeFrame(fr)
			requireT.NoError(err)

			p := &enc.parts
			requireT.Equal(tc.part2Length, p.scaleFactors[0][0].Part().Length())
			requireT.Equal(tc.first, p.scaleFactors[0][0].Part().Elements[0])
			requireT.Equal(BitstreamElement{Value: uint32(tc.sfc), Length: 9}, p.spectrumSI[0][0].Part().Elements[3])

			// stuffing keeps the granule filling the frame
			part23 := p.spectrumSI[0][0].Part().Elements[0].Value
			requireT.Equal(int(part23)-tc.part2Length, p.codedData[0][0].Part().Length())
		})
	}
}

func TestEncodeFrameLowSamplingFrequencyInvalidScaleFactorCompress(t *testing.T) {
	requireT := require.New(t)

	enc, err := NewEncoder(Config{SampleRate: 16000, Channels: 1, Bitrate: 32})
	requireT.NoError(err)
	defer enc.Close()

	fr := enc.SilentFrame()
	fr.Granules[0][0].Info.ScaleFactorCompress = 512
	_, err = enc.EncodeFrame(fr)
	requireT.True(errors.Is(err, ErrInvalidFrame))
}

func TestEncodeFrameFailureKeepsEncoderState(t *testing.T) {
	requireT := require.New(t)

	enc, err := NewEncoder(Config{SampleRate: 44100, Channels: 2, Bitrate: 128, ReservoirMaxBits: 8000, MaxPendingFrames: 1})
	requireT.NoError(err)
	defer enc.Close()

	// the first frame leaves its main data to the reservoir so its side info stays queued
	_, err = enc.EncodeFrame(enc.SilentFrame())
	requireT.NoError(err)
	requireT.Equal(1, enc.formatter.Pending())

	slotLag, reservoirSize, mainDataBegin := enc.Mpeg.SlotLag, enc.reservoirSize, enc.mainDataBegin
	for range 2 {
		_, err = enc.EncodeFrame(enc.SilentFrame())
		requireT.True(errors.Is(err, ErrAllocationFailure))
		requireT.Equal(slotLag, enc.Mpeg.SlotLag)
		requireT.Equal(reservoirSize, enc.reservoirSize)
		requireT.Equal(mainDataBegin, enc.mainDataBegin)
		requireT.Equal(1, enc.formatter.Pending())
	}
}
