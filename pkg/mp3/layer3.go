package mp3

import (
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type mpegVersion int

const (
	MPEG_25 mpegVersion = 0
	MPEG_II mpegVersion = 2
	MPEG_I  mpegVersion = 3
)

type mpegLayer int

// Only Layer III currently implemented
const LAYER_III mpegLayer = 1

var mpegGranulesPerFrame = [4]int{
	// MPEG 2.5
	1,
	// Reserved
	-1,
	// MPEG II
	1,
	// MPEG I
	2,
}

// Largest main_data_begin, in bytes, per MPEG version.
var maxMainDataBegin = [4]int64{255, -1, 255, 511}

func getMpegVersion(sampleRateIndex int) mpegVersion {
	if sampleRateIndex < 3 {
		return MPEG_I
	} else if sampleRateIndex < 6 {
		return MPEG_II
	} else {
		return MPEG_25
	}
}

// findSampleRateIndex checks if a given sampleRate is supported by the encoder
func findSampleRateIndex(freq int) (int, error) {
	for i := range sampleRates {
		if freq == int(sampleRates[i]) {
			return i, nil
		}
	}
	return -1, errors.Wrapf(ErrUnsupportedConfig, "unsupported frequency: %v", freq)
}

// findBitrateIndex checks if a given bitrate is supported by the encoder
func findBitrateIndex(bitrate int, mpegVer mpegVersion) (int, error) {
	for i := range bitRates {
		if bitrate == int(bitRates[i][mpegVer]) {
			return i, nil
		}
	}
	return -1, errors.Wrapf(ErrUnsupportedConfig, "unsupported bitrate: %v", bitrate)
}

// CheckConfig checks if a given bitrate and sampleRate is supported by the encoder
func CheckConfig(freq int, bitrate int) (mpegVersion, error) {
	sampleRateIndex, err := findSampleRateIndex(freq)
	if err != nil {
		return -1, err
	}
	mpegVer := getMpegVersion(sampleRateIndex)
	_, err = findBitrateIndex(bitrate, mpegVer)
	if err != nil {
		return -1, err
	}
	return mpegVer, nil
}

// SamplesPerPass returns the audio samples per channel expected in each frame.
func (enc *Encoder) SamplesPerPass() int64 {
	return enc.Mpeg.GranulesPerFrame * GRANULE_SIZE
}

// NewEncoder creates a new encoder for the given configuration.
func NewEncoder(cfg Config) (*Encoder, error) {
	if cfg.Channels < 1 || cfg.Channels > MAX_CHANNELS {
		return nil, errors.Wrapf(ErrUnsupportedConfig, "unsupported number of channels: %d", cfg.Channels)
	}
	if cfg.Bitrate == 0 {
		cfg.Bitrate = 128
	}
	if cfg.ReservoirMaxBits < 0 {
		return nil, errors.Wrapf(ErrUnsupportedConfig, "negative reservoir size: %d", cfg.ReservoirMaxBits)
	}

	sampleRateIndex, err := findSampleRateIndex(cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	mpegVer := getMpegVersion(sampleRateIndex)
	bitrateIndex, err := findBitrateIndex(cfg.Bitrate, mpegVer)
	if err != nil {
		return nil, err
	}

	enc := new(Encoder)
	enc.log = cfg.Logger
	if enc.log == nil {
		enc.log = zap.NewNop()
	}

	if cfg.Channels > 1 {
		enc.Mpeg.Mode = STEREO
	} else {
		enc.Mpeg.Mode = MONO
	}

	enc.Wave.Channels = int64(cfg.Channels)
	enc.Wave.SampleRate = int64(cfg.SampleRate)
	enc.Mpeg.Bitrate = int64(cfg.Bitrate)
	enc.Mpeg.Emphasis = cfg.Emphasis
	if cfg.Copyright {
		enc.Mpeg.Copyright = 1
	}
	if cfg.Original {
		enc.Mpeg.Original = 1
	}
	enc.Mpeg.Layer = int64(LAYER_III)
	enc.Mpeg.Crc = 0
	enc.Mpeg.Ext = 0
	enc.Mpeg.ModeExt = 0
	enc.Mpeg.BitsPerSlot = 8
	enc.Mpeg.SampleRateIndex = int64(sampleRateIndex)
	enc.Mpeg.Version = mpegVer
	enc.Mpeg.BitrateIndex = int64(bitrateIndex)
	enc.Mpeg.GranulesPerFrame = int64(mpegGranulesPerFrame[enc.Mpeg.Version])

	// average slots per frame, whole part kept exact so padding never drifts
	slotBits := enc.Mpeg.GranulesPerFrame * GRANULE_SIZE * enc.Mpeg.Bitrate * 1000
	slotDiv := enc.Wave.SampleRate * enc.Mpeg.BitsPerSlot
	enc.Mpeg.WholeSlotsPerFrame = slotBits / slotDiv
	enc.Mpeg.FracSlotsPerFrame = float64(slotBits%slotDiv) / float64(slotDiv)
	enc.Mpeg.SlotLag = -enc.Mpeg.FracSlotsPerFrame
	if enc.Mpeg.FracSlotsPerFrame == 0 {
		enc.Mpeg.Padding = 0
	}

	// the reservoir may not grow past what main_data_begin can point to
	enc.reservoirMaxSize = min(int64(cfg.ReservoirMaxBits), maxMainDataBegin[enc.Mpeg.Version]*8)
	enc.reservoirSize = 0
	enc.mainDataBegin = 0

	// determine the length of header and side info
	if enc.Mpeg.GranulesPerFrame == 2 {
		// MPEG 1
		delta := 4 + 32
		if enc.Wave.Channels == 1 {
			delta = 4 + 17
		}
		enc.sideInfoLen = int64(8 * delta)
	} else {
		// MPEG 2
		delta := 4 + 17
		if enc.Wave.Channels == 1 {
			delta = 4 + 9
		}
		enc.sideInfoLen = int64(8 * delta)
	}

	enc.bitstream.open(BUFFER_SIZE)
	enc.parts = newFrameParts()
	enc.formatter = NewFormatter(&enc.bitstream, cfg.MaxPendingFrames, enc.log)

	enc.log.Debug("Encoder created",
		zap.Int64("sampleRate", enc.Wave.SampleRate),
		zap.Int64("channels", enc.Wave.Channels),
		zap.Int64("bitrate", enc.Mpeg.Bitrate),
		zap.Int("version", int(enc.Mpeg.Version)),
		zap.Int64("reservoirMaxBits", enc.reservoirMaxSize))

	return enc, nil
}

// nextFrameLength sets padding, frame length and the mean bits per granule of the next frame.
func (enc *Encoder) nextFrameLength() {
	if enc.Mpeg.FracSlotsPerFrame != 0 {
		if enc.Mpeg.SlotLag <= (enc.Mpeg.FracSlotsPerFrame - 1.0) {
			enc.Mpeg.Padding = 1
		} else {
			enc.Mpeg.Padding = 0
		}
		enc.Mpeg.SlotLag += float64(enc.Mpeg.Padding) - enc.Mpeg.FracSlotsPerFrame
	}
	enc.Mpeg.BitsPerFrame = (enc.Mpeg.WholeSlotsPerFrame + enc.Mpeg.Padding) * 8
	enc.meanBits = (enc.Mpeg.BitsPerFrame - enc.sideInfoLen) / enc.Mpeg.GranulesPerFrame
}

// EncodeFrame formats one frame of quantized and coded audio and returns the bytes
// completed so far. The returned slice is valid until the next call.
// Part2Length and Part2_3Length of the granules are computed from the data.
func (enc *Encoder) EncodeFrame(in *Frame) ([]uint8, error) {
	fr := *in
	for gr := range enc.Mpeg.GranulesPerFrame {
		for ch := range enc.Wave.Channels {
			part2Length, err := enc.part2Length(&fr, gr, ch)
			if err != nil {
				return nil, err
			}
			gi := &fr.Granules[gr][ch].Info
			gi.Part2Length = part2Length
			gi.Part2_3Length = part2Length + uint64(fr.Granules[gr][ch].CodedData.Length())
			if gi.Part2_3Length > MAX_PART23_LENGTH {
				return nil, errors.Wrapf(ErrInvalidFrame, "granule %d, channel %d has %d bits, maximum is %d",
					gr, ch, gi.Part2_3Length, MAX_PART23_LENGTH)
			}
		}
	}

	// a failed frame leaves the timing and the reservoir as they were
	slotLag, reservoirSize, mainDataBegin := enc.Mpeg.SlotLag, enc.reservoirSize, enc.mainDataBegin
	restore := func() {
		enc.Mpeg.SlotLag = slotLag
		enc.reservoirSize = reservoirSize
		enc.mainDataBegin = mainDataBegin
	}

	enc.nextFrameLength()
	if err := enc.reservoirCheck(&fr); err != nil {
		restore()
		return nil, err
	}

	for gr := range enc.Mpeg.GranulesPerFrame {
		for ch := range enc.Wave.Channels {
			enc.reservoirAdjust(&fr.Granules[gr][ch].Info)
		}
	}
	enc.reservoirSize -= int64(fr.Ancillary.Length())
	drainBits := enc.reservoirFrameEnd(&fr)

	if err := enc.formatBitstream(&fr, drainBits); err != nil {
		restore()
		return nil, err
	}
	return enc.bitstream.take(), nil
}

// Flush completes the last frame and returns the remaining bytes.
func (enc *Encoder) Flush() ([]uint8, error) {
	padding, err := enc.formatter.Flush()
	if err != nil {
		return nil, err
	}
	enc.bitstream.flush()
	enc.reservoirSize = 0
	enc.mainDataBegin = 0

	enc.log.Debug("Stream flushed",
		zap.Int("paddingBits", padding),
		zap.Int("bufferedBits", enc.bitstream.getBitsCount()))
	return enc.bitstream.take(), nil
}

// SilentFrame returns a frame of digital silence.
func (enc *Encoder) SilentFrame() *Frame {
	fr := &Frame{}
	for gr := range enc.Mpeg.GranulesPerFrame {
		for ch := range enc.Wave.Channels {
			fr.Granules[gr][ch].Info.GlobalGain = 210
		}
	}
	return fr
}

// Write encodes the frames and writes them to out.
func (enc *Encoder) Write(out io.Writer, frames []*Frame) error {
	for _, fr := range frames {
		data, err := enc.EncodeFrame(fr)
		if err != nil {
			return err
		}
		if _, err := out.Write(data); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// Finish flushes the last frame to out.
func (enc *Encoder) Finish(out io.Writer) error {
	data, err := enc.Flush()
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return errors.WithStack(err)
}

// Close releases the encoder buffers.
func (enc *Encoder) Close() {
	enc.formatter.Close()
	enc.parts.free()
}
