package mp3

import "go.uber.org/zap"

const (
	SCALE_FACTOR_BANDS = 22
	GRANULE_SIZE       = 576
	MAX_CHANNELS       = 2
	MAX_GRANULES       = 2
	// Largest value of part2_3_length
	MAX_PART23_LENGTH = 4095
)

type mode int

const (
	STEREO mode = iota
	JOINT_STEREO
	DUAL_CHANNEL
	MONO
)

type emphasis int

const (
	NONE    emphasis = 0
	MU50_15 emphasis = 1
	CITT    emphasis = 3
)

// Config holds the encoder settings.
type Config struct {
	SampleRate int
	Channels   int
	// Bitrate in kbps
	Bitrate int
	// Size of the bit reservoir in bits. Zero disables the reservoir.
	ReservoirMaxBits int
	Copyright        bool
	Original         bool
	Emphasis         emphasis
	// Number of frames which may wait for their main data. Zero means no limit.
	MaxPendingFrames int
	Logger           *zap.Logger
}

type Wave struct {
	Channels   int64
	SampleRate int64
}
type MPEG struct {
	Version            mpegVersion
	Layer              int64
	GranulesPerFrame   int64
	Mode               mode
	Bitrate            int64
	Emphasis           emphasis
	Padding            int64
	BitsPerFrame       int64
	BitsPerSlot        int64
	FracSlotsPerFrame  float64
	SlotLag            float64
	WholeSlotsPerFrame int64
	BitrateIndex       int64
	SampleRateIndex    int64
	Crc                int64
	Ext                int64
	ModeExt            int64
	Copyright          int64
	Original           int64
}

// GranuleInfo is the side info of one granule of one channel, as produced by the quantizer.
// Part2Length and Part2_3Length are filled in by the encoder.
type GranuleInfo struct {
	Part2_3Length       uint64
	BigValues           uint64
	GlobalGain          uint64
	ScaleFactorCompress uint64
	TableSelect         [3]uint64
	Region0Count        uint64
	Region1Count        uint64
	PreFlag             uint64
	ScaleFactorScale    uint64
	Count1TableSelect   uint64
	Part2Length         uint64
}

// Granule is the quantized and coded data of one granule of one channel.
type Granule struct {
	Info         GranuleInfo
	ScaleFactors [SCALE_FACTOR_BANDS]int32
	// Huffman coded spectrum
	CodedData *BitstreamPart
}

// Frame is one frame of quantized and coded audio.
type Frame struct {
	PrivateBits           uint64
	ScaleFactorSelectInfo [MAX_CHANNELS][4]uint64
	Granules              [MAX_GRANULES][MAX_CHANNELS]Granule
	// Ancillary data written after the main data of the frame
	Ancillary *BitstreamPart
}

// frameParts holds the parts built for the frame being encoded.
type frameParts struct {
	header       *PartHolder
	frameSI      *PartHolder
	channelSI    [MAX_CHANNELS]*PartHolder
	spectrumSI   [MAX_GRANULES][MAX_CHANNELS]*PartHolder
	scaleFactors [MAX_GRANULES][MAX_CHANNELS]*PartHolder
	codedData    [MAX_GRANULES][MAX_CHANNELS]*PartHolder
	ancillary    *PartHolder
}

type Encoder struct {
	Wave             Wave
	Mpeg             MPEG
	bitstream        bitstream
	formatter        *Formatter
	parts            frameParts
	sideInfoLen      int64
	meanBits         int64
	mainDataBegin    int64
	reservoirSize    int64
	reservoirMaxSize int64
	log              *zap.Logger
}
