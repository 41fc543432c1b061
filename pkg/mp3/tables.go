package mp3

var sampleRates = [9]int64{
	44100, 48000, 32000, // MPEG-I
	22050, 24000, 16000, // MPEG-II
	11025, 12000, 8000, // MPEG-2.5
}

// bitRates in kbps, indexed by bitrate index and MPEG version.
var bitRates = [16][4]int64{
	// MPEG version: 2.5, reserved, II, I
	{-1, -1, -1, -1},
	{8, -1, 8, 32},
	{16, -1, 16, 40},
	{24, -1, 24, 48},
	{32, -1, 32, 56},
	{40, -1, 40, 64},
	{48, -1, 48, 80},
	{56, -1, 56, 96},
	{64, -1, 64, 112},
	{-1, -1, 80, 128},
	{-1, -1, 96, 160},
	{-1, -1, 112, 192},
	{-1, -1, 128, 224},
	{-1, -1, 144, 256},
	{-1, -1, 160, 320},
	{-1, -1, -1, -1},
}

// Scale factor lengths, indexed by scalefac_compress.
var sLen1Table = [16]uint{0, 0, 0, 0, 3, 1, 1, 1, 2, 2, 2, 3, 3, 3, 4, 4}
var sLen2Table = [16]uint{0, 1, 2, 3, 0, 1, 2, 3, 1, 2, 3, 1, 2, 3, 2, 3}

// Scale factor bands covered by each scfsi band.
var scfsiBands = [5]int{0, 6, 11, 16, 21}

// Long block scale factor bands in each partition for MPEG-II and MPEG-2.5,
// selected by the range of scalefac_compress.
var lsfPartitionBands = [3][4]int{
	{6, 5, 5, 5},
	{6, 5, 7, 3},
	{11, 10, 0, 0},
}
