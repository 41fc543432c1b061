package mp3

import "github.com/pkg/errors"

func newFrameParts() frameParts {
	var p frameParts
	p.header = NewPartHolder(16)
	p.frameSI = NewPartHolder(4)
	p.ancillary = NewPartHolder(0)
	for ch := range MAX_CHANNELS {
		p.channelSI[ch] = NewPartHolder(4)
	}
	for gr := range MAX_GRANULES {
		for ch := range MAX_CHANNELS {
			p.spectrumSI[gr][ch] = NewPartHolder(16)
			p.scaleFactors[gr][ch] = NewPartHolder(SCALE_FACTOR_BANDS)
			p.codedData[gr][ch] = NewPartHolder(GRANULE_SIZE / 2)
		}
	}
	return p
}

func (p *frameParts) free() {
	p.header.Free()
	p.frameSI.Free()
	p.ancillary.Free()
	for ch := range MAX_CHANNELS {
		p.channelSI[ch].Free()
	}
	for gr := range MAX_GRANULES {
		for ch := range MAX_CHANNELS {
			p.spectrumSI[gr][ch].Free()
			p.scaleFactors[gr][ch].Free()
			p.codedData[gr][ch].Free()
		}
	}
}

// formatBitstream is called after a frame of audio has been quantized and coded.
// It builds the parts of the frame and hands them to the formatter. Note that
// from a layer3 encoder's perspective the bit stream is primarily
// a series of main_data() blocks, with header and side information
// inserted at the proper locations to maintain framing. (See Figure A.7 in the IS).
func (enc *Encoder) formatBitstream(fr *Frame, drainBits int64) error {
	enc.encodeSideInfo(fr)
	if err := enc.encodeMainData(fr, drainBits); err != nil {
		return err
	}

	p := &enc.parts
	fd := FrameData{
		FrameLength:   int(enc.Mpeg.BitsPerFrame),
		NGranules:     int(enc.Mpeg.GranulesPerFrame),
		NChannels:     int(enc.Wave.Channels),
		Header:        p.header.Part(),
		FrameSI:       p.frameSI.Part(),
		UserFrameData: p.ancillary.Part(),
	}
	for ch := range enc.Wave.Channels {
		fd.ChannelSI[ch] = p.channelSI[ch].Part()
	}
	for gr := range enc.Mpeg.GranulesPerFrame {
		for ch := range enc.Wave.Channels {
			fd.SpectrumSI[gr][ch] = p.spectrumSI[gr][ch].Part()
			fd.ScaleFactors[gr][ch] = p.scaleFactors[gr][ch].Part()
			fd.CodedData[gr][ch] = p.codedData[gr][ch].Part()
		}
	}

	results, err := enc.formatter.BitstreamFrame(&fd)
	if err != nil {
		return err
	}
	enc.mainDataBegin = int64(results.NextBackPtr)
	return nil
}

// scaleFactorPartition is a run of scale factor bands written with the same length.
type scaleFactorPartition struct {
	sLen  uint
	bands int
	// shared partitions reuse the scale factors of the first granule and are not transmitted
	shared bool
}

// scaleFactorPartitions decodes scalefac_compress of the granule into the lengths of its
// four scale factor partitions.
func (enc *Encoder) scaleFactorPartitions(fr *Frame, gr, ch int64) ([4]scaleFactorPartition, error) {
	var partitions [4]scaleFactorPartition
	sfc := fr.Granules[gr][ch].Info.ScaleFactorCompress

	if enc.Mpeg.Version == MPEG_I {
		if sfc >= uint64(len(sLen1Table)) {
			return partitions, errors.Wrapf(ErrInvalidFrame, "scalefac_compress %d of granule %d, channel %d is out of range",
				sfc, gr, ch)
		}
		for band := range partitions {
			sLen := sLen1Table[sfc]
			if band >= 2 {
				sLen = sLen2Table[sfc]
			}
			partitions[band] = scaleFactorPartition{
				sLen:   sLen,
				bands:  scfsiBands[band+1] - scfsiBands[band],
				shared: gr > 0 && fr.ScaleFactorSelectInfo[ch][band] != 0,
			}
		}
		return partitions, nil
	}

	// ISO 13818-3 2.4.3.2, long blocks without intensity stereo
	var (
		sLen  [4]uint64
		table int
	)
	switch {
	case sfc < 400:
		sLen = [4]uint64{(sfc >> 4) / 5, (sfc >> 4) % 5, (sfc & 15) >> 2, sfc & 3}
	case sfc < 500:
		sfc -= 400
		sLen = [4]uint64{(sfc >> 2) / 5, (sfc >> 2) % 5, sfc & 3, 0}
		table = 1
	case sfc < 512:
		sfc -= 500
		sLen = [4]uint64{sfc / 3, sfc % 3, 0, 0}
		table = 2
	default:
		return partitions, errors.Wrapf(ErrInvalidFrame, "scalefac_compress %d of granule %d, channel %d is out of range",
			sfc, gr, ch)
	}
	for i := range partitions {
		partitions[i] = scaleFactorPartition{sLen: uint(sLen[i]), bands: lsfPartitionBands[table][i]}
	}
	return partitions, nil
}

// part2Length returns the number of bits of the scale factors of the granule.
func (enc *Encoder) part2Length(fr *Frame, gr, ch int64) (uint64, error) {
	partitions, err := enc.scaleFactorPartitions(fr, gr, ch)
	if err != nil {
		return 0, err
	}
	var bits uint64
	for _, p := range partitions {
		if !p.shared {
			bits += uint64(p.sLen) * uint64(p.bands)
		}
	}
	return bits, nil
}

func (enc *Encoder) encodeMainData(fr *Frame, drainBits int64) error {
	p := &enc.parts

	for gr := range enc.Mpeg.GranulesPerFrame {
		for ch := range enc.Wave.Channels {
			granule := &fr.Granules[gr][ch]
			granInfo := &granule.Info
			partitions, err := enc.scaleFactorPartitions(fr, gr, ch)
			if err != nil {
				return err
			}

			scaleFactors := p.scaleFactors[gr][ch]
			scaleFactors.Reset()
			var sfb int
			for _, partition := range partitions {
				if !partition.shared {
					for i := sfb; i < sfb+partition.bands; i++ {
						scaleFactors.AddEntry(uint32(granule.ScaleFactors[i]), partition.sLen)
					}
				}
				sfb += partition.bands
			}

			codedData := p.codedData[gr][ch]
			codedData.LoadFromPart(granule.CodedData)
			bits := int64(granInfo.Part2_3Length) - int64(granInfo.Part2Length) - int64(granule.CodedData.Length())
			addStuffing(codedData, bits)
		}
	}

	p.ancillary.LoadFromPart(fr.Ancillary)
	addStuffing(p.ancillary, drainBits)
	return nil
}

// addStuffing appends bits of ones. Due to the nature of the Huffman code tables,
// ones decode as zero quadruples in the count1 region.
func addStuffing(h *PartHolder, bits int64) {
	for ; bits >= MAX_LENGTH; bits -= MAX_LENGTH {
		h.AddEntry(^uint32(0), MAX_LENGTH)
	}
	if bits > 0 {
		h.AddEntry(uint32(1)<<bits-1, uint(bits))
	}
}

func (enc *Encoder) encodeSideInfo(fr *Frame) {
	p := &enc.parts

	header := p.header
	header.Reset()
	header.AddEntry(2047, 11)
	header.AddEntry(uint32(enc.Mpeg.Version), 2)
	header.AddEntry(uint32(enc.Mpeg.Layer), 2)
	if enc.Mpeg.Crc == 0 {
		header.AddEntry(1, 1)
	} else {
		header.AddEntry(0, 1)
	}
	header.AddEntry(uint32(enc.Mpeg.BitrateIndex), 4)
	header.AddEntry(uint32(enc.Mpeg.SampleRateIndex%3), 2)
	header.AddEntry(uint32(enc.Mpeg.Padding), 1)
	header.AddEntry(uint32(enc.Mpeg.Ext), 1)
	header.AddEntry(uint32(enc.Mpeg.Mode), 2)
	header.AddEntry(uint32(enc.Mpeg.ModeExt), 2)
	header.AddEntry(uint32(enc.Mpeg.Copyright), 1)
	header.AddEntry(uint32(enc.Mpeg.Original), 1)
	header.AddEntry(uint32(enc.Mpeg.Emphasis), 2)

	frameSI := p.frameSI
	frameSI.Reset()
	if enc.Mpeg.Version == MPEG_I {
		frameSI.AddEntry(uint32(enc.mainDataBegin), 9)
		if enc.Wave.Channels == 2 {
			frameSI.AddEntry(uint32(fr.PrivateBits), 3)
		} else {
			frameSI.AddEntry(uint32(fr.PrivateBits), 5)
		}
	} else {
		frameSI.AddEntry(uint32(enc.mainDataBegin), 8)
		if enc.Wave.Channels == 2 {
			frameSI.AddEntry(uint32(fr.PrivateBits), 2)
		} else {
			frameSI.AddEntry(uint32(fr.PrivateBits), 1)
		}
	}

	for ch := range enc.Wave.Channels {
		channelSI := p.channelSI[ch]
		channelSI.Reset()
		if enc.Mpeg.Version == MPEG_I {
			for band := range 4 {
				channelSI.AddEntry(uint32(fr.ScaleFactorSelectInfo[ch][band]), 1)
			}
		}
	}

	for gr := range enc.Mpeg.GranulesPerFrame {
		for ch := range enc.Wave.Channels {
			granInfo := &fr.Granules[gr][ch].Info
			spectrumSI := p.spectrumSI[gr][ch]
			spectrumSI.Reset()
			spectrumSI.AddEntry(uint32(granInfo.Part2_3Length), 12)
			spectrumSI.AddEntry(uint32(granInfo.BigValues), 9)
			spectrumSI.AddEntry(uint32(granInfo.GlobalGain), 8)
			if enc.Mpeg.Version == MPEG_I {
				spectrumSI.AddEntry(uint32(granInfo.ScaleFactorCompress), 4)
			} else {
				spectrumSI.AddEntry(uint32(granInfo.ScaleFactorCompress), 9)
			}
			// window_switching_flag, only long blocks are written
			spectrumSI.AddEntry(0, 1)
			for region := range 3 {
				spectrumSI.AddEntry(uint32(granInfo.TableSelect[region]), 5)
			}
			spectrumSI.AddEntry(uint32(granInfo.Region0Count), 4)
			spectrumSI.AddEntry(uint32(granInfo.Region1Count), 3)
			if enc.Mpeg.Version == MPEG_I {
				spectrumSI.AddEntry(uint32(granInfo.PreFlag), 1)
			}
			spectrumSI.AddEntry(uint32(granInfo.ScaleFactorScale), 1)
			spectrumSI.AddEntry(uint32(granInfo.Count1TableSelect), 1)
		}
	}
}
