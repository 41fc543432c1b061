package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/wav"
	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/braheezy/shine-formatbits/pkg/mp3"
)

func main() {
	bitrate := pflag.Int("bitrate", 128, "bitrate in kbps")
	reservoir := pflag.Int("reservoir", 0, "size of the bit reservoir in bits")
	maxPending := pflag.Int("max-pending", 64, "number of frames which may wait for their main data")
	pflag.Parse()

	// Handle command line arguments
	if pflag.NArg() < 2 {
		fmt.Printf("Usage: %s [flags] <input file> <output file>\n", os.Args[0])
		pflag.PrintDefaults()
		os.Exit(1)
	}
	inFile := pflag.Arg(0)
	outFile := pflag.Arg(1)

	log := logger.New(logger.DefaultConfig)
	cfg := mp3.Config{
		Bitrate:          *bitrate,
		ReservoirMaxBits: *reservoir,
		Original:         true,
		MaxPendingFrames: *maxPending,
		Logger:           log,
	}
	if err := run(inFile, outFile, cfg, log); err != nil {
		log.Error("Muting failed", zap.Error(err))
		os.Exit(1)
	}
}

// run writes a silent MP3 with the timing and channel layout of the WAV input.
func run(inFile, outFile string, cfg mp3.Config, log *zap.Logger) (err error) {
	// Check arguments
	if filepath.Ext(inFile) != ".wav" {
		return errors.Errorf("input file %q must be a WAV file", inFile)
	}
	if filepath.Ext(outFile) != ".mp3" {
		return errors.Errorf("output file %q must be a MP3 file", outFile)
	}

	// Read input file
	inputData, err := os.ReadFile(inFile)
	if err != nil {
		return errors.Wrap(err, "loading audio file failed")
	}

	// Decode WAV file
	wavDecoder := wav.NewDecoder(bytes.NewReader(inputData))
	wavBuffer, err := wavDecoder.FullPCMBuffer()
	if err != nil {
		return errors.Wrap(err, "decoding WAV file failed")
	}
	cfg.SampleRate = wavBuffer.Format.SampleRate
	cfg.Channels = wavBuffer.Format.NumChannels

	// Create new encoder with audio settings
	mp3Encoder, err := mp3.NewEncoder(cfg)
	if err != nil {
		return err
	}
	defer mp3Encoder.Close()

	out, err := os.Create(outFile)
	if err != nil {
		return errors.Wrapf(err, "could not create %q", outFile)
	}
	defer func() {
		if closeErr := out.Close(); err == nil && closeErr != nil {
			err = errors.Wrapf(closeErr, "could not close %q", outFile)
		}
	}()

	samples := int64(len(wavBuffer.Data) / cfg.Channels)
	samplesPerPass := mp3Encoder.SamplesPerPass()
	nFrames := (samples + samplesPerPass - 1) / samplesPerPass

	frames := make([]*mp3.Frame, 0, nFrames)
	for range nFrames {
		frames = append(frames, mp3Encoder.SilentFrame())
	}

	log.Info("Writing silent MP3",
		zap.String("input", inFile),
		zap.String("output", outFile),
		zap.Int("sampleRate", cfg.SampleRate),
		zap.Int("channels", cfg.Channels),
		zap.Int64("frames", nFrames))

	// Write all the data to the output file
	if err := mp3Encoder.Write(out, frames); err != nil {
		return err
	}
	return mp3Encoder.Finish(out)
}
