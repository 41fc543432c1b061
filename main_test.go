package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/braheezy/shine-formatbits/pkg/mp3"
)

func writeWAV(requireT *require.Assertions, path string, sampleRate, channels, samples int) {
	f, err := os.Create(path)
	requireT.NoError(err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, samples*channels),
		SourceBitDepth: 16,
	}
	for i := range buf.Data {
		buf.Data[i] = (i * 37) % 2000
	}
	requireT.NoError(enc.Write(buf))
	requireT.NoError(enc.Close())
}

func TestRunWritesSilentMP3(t *testing.T) {
	requireT := require.New(t)

	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.mp3")
	writeWAV(requireT, in, 44100, 2, 3000)

	requireT.NoError(run(in, out, mp3.Config{Bitrate: 128}, zap.NewNop()))

	data, err := os.ReadFile(out)
	requireT.NoError(err)
	// three padded frames of 417 slots
	requireT.Len(data, 3*418)
	requireT.Equal([]uint8{0xff, 0xfb}, data[:2])
	requireT.Equal([]uint8{0xff, 0xfb}, data[418:420])
}

func TestRunRejectsExtensions(t *testing.T) {
	requireT := require.New(t)

	dir := t.TempDir()
	requireT.Error(run(filepath.Join(dir, "in.flac"), filepath.Join(dir, "out.mp3"), mp3.Config{}, zap.NewNop()))
	requireT.Error(run(filepath.Join(dir, "in.wav"), filepath.Join(dir, "out.ogg"), mp3.Config{}, zap.NewNop()))
}

func TestRunMissingInput(t *testing.T) {
	requireT := require.New(t)

	dir := t.TempDir()
	requireT.Error(run(filepath.Join(dir, "in.wav"), filepath.Join(dir, "out.mp3"), mp3.Config{}, zap.NewNop()))
}

func TestRunUnsupportedInputLeavesNoOutput(t *testing.T) {
	requireT := require.New(t)

	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.mp3")
	writeWAV(requireT, in, 44000, 2, 3000)

	err := run(in, out, mp3.Config{Bitrate: 128}, zap.NewNop())
	requireT.True(errors.Is(err, mp3.ErrUnsupportedConfig))
	_, err = os.Stat(out)
	requireT.True(os.IsNotExist(err))
}
