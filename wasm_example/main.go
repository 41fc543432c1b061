//go:build js && wasm

package main

import (
	"bytes"
	"syscall/js"

	"github.com/go-audio/wav"

	"github.com/braheezy/shine-formatbits/pkg/mp3"
)

func muteWAV(this js.Value, args []js.Value) interface{} {
	// Get WAV data from JavaScript
	array := args[0]
	wavData := make([]byte, array.Length())
	js.CopyBytesToGo(wavData, array)

	// Decode WAV
	wavReader := bytes.NewReader(wavData)
	wavDecoder := wav.NewDecoder(wavReader)
	wavBuffer, err := wavDecoder.FullPCMBuffer()
	if err != nil {
		return js.ValueOf(map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Create encoder with audio settings
	mp3Encoder, err := mp3.NewEncoder(mp3.Config{
		SampleRate: wavBuffer.Format.SampleRate,
		Channels:   wavBuffer.Format.NumChannels,
		Original:   true,
	})
	if err != nil {
		return js.ValueOf(map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer mp3Encoder.Close()

	samples := int64(len(wavBuffer.Data) / wavBuffer.Format.NumChannels)
	nFrames := (samples + mp3Encoder.SamplesPerPass() - 1) / mp3Encoder.SamplesPerPass()
	frames := make([]*mp3.Frame, 0, nFrames)
	for range nFrames {
		frames = append(frames, mp3Encoder.SilentFrame())
	}

	// Create buffer for MP3 output
	var outBuffer bytes.Buffer

	err = mp3Encoder.Write(&outBuffer, frames)
	if err == nil {
		err = mp3Encoder.Finish(&outBuffer)
	}
	if err != nil {
		return js.ValueOf(map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Convert to Uint8Array for JavaScript
	mp3Data := outBuffer.Bytes()
	uint8Array := js.Global().Get("Uint8Array").New(len(mp3Data))
	js.CopyBytesToJS(uint8Array, mp3Data)

	return uint8Array
}

func main() {
	c := make(chan struct{})
	js.Global().Set("muteMP3", js.FuncOf(muteWAV))
	<-c
}
