// Package audio holds container helpers for synthesized speech.
package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"mime"
	"strconv"
	"strings"
)

const defaultPCMRate = 16000

// PCMRate reports the sample rate of a raw PCM content type such as
// "audio/pcm;rate=22050". ok is false for anything that is not raw PCM.
func PCMRate(contentType string) (rate int, ok bool) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "audio/pcm" {
		return 0, false
	}
	rate, err = strconv.Atoi(strings.TrimSpace(params["rate"]))
	if err != nil || rate <= 0 {
		return defaultPCMRate, true
	}
	return rate, true
}

// Playable returns audio a stock decoder can play. Raw PCM is wrapped in a WAV
// container; everything else passes through unchanged.
func Playable(data []byte, contentType string) ([]byte, string) {
	rate, ok := PCMRate(contentType)
	if !ok {
		return data, contentType
	}
	var buf bytes.Buffer
	if err := WriteWAV(&buf, data, rate); err != nil {
		return data, contentType
	}
	return buf.Bytes(), "audio/wav"
}

// WriteWAV writes PCM16LE mono samples to out as a WAV stream.
func WriteWAV(out io.Writer, pcm []byte, sampleRate int) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
		formatPCM     = 1
	)
	if sampleRate <= 0 {
		sampleRate = defaultPCMRate
	}

	dataSize := uint32(len(pcm))
	w := bufio.NewWriter(out)
	header := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(36) + dataSize,
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		uint16(formatPCM),
		uint16(numChannels),
		uint32(sampleRate),
		uint32(sampleRate * numChannels * bitsPerSample / 8),
		uint16(numChannels * bitsPerSample / 8),
		uint16(bitsPerSample),
		[4]byte{'d', 'a', 't', 'a'},
		dataSize,
	}
	for _, field := range header {
		if err := binary.Write(w, binary.LittleEndian, field); err != nil {
			return err
		}
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}
