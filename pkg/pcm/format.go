package pcm

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/xaionaro-go/audio/pkg/audio"
)

type SampleRate = audio.SampleRate

type Channel = audio.Channel

const (
	// Channels is the amount of channels of every PCM buffer handled by this package.
	Channels = Channel(2)

	// ChunkSize is the amount of samples (per channel) converted at once.
	ChunkSize = 4096
)

type PCMFormat = audio.PCMFormat

const (
	PCMFormatUndefined = audio.PCMFormatUndefined
	PCMFormatFloat32LE = audio.PCMFormatFloat32LE
	PCMFormatS16LE     = audio.PCMFormatS16LE
)

// SupportedPCMFormats are the raw sample encodings Read and Write handle.
var SupportedPCMFormats = []PCMFormat{
	PCMFormatFloat32LE,
	PCMFormatS16LE,
}

func isSupported(format PCMFormat) bool {
	for _, f := range SupportedPCMFormats {
		if f == format {
			return true
		}
	}
	return false
}

// PCMFormatFromString returns the supported format named s (case
// insensitive), or PCMFormatUndefined.
func PCMFormatFromString(s string) PCMFormat {
	s = strings.TrimSpace(s)
	for _, f := range SupportedPCMFormats {
		if strings.EqualFold(f.String(), s) {
			return f
		}
	}
	return PCMFormatUndefined
}

// Write serializes interleaved samples into w using the given sample encoding.
func Write(w io.Writer, samples []float32, format PCMFormat) error {
	if !isSupported(format) {
		return fmt.Errorf("unsupported PCM format %s", format)
	}
	sampleSize := format.Size()
	buf := make([]byte, len(samples)*int(sampleSize))
	for idx, v := range samples {
		dst := buf[idx*int(sampleSize):]
		switch format {
		case PCMFormatFloat32LE:
			binary.LittleEndian.PutUint32(dst, math.Float32bits(v))
		case PCMFormatS16LE:
			binary.LittleEndian.PutUint16(dst, uint16(int16(clamp(v)*math.MaxInt16)))
		}
	}
	_, err := w.Write(buf)
	return err
}

// Read parses a whole raw PCM stream of the given sample encoding.
func Read(r io.Reader, format PCMFormat) ([]float32, error) {
	if !isSupported(format) {
		return nil, fmt.Errorf("unsupported PCM format %s", format)
	}
	sampleSize := format.Size()
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read the PCM data: %w", err)
	}
	if len(buf)%int(sampleSize) != 0 {
		return nil, fmt.Errorf("read a number of bytes (%d) that is not a multiple of %d", len(buf), sampleSize)
	}
	samples := make([]float32, len(buf)/int(sampleSize))
	for idx := range samples {
		src := buf[idx*int(sampleSize):]
		switch format {
		case PCMFormatFloat32LE:
			samples[idx] = math.Float32frombits(binary.LittleEndian.Uint32(src))
		case PCMFormatS16LE:
			samples[idx] = float32(int16(binary.LittleEndian.Uint16(src))) / math.MaxInt16
		}
	}
	return samples, nil
}

func clamp(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}

func float32sFromBytes(dst []float32, b []byte) []float32 {
	for idx := 0; idx+4 <= len(b); idx += 4 {
		dst = append(dst, math.Float32frombits(binary.LittleEndian.Uint32(b[idx:])))
	}
	return dst
}

func bytesFromFloat32s(dst []byte, samples []float32) []byte {
	for _, v := range samples {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// AppendPlanar appends to dst the interleaved stereo samples as consecutive
// little-endian float planes, one plane per channel.
func AppendPlanar(dst []byte, interleaved []float32) []byte {
	for ch := 0; ch < int(Channels); ch++ {
		for idx := ch; idx < len(interleaved); idx += int(Channels) {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(interleaved[idx]))
		}
	}
	return dst
}
