package pcm

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audio/pkg/audio"
	"github.com/xaionaro-go/ffrecorder/pkg/averror"
)

func testCtx(t *testing.T) context.Context {
	l := logrus.Default().WithLevel(logger.LevelWarning)
	ctx := logger.CtxWithLogger(context.Background(), l)
	t.Cleanup(func() { belt.Flush(ctx) })
	return ctx
}

func sine(rate int, seconds float64) []float32 {
	n := int(float64(rate) * seconds)
	samples := make([]float32, 0, n*int(Channels))
	for i := 0; i < n; i++ {
		v := float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
		samples = append(samples, v, v)
	}
	return samples
}

func roundTripBound(samplesPerChannel, r1, r2 int) int {
	chunks := (samplesPerChannel + ChunkSize - 1) / ChunkSize
	perChunk := float64(ChunkSize) * math.Abs(float64(r1-r2)) / float64(min(r1, r2))
	return int(math.Ceil(float64(chunks)*perChunk)) * int(Channels)
}

func TestResampleSameRate(t *testing.T) {
	ctx := testCtx(t)
	in := sine(44100, 0.1)
	out, err := Resample(ctx, in, 44100, 44100)
	require.NoError(t, err)
	require.Equal(t, in, out)
	out[0] = 42
	require.NotEqual(t, in[0], out[0])
}

func TestResampleLength(t *testing.T) {
	ctx := testCtx(t)
	in := sine(48000, 1)
	out, err := Resample(ctx, in, 48000, 44100)
	require.NoError(t, err)
	require.Zero(t, len(out)%int(Channels))
	require.InDelta(t, 44100*int(Channels), len(out), float64(roundTripBound(48000, 48000, 44100)))
}

func TestResampleRoundTrip(t *testing.T) {
	ctx := testCtx(t)
	for _, rates := range [][2]int{
		{44100, 48000},
		{22050, 44100},
		{44100, 8000},
	} {
		r1, r2 := rates[0], rates[1]
		in := sine(r1, 1.3)

		mid, err := Resample(ctx, in, r1, r2)
		require.NoError(t, err)
		out, err := Resample(ctx, mid, r2, r1)
		require.NoError(t, err)

		bound := roundTripBound(len(in)/int(Channels), r1, r2)
		require.InDelta(t, len(in), len(out), float64(bound), "%d <-> %d", r1, r2)
	}
}

func TestResampleInvalid(t *testing.T) {
	ctx := testCtx(t)
	_, err := Resample(ctx, []float32{1, 2, 3}, 44100, 48000)
	require.ErrorIs(t, err, averror.ErrValidation)
	_, err = Resample(ctx, []float32{1, 2}, 0, 48000)
	require.ErrorIs(t, err, averror.ErrValidation)
}

// writeWAV writes a mono 16-bit PCM WAV file.
func writeWAV(t *testing.T, path string, rate int, samples []int16) {
	t.Helper()
	var buf bytes.Buffer
	dataSize := uint32(len(samples) * 2)
	buf.WriteString("RIFF")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, 36+dataSize))
	buf.WriteString("WAVEfmt ")
	for _, v := range []any{
		uint32(16), uint16(1), uint16(1),
		uint32(rate), uint32(rate * 2), uint16(2), uint16(16),
	} {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}
	buf.WriteString("data")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, dataSize))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, samples))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestDecodeFile(t *testing.T) {
	ctx := testCtx(t)
	path := filepath.Join(t.TempDir(), "tone.wav")
	samples := make([]int16, 22050)
	for i := range samples {
		samples[i] = int16(10000 * math.Sin(2*math.Pi*440*float64(i)/22050))
	}
	writeWAV(t, path, 22050, samples)

	out, params, err := DecodeFile(ctx, path, 44100)
	require.NoError(t, err)
	require.Equal(t, SampleRate(22050), params.SampleRate)
	require.Equal(t, Channel(1), params.Channels)
	require.Equal(t, "pcm_s16le", params.CodecName)
	require.InDelta(t, 1.0, params.Duration, 0.01)

	require.Zero(t, len(out)%int(Channels))
	require.InDelta(t, 44100*int(Channels), len(out), float64(roundTripBound(22050, 22050, 44100)))
	var peak float32
	for i := 0; i < len(out); i += int(Channels) {
		require.Equal(t, out[i], out[i+1], "sample #%d", i/int(Channels))
		peak = max(peak, out[i])
	}
	require.Greater(t, peak, float32(0.1))
}

func TestDecodeFileNotExisting(t *testing.T) {
	ctx := testCtx(t)
	_, _, err := DecodeFile(ctx, filepath.Join(t.TempDir(), "nope.wav"), 44100)
	require.ErrorIs(t, err, averror.ErrIO)
}

func TestReadWrite(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 1, -1, 0.25}
	for _, format := range []PCMFormat{PCMFormatFloat32LE, PCMFormatS16LE} {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, in, format))
		require.Equal(t, len(in)*int(format.Size()), buf.Len())
		out, err := Read(&buf, format)
		require.NoError(t, err)
		require.InDeltaSlice(t, in, out, 0.001, format.String())
	}
	require.Equal(t, PCMFormatS16LE, PCMFormatFromString(" "+strings.ToUpper(PCMFormatS16LE.String())))
	require.Equal(t, PCMFormatFloat32LE, PCMFormatFromString(PCMFormatFloat32LE.String()))
	require.Equal(t, PCMFormatUndefined, PCMFormatFromString(audio.PCMFormatU8.String()))
	require.Error(t, Write(io.Discard, in, audio.PCMFormatU8))
	_, err := Read(bytes.NewReader([]byte{1, 2}), audio.PCMFormatS32LE)
	require.Error(t, err)
	_, err = Read(bytes.NewReader([]byte{1, 2, 3}), PCMFormatFloat32LE)
	require.Error(t, err)
}

func TestAppendPlanar(t *testing.T) {
	b := AppendPlanar([]byte{0xff}, []float32{1, -1, 2, -2})
	require.Len(t, b, 1+4*4)
	var planes []float32
	planes = float32sFromBytes(planes, b[1:])
	require.Equal(t, []float32{1, 2, -1, -2}, planes)
}
