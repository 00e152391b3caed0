package audiomixer

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/ffrecorder/pkg/averror"
	"github.com/xaionaro-go/ffrecorder/pkg/mp4probe"
	"github.com/xaionaro-go/ffrecorder/pkg/muxer"
	"github.com/xaionaro-go/ffrecorder/pkg/recorder"
)

const testFPS = 25

func testCtx(t *testing.T) context.Context {
	l := logrus.Default().WithLevel(logger.LevelWarning)
	ctx := logger.CtxWithLogger(context.Background(), l)
	t.Cleanup(func() { belt.Flush(ctx) })
	return ctx
}

func recordVideo(t *testing.T, ctx context.Context, seconds int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "video.mp4")
	rec := recorder.New()
	require.NoError(t, rec.Init(ctx, recorder.Config{
		PixelFormat: "yuv420p",
		CodecName:   "mpeg4",
		Bitrate:     400_000,
		Width:       64,
		Height:      48,
		FPS:         testFPS,
		OutputPath:  path,
	}))
	frame := make([]byte, rec.RawFrameSize())
	for i := 0; i < seconds*testFPS; i++ {
		for idx := range frame {
			frame[idx] = byte(i)
		}
		require.NoError(t, rec.WriteFrame(ctx, frame))
	}
	require.NoError(t, rec.Stop(ctx))
	return path
}

func stereoSine(samplesPerChannel int, rate int) []float32 {
	samples := make([]float32, 0, samplesPerChannel*2)
	for i := 0; i < samplesPerChannel; i++ {
		v := float32(0.3 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
		samples = append(samples, v, -v)
	}
	return samples
}

func videoPTS(t *testing.T, ctx context.Context, path string) ([]int64, astiav.Rational) {
	t.Helper()
	input, err := muxer.NewInputFromPath(ctx, path)
	require.NoError(t, err)
	defer input.Close()
	stream, err := input.FirstStream(astiav.MediaTypeVideo)
	require.NoError(t, err)

	packet := astiav.AllocPacket()
	defer packet.Free()
	var result []int64
	for {
		err := input.ReadPacket(ctx, packet)
		if errors.Is(err, io.EOF) {
			return result, stream.TimeBase()
		}
		require.NoError(t, err)
		if packet.StreamIndex() == stream.Index() {
			result = append(result, packet.Pts())
		}
		packet.Unref()
	}
}

func checkMerged(t *testing.T, ctx context.Context, videoPath, outputPath string, seconds float64) {
	t.Helper()

	input, err := muxer.NewInputFromPath(ctx, outputPath)
	require.NoError(t, err)
	audio, err := input.FirstStream(astiav.MediaTypeAudio)
	require.NoError(t, err)
	require.Equal(t, astiav.CodecIDAac, audio.CodecParameters().CodecID())
	require.Equal(t, SampleRate, audio.CodecParameters().SampleRate())
	require.Equal(t, 2, audio.CodecParameters().ChannelLayout().Channels())
	require.NoError(t, input.Close())

	srcPTS, srcTimeBase := videoPTS(t, ctx, videoPath)
	dstPTS, dstTimeBase := videoPTS(t, ctx, outputPath)
	require.Len(t, dstPTS, len(srcPTS))
	for idx := range srcPTS {
		require.Equal(t, astiav.RescaleQ(srcPTS[idx], srcTimeBase, dstTimeBase), dstPTS[idx], "packet #%d", idx)
	}

	summary, err := mp4probe.ProbeFile(outputPath)
	require.NoError(t, err)
	require.Len(t, summary.TracksByHandler("vide"), 1)
	audioTracks := summary.TracksByHandler("soun")
	require.Len(t, audioTracks, 1)
	require.InDelta(t, seconds, audioTracks[0].DurationSeconds(), 0.1)
}

func TestMixVideoRaw(t *testing.T) {
	ctx := testCtx(t)
	videoPath := recordVideo(t, ctx, 5)
	outputPath := filepath.Join(t.TempDir(), "merged.mp4")

	samples := stereoSine(5*SampleRate, SampleRate)
	require.Len(t, samples, 441000)
	require.NoError(t, MixVideoRaw(ctx, videoPath, samples, outputPath))
	checkMerged(t, ctx, videoPath, outputPath, 5)
}

func TestMixVideoRawResamples(t *testing.T) {
	ctx := testCtx(t)
	videoPath := recordVideo(t, ctx, 2)
	outputPath := filepath.Join(t.TempDir(), "merged.mp4")

	// 2 seconds of 16kHz audio: the rate is derived from the video duration
	require.NoError(t, MixVideoRaw(ctx, videoPath, stereoSine(2*16000, 16000), outputPath))
	checkMerged(t, ctx, videoPath, outputPath, 2)
}

func TestMixVideoRawInvalidSamples(t *testing.T) {
	ctx := testCtx(t)
	outputPath := filepath.Join(t.TempDir(), "merged.mp4")

	err := MixVideoRaw(ctx, "unused.mp4", nil, outputPath)
	require.ErrorIs(t, err, averror.ErrValidation)

	err = MixVideoRaw(ctx, "unused.mp4", []float32{0, 0, 0}, outputPath)
	require.ErrorIs(t, err, averror.ErrValidation)

	_, err = os.Stat(outputPath)
	require.True(t, os.IsNotExist(err))
}

func TestMixVideoRawNotExisting(t *testing.T) {
	ctx := testCtx(t)
	err := MixVideoRaw(ctx, filepath.Join(t.TempDir(), "nope.mp4"), stereoSine(100, SampleRate), filepath.Join(t.TempDir(), "merged.mp4"))
	require.ErrorIs(t, err, averror.ErrIO)
}

// writeWAV writes a mono 16-bit PCM WAV file.
func writeWAV(t *testing.T, path string, rate int, seconds float64) {
	t.Helper()
	samples := make([]int16, int(float64(rate)*seconds))
	for i := range samples {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
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

func TestMixVideoAudio(t *testing.T) {
	ctx := testCtx(t)
	videoPath := recordVideo(t, ctx, 2)
	audioPath := filepath.Join(t.TempDir(), "tone.wav")
	writeWAV(t, audioPath, 22050, 2)
	outputPath := filepath.Join(t.TempDir(), "merged.mp4")

	require.NoError(t, MixVideoAudio(ctx, videoPath, audioPath, outputPath))
	checkMerged(t, ctx, videoPath, outputPath, 2)
}

func TestMixVideoAudioNoVideoStream(t *testing.T) {
	ctx := testCtx(t)
	audioPath := filepath.Join(t.TempDir(), "tone.wav")
	writeWAV(t, audioPath, 22050, 1)

	err := MixVideoAudio(ctx, audioPath, audioPath, filepath.Join(t.TempDir(), "merged.mp4"))
	require.ErrorIs(t, err, averror.ErrNotFound)
}

func TestMixVideoAudioNoAudioFile(t *testing.T) {
	ctx := testCtx(t)
	videoPath := recordVideo(t, ctx, 1)

	err := MixVideoAudio(ctx, videoPath, filepath.Join(t.TempDir(), "nope.wav"), filepath.Join(t.TempDir(), "merged.mp4"))
	require.ErrorIs(t, err, averror.ErrIO)
}
