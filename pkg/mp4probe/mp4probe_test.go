package mp4probe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/ffrecorder/pkg/recorder"
)

func TestProbeFile(t *testing.T) {
	ctx := logger.CtxWithLogger(context.Background(), logrus.Default().WithLevel(logger.LevelWarning))
	defer belt.Flush(ctx)

	path := filepath.Join(t.TempDir(), "video.mp4")
	rec := recorder.New()
	require.NoError(t, rec.Init(ctx, recorder.Config{
		PixelFormat: "yuv420p",
		CodecName:   "mpeg4",
		Bitrate:     200_000,
		Width:       32,
		Height:      32,
		FPS:         10,
		OutputPath:  path,
	}))
	frame := make([]byte, rec.RawFrameSize())
	for i := 0; i < 20; i++ {
		require.NoError(t, rec.WriteFrame(ctx, frame))
	}
	require.NoError(t, rec.Stop(ctx))

	summary, err := ProbeFile(path)
	require.NoError(t, err)
	require.False(t, summary.Fragmented)
	require.NotZero(t, summary.Size)
	require.Len(t, summary.Tracks, 1)
	require.Empty(t, summary.TracksByHandler("soun"))

	track := summary.Tracks[0]
	require.True(t, track.IsVideo())
	require.False(t, track.IsAudio())
	require.Equal(t, "mp4v", track.SampleEntry)
	require.Equal(t, uint32(20), track.SampleCount)
	require.InDelta(t, 2.0, track.DurationSeconds(), 0.15)
	require.Contains(t, summary.String(), "vide")
}

func TestProbeFileNotMP4(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.mp4")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a container"), 0o644))
	_, err := ProbeFile(path)
	require.Error(t, err)

	_, err = ProbeFile(filepath.Join(t.TempDir(), "nope.mp4"))
	require.Error(t, err)
}
