package recorder

import (
	"context"
	"sort"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/ffrecorder/pkg/averror"
)

func TestAvailableCodecNames(t *testing.T) {
	codecs := []codecDescription{
		{Name: "libx264", ID: astiav.CodecIDH264, MediaType: astiav.MediaTypeVideo, PixelFormatCount: 3},
		{Name: "h264", ID: astiav.CodecIDH264, MediaType: astiav.MediaTypeVideo, PixelFormatCount: -1},
		{Name: "libvpx-vp9", ID: astiav.CodecIDVp9, MediaType: astiav.MediaTypeVideo, PixelFormatCount: 2},
		{Name: "libx264", ID: astiav.CodecIDH264, MediaType: astiav.MediaTypeVideo, PixelFormatCount: 1},
		{Name: "mjpeg", ID: astiav.CodecIDMjpeg, MediaType: astiav.MediaTypeVideo, PixelFormatCount: 2},
		{Name: "aac", ID: astiav.CodecIDAac, MediaType: astiav.MediaTypeAudio, PixelFormatCount: 0},
		{Name: "broken_av1", ID: astiav.CodecIDAv1, MediaType: astiav.MediaTypeVideo, PixelFormatCount: 0},
	}
	require.Equal(t, []string{"libvpx-vp9", "libx264"}, availableCodecNames(codecs))
	require.Equal(t, []string{}, availableCodecNames(nil))
}

func TestGetAvailableCodecs(t *testing.T) {
	names := GetAvailableCodecs()
	require.True(t, sort.StringsAreSorted(names))
	seen := map[string]struct{}{}
	for _, name := range names {
		require.NotContains(t, seen, name)
		seen[name] = struct{}{}

		codec := astiav.FindEncoderByName(name)
		require.NotNil(t, codec, name)
		require.True(t, isSupportedCodecID(codec.ID()), name)
		require.NotEmpty(t, codec.PixelFormats(), name)
	}
	require.Contains(t, names, "mpeg4")
}

func TestFindVideoEncoder(t *testing.T) {
	ctx := context.Background()

	codec, err := findVideoEncoder(ctx, "mpeg4", astiav.CodecIDNone)
	require.NoError(t, err)
	require.Equal(t, astiav.CodecIDMpeg4, codec.ID())

	_, err = findVideoEncoder(ctx, "", astiav.CodecIDNone)
	require.ErrorIs(t, err, averror.ErrConfig)

	_, err = findVideoEncoder(ctx, "", astiav.CodecIDAac)
	require.ErrorIs(t, err, averror.ErrConfig)
}
