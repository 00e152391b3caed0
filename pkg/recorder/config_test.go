package recorder

import (
	"bytes"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/ffrecorder/pkg/averror"
)

func TestConfigWriteRead(t *testing.T) {
	cfg := Config{
		HardwareAcceleration: "vaapi",
		PixelFormat:          "rgba",
		CodecName:            "libx264",
		CodecID:              astiav.CodecIDH264,
		ColorspaceFilter:     "all=bt709",
		VerticalFlip:         true,
		Bitrate:              2_000_000,
		Width:                1920,
		Height:               1080,
		FPS:                  60,
		OutputPath:           "/tmp/out.mp4",
	}

	var b bytes.Buffer
	n, err := cfg.WriteTo(&b)
	require.NoError(t, err)
	require.Equal(t, int64(b.Len()), n)

	var cfgDup Config
	_, err = cfgDup.ReadFrom(&b)
	require.NoError(t, err)
	require.Equal(t, cfg, cfgDup)
}

func TestConfigFilterDescription(t *testing.T) {
	require.Equal(t, "", Config{}.FilterDescription())
	require.Equal(t, "vflip", Config{VerticalFlip: true}.FilterDescription())
	require.Equal(t, "colorspace=all=bt709", Config{ColorspaceFilter: "all=bt709"}.FilterDescription())
	require.Equal(t,
		"colorspace=all=bt709:iall=bt601-6-625,vflip",
		Config{ColorspaceFilter: " colorspace=all=bt709:iall=bt601-6-625 ", VerticalFlip: true}.FilterDescription(),
	)
}

func TestHardwareAccelerationType(t *testing.T) {
	for _, v := range []HardwareAccelerationType{"", "none", "NONE"} {
		deviceType, err := v.DeviceType()
		require.NoError(t, err)
		require.Equal(t, astiav.HardwareDeviceTypeNone, deviceType)
	}
	_, err := HardwareAccelerationType("definitely-not-a-device").DeviceType()
	require.ErrorIs(t, err, averror.ErrConfig)
}
