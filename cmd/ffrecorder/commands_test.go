package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/ffrecorder/pkg/pcm"
	"github.com/xaionaro-go/ffrecorder/pkg/recorder"
)

func TestApplyRecordFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addRecordFlags(flags)
	require.NoError(t, flags.Parse([]string{"--codec=mpeg4", "--vflip", "--fps=25"}))

	cfg := recorder.Config{CodecName: "libx264", Width: 64, FPS: 10}
	require.NoError(t, applyRecordFlags(flags, &cfg, true))
	require.Equal(t, "mpeg4", cfg.CodecName)
	require.True(t, cfg.VerticalFlip)
	require.Equal(t, 25, cfg.FPS)
	require.Equal(t, 64, cfg.Width)
	require.Empty(t, cfg.PixelFormat)

	require.NoError(t, applyRecordFlags(flags, &cfg, false))
	require.Equal(t, 1280, cfg.Width)
	require.Equal(t, recorder.PixelFormat("rgba"), cfg.PixelFormat)
}

func TestPCMFormatFlag(t *testing.T) {
	for _, format := range pcm.SupportedPCMFormats {
		require.Contains(t, pcmFormatNames(), format.String())

		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.String("format", pcm.PCMFormatFloat32LE.String(), "")
		require.NoError(t, flags.Parse([]string{"--format=" + format.String()}))
		got, err := pcmFormatFlag(flags)
		require.NoError(t, err)
		require.Equal(t, format, got)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("format", "", "")
	require.NoError(t, flags.Parse([]string{"--format=mp3"}))
	_, err := pcmFormatFlag(flags)
	require.Error(t, err)
}

func TestRecordAndProbe(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	framesPath := filepath.Join(dir, "frames.raw")
	outputPath := filepath.Join(dir, "out.mp4")

	cfg := recorder.Config{
		PixelFormat: "gray",
		CodecName:   "mpeg4",
		Bitrate:     100_000,
		Width:       32,
		Height:      32,
		FPS:         10,
		OutputPath:  filepath.Join(dir, "overridden.mp4"),
	}
	var buf bytes.Buffer
	_, err := cfg.WriteTo(&buf)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configPath, buf.Bytes(), 0o644))
	require.NoError(t, os.WriteFile(framesPath, make([]byte, 32*32*5), 0o644))

	Root.SetArgs([]string{"record", "--config", configPath, "--output", outputPath, framesPath})
	require.NoError(t, Root.ExecuteContext(context.Background()))

	var out bytes.Buffer
	Root.SetOut(&out)
	Root.SetArgs([]string{"probe", outputPath})
	require.NoError(t, Root.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), "5 samples")
}

func TestRecordPartialFrame(t *testing.T) {
	dir := t.TempDir()
	framesPath := filepath.Join(dir, "frames.raw")
	require.NoError(t, os.WriteFile(framesPath, make([]byte, 32*32+1), 0o644))

	Root.SetArgs([]string{
		"record", "--config=", "--codec=mpeg4", "--pixel-format=gray", "--width=32", "--height=32", "--fps=10",
		"--output", filepath.Join(dir, "out.mp4"), framesPath,
	})
	require.Error(t, Root.ExecuteContext(context.Background()))
}
