package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/ffrecorder/pkg/audiomixer"
	"github.com/xaionaro-go/ffrecorder/pkg/mp4probe"
	"github.com/xaionaro-go/ffrecorder/pkg/pcm"
	"github.com/xaionaro-go/ffrecorder/pkg/recorder"
)

var (
	Root = &cobra.Command{
		Use:           "ffrecorder",
		Short:         "encodes raw frames into videos and merges audio into them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx := getContext(cmd.Context(), LoggingFlags)
			cmd.SetContext(ctx)
			logger.Debugf(ctx, "log-level: %v", LoggingFlags.Level)

			if MetricsListenAddr != "" {
				if err := serveMetrics(ctx, MetricsListenAddr); err != nil {
					return err
				}
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			logger.Debug(ctx, "end")
			belt.Flush(ctx)
		},
	}

	Codecs = &cobra.Command{
		Use:   "codecs",
		Short: "lists the video encoders usable for recording",
		Args:  cobra.NoArgs,
		RunE:  codecs,
	}

	Record = &cobra.Command{
		Use:   "record [raw frames file, or '-' for stdin]",
		Short: "encodes a stream of raw frames into a video file",
		Args:  cobra.ExactArgs(1),
		RunE:  record,
	}

	ConfigExample = &cobra.Command{
		Use:   "config-example",
		Short: "prints a recording config in YAML, to be used with 'record --config'",
		Args:  cobra.NoArgs,
		RunE:  configExample,
	}

	Mix = &cobra.Command{
		Use:   "mix <video> <audio> <output>",
		Short: "copies the video of a file and adds the audio of another one",
		Args:  cobra.ExactArgs(3),
		RunE:  mix,
	}

	MixRaw = &cobra.Command{
		Use:   "mix-raw <video> <raw interleaved stereo PCM> <output>",
		Short: "copies the video of a file and adds the raw audio stretched to the video duration",
		Args:  cobra.ExactArgs(3),
		RunE:  mixRaw,
	}

	Decode = &cobra.Command{
		Use:   "decode <audio> <output, or '-' for stdout>",
		Short: "decodes the first audio stream of a file into raw interleaved stereo PCM",
		Args:  cobra.ExactArgs(2),
		RunE:  decode,
	}

	Resample = &cobra.Command{
		Use:   "resample <input, or '-'> <output, or '-'>",
		Short: "resamples raw interleaved stereo PCM",
		Args:  cobra.ExactArgs(2),
		RunE:  resample,
	}

	Probe = &cobra.Command{
		Use:   "probe <mp4 file>",
		Short: "describes the tracks of an MP4 file",
		Args:  cobra.ExactArgs(1),
		RunE:  probe,
	}

	Version = &cobra.Command{
		Use:   "version",
		Short: "prints the build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printBuildInfo(cmd.OutOrStdout())
		},
	}

	LoggingFlags = loggingFlags{
		Level: logger.LevelWarning,
	}
	MetricsListenAddr string
)

func init() {
	Root.AddCommand(Codecs)
	Root.AddCommand(Record)
	Root.AddCommand(ConfigExample)
	Root.AddCommand(Mix)
	Root.AddCommand(MixRaw)
	Root.AddCommand(Decode)
	Root.AddCommand(Resample)
	Root.AddCommand(Probe)
	Root.AddCommand(Version)

	Root.PersistentFlags().Var(&LoggingFlags.Level, "log-level", "")
	Root.PersistentFlags().StringVar(&LoggingFlags.LogstashAddr, "logstash-addr", "", "the URL of logstash to send the logs to, e.g. 'tcp://localhost:5000'")
	Root.PersistentFlags().StringVar(&LoggingFlags.SentryDSN, "sentry-dsn", "", "the Sentry DSN to report errors to")
	Root.PersistentFlags().StringVar(&MetricsListenAddr, "metrics-listen-addr", "", "the address to serve /metrics and net/pprof at")

	addRecordFlags(Record.Flags())
	addRecordFlags(ConfigExample.Flags())
	Record.Flags().String("config", "", "a YAML config file, the flags override its values")
	Record.Flags().String("output", "", "the path of the produced video")

	MixRaw.Flags().String("format", pcm.PCMFormatFloat32LE.String(), "the sample encoding of the raw PCM, one of: "+pcmFormatNames())
	Decode.Flags().String("format", pcm.PCMFormatFloat32LE.String(), "the sample encoding of the output, one of: "+pcmFormatNames())
	Decode.Flags().Int("rate", audiomixer.DecodeSampleRate, "the sample rate of the output")
	Resample.Flags().String("format", pcm.PCMFormatFloat32LE.String(), "the sample encoding of the input and the output, one of: "+pcmFormatNames())
	Resample.Flags().Int("from", 0, "the sample rate of the input")
	Resample.Flags().Int("to", audiomixer.SampleRate, "the sample rate of the output")
	Probe.Flags().Bool("dump", false, "dump the summary structure")
}

func addRecordFlags(flags *pflag.FlagSet) {
	flags.String("hwaccel", "", "the hardware device type to encode with (e.g. 'vaapi', 'cuda'), empty or 'none' for software encoding")
	flags.String("pixel-format", "rgba", "the pixel format of the raw frames")
	flags.String("codec", "libx264", "the encoder or codec name")
	flags.String("colorspace", "", "a colorspace filter expression, e.g. '"+recorder.ExampleColorspaceFilter+"'")
	flags.Bool("vflip", false, "flip the frames vertically")
	flags.Int64("bitrate", 4_000_000, "the target bitrate in bits per second")
	flags.Int("width", 1280, "")
	flags.Int("height", 720, "")
	flags.Int("fps", 30, "")
}

// applyRecordFlags overrides cfg with the explicitly set flags (or with all
// of them, if onlyChanged is false).
func applyRecordFlags(
	flags *pflag.FlagSet,
	cfg *recorder.Config,
	onlyChanged bool,
) error {
	var result *multierror.Error
	flags.VisitAll(func(f *pflag.Flag) {
		if onlyChanged && !f.Changed {
			return
		}
		var err error
		switch f.Name {
		case "hwaccel":
			cfg.HardwareAcceleration = recorder.HardwareAccelerationType(f.Value.String())
		case "pixel-format":
			cfg.PixelFormat = recorder.PixelFormat(f.Value.String())
		case "codec":
			cfg.CodecName = f.Value.String()
		case "colorspace":
			cfg.ColorspaceFilter = f.Value.String()
		case "vflip":
			cfg.VerticalFlip, err = flags.GetBool(f.Name)
		case "bitrate":
			cfg.Bitrate, err = flags.GetInt64(f.Name)
		case "width":
			cfg.Width, err = flags.GetInt(f.Name)
		case "height":
			cfg.Height, err = flags.GetInt(f.Name)
		case "fps":
			cfg.FPS, err = flags.GetInt(f.Name)
		case "output":
			cfg.OutputPath = f.Value.String()
		}
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("flag '%s': %w", f.Name, err))
		}
	})
	return result.ErrorOrNil()
}

func codecs(cmd *cobra.Command, args []string) error {
	for _, name := range recorder.GetAvailableCodecs() {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}

func configExample(cmd *cobra.Command, args []string) error {
	var cfg recorder.Config
	if err := applyRecordFlags(cmd.Flags(), &cfg, false); err != nil {
		return err
	}
	cfg.OutputPath = "output.mp4"
	_, err := cfg.WriteTo(cmd.OutOrStdout())
	return err
}

func loadRecordConfig(flags *pflag.FlagSet) (recorder.Config, error) {
	var cfg recorder.Config
	configPath, err := flags.GetString("config")
	if err != nil {
		return cfg, err
	}
	if configPath == "" {
		return cfg, applyRecordFlags(flags, &cfg, false)
	}

	f, err := os.Open(configPath)
	if err != nil {
		return cfg, fmt.Errorf("unable to open the config file: %w", err)
	}
	defer f.Close()
	if _, err := cfg.ReadFrom(f); err != nil {
		return cfg, fmt.Errorf("unable to parse config file '%s': %w", configPath, err)
	}
	return cfg, applyRecordFlags(flags, &cfg, true)
}

func record(cmd *cobra.Command, args []string) (_err error) {
	ctx := cmd.Context()

	cfg, err := loadRecordConfig(cmd.Flags())
	if err != nil {
		return err
	}

	in, closeIn, err := openInput(args[0])
	if err != nil {
		return err
	}
	defer closeIn()

	rec := recorder.New()
	if err := rec.Init(ctx, cfg); err != nil {
		return err
	}
	defer func() {
		if err := rec.Stop(ctx); err != nil && _err == nil {
			_err = err
		}
		logger.Infof(ctx, "recorded %d frames into '%s'", rec.FrameCount(), cfg.OutputPath)
	}()

	frame := make([]byte, rec.RawFrameSize())
	logger.Debugf(ctx, "the raw frame size is %s", humanize.IBytes(uint64(len(frame))))
	for {
		_, err := io.ReadFull(in, frame)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			return fmt.Errorf("the input ended in the middle of frame #%d", rec.FrameCount())
		case err != nil:
			return fmt.Errorf("unable to read frame #%d: %w", rec.FrameCount(), err)
		}
		if err := rec.WriteFrame(ctx, frame); err != nil {
			return err
		}
	}
}

func mix(cmd *cobra.Command, args []string) error {
	return audiomixer.MixVideoAudio(cmd.Context(), args[0], args[1], args[2])
}

func pcmFormatNames() string {
	names := make([]string, 0, len(pcm.SupportedPCMFormats))
	for _, f := range pcm.SupportedPCMFormats {
		names = append(names, f.String())
	}
	return strings.Join(names, ", ")
}

func pcmFormatFlag(flags *pflag.FlagSet) (pcm.PCMFormat, error) {
	s, err := flags.GetString("format")
	if err != nil {
		return pcm.PCMFormatUndefined, err
	}
	format := pcm.PCMFormatFromString(s)
	if format == pcm.PCMFormatUndefined {
		return format, fmt.Errorf("unknown PCM format '%s'", s)
	}
	return format, nil
}

func readPCM(path string, format pcm.PCMFormat) ([]float32, error) {
	in, closeIn, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer closeIn()
	return pcm.Read(in, format)
}

func writePCM(path string, samples []float32, format pcm.PCMFormat) error {
	out, closeOut, err := openOutput(path)
	if err != nil {
		return err
	}
	if err := pcm.Write(out, samples, format); err != nil {
		closeOut()
		return fmt.Errorf("unable to write the samples: %w", err)
	}
	return closeOut()
}

func mixRaw(cmd *cobra.Command, args []string) error {
	format, err := pcmFormatFlag(cmd.Flags())
	if err != nil {
		return err
	}
	samples, err := readPCM(args[1], format)
	if err != nil {
		return err
	}
	return audiomixer.MixVideoRaw(cmd.Context(), args[0], samples, args[2])
}

func decode(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	format, err := pcmFormatFlag(cmd.Flags())
	if err != nil {
		return err
	}
	rate, err := cmd.Flags().GetInt("rate")
	if err != nil {
		return err
	}

	samples, params, err := pcm.DecodeFile(ctx, args[0], rate)
	if err != nil {
		return err
	}
	logger.Infof(ctx, "decoded '%s' (%s) into %d samples per channel", args[0], params, len(samples)/int(pcm.Channels))
	return writePCM(args[1], samples, format)
}

func resample(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	format, err := pcmFormatFlag(cmd.Flags())
	if err != nil {
		return err
	}
	fromRate, err := cmd.Flags().GetInt("from")
	if err != nil {
		return err
	}
	toRate, err := cmd.Flags().GetInt("to")
	if err != nil {
		return err
	}

	samples, err := readPCM(args[0], format)
	if err != nil {
		return err
	}
	resampled, err := pcm.Resample(ctx, samples, fromRate, toRate)
	if err != nil {
		return err
	}
	return writePCM(args[1], resampled, format)
}

func probe(cmd *cobra.Command, args []string) error {
	summary, err := mp4probe.ProbeFile(args[0])
	if err != nil {
		return err
	}
	dump, err := cmd.Flags().GetBool("dump")
	if err != nil {
		return err
	}
	if dump {
		spew.Fdump(cmd.OutOrStdout(), summary)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), summary.String())
	return nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open '%s': %w", path, err)
	}
	return f, func() { f.Close() }, nil
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create '%s': %w", path, err)
	}
	return f, f.Close, nil
}
