package muxer

import (
	"context"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/ffrecorder/pkg/averror"
	"github.com/xaionaro-go/ffrecorder/pkg/metrics"
)

// Output is an output container being written into a file.
//
// Everything allocated for it is released by Close (in reverse order of
// allocation).
type Output struct {
	*astikit.Closer
	*astiav.FormatContext
	Path string

	ioContext     *astiav.IOContext
	headerWritten bool
}

func NewOutput(
	ctx context.Context,
	path string,
) (_ret *Output, _err error) {
	logger.Tracef(ctx, "NewOutput(%q)", path)
	defer func() { logger.Tracef(ctx, "/NewOutput(%q): %v", path, _err) }()

	if path == "" {
		return nil, averror.New(averror.KindConfig, "the output path is empty")
	}

	output := &Output{
		Closer: astikit.NewCloser(),
		Path:   path,
	}

	formatContext, err := astiav.AllocOutputFormatContext(nil, "", path)
	if err != nil {
		return nil, averror.Wrap(averror.KindIO, err, "allocating the output format context for '%s'", path)
	}
	if formatContext == nil {
		return nil, averror.NewWithDetails(averror.KindIO, "unable to allocate the output format context for '%s'", path)
	}
	output.FormatContext = formatContext
	output.Closer.Add(output.FormatContext.Free)
	return output, nil
}

// NeedsGlobalHeader reports whether the container wants the codec
// extradata in the stream headers instead of in-band.
func (output *Output) NeedsGlobalHeader() bool {
	return output.FormatContext.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalheader)
}

func (output *Output) openIO(ctx context.Context) error {
	if output.ioContext != nil {
		return nil
	}
	if output.FormatContext.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile) {
		logger.Tracef(ctx, "destination '%s' is not a file", output.Path)
		return nil
	}

	ioContext, err := astiav.OpenIOContext(
		output.Path,
		astiav.NewIOContextFlags(astiav.IOContextFlagWrite),
		nil,
		nil,
	)
	if err != nil {
		return averror.Wrap(averror.KindIO, err, "opening the output file '%s'", output.Path)
	}
	output.ioContext = ioContext
	output.Closer.AddWithError(ioContext.Close)
	output.FormatContext.SetPb(ioContext)
	return nil
}

// WriteHeader opens the output file (unless the format does not need one)
// and writes the container header. All the streams must be configured
// before the call.
func (output *Output) WriteHeader(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "WriteHeader(%q)", output.Path)
	defer func() { logger.Tracef(ctx, "/WriteHeader(%q): %v", output.Path, _err) }()

	if output.headerWritten {
		return averror.New(averror.KindValidation, "the header of '%s' is already written", output.Path)
	}
	if err := output.openIO(ctx); err != nil {
		return err
	}
	if err := output.FormatContext.WriteHeader(nil); err != nil {
		return averror.Wrap(averror.KindIO, err, "writing the header of '%s'", output.Path)
	}
	output.headerWritten = true
	return nil
}

func (output *Output) HeaderWritten() bool {
	return output.headerWritten
}

func (output *Output) WriteTrailer(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "WriteTrailer(%q)", output.Path)
	defer func() { logger.Tracef(ctx, "/WriteTrailer(%q): %v", output.Path, _err) }()

	if !output.headerWritten {
		return averror.New(averror.KindValidation, "the header of '%s' was not written", output.Path)
	}
	if err := output.FormatContext.WriteTrailer(); err != nil {
		return averror.Wrap(averror.KindIO, err, "writing the trailer of '%s'", output.Path)
	}
	return nil
}

// WritePacket writes the packet (which must already have the output stream
// index and time base) with interleaving. The packet is unreferenced by the call.
func (output *Output) WritePacket(
	ctx context.Context,
	mediaType astiav.MediaType,
	packet *astiav.Packet,
) error {
	size := packet.Size()
	if logger.FromCtx(ctx).Level() >= logger.LevelTrace {
		logger.Tracef(
			ctx,
			"writing a %s packet to stream %d (pts:%d, dts:%d, dur:%d, size:%d)",
			mediaType, packet.StreamIndex(), packet.Pts(), packet.Dts(), packet.Duration(), size,
		)
	}
	if err := output.FormatContext.WriteInterleavedFrame(packet); err != nil {
		return averror.Wrap(averror.KindCodec, err, "writing a %s packet into '%s'", mediaType, output.Path)
	}
	metrics.ObserveMuxedPacket(mediaType.String(), size)
	return nil
}
