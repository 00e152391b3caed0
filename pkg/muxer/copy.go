package muxer

import (
	"context"

	"github.com/asticode/go-astiav"
	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/ffrecorder/pkg/averror"
)

// CopyStream is an output stream receiving the packets of an input stream
// as is (no decoding/encoding).
type CopyStream struct {
	InputStream  *astiav.Stream
	OutputStream *astiav.Stream
	Output       *Output
}

func NewCopyStream(
	ctx context.Context,
	output *Output,
	inputStream *astiav.Stream,
) (*CopyStream, error) {
	outputStream := output.FormatContext.NewStream(nil)
	if outputStream == nil {
		return nil, averror.NewWithDetails(averror.KindIO, "unable to create an output stream")
	}
	if err := inputStream.CodecParameters().Copy(outputStream.CodecParameters()); err != nil {
		return nil, averror.Wrap(averror.KindCodec, err, "copying the codec parameters of input stream #%d", inputStream.Index())
	}
	// the tag of the input container may be invalid in the output one
	outputStream.CodecParameters().SetCodecTag(0)
	outputStream.SetTimeBase(inputStream.TimeBase())

	if logger.FromCtx(ctx).Level() >= logger.LevelTrace {
		logger.Tracef(ctx, "copy stream #%d -> #%d: %s", inputStream.Index(), outputStream.Index(), spew.Sdump(outputStream.CodecParameters()))
	}
	return &CopyStream{
		InputStream:  inputStream,
		OutputStream: outputStream,
		Output:       output,
	}, nil
}

// WritePacket rescales the timestamps of a packet read from the input stream
// into the time base of the output stream and writes it. Nothing else in the
// packet is modified.
//
// The time base of the output stream is only final after the header is written.
func (s *CopyStream) WritePacket(
	ctx context.Context,
	packet *astiav.Packet,
) error {
	packet.RescaleTs(s.InputStream.TimeBase(), s.OutputStream.TimeBase())
	packet.SetStreamIndex(s.OutputStream.Index())
	packet.SetPos(-1)
	return s.Output.WritePacket(ctx, s.InputStream.CodecParameters().MediaType(), packet)
}
