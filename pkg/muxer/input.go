package muxer

import (
	"context"
	"errors"
	"io"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/ffrecorder/pkg/averror"
)

type Input struct {
	*astikit.Closer
	*astiav.FormatContext
	Path string
}

func NewInputFromPath(
	ctx context.Context,
	path string,
) (_ret *Input, _err error) {
	logger.Tracef(ctx, "NewInputFromPath(%q)", path)
	defer func() { logger.Tracef(ctx, "/NewInputFromPath(%q): %v", path, _err) }()

	if path == "" {
		return nil, averror.New(averror.KindIO, "the input path is empty")
	}

	input := &Input{
		Closer: astikit.NewCloser(),
		Path:   path,
	}

	input.FormatContext = astiav.AllocFormatContext()
	if input.FormatContext == nil {
		return nil, averror.NewWithDetails(averror.KindIO, "unable to allocate a format context")
	}
	input.Closer.Add(input.FormatContext.Free)

	if err := input.FormatContext.OpenInput(path, nil, nil); err != nil {
		input.Close()
		return nil, averror.Wrap(averror.KindIO, err, "opening the input '%s'", path)
	}
	input.Closer.Add(input.FormatContext.CloseInput)

	if err := input.FormatContext.FindStreamInfo(nil); err != nil {
		input.Close()
		return nil, averror.Wrap(averror.KindIO, err, "getting the stream info of '%s'", path)
	}
	return input, nil
}

// FirstStream returns the first stream of the given media type.
func (input *Input) FirstStream(mediaType astiav.MediaType) (*astiav.Stream, error) {
	for _, stream := range input.FormatContext.Streams() {
		if stream.CodecParameters().MediaType() == mediaType {
			return stream, nil
		}
	}
	return nil, averror.New(averror.KindNotFound, "no %s stream in '%s'", mediaType, input.Path)
}

// DurationSeconds returns the duration of the container, falling back to
// the duration of the given stream if the container does not know it.
func (input *Input) DurationSeconds(stream *astiav.Stream) float64 {
	if d := input.FormatContext.Duration(); d > 0 {
		return float64(d) / float64(astiav.TimeBase)
	}
	if stream == nil || stream.Duration() <= 0 {
		return 0
	}
	return float64(stream.Duration()) * stream.TimeBase().Float64()
}

// ReadPacket reads the next packet of the input; it returns io.EOF at the
// end of the input.
func (input *Input) ReadPacket(
	_ context.Context,
	packet *astiav.Packet,
) error {
	err := input.FormatContext.ReadFrame(packet)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, astiav.ErrEof):
		return io.EOF
	default:
		return averror.Wrap(averror.KindIO, err, "reading a packet from '%s'", input.Path)
	}
}
