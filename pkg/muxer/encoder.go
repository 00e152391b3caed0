package muxer

import (
	"context"
	"errors"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/ffrecorder/pkg/averror"
)

// StreamEncoder binds an opened encoder to its output stream and implements
// the send/drain/rescale/write discipline shared by the video and audio paths.
type StreamEncoder struct {
	CodecContext *astiav.CodecContext
	Stream       *astiav.Stream
	Output       *Output
	Packet       *astiav.Packet
}

// NewStreamEncoder creates a new output stream for the already opened
// encoder and copies its parameters into the stream.
func NewStreamEncoder(
	ctx context.Context,
	output *Output,
	codec *astiav.Codec,
	codecContext *astiav.CodecContext,
) (*StreamEncoder, error) {
	stream := output.FormatContext.NewStream(codec)
	if stream == nil {
		return nil, averror.NewWithDetails(averror.KindCodec, "unable to create an output stream for '%s'", codec.Name())
	}
	if err := stream.CodecParameters().FromCodecContext(codecContext); err != nil {
		return nil, averror.Wrap(averror.KindCodec, err, "copying the parameters of encoder '%s' into the stream", codec.Name())
	}
	stream.SetTimeBase(codecContext.TimeBase())
	logger.Debugf(ctx, "output stream #%d: %s, time base %s", stream.Index(), codec.Name(), stream.TimeBase())

	packet := PacketPool.Get()
	output.Closer.Add(func() { PacketPool.Put(packet) })
	return &StreamEncoder{
		CodecContext: codecContext,
		Stream:       stream,
		Output:       output,
		Packet:       packet,
	}, nil
}

// Encode sends the frame to the encoder and writes every packet the encoder
// has ready. A nil frame signals the end of the stream and flushes the encoder.
func (e *StreamEncoder) Encode(
	ctx context.Context,
	frame *astiav.Frame,
) (_err error) {
	if err := e.CodecContext.SendFrame(frame); err != nil {
		if frame == nil {
			return averror.Wrap(averror.KindCodec, err, "flushing the encoder")
		}
		return averror.Wrap(averror.KindCodec, err, "sending a frame (pts:%d) to the encoder", frame.Pts())
	}
	return e.drain(ctx)
}

func (e *StreamEncoder) drain(ctx context.Context) error {
	mediaType := e.CodecContext.MediaType()
	for {
		err := e.CodecContext.ReceivePacket(e.Packet)
		switch {
		case err == nil:
		case errors.Is(err, astiav.ErrEagain), errors.Is(err, astiav.ErrEof):
			return nil
		default:
			return averror.Wrap(averror.KindCodec, err, "receiving a %s packet from the encoder", mediaType)
		}

		e.Packet.RescaleTs(e.CodecContext.TimeBase(), e.Stream.TimeBase())
		e.Packet.SetStreamIndex(e.Stream.Index())
		err = e.Output.WritePacket(ctx, mediaType, e.Packet)
		e.Packet.Unref()
		if err != nil {
			return err
		}
	}
}
