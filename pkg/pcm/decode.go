package pcm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/ffrecorder/pkg/averror"
	"github.com/xaionaro-go/ffrecorder/pkg/avlog"
	"github.com/xaionaro-go/ffrecorder/pkg/muxer"
)

// SourceParameters describes the audio stream a PCM buffer was decoded from.
type SourceParameters struct {
	CodecName    string
	SampleRate   SampleRate
	Channels     Channel
	SampleFormat string
	Duration     float64
}

func (p SourceParameters) String() string {
	return fmt.Sprintf("%s %dHz %dch %s (%.3fs)", p.CodecName, p.SampleRate, p.Channels, p.SampleFormat, p.Duration)
}

type decoder struct {
	closer       *astikit.Closer
	codecContext *astiav.CodecContext
	frame        *astiav.Frame
}

func newDecoder(
	ctx context.Context,
	stream *astiav.Stream,
) (_ret *decoder, _err error) {
	d := &decoder{
		closer: astikit.NewCloser(),
	}
	defer func() {
		if _err != nil {
			d.Close()
		}
	}()

	codecID := stream.CodecParameters().CodecID()
	codec := astiav.FindDecoder(codecID)
	if codec == nil {
		return nil, averror.New(averror.KindCodec, "unable to find a decoder for '%s'", codecID)
	}
	d.codecContext = astiav.AllocCodecContext(codec)
	if d.codecContext == nil {
		return nil, averror.NewWithDetails(averror.KindCodec, "unable to allocate a context for decoder '%s'", codec.Name())
	}
	d.closer.Add(d.codecContext.Free)

	if err := stream.CodecParameters().ToCodecContext(d.codecContext); err != nil {
		return nil, averror.Wrap(averror.KindCodec, err, "copying the stream parameters into decoder '%s'", codec.Name())
	}
	d.codecContext.SetTimeBase(stream.TimeBase())
	if err := d.codecContext.Open(codec, nil); err != nil {
		return nil, averror.Wrap(averror.KindCodec, err, "opening decoder '%s'", codec.Name())
	}
	logger.Debugf(ctx, "opened decoder '%s'", codec.Name())

	d.frame = astiav.AllocFrame()
	d.closer.Add(d.frame.Free)
	return d, nil
}

func (d *decoder) Close() error {
	return d.closer.Close()
}

// decode sends the packet (nil flushes the decoder) and calls onFrame for
// every decoded frame.
func (d *decoder) decode(
	ctx context.Context,
	packet *astiav.Packet,
	onFrame func(*astiav.Frame) error,
) error {
	if err := d.codecContext.SendPacket(packet); err != nil {
		if packet != nil && errors.Is(err, astiav.ErrInvaliddata) {
			logger.Warnf(ctx, "skipping an undecodable packet (pts:%d): %v", packet.Pts(), err)
			avlog.Capture.Drain()
			return nil
		}
		return averror.Wrap(averror.KindCodec, err, "sending a packet to the decoder")
	}
	for {
		err := d.codecContext.ReceiveFrame(d.frame)
		switch {
		case err == nil:
		case errors.Is(err, astiav.ErrEagain), errors.Is(err, astiav.ErrEof):
			return nil
		default:
			return averror.Wrap(averror.KindCodec, err, "receiving a frame from the decoder")
		}
		err = onFrame(d.frame)
		d.frame.Unref()
		if err != nil {
			return err
		}
	}
}

// DecodeFile decodes the first audio stream of the file into interleaved
// stereo float samples at the given sample rate.
func DecodeFile(
	ctx context.Context,
	path string,
	targetRate int,
) (_ret []float32, _params SourceParameters, _err error) {
	logger.Tracef(ctx, "DecodeFile(%q, %d)", path, targetRate)
	defer func() { logger.Tracef(ctx, "/DecodeFile(%q): %d samples, %v", path, len(_ret), _err) }()

	input, err := muxer.NewInputFromPath(ctx, path)
	if err != nil {
		return nil, SourceParameters{}, err
	}
	defer input.Close()

	stream, err := input.FirstStream(astiav.MediaTypeAudio)
	if err != nil {
		return nil, SourceParameters{}, err
	}
	codecParameters := stream.CodecParameters()
	params := SourceParameters{
		CodecName:    codecParameters.CodecID().Name(),
		SampleRate:   SampleRate(codecParameters.SampleRate()),
		Channels:     Channel(codecParameters.ChannelLayout().Channels()),
		SampleFormat: codecParameters.SampleFormat().Name(),
		Duration:     input.DurationSeconds(stream),
	}
	logger.Debugf(ctx, "decoding '%s': %s", path, params)

	dec, err := newDecoder(ctx, stream)
	if err != nil {
		return nil, params, err
	}
	defer dec.Close()

	conv, err := newConverter(targetRate)
	if err != nil {
		return nil, params, err
	}
	defer conv.Close()

	var samples []float32
	onFrame := func(f *astiav.Frame) (err error) {
		samples, err = conv.convert(f, samples)
		return err
	}

	packet := muxer.PacketPool.Get()
	defer muxer.PacketPool.Put(packet)
	for {
		err := input.ReadPacket(ctx, packet)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, params, err
		}
		if packet.StreamIndex() != stream.Index() {
			packet.Unref()
			continue
		}
		err = dec.decode(ctx, packet, onFrame)
		packet.Unref()
		if err != nil {
			return nil, params, err
		}
	}
	if err := dec.decode(ctx, nil, onFrame); err != nil {
		return nil, params, err
	}

	samples, err = conv.flush(samples)
	if err != nil {
		return nil, params, err
	}
	return samples, params, nil
}
