package pcm

import (
	"context"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/ffrecorder/pkg/averror"
	"github.com/xaionaro-go/ffrecorder/pkg/muxer"
)

// Resample converts interleaved stereo float samples from one sample rate
// to another.
//
// The input is fed to the resampler in chunks of ChunkSize samples per
// channel, the output length is thus only approximately
// len(samples) * toRate / fromRate.
func Resample(
	ctx context.Context,
	samples []float32,
	fromRate int,
	toRate int,
) (_ret []float32, _err error) {
	logger.Tracef(ctx, "Resample(%d samples, %d -> %d)", len(samples), fromRate, toRate)
	defer func() { logger.Tracef(ctx, "/Resample: %d samples, %v", len(_ret), _err) }()

	if fromRate <= 0 || toRate <= 0 {
		return nil, averror.New(averror.KindValidation, "invalid sample rates: %d -> %d", fromRate, toRate)
	}
	if len(samples)%int(Channels) != 0 {
		return nil, averror.New(averror.KindValidation, "the amount of samples (%d) is not a multiple of the amount of channels (%d)", len(samples), Channels)
	}
	if fromRate == toRate {
		return append([]float32(nil), samples...), nil
	}

	conv, err := newConverter(toRate)
	if err != nil {
		return nil, err
	}
	defer conv.Close()

	src := muxer.FramePool.Get()
	defer muxer.FramePool.Put(src)

	result := make([]float32, 0, int(int64(len(samples))*int64(toRate)/int64(fromRate))+ChunkSize)
	chunk := make([]byte, 0, ChunkSize*int(Channels)*4)
	for offset := 0; offset < len(samples); offset += ChunkSize * int(Channels) {
		end := min(offset+ChunkSize*int(Channels), len(samples))
		if err := fillFrame(src, samples[offset:end], fromRate, chunk[:0]); err != nil {
			return nil, err
		}
		result, err = conv.convert(src, result)
		if err != nil {
			return nil, err
		}
	}

	result, err = conv.flush(result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// fillFrame (re)allocates f as a packed stereo float frame holding the given
// interleaved samples.
func fillFrame(
	f *astiav.Frame,
	samples []float32,
	rate int,
	buf []byte,
) error {
	f.Unref()
	f.SetChannelLayout(astiav.ChannelLayoutStereo)
	f.SetSampleFormat(astiav.SampleFormatFlt)
	f.SetSampleRate(rate)
	f.SetNbSamples(len(samples) / int(Channels))
	if err := f.AllocBuffer(0); err != nil {
		return averror.Wrap(averror.KindCodec, err, "allocating a frame of %d samples", f.NbSamples())
	}
	if err := f.Data().SetBytes(bytesFromFloat32s(buf, samples), 1); err != nil {
		return averror.Wrap(averror.KindCodec, err, "filling a frame of %d samples", f.NbSamples())
	}
	return nil
}
