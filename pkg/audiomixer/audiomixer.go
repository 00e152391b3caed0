// Package audiomixer adds an AAC audio track to a video file, copying the
// video packets as is.
package audiomixer

import (
	"context"
	"errors"
	"io"
	"math"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/ffrecorder/pkg/averror"
	"github.com/xaionaro-go/ffrecorder/pkg/metrics"
	"github.com/xaionaro-go/ffrecorder/pkg/muxer"
	"github.com/xaionaro-go/ffrecorder/pkg/pcm"
)

const (
	// SampleRate is the sample rate of the produced audio track.
	SampleRate = 44100

	// DecodeSampleRate is the rate audio files are decoded at by MixVideoAudio.
	DecodeSampleRate = 44100

	Bitrate = 128000

	// FrameSize is the amount of samples per channel in an encoded audio frame.
	FrameSize = 1024
)

// MixVideoAudio writes into outputPath the video of videoPath together with
// the first audio stream of audioPath.
func MixVideoAudio(
	ctx context.Context,
	videoPath string,
	audioPath string,
	outputPath string,
) (_err error) {
	logger.Debugf(ctx, "MixVideoAudio(%q, %q, %q)", videoPath, audioPath, outputPath)
	defer func() { logger.Debugf(ctx, "/MixVideoAudio: %v", _err) }()
	defer func() { metrics.ObserveFailure("mix_video_audio", _err) }()

	samples, params, err := pcm.DecodeFile(ctx, audioPath, DecodeSampleRate)
	if err != nil {
		return err
	}
	logger.Debugf(ctx, "decoded %d samples of '%s' (source: %s)", len(samples)/int(pcm.Channels), audioPath, params)
	return MixVideoRaw(ctx, videoPath, samples, outputPath)
}

// MixVideoRaw writes into outputPath the video of videoPath together with
// the given interleaved stereo float samples.
//
// The samples are assumed to span exactly the duration of the video, so
// their sample rate is derived from the amount of samples.
func MixVideoRaw(
	ctx context.Context,
	videoPath string,
	samples []float32,
	outputPath string,
) (_err error) {
	logger.Debugf(ctx, "MixVideoRaw(%q, %d samples, %q)", videoPath, len(samples), outputPath)
	defer func() { logger.Debugf(ctx, "/MixVideoRaw: %v", _err) }()
	defer func() { metrics.ObserveFailure("mix_video_raw", _err) }()

	if len(samples) == 0 {
		return averror.New(averror.KindValidation, "no audio samples")
	}
	if len(samples)%int(pcm.Channels) != 0 {
		return averror.New(averror.KindValidation, "the amount of samples (%d) is not a multiple of the amount of channels (%d)", len(samples), pcm.Channels)
	}

	closer := astikit.NewCloser()
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Errorf(ctx, "unable to release the contexts: %v", err)
			if _err == nil {
				_err = averror.Wrap(averror.KindIO, err, "releasing the contexts")
			}
		}
	}()

	input, err := muxer.NewInputFromPath(ctx, videoPath)
	if err != nil {
		return err
	}
	closer.AddWithError(input.Close)

	videoStream, err := input.FirstStream(astiav.MediaTypeVideo)
	if err != nil {
		return err
	}

	duration := input.DurationSeconds(videoStream)
	if duration <= 0 {
		return averror.New(averror.KindValidation, "unable to get the duration of '%s'", videoPath)
	}
	inputRate := int(math.Round(float64(len(samples)/int(pcm.Channels)) / duration))
	if inputRate <= 0 {
		return averror.New(averror.KindValidation, "%d samples over %fs is not a valid sample rate", len(samples), duration)
	}
	logger.Debugf(ctx, "the video lasts %fs, thus the audio sample rate is %d", duration, inputRate)

	output, err := muxer.NewOutput(ctx, outputPath)
	if err != nil {
		return err
	}
	closer.AddWithError(output.Close)

	videoOutput, err := muxer.NewCopyStream(ctx, output, videoStream)
	if err != nil {
		return err
	}

	resampled, err := pcm.Resample(ctx, samples, inputRate, SampleRate)
	if err != nil {
		return err
	}

	audioOutput, err := newAudioEncoder(ctx, closer, output)
	if err != nil {
		return err
	}

	if err := output.WriteHeader(ctx); err != nil {
		return err
	}

	if err := copyPackets(ctx, input, videoOutput); err != nil {
		return err
	}
	if err := encodeSamples(ctx, closer, audioOutput, resampled); err != nil {
		return err
	}
	if err := audioOutput.Encode(ctx, nil); err != nil {
		return err
	}
	return output.WriteTrailer(ctx)
}

func newAudioEncoder(
	ctx context.Context,
	closer *astikit.Closer,
	output *muxer.Output,
) (*muxer.StreamEncoder, error) {
	codec := astiav.FindEncoder(astiav.CodecIDAac)
	if codec == nil {
		return nil, averror.New(averror.KindCodec, "no AAC encoder")
	}
	codecContext := astiav.AllocCodecContext(codec)
	if codecContext == nil {
		return nil, averror.NewWithDetails(averror.KindCodec, "unable to allocate a context for encoder '%s'", codec.Name())
	}
	closer.Add(codecContext.Free)

	codecContext.SetSampleRate(SampleRate)
	codecContext.SetChannelLayout(astiav.ChannelLayoutStereo)
	codecContext.SetSampleFormat(astiav.SampleFormatFltp)
	codecContext.SetBitRate(Bitrate)
	codecContext.SetTimeBase(astiav.NewRational(1, SampleRate))
	if output.NeedsGlobalHeader() {
		codecContext.SetFlags(codecContext.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}
	if err := codecContext.Open(codec, nil); err != nil {
		return nil, averror.Wrap(averror.KindCodec, err, "opening encoder '%s'", codec.Name())
	}
	return muxer.NewStreamEncoder(ctx, output, codec, codecContext)
}

func copyPackets(
	ctx context.Context,
	input *muxer.Input,
	videoOutput *muxer.CopyStream,
) error {
	packet := muxer.PacketPool.Get()
	defer muxer.PacketPool.Put(packet)

	var count int
	for {
		err := input.ReadPacket(ctx, packet)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if packet.StreamIndex() != videoOutput.InputStream.Index() {
			packet.Unref()
			continue
		}
		if err := videoOutput.WritePacket(ctx, packet); err != nil {
			return err
		}
		count++
	}
	logger.Debugf(ctx, "copied %d video packets", count)
	return nil
}

func encodeSamples(
	ctx context.Context,
	closer *astikit.Closer,
	audioOutput *muxer.StreamEncoder,
	samples []float32,
) error {
	frame := muxer.FramePool.Get()
	closer.Add(func() { muxer.FramePool.Put(frame) })

	channels := int(pcm.Channels)
	planes := make([]byte, 0, FrameSize*channels*4)
	var pts int64
	for offset := 0; offset < len(samples); offset += FrameSize * channels {
		chunk := samples[offset:min(offset+FrameSize*channels, len(samples))]
		nbSamples := len(chunk) / channels

		if err := prepareFrame(frame, nbSamples); err != nil {
			return err
		}
		planes = pcm.AppendPlanar(planes[:0], chunk)
		if err := frame.Data().SetBytes(planes, 1); err != nil {
			return averror.Wrap(averror.KindCodec, err, "filling an audio frame of %d samples", nbSamples)
		}
		frame.SetPts(pts)
		pts += int64(nbSamples)

		if err := audioOutput.Encode(ctx, frame); err != nil {
			return err
		}
	}
	logger.Debugf(ctx, "encoded %d audio samples", pts)
	return nil
}

// prepareFrame makes frame a writable stereo planar float frame of nbSamples samples.
func prepareFrame(frame *astiav.Frame, nbSamples int) error {
	if frame.NbSamples() == nbSamples {
		if err := frame.MakeWritable(); err != nil {
			return averror.Wrap(averror.KindCodec, err, "making the audio frame writable")
		}
		return nil
	}

	frame.Unref()
	frame.SetSampleFormat(astiav.SampleFormatFltp)
	frame.SetChannelLayout(astiav.ChannelLayoutStereo)
	frame.SetSampleRate(SampleRate)
	frame.SetNbSamples(nbSamples)
	if err := frame.AllocBuffer(0); err != nil {
		return averror.Wrap(averror.KindCodec, err, "allocating an audio frame of %d samples", nbSamples)
	}
	return nil
}
