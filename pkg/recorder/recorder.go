// Package recorder encodes raw video frames into a video file.
package recorder

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/ffrecorder/pkg/averror"
	"github.com/xaionaro-go/ffrecorder/pkg/metrics"
	"github.com/xaionaro-go/ffrecorder/pkg/muxer"
	"github.com/xaionaro-go/xsync"
)

const (
	gopSize     = 10
	maxBFrames  = 1
	frameAlign  = 1
	scalerFlags = astiav.SoftwareScaleContextFlagBilinear
)

type State int

const (
	StateUninitialized = State(iota)
	StateInitialized
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("<unexpected_state_%d>", int(s))
	}
}

// Recorder is a single-use pipeline: Init, any amount of WriteFrame, Stop.
type Recorder struct {
	locker     xsync.Mutex
	state      State
	frameCount int64
	config     Config
	pipeline   *pipeline
}

type pipeline struct {
	closer *astikit.Closer

	output       *muxer.Output
	codecContext *astiav.CodecContext
	encoder      *muxer.StreamEncoder
	hwDevice     *astiav.HardwareDeviceContext
	filter       *filterGraph
	scaler       *astiav.SoftwareScaleContext

	rawFrame       *astiav.Frame
	convertedFrame *astiav.Frame
	rawBuffer      []byte
	rawLinesize    int
	height         int
}

func New() *Recorder {
	return &Recorder{}
}

func (r *Recorder) State() State {
	return xsync.DoR1(context.Background(), &r.locker, func() State {
		return r.state
	})
}

// FrameCount returns the amount of frames accepted so far, which is also
// the presentation timestamp of the next frame.
func (r *Recorder) FrameCount() int64 {
	return xsync.DoR1(context.Background(), &r.locker, func() int64 {
		return r.frameCount
	})
}

// RawFrameSize returns the size in bytes expected by WriteFrame.
func (r *Recorder) RawFrameSize() int {
	return xsync.DoR1(context.Background(), &r.locker, func() int {
		if r.pipeline == nil {
			return 0
		}
		return r.pipeline.rawLinesize * r.pipeline.height
	})
}

func (r *Recorder) Init(
	ctx context.Context,
	cfg Config,
) (_err error) {
	logger.Debugf(ctx, "Init(%#+v)", cfg)
	defer func() { logger.Debugf(ctx, "/Init: %v", _err) }()
	defer func() { metrics.ObserveFailure("init", _err) }()
	return xsync.DoA2R1(ctx, &r.locker, r.initLocked, ctx, cfg)
}

func (r *Recorder) initLocked(
	ctx context.Context,
	cfg Config,
) error {
	if r.state != StateUninitialized {
		return averror.New(averror.KindValidation, "the recorder is %s", r.state)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	p, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	r.config = cfg
	r.pipeline = p
	r.frameCount = 0
	r.state = StateInitialized
	return nil
}

func newPipeline(
	ctx context.Context,
	cfg Config,
) (_ret *pipeline, _err error) {
	p := &pipeline{
		closer: astikit.NewCloser(),
		height: cfg.Height,
	}
	defer func() {
		if _err != nil {
			if err := p.closer.Close(); err != nil {
				logger.Errorf(ctx, "unable to release the partially initialized pipeline: %v", err)
			}
		}
	}()

	requestedPixelFormat, err := cfg.PixelFormat.Astiav()
	if err != nil {
		return nil, err
	}
	deviceType, err := cfg.HardwareAcceleration.DeviceType()
	if err != nil {
		return nil, err
	}

	p.output, err = muxer.NewOutput(ctx, cfg.OutputPath)
	if err != nil {
		return nil, err
	}
	p.closer.AddWithError(p.output.Close)

	codec, err := findVideoEncoder(ctx, cfg.CodecName, cfg.CodecID)
	if err != nil {
		return nil, err
	}

	p.codecContext = astiav.AllocCodecContext(codec)
	if p.codecContext == nil {
		return nil, averror.NewWithDetails(averror.KindCodec, "unable to allocate a context for encoder '%s'", codec.Name())
	}
	p.closer.Add(p.codecContext.Free)

	if deviceType != astiav.HardwareDeviceTypeNone {
		p.hwDevice, err = astiav.CreateHardwareDeviceContext(deviceType, "", nil, 0)
		if err != nil {
			return nil, averror.Wrap(averror.KindCodec, err, "creating a %s device", deviceType)
		}
		p.closer.Add(p.hwDevice.Free)
		p.codecContext.SetHardwareDeviceContext(p.hwDevice)
	}

	pixelFormat, err := negotiatePixelFormat(ctx, codec, requestedPixelFormat)
	if err != nil {
		return nil, err
	}

	timeBase := astiav.NewRational(1, cfg.FPS)
	p.codecContext.SetBitRate(cfg.Bitrate)
	p.codecContext.SetWidth(cfg.Width)
	p.codecContext.SetHeight(cfg.Height)
	p.codecContext.SetTimeBase(timeBase)
	p.codecContext.SetFramerate(astiav.NewRational(cfg.FPS, 1))
	p.codecContext.SetGopSize(gopSize)
	p.codecContext.SetMaxBFrames(maxBFrames)
	p.codecContext.SetPixelFormat(pixelFormat)
	if p.output.NeedsGlobalHeader() {
		p.codecContext.SetFlags(p.codecContext.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}

	if err := p.codecContext.Open(codec, nil); err != nil {
		return nil, averror.Wrap(averror.KindCodec, err, "opening encoder '%s'", codec.Name())
	}

	p.encoder, err = muxer.NewStreamEncoder(ctx, p.output, codec, p.codecContext)
	if err != nil {
		return nil, err
	}
	if err := p.output.WriteHeader(ctx); err != nil {
		return nil, err
	}

	scalerInputFormat := requestedPixelFormat
	if description := cfg.FilterDescription(); description != "" {
		p.filter, err = newFilterGraph(ctx, p.closer, description, cfg.Width, cfg.Height, requestedPixelFormat, timeBase)
		if err != nil {
			return nil, err
		}
		scalerInputFormat = p.filter.OutputPixelFormat()
	}

	p.rawFrame, err = allocVideoFrame(cfg.Width, cfg.Height, requestedPixelFormat)
	if err != nil {
		return nil, err
	}
	p.closer.Add(p.rawFrame.Free)
	if err := p.rawFrame.ImageFillBlack(); err != nil {
		return nil, averror.Wrap(averror.KindCodec, err, "initializing the raw frame")
	}
	// the planes beyond the first one keep their initial content in the buffer
	p.rawBuffer, err = p.rawFrame.Data().Bytes(frameAlign)
	if err != nil {
		return nil, averror.Wrap(averror.KindCodec, err, "getting the raw frame buffer")
	}
	p.rawLinesize = p.rawFrame.Linesize()[0]

	p.convertedFrame, err = allocVideoFrame(cfg.Width, cfg.Height, pixelFormat)
	if err != nil {
		return nil, err
	}
	p.closer.Add(p.convertedFrame.Free)

	p.scaler, err = astiav.CreateSoftwareScaleContext(
		cfg.Width, cfg.Height, scalerInputFormat,
		cfg.Width, cfg.Height, pixelFormat,
		astiav.NewSoftwareScaleContextFlags(scalerFlags),
	)
	if err != nil {
		return nil, averror.Wrap(averror.KindCodec, err, "creating a scaler %s -> %s", scalerInputFormat, pixelFormat)
	}
	p.closer.Add(p.scaler.Free)

	logger.Debugf(ctx,
		"recording into '%s' with encoder '%s': %dx%d@%d, %s -> %s, filter: %q",
		cfg.OutputPath, codec.Name(), cfg.Width, cfg.Height, cfg.FPS,
		requestedPixelFormat, pixelFormat, cfg.FilterDescription(),
	)
	return p, nil
}

func allocVideoFrame(
	width, height int,
	pixelFormat astiav.PixelFormat,
) (*astiav.Frame, error) {
	frame := astiav.AllocFrame()
	frame.SetWidth(width)
	frame.SetHeight(height)
	frame.SetPixelFormat(pixelFormat)
	if err := frame.AllocBuffer(frameAlign); err != nil {
		frame.Free()
		return nil, averror.Wrap(averror.KindCodec, err, "allocating a %dx%d %s frame", width, height, pixelFormat)
	}
	return frame, nil
}

// WriteFrame encodes one raw frame. The size of frame must be exactly
// linesize × height of the configured pixel format (see RawFrameSize).
func (r *Recorder) WriteFrame(
	ctx context.Context,
	frame []byte,
) (_err error) {
	logger.Tracef(ctx, "WriteFrame(%d bytes)", len(frame))
	defer func() { logger.Tracef(ctx, "/WriteFrame: %v", _err) }()
	defer func() { metrics.ObserveFailure("write_frame", _err) }()
	return xsync.DoA2R1(ctx, &r.locker, r.writeFrameLocked, ctx, frame)
}

func (r *Recorder) writeFrameLocked(
	ctx context.Context,
	frame []byte,
) error {
	if r.state != StateInitialized {
		return averror.New(averror.KindValidation, "the recorder is %s", r.state)
	}
	p := r.pipeline

	if expected := p.rawLinesize * p.height; len(frame) != expected {
		return averror.New(averror.KindValidation, "invalid frame size %d, expected %d (%d × %d)", len(frame), expected, p.rawLinesize, p.height)
	}

	copy(p.rawBuffer, frame)
	if err := p.rawFrame.MakeWritable(); err != nil {
		return averror.Wrap(averror.KindCodec, err, "making the raw frame writable")
	}
	if err := p.rawFrame.Data().SetBytes(p.rawBuffer, frameAlign); err != nil {
		return averror.Wrap(averror.KindCodec, err, "copying the raw frame")
	}

	src := p.rawFrame
	if p.filter != nil {
		filtered, err := p.filter.Process(p.rawFrame)
		if err != nil {
			return err
		}
		defer p.filter.Release()
		src = filtered
	}

	if err := p.convertedFrame.MakeWritable(); err != nil {
		return averror.Wrap(averror.KindCodec, err, "making the converted frame writable")
	}
	if err := p.scaler.ScaleFrame(src, p.convertedFrame); err != nil {
		return averror.Wrap(averror.KindCodec, err, "converting the frame")
	}

	p.convertedFrame.SetPts(r.frameCount)
	r.frameCount++
	if err := p.encoder.Encode(ctx, p.convertedFrame); err != nil {
		return err
	}
	metrics.FramesWritten.Inc()
	return nil
}

// Stop flushes the encoder, finalizes the file and releases everything.
// It does nothing unless the recorder is initialized.
func (r *Recorder) Stop(
	ctx context.Context,
) (_err error) {
	logger.Debugf(ctx, "Stop")
	defer func() { logger.Debugf(ctx, "/Stop: %v", _err) }()
	defer func() { metrics.ObserveFailure("stop", _err) }()
	return xsync.DoA1R1(ctx, &r.locker, r.stopLocked, ctx)
}

func (r *Recorder) stopLocked(
	ctx context.Context,
) error {
	if r.state != StateInitialized {
		logger.Debugf(ctx, "the recorder is %s, nothing to stop", r.state)
		return nil
	}
	p := r.pipeline
	r.pipeline = nil
	r.state = StateStopped

	var result error
	if err := p.encoder.Encode(ctx, nil); err != nil {
		result = err
	}
	if err := p.output.WriteTrailer(ctx); err != nil && result == nil {
		result = err
	}
	if err := p.closer.Close(); err != nil {
		logger.Errorf(ctx, "unable to release the pipeline: %v", err)
		if result == nil {
			result = averror.Wrap(averror.KindIO, err, "releasing the pipeline")
		}
	}
	logger.Debugf(ctx, "stopped after %d frames", r.frameCount)
	return result
}
