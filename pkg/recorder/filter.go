package recorder

import (
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/ffrecorder/pkg/averror"
)

type filterState int

const (
	filterStateIdle = filterState(iota)
	filterStateDraining
)

func (s filterState) String() string {
	switch s {
	case filterStateIdle:
		return "idle"
	case filterStateDraining:
		return "draining"
	default:
		return fmt.Sprintf("<unexpected_filter_state_%d>", int(s))
	}
}

// filterGraph is a linear video filter chain ("buffer" -> description ->
// "buffersink") producing exactly one frame per input frame.
type filterGraph struct {
	graph       *astiav.FilterGraph
	source      *astiav.BuffersrcFilterContext
	sink        *astiav.BuffersinkFilterContext
	frame       *astiav.Frame
	state       filterState
	description string
}

func newFilterGraph(
	ctx context.Context,
	closer *astikit.Closer,
	description string,
	width, height int,
	pixelFormat astiav.PixelFormat,
	timeBase astiav.Rational,
) (_ret *filterGraph, _err error) {
	logger.Debugf(ctx, "newFilterGraph(%q, %dx%d, %s)", description, width, height, pixelFormat)
	defer func() { logger.Debugf(ctx, "/newFilterGraph(%q): %v", description, _err) }()

	g := &filterGraph{
		description: description,
	}

	g.graph = astiav.AllocFilterGraph()
	if g.graph == nil {
		return nil, averror.NewWithDetails(averror.KindCodec, "unable to allocate a filter graph")
	}
	closer.Add(g.graph.Free)

	bufferFilter := astiav.FindFilterByName("buffer")
	bufferSinkFilter := astiav.FindFilterByName("buffersink")
	if bufferFilter == nil || bufferSinkFilter == nil {
		return nil, averror.New(averror.KindCodec, "the 'buffer'/'buffersink' filters are not available")
	}

	var err error
	if g.source, err = g.graph.NewBuffersrcFilterContext(bufferFilter, "in"); err != nil {
		return nil, averror.Wrap(averror.KindCodec, err, "creating the buffer source")
	}
	if g.sink, err = g.graph.NewBuffersinkFilterContext(bufferSinkFilter, "out"); err != nil {
		return nil, averror.Wrap(averror.KindCodec, err, "creating the buffer sink")
	}

	params := astiav.AllocBuffersrcFilterContextParameters()
	defer params.Free()
	params.SetWidth(width)
	params.SetHeight(height)
	params.SetPixelFormat(pixelFormat)
	params.SetTimeBase(timeBase)
	params.SetSampleAspectRatio(astiav.NewRational(1, 1))
	if err := g.source.SetParameters(params); err != nil {
		return nil, averror.Wrap(averror.KindCodec, err, "setting the parameters of the buffer source")
	}
	if err := g.source.Initialize(nil); err != nil {
		return nil, averror.Wrap(averror.KindCodec, err, "initializing the buffer source")
	}

	outputs := astiav.AllocFilterInOut()
	if outputs == nil {
		return nil, averror.NewWithDetails(averror.KindCodec, "unable to allocate the filter outputs")
	}
	defer outputs.Free()
	outputs.SetName("in")
	outputs.SetFilterContext(g.source.FilterContext())
	outputs.SetPadIdx(0)
	outputs.SetNext(nil)

	inputs := astiav.AllocFilterInOut()
	if inputs == nil {
		return nil, averror.NewWithDetails(averror.KindCodec, "unable to allocate the filter inputs")
	}
	defer inputs.Free()
	inputs.SetName("out")
	inputs.SetFilterContext(g.sink.FilterContext())
	inputs.SetPadIdx(0)
	inputs.SetNext(nil)

	if err := g.graph.Parse(description, inputs, outputs); err != nil {
		return nil, averror.Wrap(averror.KindConfig, err, "parsing the filter '%s'", description)
	}
	if err := g.graph.Configure(); err != nil {
		return nil, averror.Wrap(averror.KindConfig, err, "configuring the filter '%s'", description)
	}

	g.frame = astiav.AllocFrame()
	closer.Add(g.frame.Free)
	return g, nil
}

// OutputPixelFormat is the pixel format of the frames returned by Process.
func (g *filterGraph) OutputPixelFormat() astiav.PixelFormat {
	return g.sink.PixelFormat()
}

// Process pushes one frame into the graph and pulls the resulting frame.
// The result is valid until Release is called.
func (g *filterGraph) Process(in *astiav.Frame) (*astiav.Frame, error) {
	if g.state != filterStateIdle {
		return nil, averror.New(averror.KindCodec, "the filter graph is %s, the previous frame was not released", g.state)
	}

	if err := g.source.AddFrame(in, astiav.NewBuffersrcFlags(astiav.BuffersrcFlagKeepRef)); err != nil {
		return nil, averror.Wrap(averror.KindCodec, err, "pushing a frame into the filter '%s'", g.description)
	}
	g.state = filterStateDraining

	err := g.sink.GetFrame(g.frame, astiav.NewBuffersinkFlags())
	switch {
	case err == nil:
		return g.frame, nil
	case errors.Is(err, astiav.ErrEagain), errors.Is(err, astiav.ErrEof):
		g.Release()
		return nil, averror.Wrap(averror.KindCodec, err, "the filter '%s' did not produce a frame", g.description)
	default:
		g.Release()
		return nil, averror.Wrap(averror.KindCodec, err, "pulling a frame from the filter '%s'", g.description)
	}
}

func (g *filterGraph) Release() {
	g.frame.Unref()
	g.state = filterStateIdle
}
