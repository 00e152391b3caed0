package pcm

import (
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/xaionaro-go/ffrecorder/pkg/averror"
)

// converter converts audio frames of any layout/format/rate into
// interleaved stereo float samples at the destination rate.
//
// The source parameters are taken from the first converted frame.
type converter struct {
	closer    *astikit.Closer
	swr       *astiav.SoftwareResampleContext
	dst       *astiav.Frame
	dstRate   int
	converted bool
}

func newConverter(dstRate int) (*converter, error) {
	if dstRate <= 0 {
		return nil, averror.New(averror.KindValidation, "invalid destination sample rate %d", dstRate)
	}
	c := &converter{
		closer:  astikit.NewCloser(),
		dstRate: dstRate,
	}

	c.swr = astiav.AllocSoftwareResampleContext()
	if c.swr == nil {
		return nil, averror.NewWithDetails(averror.KindCodec, "unable to allocate a resampler")
	}
	c.closer.Add(c.swr.Free)

	c.dst = astiav.AllocFrame()
	c.closer.Add(c.dst.Free)
	return c, nil
}

func (c *converter) Close() error {
	return c.closer.Close()
}

func (c *converter) resetDestination() {
	c.dst.Unref()
	c.dst.SetChannelLayout(astiav.ChannelLayoutStereo)
	c.dst.SetSampleFormat(astiav.SampleFormatFlt)
	c.dst.SetSampleRate(c.dstRate)
}

// convert appends the samples resulting from src to out. A nil src drains
// the samples delayed inside the resampler.
func (c *converter) convert(src *astiav.Frame, out []float32) ([]float32, error) {
	if src == nil && !c.converted {
		return out, nil
	}

	// an unallocated destination is sized by the resampler to fit all the available output
	c.resetDestination()
	if err := c.swr.ConvertFrame(src, c.dst); err != nil {
		return out, averror.Wrap(averror.KindCodec, err, "converting %d samples to %d Hz", frameSamples(src), c.dstRate)
	}
	c.converted = true

	nbSamples := c.dst.NbSamples()
	if nbSamples <= 0 {
		return out, nil
	}
	b, err := c.dst.Data().Bytes(1)
	if err != nil {
		return out, averror.Wrap(averror.KindCodec, err, "reading the converted samples")
	}
	expected := nbSamples * int(Channels) * 4
	if len(b) < expected {
		return out, averror.New(averror.KindCodec, "got %d bytes of converted samples, expected %d", len(b), expected)
	}
	return float32sFromBytes(out, b[:expected]), nil
}

func (c *converter) flush(out []float32) ([]float32, error) {
	return c.convert(nil, out)
}

func frameSamples(f *astiav.Frame) string {
	if f == nil {
		return "<flush>"
	}
	return fmt.Sprint(f.NbSamples())
}
