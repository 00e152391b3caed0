package recorder

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/goccy/go-yaml"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/ffrecorder/pkg/averror"
)

// HardwareAccelerationType is the name of a libav hardware device type
// (e.g. "vaapi", "cuda", "videotoolbox"); empty or "none" means software
// encoding.
type HardwareAccelerationType string

const (
	HardwareAccelerationTypeNone = HardwareAccelerationType("")
)

func (t HardwareAccelerationType) IsNone() bool {
	return t == HardwareAccelerationTypeNone || strings.EqualFold(string(t), "none")
}

func (t HardwareAccelerationType) DeviceType() (astiav.HardwareDeviceType, error) {
	if t.IsNone() {
		return astiav.HardwareDeviceTypeNone, nil
	}
	deviceType := astiav.FindHardwareDeviceTypeByName(string(t))
	if deviceType == astiav.HardwareDeviceTypeNone {
		return astiav.HardwareDeviceTypeNone, averror.New(averror.KindConfig, "unknown hardware acceleration type '%s'", string(t))
	}
	return deviceType, nil
}

// PixelFormat is the libav name of a pixel format, e.g. "rgba" or "yuv420p".
type PixelFormat string

func (f PixelFormat) Astiav() (astiav.PixelFormat, error) {
	pixelFormat := astiav.FindPixelFormatByName(string(f))
	if pixelFormat == astiav.PixelFormatNone {
		return astiav.PixelFormatNone, averror.New(averror.KindConfig, "unknown pixel format '%s'", string(f))
	}
	return pixelFormat, nil
}

// Config is the configuration of a single recording; it is copied by Init
// and cannot be changed afterwards.
type Config struct {
	HardwareAcceleration HardwareAccelerationType `yaml:"hardware_acceleration,omitempty"`
	PixelFormat          PixelFormat              `yaml:"pixel_format"`

	// CodecName is either the name of an encoder ("libx264") or of a codec
	// ("h264"); CodecID is used only if CodecName is empty or unknown.
	CodecName string         `yaml:"codec_name,omitempty"`
	CodecID   astiav.CodecID `yaml:"codec_id,omitempty"`

	// ColorspaceFilter is an expression of the "colorspace" filter, either
	// with the filter name ("colorspace=all=bt709") or just the options.
	// Raw frames carry no color metadata, so the expression must set the
	// input properties too (e.g. ExampleColorspaceFilter).
	ColorspaceFilter string `yaml:"colorspace_filter,omitempty"`
	VerticalFlip     bool   `yaml:"vertical_flip,omitempty"`

	Bitrate    int64  `yaml:"bitrate"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	FPS        int    `yaml:"fps"`
	OutputPath string `yaml:"output_path"`
}

// ExampleColorspaceFilter converts BT.601 (PAL) input to BT.709.
const ExampleColorspaceFilter = "all=bt709:iall=bt601-6-625"

func (cfg Config) Validate() error {
	if cfg.CodecName == "" && cfg.CodecID == astiav.CodecIDNone {
		return averror.New(averror.KindConfig, "neither a codec name nor a codec ID is set")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return averror.New(averror.KindConfig, "invalid resolution %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		return averror.New(averror.KindConfig, "invalid frame rate %d", cfg.FPS)
	}
	if cfg.Bitrate < 0 {
		return averror.New(averror.KindConfig, "invalid bitrate %d", cfg.Bitrate)
	}
	if cfg.OutputPath == "" {
		return averror.New(averror.KindConfig, "the output path is empty")
	}
	if _, err := cfg.PixelFormat.Astiav(); err != nil {
		return err
	}
	if _, err := cfg.HardwareAcceleration.DeviceType(); err != nil {
		return err
	}
	return nil
}

func (cfg Config) FilterDescription() string {
	var filters []string
	if expr := strings.TrimSpace(cfg.ColorspaceFilter); expr != "" {
		if !strings.HasPrefix(expr, "colorspace") {
			expr = "colorspace=" + expr
		}
		filters = append(filters, expr)
	}
	if cfg.VerticalFlip {
		filters = append(filters, "vflip")
	}
	return strings.Join(filters, ",")
}

var _ io.Reader = (*Config)(nil)
var _ io.ReaderFrom = (*Config)(nil)

func (cfg *Config) Read(
	b []byte,
) (int, error) {
	return len(b), yaml.Unmarshal(b, cfg)
}

func (cfg *Config) ReadFrom(
	r io.Reader,
) (int64, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return int64(len(b)), fmt.Errorf("unable to read: %w", err)
	}

	n, err := cfg.Read(b)
	return int64(n), err
}

var _ io.WriterTo = (*Config)(nil)

func (cfg Config) WriteTo(
	w io.Writer,
) (int64, error) {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return 0, fmt.Errorf("unable to serialize the config: %w", err)
	}

	counter := datacounter.NewWriterCounter(w)
	_, err = io.Copy(counter, bytes.NewReader(b))
	return int64(counter.Count()), err
}
