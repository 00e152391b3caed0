package recorder

import (
	"context"
	"sort"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/ffrecorder/pkg/averror"
)

// SupportedCodecIDs are the video codecs a recording may be encoded with.
var SupportedCodecIDs = []astiav.CodecID{
	astiav.CodecIDH264,
	astiav.CodecIDHevc,
	astiav.CodecIDVp8,
	astiav.CodecIDVp9,
	astiav.CodecIDAv1,
	astiav.CodecIDMpeg4,
}

func isSupportedCodecID(id astiav.CodecID) bool {
	for _, supported := range SupportedCodecIDs {
		if supported == id {
			return true
		}
	}
	return false
}

type codecDescription struct {
	Name      string
	ID        astiav.CodecID
	MediaType astiav.MediaType

	// PixelFormatCount is the amount of pixel formats declared by the
	// encoder found by Name; negative if there is no such encoder.
	PixelFormatCount int
}

func describeCodec(codec *astiav.Codec) codecDescription {
	desc := codecDescription{
		Name:             codec.Name(),
		ID:               codec.ID(),
		MediaType:        codec.ID().MediaType(),
		PixelFormatCount: -1,
	}
	if encoder := astiav.FindEncoderByName(desc.Name); encoder != nil {
		desc.PixelFormatCount = len(encoder.PixelFormats())
	}
	return desc
}

func availableCodecNames(codecs []codecDescription) []string {
	result := []string{}
	seen := map[string]struct{}{}
	for _, codec := range codecs {
		if codec.MediaType != astiav.MediaTypeVideo || !isSupportedCodecID(codec.ID) {
			continue
		}
		if codec.PixelFormatCount <= 0 {
			continue
		}
		if _, ok := seen[codec.Name]; ok {
			continue
		}
		seen[codec.Name] = struct{}{}
		result = append(result, codec.Name)
	}
	sort.Strings(result)
	return result
}

// GetAvailableCodecs returns the sorted names of the encoders usable
// for a recording.
func GetAvailableCodecs() []string {
	var codecs []codecDescription
	for _, codec := range astiav.Codecs() {
		codecs = append(codecs, describeCodec(codec))
	}
	return availableCodecNames(codecs)
}

func isVideoEncoder(codec *astiav.Codec) bool {
	return codec != nil && codec.IsEncoder() && codec.ID().MediaType() == astiav.MediaTypeVideo
}

// findVideoEncoder resolves an encoder by its name, then by the name of
// its codec ("h264" -> the default H.264 encoder), then by the codec ID.
func findVideoEncoder(
	ctx context.Context,
	name string,
	codecID astiav.CodecID,
) (*astiav.Codec, error) {
	if name != "" {
		if codec := astiav.FindEncoderByName(name); isVideoEncoder(codec) {
			return codec, nil
		}
		if decoder := astiav.FindDecoderByName(name); decoder != nil {
			if codec := astiav.FindEncoder(decoder.ID()); isVideoEncoder(codec) {
				logger.Debugf(ctx, "using encoder '%s' for codec '%s'", codec.Name(), name)
				return codec, nil
			}
		}
	}
	if codecID != astiav.CodecIDNone {
		if codec := astiav.FindEncoder(codecID); isVideoEncoder(codec) {
			return codec, nil
		}
	}
	return nil, averror.New(averror.KindConfig, "unable to find a video encoder for codec name '%s' / ID %d", name, int(codecID))
}

// negotiatePixelFormat returns the requested pixel format if the encoder
// supports it, otherwise the first format declared by the encoder.
func negotiatePixelFormat(
	ctx context.Context,
	codec *astiav.Codec,
	requested astiav.PixelFormat,
) (astiav.PixelFormat, error) {
	formats := codec.PixelFormats()
	if len(formats) == 0 {
		return astiav.PixelFormatNone, averror.New(averror.KindConfig, "encoder '%s' does not declare any supported pixel format", codec.Name())
	}
	for _, format := range formats {
		if format == requested {
			return format, nil
		}
	}
	logger.Warnf(ctx, "encoder '%s' does not support pixel format %s, using %s instead", codec.Name(), requested, formats[0])
	return formats[0], nil
}
