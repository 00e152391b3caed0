// Package mp4probe summarizes the structure of MP4 files without libav.
package mp4probe

import (
	"fmt"
	"os"
	"strings"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/dustin/go-humanize"
)

type Track struct {
	ID          uint32
	HandlerType string
	SampleEntry string
	Timescale   uint32
	Duration    uint64
	SampleCount uint32
}

func (t Track) DurationSeconds() float64 {
	if t.Timescale == 0 {
		return 0
	}
	return float64(t.Duration) / float64(t.Timescale)
}

func (t Track) IsVideo() bool {
	return t.HandlerType == "vide"
}

func (t Track) IsAudio() bool {
	return t.HandlerType == "soun"
}

type Summary struct {
	MajorBrand string
	Fragmented bool
	Size       int64
	Tracks     []Track
}

func (s Summary) TracksByHandler(handlerType string) []Track {
	var result []Track
	for _, track := range s.Tracks {
		if track.HandlerType == handlerType {
			result = append(result, track)
		}
	}
	return result
}

func (s Summary) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "brand: %s, fragmented: %v, size: %s\n", s.MajorBrand, s.Fragmented, humanize.IBytes(uint64(s.Size)))
	for _, track := range s.Tracks {
		fmt.Fprintf(&buf, "track #%d: %s/%s, %d samples, %.3fs (timescale %d)\n",
			track.ID, track.HandlerType, track.SampleEntry, track.SampleCount, track.DurationSeconds(), track.Timescale)
	}
	return buf.String()
}

func ProbeFile(path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open '%s': %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("unable to stat '%s': %w", path, err)
	}

	mp4File, err := mp4.DecodeFile(f, mp4.WithDecodeMode(mp4.DecModeLazyMdat))
	if err != nil {
		return nil, fmt.Errorf("unable to decode '%s' as MP4: %w", path, err)
	}

	summary := &Summary{
		Fragmented: mp4File.IsFragmented(),
		Size:       stat.Size(),
	}
	if mp4File.Ftyp != nil {
		summary.MajorBrand = mp4File.Ftyp.MajorBrand()
	}

	moov := mp4File.Moov
	if moov == nil && mp4File.Init != nil {
		moov = mp4File.Init.Moov
	}
	if moov == nil {
		return nil, fmt.Errorf("no moov box in '%s'", path)
	}
	for _, trak := range moov.Traks {
		summary.Tracks = append(summary.Tracks, describeTrack(trak))
	}
	return summary, nil
}

func describeTrack(trak *mp4.TrakBox) Track {
	var track Track
	if trak.Tkhd != nil {
		track.ID = trak.Tkhd.TrackID
	}
	mdia := trak.Mdia
	if mdia == nil {
		return track
	}
	if mdia.Hdlr != nil {
		track.HandlerType = mdia.Hdlr.HandlerType
	}
	if mdia.Mdhd != nil {
		track.Timescale = mdia.Mdhd.Timescale
		track.Duration = mdia.Mdhd.Duration
	}
	if mdia.Minf == nil || mdia.Minf.Stbl == nil {
		return track
	}
	stbl := mdia.Minf.Stbl
	if stbl.Stsd != nil && len(stbl.Stsd.Children) > 0 {
		track.SampleEntry = stbl.Stsd.Children[0].Type()
	}
	if stbl.Stsz != nil {
		track.SampleCount = stbl.Stsz.SampleNumber
	}
	return track
}
