package avlog

import (
	"context"
	"strings"

	"github.com/xaionaro-go/xsync"
)

// CaptureBuffer collects libav warning/error lines until somebody drains them.
//
// It is shared by everything that talks to libav in the process, so the
// lines of concurrent pipelines may interleave; the order of Append calls is
// preserved.
type CaptureBuffer struct {
	locker  xsync.Mutex
	lines   []string
	limit   int
	dropped uint64
}

// Capture is the process-wide buffer fed by the libav log callback
// (installed on package load, see Install). It keeps every line until the
// next Drain.
var Capture = NewCaptureBuffer(0)

// NewCaptureBuffer returns a buffer keeping at most limit lines (the oldest
// are dropped first); a non-positive limit keeps all of them.
func NewCaptureBuffer(limit int) *CaptureBuffer {
	return &CaptureBuffer{
		limit: limit,
	}
}

func lockCtx() context.Context {
	// the buffer is used from inside the logging path, so the lock itself must not log
	return xsync.WithNoLogging(context.Background(), true)
}

func (b *CaptureBuffer) Append(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	b.locker.Do(lockCtx(), func() {
		b.lines = append(b.lines, line)
		if b.limit > 0 && len(b.lines) > b.limit {
			overflow := len(b.lines) - b.limit
			b.lines = append(b.lines[:0], b.lines[overflow:]...)
			b.dropped += uint64(overflow)
		}
	})
}

// Drain returns all the captured lines (oldest first) and empties the buffer.
func (b *CaptureBuffer) Drain() []string {
	return xsync.DoR1(lockCtx(), &b.locker, func() []string {
		lines := b.lines
		b.lines = nil
		b.dropped = 0
		return lines
	})
}

func (b *CaptureBuffer) Len() int {
	return xsync.DoR1(lockCtx(), &b.locker, func() int {
		return len(b.lines)
	})
}

// Dropped returns how many lines were discarded due to the limit since the last drain.
func (b *CaptureBuffer) Dropped() uint64 {
	return xsync.DoR1(lockCtx(), &b.locker, func() uint64 {
		return b.dropped
	})
}
