package avlog

import (
	"strings"
	"sync"

	"github.com/asticode/go-astiav"
	logger "github.com/facebookincubator/go-belt/tool/logger/types"
)

// Callback returns a libav log callback that forwards every message to the
// given logger and stores warnings and errors into the capture buffer.
//
// If l is nil the messages are only captured.
func Callback(l logger.Logger, capture *CaptureBuffer) astiav.LogCallback {
	var (
		avLogger     logger.Logger
		setClassFunc = func(astiav.Classer) {}
		locker       sync.Mutex
	)
	if l != nil {
		avLogger, setClassFunc = WrapLogger(l)
	}
	return func(c astiav.Classer, level astiav.LogLevel, format, msg string) {
		msg = strings.TrimSpace(msg)
		if capture != nil && isCaptured(level) {
			capture.Append(formatCaptured(c, msg))
		}
		if avLogger == nil {
			return
		}
		locker.Lock()
		defer locker.Unlock()
		setClassFunc(c)
		avLogger.Logf(LogLevelFromAstiav(level), "%s", msg)
		setClassFunc(nil)
	}
}

func formatCaptured(c astiav.Classer, msg string) string {
	chain := classChain(c)
	if len(chain) == 0 {
		return msg
	}
	return chain[0] + ": " + msg
}
