package avlog

import (
	"context"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger"
)

func init() {
	astiav.SetLogLevel(astiav.LogLevelWarning)
	astiav.SetLogCallback(Callback(nil, Capture))
}

// Install routes libav messages to the logger of ctx (keeping the capture
// into Capture) and sets the libav verbosity according to the logger level.
func Install(ctx context.Context) {
	l := logger.FromCtx(ctx)
	SetVerbosity(l.Level())
	astiav.SetLogCallback(Callback(l, Capture))
}

// SetVerbosity sets the libav log level matching the given logger level.
func SetVerbosity(level logger.Level) {
	astiav.SetLogLevel(VerbosityFor(level))
}
