package avlog

import (
	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// levelMap pairs the logger levels with the libav ones, most severe first.
var levelMap = []struct {
	Logger logger.Level
	Libav  astiav.LogLevel
}{
	{logger.LevelUndefined, astiav.LogLevelQuiet},
	{logger.LevelPanic, astiav.LogLevelPanic},
	{logger.LevelFatal, astiav.LogLevelFatal},
	{logger.LevelError, astiav.LogLevelError},
	{logger.LevelWarning, astiav.LogLevelWarning},
	{logger.LevelInfo, astiav.LogLevelInfo},
	{logger.LevelDebug, astiav.LogLevelVerbose},
	{logger.LevelTrace, astiav.LogLevelDebug},
}

// LogLevelToAstiav returns the libav level of the given logger level;
// unknown levels map to warnings.
func LogLevelToAstiav(level logger.Level) astiav.LogLevel {
	for _, m := range levelMap {
		if m.Logger == level {
			return m.Libav
		}
	}
	return astiav.LogLevelWarning
}

// LogLevelFromAstiav is the inverse of LogLevelToAstiav.
func LogLevelFromAstiav(level astiav.LogLevel) logger.Level {
	for _, m := range levelMap {
		if m.Libav == level {
			return m.Logger
		}
	}
	return logger.LevelWarning
}

// isCaptured reports whether a libav message of the given level belongs
// to the error details (warnings and anything more severe).
func isCaptured(level astiav.LogLevel) bool {
	return level != astiav.LogLevelQuiet && level <= astiav.LogLevelWarning
}

// VerbosityFor returns the libav log level to configure for a logger of
// the given level. It is never quieter than warnings, otherwise the
// capture would miss the error details.
func VerbosityFor(level logger.Level) astiav.LogLevel {
	return max(LogLevelToAstiav(level), astiav.LogLevelWarning)
}
