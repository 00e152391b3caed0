package observability

import (
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/pkg/field"
	logger "github.com/facebookincubator/go-belt/tool/logger/types"
	"github.com/sasha-s/go-deadlock"
	"github.com/xaionaro-go/ffrecorder/pkg/avlog"
)

// LogLevelFilter is the process-wide verbosity; the loggers are created at
// the trace level and filtered by it, so it may be changed at runtime.
var LogLevelFilter = LogLevelFilterT{Level: logger.LevelInfo}

type LogLevelFilterT struct {
	Locker deadlock.Mutex
	Level  logger.Level
}

var _ logger.PreHook = (*LogLevelFilterT)(nil)

func (h *LogLevelFilterT) GetLevel() logger.Level {
	h.Locker.Lock()
	defer h.Locker.Unlock()
	return h.Level
}

// SetLevel changes the verbosity of both the Go logs and the libav logs.
func (h *LogLevelFilterT) SetLevel(
	level logger.Level,
) {
	h.Locker.Lock()
	defer h.Locker.Unlock()
	h.Level = level
	avlog.SetVerbosity(level)
}

func (h *LogLevelFilterT) skip(level logger.Level) logger.PreHookResult {
	h.Locker.Lock()
	defer h.Locker.Unlock()
	return logger.PreHookResult{Skip: level > h.Level}
}

func (h *LogLevelFilterT) ProcessInput(
	_ belt.TraceIDs,
	level logger.Level,
	_ ...any,
) logger.PreHookResult {
	return h.skip(level)
}

func (h *LogLevelFilterT) ProcessInputf(
	_ belt.TraceIDs,
	level logger.Level,
	_ string,
	_ ...any,
) logger.PreHookResult {
	return h.skip(level)
}

func (h *LogLevelFilterT) ProcessInputFields(
	_ belt.TraceIDs,
	level logger.Level,
	_ string,
	_ field.AbstractFields,
) logger.PreHookResult {
	return h.skip(level)
}
