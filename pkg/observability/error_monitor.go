package observability

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/DataDog/gostackparse"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/pkg/field"
	xruntime "github.com/facebookincubator/go-belt/pkg/runtime"
	"github.com/facebookincubator/go-belt/tool/experimental/errmon"
	errmonsentry "github.com/facebookincubator/go-belt/tool/experimental/errmon/implementation/sentry"
	errmontypes "github.com/facebookincubator/go-belt/tool/experimental/errmon/types"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/adapter"
	loggertypes "github.com/facebookincubator/go-belt/tool/logger/types"
	"github.com/getsentry/sentry-go"
)

const maxStackBufferSize = 10 << 20

// CtxWithSentry makes warnings and errors logged through ctx (and panics
// reported by ReportPanicIfNotNil) be also sent to Sentry.
func CtxWithSentry(
	ctx context.Context,
	dsn string,
	appName string,
) (context.Context, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:        dsn,
		ServerName: appName,
	})
	if err != nil {
		return ctx, fmt.Errorf("unable to initialize a Sentry client for DSN '%s': %w", dsn, err)
	}
	errorMonitor := errmonsentry.New(client)
	ctx = errmon.CtxWithErrorMonitor(ctx, errorMonitor)
	l := logger.FromCtx(ctx).WithPreHooks(NewErrorMonitorLoggerHook(ctx, errorMonitor))
	return logger.CtxWithLogger(ctx, l), nil
}

func getGoroutines() ([]errmontypes.Goroutine, int) {
	stackBuffer := make([]byte, min(65536*runtime.NumGoroutine(), maxStackBufferSize))
	n := runtime.Stack(stackBuffer, true)
	goroutines, _ := gostackparse.Parse(bytes.NewReader(stackBuffer[:n]))

	result := make([]errmontypes.Goroutine, 0, len(goroutines))
	for _, goroutine := range goroutines {
		result = append(result, *goroutine)
	}

	n = runtime.Stack(stackBuffer, false)
	current, _ := gostackparse.Parse(bytes.NewReader(stackBuffer[:n]))
	if len(current) != 1 {
		return result, 0
	}
	return result, current[0].ID
}

// lastEntryEmitter remembers the last emitted entry; it is used to render
// a pre-hook input into an entry.
type lastEntryEmitter struct {
	LastEntry *loggertypes.Entry
}

var _ loggertypes.Emitter = (*lastEntryEmitter)(nil)

func (e *lastEntryEmitter) Emit(entry *loggertypes.Entry) {
	e.LastEntry = entry
}
func (e *lastEntryEmitter) Flush() {}

type ErrorMonitorMessage struct {
	Entry              *loggertypes.Entry
	Goroutines         []errmontypes.Goroutine
	CurrentGoroutineID int
	StackTrace         xruntime.PCs
}

// ErrorMonitorLoggerHook forwards log entries of level warning or more
// severe to an error monitor, asynchronously.
type ErrorMonitorLoggerHook struct {
	ErrorMonitor errmontypes.ErrorMonitor
	SendChan     chan ErrorMonitorMessage
}

var _ loggertypes.PreHook = (*ErrorMonitorLoggerHook)(nil)

func NewErrorMonitorLoggerHook(
	ctx context.Context,
	errorMonitor errmon.ErrorMonitor,
) *ErrorMonitorLoggerHook {
	h := &ErrorMonitorLoggerHook{
		ErrorMonitor: errorMonitor,
		SendChan:     make(chan ErrorMonitorMessage, 10),
	}
	GoSafe(ctx, h.senderLoop)
	return h
}

func (h *ErrorMonitorLoggerHook) capture(
	level loggertypes.Level,
	log func(l loggertypes.Logger),
) loggertypes.PreHookResult {
	if level > loggertypes.LevelWarning {
		return loggertypes.PreHookResult{}
	}
	emitter := &lastEntryEmitter{}
	log(adapter.LoggerFromEmitter(emitter).WithLevel(loggertypes.LevelWarning))
	h.sendReport(emitter.LastEntry)
	return loggertypes.PreHookResult{}
}

func (h *ErrorMonitorLoggerHook) ProcessInput(
	_ belt.TraceIDs,
	level loggertypes.Level,
	args ...any,
) loggertypes.PreHookResult {
	return h.capture(level, func(l loggertypes.Logger) { l.Log(level, args...) })
}

func (h *ErrorMonitorLoggerHook) ProcessInputf(
	_ belt.TraceIDs,
	level loggertypes.Level,
	format string,
	args ...any,
) loggertypes.PreHookResult {
	return h.capture(level, func(l loggertypes.Logger) { l.Logf(level, format, args...) })
}

func (h *ErrorMonitorLoggerHook) ProcessInputFields(
	_ belt.TraceIDs,
	level loggertypes.Level,
	message string,
	fields field.AbstractFields,
) loggertypes.PreHookResult {
	return h.capture(level, func(l loggertypes.Logger) { l.LogFields(level, message, fields) })
}

func copyEntry(entry *loggertypes.Entry) *loggertypes.Entry {
	entryDup := *entry
	if entry.Fields != nil {
		fields := make(field.Fields, 0, entry.Fields.Len())
		entry.Fields.ForEachField(func(f *field.Field) bool {
			fields = append(fields, *f)
			return true
		})
		entryDup.Fields = fields
	}
	return &entryDup
}

func (h *ErrorMonitorLoggerHook) sendReport(
	entry *loggertypes.Entry,
) {
	if entry == nil {
		return
	}
	goroutines, currentGoroutineID := getGoroutines()
	select {
	case h.SendChan <- ErrorMonitorMessage{
		Entry:              copyEntry(entry),
		Goroutines:         goroutines,
		CurrentGoroutineID: currentGoroutineID,
		StackTrace:         xruntime.CallerStackTrace(nil),
	}:
	default:
		// the logger of the hook is not used here, it would recurse
		fmt.Fprintf(os.Stderr, "unable to report an error, the error monitor queue is full\n")
	}
}

func (h *ErrorMonitorLoggerHook) senderLoop(ctx context.Context) {
	for {
		var message ErrorMonitorMessage
		select {
		case <-ctx.Done():
			return
		case message = <-h.SendChan:
		}
		h.ErrorMonitor.Emitter().Emit(&errmontypes.Event{
			Entry:       *message.Entry,
			ExternalIDs: []any{},
			Exception: errmontypes.Exception{
				IsPanic:    message.Entry.Level <= loggertypes.LevelPanic,
				Error:      fmt.Errorf("[%s] %s", message.Entry.Level, message.Entry.Message),
				StackTrace: message.StackTrace,
			},
			CurrentGoroutineID: message.CurrentGoroutineID,
			Goroutines:         message.Goroutines,
		})
	}
}
