package observability

import (
	"context"
	"net/url"
	"time"

	"github.com/facebookincubator/go-belt/pkg/field"
	"github.com/facebookincubator/go-belt/tool/logger"
	xlogrus "github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	loggertypes "github.com/facebookincubator/go-belt/tool/logger/types"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
	"github.com/xaionaro-go/logrustash"
)

const hookFlushTimeout = 5 * time.Second

// CtxWithLogstash makes the logger of ctx also send the entries to
// logstash; logstashAddr is an URL like "tcp://localhost:5000".
//
// On failure the error is logged and ctx is returned as is.
func CtxWithLogstash(
	ctx context.Context,
	logstashAddr string,
	appName string,
) context.Context {
	addr, err := url.Parse(logstashAddr)
	if err != nil {
		logger.Errorf(ctx, "unable to parse '%s' as URL: %v", logstashAddr, err)
		return ctx
	}

	hook, err := logrustash.NewAsyncHook(addr.Scheme, addr.Host, appName)
	if err != nil {
		logger.Errorf(ctx, "unable to initialize the logstash hook for '%s': %v", logstashAddr, err)
		return ctx
	}

	l := logger.FromCtx(ctx)
	emitter, ok := l.Emitter().(*xlogrus.Emitter)
	if !ok {
		logger.Errorf(ctx, "the Emitter is not a *logrus.Emitter, but %T", l.Emitter())
		return ctx
	}
	return logger.CtxWithLogger(ctx, l.WithHooks(NewHookAdapter(
		emitter.LogrusEntry.Logger,
		hook,
	)))
}

// HookAdapter exposes a logrus hook as a go-belt logger hook.
type HookAdapter struct {
	Locker       deadlock.Mutex
	LogrusLogger *logrus.Logger
	LogrusHook   logrus.Hook
}

var _ loggertypes.Hook = (*HookAdapter)(nil)

func NewHookAdapter(
	l *logrus.Logger,
	h logrus.Hook,
) *HookAdapter {
	return &HookAdapter{
		LogrusLogger: l,
		LogrusHook:   h,
	}
}

func (h *HookAdapter) ProcessLogEntry(entry *loggertypes.Entry) bool {
	fields := logrus.Fields{}
	entry.Fields.ForEachField(func(f *field.Field) bool {
		fields[f.Key] = f.Value
		return true
	})

	h.Locker.Lock()
	defer h.Locker.Unlock()
	if err := h.LogrusHook.Fire(&logrus.Entry{
		Logger:  h.LogrusLogger,
		Data:    fields,
		Time:    entry.Timestamp,
		Level:   xlogrus.LevelToLogrus(entry.Level),
		Caller:  entry.Caller.Frame(),
		Message: entry.Message,
	}); err != nil {
		// not logging through the logger: it would get back here
		h.LogrusLogger.Out.Write([]byte("unable to fire the logrus hook: " + err.Error() + "\n"))
	}
	return true
}

func (h *HookAdapter) Flush() {
	switch flusher := h.LogrusHook.(type) {
	case interface{ Flush() }:
		flusher.Flush()
	case interface{ Flush() error }:
		_ = flusher.Flush()
	case interface{ Flush(time.Duration) }:
		flusher.Flush(hookFlushTimeout)
	case interface{ Flush(time.Duration) error }:
		_ = flusher.Flush(hookFlushTimeout)
	}
}
