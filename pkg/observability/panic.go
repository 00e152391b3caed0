package observability

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/experimental/errmon"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/ffrecorder/pkg/metrics"
)

// Go runs fn in a new goroutine; a panic in fn is reported and re-raised.
func Go(ctx context.Context, fn func(ctx context.Context)) {
	go Call(ctx, fn)
}

// GoSafe is like Go, but a panic is only reported.
func GoSafe(ctx context.Context, fn func(ctx context.Context)) {
	go CallSafe(ctx, fn)
}

func Call(ctx context.Context, fn func(ctx context.Context)) {
	defer func() { PanicIfNotNil(ctx, recover()) }()
	fn(ctx)
}

// CallSafe calls fn and returns true if it panicked.
func CallSafe(ctx context.Context, fn func(ctx context.Context)) (_panicked bool) {
	defer func() { _panicked = ReportPanicIfNotNil(ctx, recover()) }()
	fn(ctx)
	return false
}

func PanicIfNotNil(ctx context.Context, r any) {
	if r == nil {
		return
	}
	ReportPanicIfNotNil(ctx, r)
	// give the async hooks (logstash, sentry) a moment to deliver the report
	time.Sleep(time.Second)
	panic(fmt.Sprintf("%#+v", r))
}

func ReportPanicIfNotNil(ctx context.Context, r any) bool {
	if r == nil {
		return false
	}
	metrics.PanicsRecovered.Inc()
	logger.FromCtx(ctx).
		WithField("error_event_exception_stack_trace", string(debug.Stack())).
		Errorf("got panic: %v", r)
	errmon.ObserveRecoverCtx(ctx, r)
	belt.Flush(ctx)
	return true
}
