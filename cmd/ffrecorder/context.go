package main

import (
	"context"
	"os"
	"strings"

	"github.com/facebookincubator/go-belt"
	xruntime "github.com/facebookincubator/go-belt/pkg/runtime"
	"github.com/facebookincubator/go-belt/tool/logger"
	xlogrus "github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/sirupsen/logrus"
	"github.com/xaionaro-go/ffrecorder/pkg/avlog"
	"github.com/xaionaro-go/ffrecorder/pkg/observability"
)

const appName = "ffrecorder"

type loggingFlags struct {
	Level        logger.Level
	LogstashAddr string
	SentryDSN    string
}

func getContext(
	ctx context.Context,
	flags loggingFlags,
) context.Context {
	xruntime.DefaultCallerPCFilter = observability.CallerPCFilter(xruntime.DefaultCallerPCFilter)
	observability.LogLevelFilter.SetLevel(flags.Level)

	ll := xlogrus.DefaultLogrusLogger()
	ll.SetOutput(os.Stderr)
	l := xlogrus.New(ll).WithLevel(logger.LevelTrace).WithPreHooks(&observability.LogLevelFilter)
	logrus.SetLevel(xlogrus.LevelToLogrus(flags.Level))
	ctx = logger.CtxWithLogger(ctx, l)

	if flags.SentryDSN != "" {
		var err error
		ctx, err = observability.CtxWithSentry(ctx, flags.SentryDSN, appName)
		if err != nil {
			logger.Errorf(ctx, "%v", err)
		}
	}

	if flags.LogstashAddr != "" {
		ctx = observability.CtxWithLogstash(ctx, flags.LogstashAddr, appName)
	}

	ctx = belt.WithField(ctx, "program", appName)
	if hostname, err := os.Hostname(); err == nil {
		ctx = belt.WithField(ctx, "hostname", strings.ToLower(hostname))
	}
	ctx = belt.WithField(ctx, "pid", os.Getpid())

	l = logger.FromCtx(ctx)
	logger.Default = func() logger.Logger {
		return l
	}

	// the libav messages go to the same logger; the level follows LogLevelFilter
	avlog.Install(logger.CtxWithLogger(ctx, l.WithLevel(flags.Level)))
	return ctx
}
