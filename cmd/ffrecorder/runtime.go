package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xaionaro-go/ffrecorder/pkg/observability"
)

// serveMetrics serves /metrics (and net/pprof) at addr until ctx is done.
func serveMetrics(
	ctx context.Context,
	addr string,
) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("unable to listen at '%s': %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	srv := &http.Server{Handler: mux}

	logger.Infof(ctx, "serving /metrics and /debug/pprof/ at '%s'", listener.Addr())
	observability.Go(ctx, func(ctx context.Context) {
		<-ctx.Done()
		srv.Close()
	})
	observability.GoSafe(ctx, func(ctx context.Context) {
		err := srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf(ctx, "the metrics server stopped: %v", err)
		}
	})
	return nil
}
