package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/xaionaro-go/ffrecorder/pkg/averror"
)

var (
	FramesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ffrecorder",
		Name:      "frames_written_total",
		Help:      "Raw video frames accepted by recorders.",
	})

	PacketsMuxed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ffrecorder",
		Name:      "packets_muxed_total",
		Help:      "Packets written into output containers.",
	}, []string{"media_type"})

	BytesMuxed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ffrecorder",
		Name:      "bytes_muxed_total",
		Help:      "Payload bytes written into output containers.",
	}, []string{"media_type"})

	OperationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ffrecorder",
		Name:      "operations_failed_total",
		Help:      "Failed operations by operation and error kind.",
	}, []string{"operation", "kind"})

	PanicsRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ffrecorder",
		Name:      "panics_recovered_total",
	})
)

func ObserveMuxedPacket(mediaType string, size int) {
	PacketsMuxed.WithLabelValues(mediaType).Inc()
	BytesMuxed.WithLabelValues(mediaType).Add(float64(size))
}

// ObserveFailure counts a failed operation by the kind of its error; nil
// errors are ignored.
func ObserveFailure(operation string, err error) {
	if err == nil {
		return
	}
	OperationsFailed.WithLabelValues(operation, averror.KindOf(err).String()).Inc()
}
