package sink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	flushes       *prometheus.CounterVec
	rotations     prometheus.Counter
	uploadedBytes prometheus.Counter
	bufferBytes   prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		// Keep the collectors live but unexported.
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &metrics{
		flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "s3sink",
			Name:      "flushes_total",
			Help:      "Flush attempts by result.",
		}, []string{"result"}),
		rotations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "s3sink",
			Name:      "rotations_total",
			Help:      "Successful rotations to a new object key.",
		}),
		uploadedBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "s3sink",
			Name:      "uploaded_bytes_total",
			Help:      "Serialized bytes confirmed uploaded.",
		}),
		bufferBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "s3sink",
			Name:      "buffer_bytes",
			Help:      "Bytes currently buffered for the open epoch.",
		}),
	}
}
