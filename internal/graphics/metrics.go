package graphics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the ambient Prometheus instrumentation for the manager,
// constructed against a caller-supplied registry rather than the default
// global one (promauto.With(reg)), matching xg2g's promauto.NewCounterVec
// style but avoiding package-level globals so tests can construct a fresh
// Manager repeatedly without a duplicate-registration panic.
type Metrics struct {
	TicksRun           prometheus.Counter
	TicksDropped       prometheus.Counter
	FramesComposited   prometheus.Counter
	RendererReconnects prometheus.Counter
	TransitionFailures prometheus.Counter
	AssetBytesStored   prometheus.Counter
}

// NewMetrics registers the counters against reg. Pass prometheus.NewRegistry()
// in tests, or prometheus.DefaultRegisterer (served by promhttp.Handler
// through the default gatherer) in main.go.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TicksRun: f.NewCounter(prometheus.CounterOpts{
			Namespace: "graphics", Name: "ticks_run_total", Help: "Cadence ticks executed.",
		}),
		TicksDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "graphics", Name: "ticks_dropped_total", Help: "Cadence ticks dropped due to an in-flight tick.",
		}),
		FramesComposited: f.NewCounter(prometheus.CounterOpts{
			Namespace: "graphics", Name: "frames_composited_total", Help: "Frames produced by the compositor.",
		}),
		RendererReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: "graphics", Name: "renderer_reconnects_total", Help: "Renderer channel reconnects.",
		}),
		TransitionFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "graphics", Name: "output_transition_failures_total", Help: "Failed output transitions.",
		}),
		AssetBytesStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: "graphics", Name: "asset_bytes_stored_total", Help: "Cumulative bytes written to the asset registry.",
		}),
	}
}
