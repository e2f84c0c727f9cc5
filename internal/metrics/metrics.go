// Package metrics records per-run Prometheus metrics and exports them as a textfile.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder owns a private registry so one process can run several pipelines (and tests)
// without colliding on the default registry. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	messages           *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec
	outputs            *prometheus.CounterVec
}

// NewRecorder registers the pipeline metrics on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoice_messages_total",
				Help: "Messages handled, by outcome kind and terminal state",
			},
			[]string{"kind", "state"},
		),
		extractionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "invoice_extraction_duration_seconds",
				Help:    "Time taken by one extraction capability call",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90, 120},
			},
			[]string{"provider", "status"},
		),
		outputs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoice_outputs_total",
				Help: "Output files written, by output name and status",
			},
			[]string{"output", "status"},
		),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordMessage counts one message outcome.
func (r *Recorder) RecordMessage(kind, state string) {
	if r == nil {
		return
	}
	r.messages.WithLabelValues(kind, state).Inc()
}

// ObserveExtraction records one capability call.
func (r *Recorder) ObserveExtraction(provider, status string, seconds float64) {
	if r == nil {
		return
	}
	r.extractionDuration.WithLabelValues(provider, status).Observe(seconds)
}

// RecordOutput counts one output write ("markdown" or a schema name).
func (r *Recorder) RecordOutput(output, status string) {
	if r == nil {
		return
	}
	r.outputs.WithLabelValues(output, status).Inc()
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
