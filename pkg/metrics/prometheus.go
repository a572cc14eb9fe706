package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus. Each
// Recorder owns its registry so batch runs and tests never collide on the
// default one.
type Recorder struct {
	registry    *prometheus.Registry
	stageTime   *prometheus.HistogramVec
	rows        *prometheus.GaugeVec
	dropped     *prometheus.GaugeVec
	accuracy    *prometheus.GaugeVec
	exports     *prometheus.CounterVec
	predictions *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		stageTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regime_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"stage"},
		),
		rows: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "regime_stage_rows",
				Help: "Rows produced by the last run of a stage",
			},
			[]string{"stage"},
		),
		dropped: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "regime_stage_dropped_rows",
				Help: "Rows dropped by the last run of a stage",
			},
			[]string{"stage"},
		),
		accuracy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "regime_model_accuracy",
				Help: "Classifier accuracy per partition",
			},
			[]string{"partition"},
		),
		exports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regime_export_total",
				Help: "Export attempts by artifact kind and outcome",
			},
			[]string{"artifact", "status"},
		),
		predictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regime_predictions_total",
				Help: "Predicted regimes",
			},
			[]string{"regime"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regime_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"stage"},
		),
	}
}

// ObserveStage records stage latency in seconds.
func (r *Recorder) ObserveStage(stage string, seconds float64) {
	r.stageTime.WithLabelValues(stage).Observe(seconds)
}

// RecordRows records the output size of a stage.
func (r *Recorder) RecordRows(stage string, n int) {
	r.rows.WithLabelValues(stage).Set(float64(n))
}

// RecordDropped records how many rows a stage discarded.
func (r *Recorder) RecordDropped(stage string, n int) {
	r.dropped.WithLabelValues(stage).Set(float64(n))
}

func (r *Recorder) SetAccuracy(partition string, acc float64) {
	r.accuracy.WithLabelValues(partition).Set(acc)
}

func (r *Recorder) RecordExport(artifact, status string) {
	r.exports.WithLabelValues(artifact, status).Inc()
}

func (r *Recorder) RecordPrediction(regime string) {
	r.predictions.WithLabelValues(regime).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(stage string) {
	r.errorsTotal.WithLabelValues(stage).Inc()
}

// Gatherer exposes the private registry.
func (r *Recorder) Gatherer() prometheus.Gatherer { return r.registry }

// Registerer lets other components, such as the Kafka producer, add their
// collectors to the same registry.
func (r *Recorder) Registerer() prometheus.Registerer { return r.registry }

// WriteTextfile dumps every metric in text exposition format, the layout
// the node_exporter textfile collector picks up.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
