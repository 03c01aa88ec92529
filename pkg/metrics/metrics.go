package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/xerrors"
)

const namespace = "install_if_absent"

// Recorder records what install-if-absent did.
type Recorder interface {
	// RecordInstall records a conditional install with its outcome (skipped, installed or failed)
	RecordInstall(outcome string, duration time.Duration)

	// RecordRemoteRequest records an existence probe against a remote repository
	RecordRemoteRequest(repository, result string, duration time.Duration)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordInstall(string, time.Duration) {}

func (Nop) RecordRemoteRequest(string, string, time.Duration) {}

var _ Recorder = (*PrometheusRecorder)(nil)

// PrometheusRecorder implements Recorder using Prometheus metrics kept in its own registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	installTotal          *prometheus.CounterVec
	installDuration       *prometheus.HistogramVec
	remoteRequestTotal    *prometheus.CounterVec
	remoteRequestDuration *prometheus.HistogramVec
}

func NewPrometheusRecorder() *PrometheusRecorder {
	recorder := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		installTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "install_total",
				Help:      "Total number of conditional installs by outcome",
			},
			[]string{"outcome"},
		),
		installDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "install_duration_seconds",
				Help:      "Duration of conditional installs in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
		remoteRequestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_request_total",
				Help:      "Total number of remote repository probes by result",
			},
			[]string{"repository", "result"},
		),
		remoteRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "remote_request_duration_seconds",
				Help:      "Duration of remote repository probes in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"repository", "result"},
		),
	}

	recorder.registry.MustRegister(
		recorder.installTotal,
		recorder.installDuration,
		recorder.remoteRequestTotal,
		recorder.remoteRequestDuration,
	)
	return recorder
}

func (r *PrometheusRecorder) RecordInstall(outcome string, duration time.Duration) {
	r.installTotal.WithLabelValues(outcome).Inc()
	r.installDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) RecordRemoteRequest(repository, result string, duration time.Duration) {
	r.remoteRequestTotal.WithLabelValues(repository, result).Inc()
	r.remoteRequestDuration.WithLabelValues(repository, result).Observe(duration.Seconds())
}

// Registry exposes the registry, e.g. for testutil.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteToTextfile writes the metrics in the text format read by the node exporter textfile collector.
func (r *PrometheusRecorder) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return xerrors.Errorf("unable to write metrics to %s: %w", path, err)
	}
	return nil
}
