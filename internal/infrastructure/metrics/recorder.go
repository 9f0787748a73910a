// Package metrics records ingestion metrics in a Prometheus registry.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/domain"
)

const namespace = "covreport"

// Recorder implements application.Recorder. Each Recorder owns its registry
// so several can coexist in one process.
type Recorder struct {
	registry *prometheus.Registry

	uploads         *prometheus.CounterVec
	uploadFiles     prometheus.Counter
	uploadLines     prometheus.Counter
	coverage        prometheus.Gauge
	carriedSessions *prometheus.CounterVec
	diffFailures    *prometheus.CounterVec
	deleted         prometheus.Counter
}

// NewRecorder creates a recorder with its metrics registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Upload sessions stored, by flag.",
		}, []string{"flag"}),
		uploadFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_files_total",
			Help:      "Source files contained in stored uploads.",
		}),
		uploadLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_lines_total",
			Help:      "Coverable lines contained in stored uploads.",
		}),
		coverage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_upload_coverage_percent",
			Help:      "Line coverage of the most recent upload.",
		}),
		carriedSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "carryforward_sessions_total",
			Help:      "Sessions carried forward from a parent commit.",
		}, []string{"shifted"}),
		diffFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diff_failures_total",
			Help:      "Diff provider failures tolerated during carry-forward.",
		}, []string{"provider"}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_deleted_total",
			Help:      "Sessions deleted from reports.",
		}),
	}
	r.registry.MustRegister(r.uploads, r.uploadFiles, r.uploadLines, r.coverage,
		r.carriedSessions, r.diffFailures, r.deleted)
	return r
}

// Registry returns the registry holding the recorder's metrics.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) Upload(flags []string, files int, totals domain.ReportTotals) {
	if len(flags) == 0 {
		r.uploads.WithLabelValues("").Inc()
	}
	for _, f := range flags {
		r.uploads.WithLabelValues(f).Inc()
	}
	r.uploadFiles.Add(float64(files))
	r.uploadLines.Add(float64(totals.Lines))
	if totals.HasCoverage() {
		r.coverage.Set(totals.Percent())
	}
}

func (r *Recorder) CarryForward(_ []string, sessions int, shifted bool) {
	r.carriedSessions.WithLabelValues(strconv.FormatBool(shifted)).Add(float64(sessions))
}

func (r *Recorder) DiffFailure(provider string) {
	r.diffFailures.WithLabelValues(provider).Inc()
}

func (r *Recorder) SessionsDeleted(n int) {
	r.deleted.Add(float64(n))
}

// WriteTextfile writes the metrics in the text exposition format to path,
// for collection by a node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

var _ application.Recorder = (*Recorder)(nil)
