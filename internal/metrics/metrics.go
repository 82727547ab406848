// Package metrics implements Prometheus metrics for a comparison run.
//
// usbcmp exits when the run ends, so metrics are written once to a file in
// the node_exporter textfile-collector format instead of being served.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every usbcmp collector. The default registry is not used so
// the textfile carries no Go runtime metrics.
var Registry = prometheus.NewRegistry()

var (
	// FramesTotal counts frames compared
	FramesTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "usbcmp_frames_total",
			Help: "Total number of frames compared",
		},
	)

	// DivergentFramesTotal counts frames with at least one diverging stream
	DivergentFramesTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "usbcmp_divergent_frames_total",
			Help: "Total number of frames where streams disagree",
		},
	)

	// DivergentLinesTotal counts report lines marked as diverging
	DivergentLinesTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "usbcmp_divergent_lines_total",
			Help: "Total number of report lines marked as diverging",
		},
	)

	// SourceRecordsTotal counts records read per capture
	SourceRecordsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "usbcmp_source_records_total",
			Help: "Total number of records read from a capture",
		},
		[]string{"stream", "source"},
	)

	// SourceSkippedTotal counts records dropped by the bus/device filter
	SourceSkippedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "usbcmp_source_skipped_total",
			Help: "Total number of records dropped by the record filter",
		},
		[]string{"stream", "source"},
	)

	// RunStatus is the outcome of the last run
	RunStatus = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "usbcmp_run_status",
			Help: "Outcome of the run (0=completed, 1=failed)",
		},
	)

	// RunDurationSeconds is the wall time of the last run
	RunDurationSeconds = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "usbcmp_run_duration_seconds",
			Help: "Wall time of the comparison run in seconds",
		},
	)
)

// RunStatusValue represents run outcome as a numeric value for the gauge
const (
	RunStatusCompleted = 0
	RunStatusFailed    = 1
)

// WriteTextfile writes every collector in Registry to path. The file is
// written to a temporary name and renamed so collectors never read a
// partial file.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
