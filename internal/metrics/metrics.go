// Package metrics exports run outcomes in the node-exporter textfile
// format, one file per category.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eteka/biojet-intel-node/internal/agent"
)

const namespace = "biojet"

// Exporter rewrites <dir>/biojet_<category>.prom after each run.
type Exporter struct {
	dir string
}

func NewExporter(dir string) (*Exporter, error) {
	if dir == "" {
		return nil, errors.New("metrics: textfile directory is required")
	}
	return &Exporter{dir: dir}, nil
}

// Path is the textfile written for category.
func (e *Exporter) Path(category string) string {
	return filepath.Join(e.dir, fmt.Sprintf("%s_%s.prom", namespace, category))
}

// Observe writes the gauges of one finished run. A failed run reports
// success 0 and no store sizes.
func (e *Exporter) Observe(_ context.Context, s agent.Summary, runErr error) error {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"category": s.Category}

	success := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "run",
		Name:        "success",
		Help:        "Whether the last run succeeded (1) or failed (0)",
		ConstLabels: labels,
	})
	timestamp := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "run",
		Name:        "timestamp_seconds",
		Help:        "Unix time the last run finished",
		ConstLabels: labels,
	})
	written := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "run",
		Name:        "records_written",
		Help:        "Records generated by the last run",
		ConstLabels: labels,
	})
	evicted := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "run",
		Name:        "records_evicted",
		Help:        "Records evicted by the last run",
		ConstLabels: labels,
	})
	storeRecords := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "store",
		Name:        "records",
		Help:        "Records held by each stream store after the last run",
		ConstLabels: labels,
	}, []string{"stream"})

	reg.MustRegister(success, timestamp, written, evicted, storeRecords)

	if runErr == nil {
		success.Set(1)
	}
	timestamp.Set(float64(s.FinishedAt.UnixNano()) / 1e9)
	written.Set(float64(s.Written))
	evicted.Set(float64(s.Evicted))
	for _, st := range s.Streams {
		storeRecords.WithLabelValues(st.Stream).Set(float64(st.Size))
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("creating metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(e.Path(s.Category), reg); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
