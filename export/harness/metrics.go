package harness

import (
	"context"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/sirupsen/logrus"
)

// Metrics holds the gauges for the last measurement of each strategy.
type Metrics struct {
	Registry *prometheus.Registry

	elapsed     *prometheus.GaugeVec
	memoryDelta *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		elapsed: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "exportbench_strategy_elapsed_seconds",
				Help: "Wall clock time of the last run of an export strategy",
			},
			[]string{"strategy", "pinned"},
		),
		memoryDelta: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "exportbench_strategy_memory_delta_bytes",
				Help: "Heap bytes left behind by the last run of an export strategy",
			},
			[]string{"strategy", "pinned"},
		),
	}
}

func (m *Metrics) observe(r Result) {
	labels := prometheus.Labels{"strategy": r.Name, "pinned": strconv.FormatBool(r.Pinned)}
	m.elapsed.With(labels).Set(r.Elapsed.Seconds())
	m.memoryDelta.With(labels).Set(float64(r.MemoryDelta))
}

// Push sends the gauges to a Prometheus Pushgateway under job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("could not push metrics to %s: %w", url, err)
	}
	logrus.WithField("url", url).Infoln("pushed metrics")
	return nil
}
