package migrators

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	outcomeCreated   = "created"
	outcomeUpdated   = "updated"
	outcomeExisted   = "existed"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
	outcomeRewritten = "rewritten"
)

// Metrics counts migrated resources by kind and outcome.
type Metrics struct {
	registry  *prometheus.Registry
	resources *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		resources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stormpath_migrate",
			Name:      "resources_total",
			Help:      "Resources processed by the migration, by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	m.registry.MustRegister(m.resources)
	return m
}

func (m *Metrics) record(kind, outcome string) {
	if m == nil {
		return
	}
	m.resources.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the counters in the Prometheus text format, suitable
// for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Wrapf(err, "writing metrics to %s", path)
	}
	return nil
}

// Counts returns the current counters as kind -> outcome -> count.
func (m *Metrics) Counts() (map[string]map[string]int, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, errors.Wrap(err, "gathering metrics")
	}
	counts := map[string]map[string]int{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			var kind, outcome string
			for _, lp := range metric.GetLabel() {
				switch lp.GetName() {
				case "kind":
					kind = lp.GetValue()
				case "outcome":
					outcome = lp.GetValue()
				}
			}
			if counts[kind] == nil {
				counts[kind] = map[string]int{}
			}
			counts[kind][outcome] = int(metric.GetCounter().GetValue())
		}
	}
	return counts, nil
}

func (m *Metrics) logSummary(logger *zap.SugaredLogger) {
	if m == nil {
		return
	}
	counts, err := m.Counts()
	if err != nil {
		logger.Warnw("Could not summarise run", "error", err)
		return
	}
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		kv := []interface{}{"kind", kind}
		for outcome, n := range counts[kind] {
			kv = append(kv, outcome, n)
		}
		logger.Infow("Run summary", kv...)
	}
}
