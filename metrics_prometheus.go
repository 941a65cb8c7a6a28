package desim

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusExporter mirrors a Spectrum's dispatch counts into a
// prometheus.CounterVec, so a long-running RealTimeController can be
// scraped like any other service. Grounded on cuemby-warren/pkg/metrics'
// counter-vec-per-label-set wiring pattern.
type PrometheusExporter struct {
	counter *prometheus.CounterVec

	mu   sync.Mutex
	seen map[SpectrumKey]uint64
}

// NewPrometheusExporter registers a "desim_events_dispatched_total"
// counter vector (labelled by entity and event signature, plus any
// constant labels) with reg.
func NewPrometheusExporter(reg prometheus.Registerer, constLabels prometheus.Labels) (*PrometheusExporter, error) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "desim_events_dispatched_total",
		Help:        "Total events dispatched by the desim kernel, by entity and event signature.",
		ConstLabels: constLabels,
	}, []string{"entity", "signature"})

	if err := reg.Register(counter); err != nil {
		return nil, err
	}
	return &PrometheusExporter{counter: counter, seen: make(map[SpectrumKey]uint64)}, nil
}

// Sync pushes entries (typically a Spectrum.Snapshot(), or
// Controller.Spectrum()) into the exporter's counters. It is cheap to
// call repeatedly (e.g. from a periodic ticker or a scrape handler); the
// exporter remembers what it already added, so Sync only ever adds the
// delta since the previous call, matching CounterVec's
// monotonically-increasing semantics.
func (p *PrometheusExporter) Sync(entries []SpectrumEntry) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range entries {
		prev := p.seen[entry.SpectrumKey]
		if entry.Count <= prev {
			continue
		}
		p.counter.WithLabelValues(entry.Entity, entry.Signature).Add(float64(entry.Count - prev))
		p.seen[entry.SpectrumKey] = entry.Count
	}
}
