package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the Prometheus metrics of the planning service.
type Collector struct {
	gatherer prometheus.Gatherer

	Submissions     *prometheus.CounterVec
	TilingDurations *prometheus.HistogramVec
	TilingRounds    prometheus.Histogram
	CacheLookups    *prometheus.CounterVec
	ClusterSize     prometheus.Gauge
	ColoredCells    prometheus.Gauge
	Connections     prometheus.Gauge
}

// NewCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	submissions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cellplan_submissions_total",
		Help: "Cluster size submissions, labeled by outcome (applied, reset, rejected).",
	}, []string{"outcome"}), "cellplan_submissions_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cellplan_tiling_duration_seconds",
		Help:    "Time spent tiling a plane, labeled by propagation strategy.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"strategy"}), "cellplan_tiling_duration_seconds")
	if err != nil {
		return nil, err
	}

	rounds, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cellplan_tiling_rounds",
		Help:    "Propagation rounds needed to reach a fixed point.",
		Buckets: prometheus.LinearBuckets(1, 4, 10),
	}), "cellplan_tiling_rounds")
	if err != nil {
		return nil, err
	}

	lookups, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cellplan_tiling_cache_lookups_total",
		Help: "Tiling cache lookups, labeled by result (hit, miss, error).",
	}, []string{"result"}), "cellplan_tiling_cache_lookups_total")
	if err != nil {
		return nil, err
	}

	size, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cellplan_cluster_size",
		Help: "Cluster size of the current plan, 0 when the plane is reset.",
	}), "cellplan_cluster_size")
	if err != nil {
		return nil, err
	}

	colored, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cellplan_plane_colored_cells",
		Help: "Colored cells in the current plan.",
	}), "cellplan_plane_colored_cells")
	if err != nil {
		return nil, err
	}

	conns, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cellplan_connections",
		Help: "Open websocket connections.",
	}), "cellplan_connections")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:        gatherer,
		Submissions:     submissions,
		TilingDurations: durations,
		TilingRounds:    rounds,
		CacheLookups:    lookups,
		ClusterSize:     size,
		ColoredCells:    colored,
		Connections:     conns,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveSubmission counts one submission outcome.
func (c *Collector) ObserveSubmission(outcome string) {
	if c == nil {
		return
	}
	c.Submissions.WithLabelValues(outcome).Inc()
}

// ObserveTiling records a completed tiling run.
func (c *Collector) ObserveTiling(strategy string, elapsed time.Duration, rounds int) {
	if c == nil {
		return
	}
	c.TilingDurations.WithLabelValues(strategy).Observe(elapsed.Seconds())
	c.TilingRounds.Observe(float64(rounds))
}

// ObserveCacheLookup counts one tiling cache lookup.
func (c *Collector) ObserveCacheLookup(result string) {
	if c == nil {
		return
	}
	c.CacheLookups.WithLabelValues(result).Inc()
}

// SetPlan updates the gauges describing the current plan.
func (c *Collector) SetPlan(n, colored int) {
	if c == nil {
		return
	}
	c.ClusterSize.Set(float64(n))
	c.ColoredCells.Set(float64(colored))
}

// ConnectionOpened and ConnectionClosed track open websocket connections.
func (c *Collector) ConnectionOpened() {
	if c != nil {
		c.Connections.Inc()
	}
}

func (c *Collector) ConnectionClosed() {
	if c != nil {
		c.Connections.Dec()
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
