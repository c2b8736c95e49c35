package metrics

import (
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/confwatch/internal/config"
	"github.com/obsidianstack/confwatch/internal/watcher"
)

const namespace = "confwatch"

// Metric family names, exported for tests and dashboards.
const (
	EventsTotal       = namespace + "_events_total"
	LoadFailures      = namespace + "_load_failures_total"
	LoadDuration      = namespace + "_load_duration_seconds"
	PhaseInfo         = namespace + "_phase"
	LastReloadSeconds = namespace + "_last_reload_timestamp_seconds"
	FeaturesEnabled   = namespace + "_features_enabled"
)

var phases = []watcher.Phase{watcher.Uninitialized, watcher.Loaded, watcher.Degraded}

// Collector records watcher events in a private Prometheus registry.
// It is safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	events          *prometheus.CounterVec
	failures        *prometheus.CounterVec
	loadDuration    prometheus.Histogram
	phase           *prometheus.GaugeVec
	lastReload      prometheus.Gauge
	featuresEnabled prometheus.Gauge
}

// New creates a Collector with all series registered. The phase gauge starts
// at uninitialized.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Watch events emitted, by kind.",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_failures_total",
			Help:      "Failed probes and loads, by error kind.",
		}, []string{"error_kind"}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Time spent reading, decoding and validating the file.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase",
			Help:      "1 for the current watcher phase, 0 otherwise.",
		}, []string{"phase"}),
		lastReload: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_reload_timestamp_seconds",
			Help:      "Unix time of the last successful load that changed the configuration.",
		}),
		featuresEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "features_enabled",
			Help:      "Feature flags enabled in the retained configuration.",
		}),
	}
	c.registry.MustRegister(c.events, c.failures, c.loadDuration, c.phase, c.lastReload, c.featuresEnabled)

	// Pre-create label values so every series is exported from the start.
	for _, k := range []watcher.EventKind{watcher.EventReloaded, watcher.EventUnchanged, watcher.EventReloadFailed, watcher.EventProbeError} {
		c.events.WithLabelValues(k.String())
	}
	c.setPhase(watcher.Uninitialized)
	return c
}

// Observe records ev. It is meant to be passed to watcher.Options.OnEvent.
func (c *Collector) Observe(ev watcher.Event) {
	c.events.WithLabelValues(ev.Kind.String()).Inc()
	c.setPhase(ev.Phase)

	if ev.Kind != watcher.EventProbeError {
		c.loadDuration.Observe(ev.Took.Seconds())
	}
	if ev.Err != nil {
		kind := config.KindOf(ev.Err)
		label := "unknown"
		if kind != 0 {
			label = kind.String()
		}
		c.failures.WithLabelValues(label).Inc()
	}
	if ev.Kind == watcher.EventReloaded {
		c.lastReload.Set(float64(ev.At.UnixNano()) / 1e9)
	}
	if ev.Config != nil {
		c.featuresEnabled.Set(float64(ev.Config.EnabledFeatures()))
	}
}

func (c *Collector) setPhase(p watcher.Phase) {
	for _, ph := range phases {
		v := 0.0
		if ph == p {
			v = 1
		}
		c.phase.WithLabelValues(ph.String()).Set(v)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Summary is the event and failure totals gathered from the registry.
type Summary struct {
	Events   map[string]float64 `json:"events"`
	Failures float64            `json:"failures"`
}

// Summary gathers the registry and totals the event counters by kind.
func (c *Collector) Summary() (Summary, error) {
	mfs, err := c.registry.Gather()
	if err != nil {
		return Summary{}, fmt.Errorf("metrics: gather: %w", err)
	}
	s := Summary{Events: make(map[string]float64)}
	for _, mf := range mfs {
		switch mf.GetName() {
		case EventsTotal:
			for _, m := range mf.GetMetric() {
				s.Events[labelValue(m, "kind")] += m.GetCounter().GetValue()
			}
		case LoadFailures:
			s.Failures = sumFamily(mf)
		}
	}
	return s, nil
}

// WriteText writes every family in the Prometheus text format.
func (c *Collector) WriteText(w io.Writer) error {
	mfs, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
// Returns 0 if mf is nil.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
