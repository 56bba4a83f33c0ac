// Package metrics is a process-wide metrics facade over the Prometheus client.
// Families are registered lazily on first use; the label key set of a family
// is fixed by its first call.
package metrics

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

type registry struct {
	mu        sync.Mutex
	reg       *prometheus.Registry
	counters  map[string]*prometheus.CounterVec
	gauges    map[string]*prometheus.GaugeVec
	summaries map[string]*prometheus.SummaryVec
}

var std = newRegistry()

func newRegistry() *registry {
	return &registry{
		reg:       prometheus.NewRegistry(),
		counters:  make(map[string]*prometheus.CounterVec),
		gauges:    make(map[string]*prometheus.GaugeVec),
		summaries: make(map[string]*prometheus.SummaryVec),
	}
}

func labelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Inc increments the counter family name by 1 for the given label set.
func Inc(name string, labels map[string]string) {
	std.mu.Lock()
	c, ok := std.counters[name]
	if !ok {
		c = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labelKeys(labels))
		std.reg.MustRegister(c)
		std.counters[name] = c
	}
	std.mu.Unlock()
	c.With(labels).Inc()
}

// AddGauge adds v to the gauge family name.
func AddGauge(name string, labels map[string]string, v float64) {
	gauge(name, labels).Add(v)
}

// SetGauge sets the gauge family name to v.
func SetGauge(name string, labels map[string]string, v float64) {
	gauge(name, labels).Set(v)
}

func gauge(name string, labels map[string]string) prometheus.Gauge {
	std.mu.Lock()
	g, ok := std.gauges[name]
	if !ok {
		g = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, labelKeys(labels))
		std.reg.MustRegister(g)
		std.gauges[name] = g
	}
	std.mu.Unlock()
	return g.With(labels)
}

// ObserveSummary records one observation in the summary family name.
func ObserveSummary(name string, labels map[string]string, v float64) {
	std.mu.Lock()
	s, ok := std.summaries[name]
	if !ok {
		s = prometheus.NewSummaryVec(prometheus.SummaryOpts{Name: name}, labelKeys(labels))
		std.reg.MustRegister(s)
		std.summaries[name] = s
	}
	std.mu.Unlock()
	s.With(labels).Observe(v)
}

// Reset drops every registered family. Tests call this between cases.
func Reset() {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.reg = prometheus.NewRegistry()
	std.counters = make(map[string]*prometheus.CounterVec)
	std.gauges = make(map[string]*prometheus.GaugeVec)
	std.summaries = make(map[string]*prometheus.SummaryVec)
}

// DumpProm renders all families in the Prometheus text exposition format.
func DumpProm() string {
	std.mu.Lock()
	reg := std.reg
	std.mu.Unlock()

	mfs, err := reg.Gather()
	if err != nil {
		return ""
	}
	var sb strings.Builder
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(&sb, mf); err != nil {
			return ""
		}
	}
	return sb.String()
}
