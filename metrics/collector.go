// Package metrics provides a Prometheus implementation of
// blueprint.MetricsRecorder.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/GoCodeAlone/blueprint"
)

// Namespace prefixes every metric name.
const Namespace = "blueprint"

// Collector records framework measurements as Prometheus metrics.
type Collector struct {
	transitions   *prometheus.CounterVec
	emitted       *prometheus.CounterVec
	handlerFailed *prometheus.CounterVec
	batches       *prometheus.CounterVec
	batchItems    *prometheus.CounterVec
}

var _ blueprint.MetricsRecorder = (*Collector)(nil)

// NewCollector creates the metrics and registers them with reg. A nil reg
// uses the default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Collector{
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "module_transitions_total",
				Help:      "Total number of module status transitions",
			},
			[]string{"module_type", "status"},
		),
		emitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "events_emitted_total",
				Help:      "Total number of events emitted on Blueprint buses",
			},
			[]string{"event_type"},
		),
		handlerFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "event_handler_failures_total",
				Help:      "Total number of event handler errors and panics",
			},
			[]string{"event_type"},
		),
		batches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "batch_updates_total",
				Help:      "Total number of batch enable or disable calls",
			},
			[]string{"partial"},
		),
		batchItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "batch_items_total",
				Help:      "Total number of modules processed by batch updates",
			},
			[]string{"outcome"},
		),
	}
}

// ModuleTransition implements blueprint.MetricsRecorder.
func (c *Collector) ModuleTransition(moduleType blueprint.ModuleType, status blueprint.ModuleStatus) {
	c.transitions.WithLabelValues(string(moduleType), string(status)).Inc()
}

// EventEmitted implements blueprint.MetricsRecorder.
func (c *Collector) EventEmitted(eventType string) {
	c.emitted.WithLabelValues(eventType).Inc()
}

// HandlerFailed implements blueprint.MetricsRecorder.
func (c *Collector) HandlerFailed(eventType string) {
	c.handlerFailed.WithLabelValues(eventType).Inc()
}

// BatchCompleted implements blueprint.MetricsRecorder.
func (c *Collector) BatchCompleted(succeeded, failed int) {
	c.batches.WithLabelValues(strconv.FormatBool(failed > 0)).Inc()
	c.batchItems.WithLabelValues("success").Add(float64(succeeded))
	c.batchItems.WithLabelValues("failed").Add(float64(failed))
}
