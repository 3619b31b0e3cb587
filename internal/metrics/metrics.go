// Package metrics exposes Prometheus collectors for ingestion, alerts, decisions and orders.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vadiminshakov/pvsra/internal/domain"
)

const namespace = "pvsra"

type Metrics struct {
	registry *prometheus.Registry

	BarsTotal          *prometheus.CounterVec
	AlertsTotal        *prometheus.CounterVec
	DecisionsTotal     *prometheus.CounterVec
	OrdersTotal        *prometheus.CounterVec
	PositionChecks     *prometheus.CounterVec
	SubscriberFailures *prometheus.CounterVec
	LastPrice          *prometheus.GaugeVec
	Confidence         *prometheus.HistogramVec
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		BarsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "bars_total", Help: "Bar updates applied to the store"},
			[]string{"symbol", "closed"},
		),
		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "alerts_total", Help: "Volume alerts published"},
			[]string{"symbol", "condition", "direction"},
		),
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "decisions_total", Help: "Guard decisions by stage"},
			[]string{"symbol", "action", "stage"},
		),
		OrdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "orders_total", Help: "Orders submitted"},
			[]string{"symbol", "side", "status"},
		),
		PositionChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "position_checks_total", Help: "Open position checks by threshold event"},
			[]string{"symbol", "side", "event"},
		),
		SubscriberFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "subscriber_failures_total", Help: "Alert deliveries that failed"},
			[]string{"subscriber"},
		),
		LastPrice: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "last_price", Help: "Close of the newest bar"},
			[]string{"symbol"},
		),
		Confidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decision_confidence",
				Help:      "Combined confidence of accepted decisions",
				Buckets:   prometheus.LinearBuckets(0.3, 0.1, 7),
			},
			[]string{"symbol"},
		),
	}

	m.registry.MustRegister(
		m.BarsTotal,
		m.AlertsTotal,
		m.DecisionsTotal,
		m.OrdersTotal,
		m.PositionChecks,
		m.SubscriberFailures,
		m.LastPrice,
		m.Confidence,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveBar(u domain.BarUpdate) {
	m.BarsTotal.WithLabelValues(u.Symbol, strconv.FormatBool(u.Closed)).Inc()
	m.LastPrice.WithLabelValues(u.Symbol).Set(u.Bar.Close.InexactFloat64())
}

func (m *Metrics) ObserveAlert(a domain.Alert) {
	m.AlertsTotal.WithLabelValues(a.Symbol, string(a.Condition), string(a.Direction)).Inc()
}

func (m *Metrics) ObserveDecision(d domain.Decision) {
	m.DecisionsTotal.WithLabelValues(d.Symbol, d.Action.String(), d.Stage).Inc()
	if d.Allow {
		m.Confidence.WithLabelValues(d.Symbol).Observe(d.Confidence)
	}
}

func (m *Metrics) ObserveOrder(o domain.OrderOutcome) {
	status := "filled"
	switch {
	case o.Error != "":
		status = "error"
	case o.Simulate:
		status = "simulated"
	}
	m.OrdersTotal.WithLabelValues(o.Symbol, o.Side.String(), status).Inc()
}

func (m *Metrics) ObservePosition(p domain.PositionStatus) {
	m.PositionChecks.WithLabelValues(p.Symbol, p.Side.String(), string(p.Event)).Inc()
}

func (m *Metrics) ObserveSubscriberFailure(subscriber string) {
	m.SubscriberFailures.WithLabelValues(subscriber).Inc()
}
