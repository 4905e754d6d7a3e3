// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/mpqtt/pkg/pi30"
)

const namespace = "mpqtt"

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Metrics holds the application collectors. It implements pi30.Observer.
type Metrics struct {
	ExchangeTotal    *prometheus.CounterVec   // labels: cmd, result
	ExchangeDuration *prometheus.HistogramVec // labels: cmd
	ReconnectTotal   prometheus.Counter
	PublishErrors    prometheus.Counter
	OuterCycle       prometheus.Gauge // seconds
	InnerCycle       prometheus.Gauge // seconds
	Connected        prometheus.Gauge
}

var _ pi30.Observer = (*Metrics)(nil)

// New registers and returns the application metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ExchangeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_total",
			Help:      "Inverter command exchanges by command and result.",
		}, []string{"cmd", "result"}),
		ExchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Inverter command round trip time.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"cmd"}),
		ReconnectTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_total",
			Help:      "Times the inverter stream was re-opened.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "MQTT publishes that failed.",
		}),
		OuterCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outer_cycle_seconds",
			Help:      "Duration of the last full polling cycle.",
		}),
		InnerCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inner_cycle_seconds",
			Help:      "Duration of the last inner status loop.",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inverter_connected",
			Help:      "1 while the inverter stream is open.",
		}),
	}
	reg.MustRegister(m.ExchangeTotal, m.ExchangeDuration, m.ReconnectTotal, m.PublishErrors, m.OuterCycle, m.InnerCycle, m.Connected)
	return m
}

// ObserveExchange records one Execute call. The result label is "ok" or the
// error kind.
func (m *Metrics) ObserveExchange(mnemonic string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = pi30.KindOf(err).String()
	}
	m.ExchangeTotal.WithLabelValues(mnemonic, result).Inc()
	m.ExchangeDuration.WithLabelValues(mnemonic).Observe(d.Seconds())
}

// ObserveCycle records the durations of the last polling cycle.
func (m *Metrics) ObserveCycle(outer, inner time.Duration) {
	m.OuterCycle.Set(outer.Seconds())
	m.InnerCycle.Set(inner.Seconds())
}

// SetConnected flips the connection gauge.
func (m *Metrics) SetConnected(up bool) {
	if up {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}
