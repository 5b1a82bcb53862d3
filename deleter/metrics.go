// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package deleter

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "deleteproject"

const (
	modeNonReplicated = "non-replicated"
	modeReplicated    = "replicated"

	resultSuccess = "success"
	resultFailure = "failure"
)

// Collector is a prometheus.Collector that collects metrics about
// project deletions.
type Collector struct {
	deletions *prometheus.CounterVec
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		deletions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "deletions_total",
				Help:      "The number of project delete operations, by replication mode and result.",
			}, []string{"mode", "result"},
		),
	}
}

func (c *Collector) observe(mode string, err error) {
	result := resultSuccess
	if err != nil {
		result = resultFailure
	}
	c.deletions.WithLabelValues(mode, result).Inc()
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.deletions.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.deletions.Collect(ch)
}
