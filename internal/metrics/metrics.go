// Package metrics exposes receiver port counters to Prometheus.
//
// The collectors are func-backed: they read the port's atomic counters when
// scraped, so the delivery path pays nothing for being observed.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/leandrodaf/midiport/sdk/contracts"
)

// StatsSource is what the collectors read from.
type StatsSource interface {
	Stats() contracts.PortStats
}

// PortCollectors are the collectors registered for one port.
type PortCollectors struct {
	collectors []prometheus.Collector
	registerer prometheus.Registerer
}

// Register creates the collectors for the port called name and registers
// them on reg.
func Register(reg prometheus.Registerer, name string, src StatsSource) (*PortCollectors, error) {
	labels := prometheus.Labels{"port": name}
	counter := func(metric, help string, value func(contracts.PortStats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "midiport",
			Subsystem:   "receiver",
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(value(src.Stats())) })
	}

	pc := &PortCollectors{
		registerer: reg,
		collectors: []prometheus.Collector{
			counter("batches_delivered_total", "Batches handed to a receiver",
				func(s contracts.PortStats) uint64 { return s.Delivered }),
			counter("batches_dropped_total", "Batches dropped for unknown, disconnected or receiver-less sources",
				func(s contracts.PortStats) uint64 { return s.Dropped }),
			counter("flushes_total", "Flushes handed to a flush handler",
				func(s contracts.PortStats) uint64 { return s.Flushes }),
			counter("flushes_dropped_total", "Flushes with no eligible flush handler",
				func(s contracts.PortStats) uint64 { return s.FlushesDropped }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace:   "midiport",
				Subsystem:   "receiver",
				Name:        "connected_sources",
				Help:        "Sources currently connected",
				ConstLabels: labels,
			}, func() float64 { return float64(src.Stats().Connected) }),
		},
	}

	for i, c := range pc.collectors {
		if err := reg.Register(c); err != nil {
			for _, done := range pc.collectors[:i] {
				reg.Unregister(done)
			}
			return nil, fmt.Errorf("register metrics for port %q: %w", name, err)
		}
	}
	return pc, nil
}

// Unregister removes the collectors from their registerer.
func (pc *PortCollectors) Unregister() error {
	var err error
	for _, c := range pc.collectors {
		if !pc.registerer.Unregister(c) {
			err = multierr.Append(err, fmt.Errorf("collector %v was not registered", c))
		}
	}
	return err
}
