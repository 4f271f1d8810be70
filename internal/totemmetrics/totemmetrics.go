// Package totemmetrics exposes process-level Prometheus gauges/counters
// for connected clients, live rooms, and commands processed per priority
// band. Naming follows namespace_subsystem_name: namespace "totem",
// subsystem per feature area.
package totemmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClientsConnected tracks the current number of connected clients.
	ClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "totem",
		Subsystem: "registry",
		Name:      "clients_connected",
		Help:      "Current number of connected clients",
	})

	// RoomsActive tracks the current number of live rooms.
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "totem",
		Subsystem: "registry",
		Name:      "rooms_active",
		Help:      "Current number of rooms in the registry",
	})

	// MatchesInProgress tracks rooms whose state is InProgress.
	MatchesInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "totem",
		Subsystem: "room",
		Name:      "matches_in_progress",
		Help:      "Current number of in-progress matches",
	})

	// CommandsTotal tracks commands accepted onto the Command Bus, labeled
	// by priority band.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "totem",
		Subsystem: "bus",
		Name:      "commands_total",
		Help:      "Total commands sent on the command bus",
	}, []string{"priority"})

	// IdleTimeoutsTotal counts forced draws caused by the 30s idle timer.
	IdleTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "totem",
		Subsystem: "room",
		Name:      "idle_timeouts_total",
		Help:      "Total forced draws caused by per-turn idle timeout",
	})
)
