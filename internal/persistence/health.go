package persistence

import (
	"sync/atomic"

	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

// HealthState is the reachability of the remote store.
type HealthState int32

const (
	// Degraded means only the local log is written.
	Degraded HealthState = iota
	// Available means records are also written remotely.
	Available
)

func (s HealthState) String() string {
	if s == Available {
		return "available"
	}
	return "degraded"
}

// HealthMonitor holds the remote store HealthState. A single failure
// degrades and a single success restores; there is no hysteresis.
type HealthMonitor struct {
	state atomic.Int32
}

// NewHealthMonitor returns a monitor in the given initial state.
func NewHealthMonitor(initial HealthState) *HealthMonitor {
	m := &HealthMonitor{}
	m.set(initial)
	return m
}

// State returns the current state.
func (m *HealthMonitor) State() HealthState {
	return HealthState(m.state.Load())
}

// Status maps the state onto the health endpoint vocabulary. Remote loss
// alone never makes the service unhealthy.
func (m *HealthMonitor) Status() string {
	if m.State() == Available {
		return apiv1.StatusHealthy
	}
	return apiv1.StatusDegraded
}

// MarkAvailable records a successful probe or write. It reports whether the
// state changed.
func (m *HealthMonitor) MarkAvailable() bool {
	return m.set(Available)
}

// MarkDegraded records a failed probe or exhausted write. It reports whether
// the state changed.
func (m *HealthMonitor) MarkDegraded() bool {
	return m.set(Degraded)
}

func (m *HealthMonitor) set(s HealthState) bool {
	old := HealthState(m.state.Swap(int32(s)))
	if s == Available {
		remoteAvailable.Set(1)
	} else {
		remoteAvailable.Set(0)
	}
	return old != s
}
