package persistence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

func TestHealthMonitor(t *testing.T) {
	m := NewHealthMonitor(Available)
	assert.Equal(t, Available, m.State())
	assert.Equal(t, apiv1.StatusHealthy, m.Status())

	assert.True(t, m.MarkDegraded())
	assert.False(t, m.MarkDegraded())
	assert.Equal(t, apiv1.StatusDegraded, m.Status())
	assert.Equal(t, "degraded", m.State().String())

	assert.True(t, m.MarkAvailable())
	assert.Equal(t, "available", m.State().String())
}

func TestHealthMonitor_ConcurrentAccess(t *testing.T) {
	m := NewHealthMonitor(Degraded)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				m.MarkAvailable()
			} else {
				m.MarkDegraded()
			}
			_ = m.Status()
		}(i)
	}
	wg.Wait()

	assert.Contains(t, []HealthState{Available, Degraded}, m.State())
}
