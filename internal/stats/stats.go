// Package stats holds the process-wide solve counters. The counters are
// advisory observability data; they are injected into the orchestrator
// rather than living as package globals so tests and embedders can scope
// them.
package stats

import "sync"

type Counters struct {
	mu               sync.Mutex
	totalRequests    int64
	successfulSolves int64
	failedSolves     int64
	totalSolvingTime float64
}

func New() *Counters { return &Counters{} }

// RecordRequest counts an inbound solve attempt before any strategy runs.
func (c *Counters) RecordRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

// RecordSuccess counts a completed solve and accumulates its wall time.
func (c *Counters) RecordSuccess(solvingTime float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successfulSolves++
	c.totalSolvingTime += solvingTime
}

// RecordFailure counts a solve where every strategy failed.
func (c *Counters) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedSolves++
}

// Snapshot returns the wire representation of the counters. Keys are
// snake_case; existing consumers of the stats endpoint rely on them.
func (c *Counters) Snapshot() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	avg := 0.0
	if c.successfulSolves > 0 {
		avg = c.totalSolvingTime / float64(c.successfulSolves)
	}
	return map[string]any{
		"total_requests":       c.totalRequests,
		"successful_solves":    c.successfulSolves,
		"failed_solves":        c.failedSolves,
		"total_solving_time":   c.totalSolvingTime,
		"average_solving_time": avg,
	}
}
