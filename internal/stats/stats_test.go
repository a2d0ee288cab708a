package stats

import (
	"sync"
	"testing"
)

func TestCountersSnapshot(t *testing.T) {
	c := New()
	c.RecordRequest()
	c.RecordRequest()
	c.RecordRequest()
	c.RecordSuccess(2.0)
	c.RecordSuccess(4.0)
	c.RecordFailure()

	s := c.Snapshot()
	if s["total_requests"].(int64) != 3 {
		t.Fatalf("total_requests = %v, want 3", s["total_requests"])
	}
	if s["successful_solves"].(int64) != 2 {
		t.Fatalf("successful_solves = %v, want 2", s["successful_solves"])
	}
	if s["failed_solves"].(int64) != 1 {
		t.Fatalf("failed_solves = %v, want 1", s["failed_solves"])
	}
	if s["total_solving_time"].(float64) != 6.0 {
		t.Fatalf("total_solving_time = %v, want 6", s["total_solving_time"])
	}
	if s["average_solving_time"].(float64) != 3.0 {
		t.Fatalf("average_solving_time = %v, want 3", s["average_solving_time"])
	}
}

func TestCountersAverageWithoutSuccesses(t *testing.T) {
	c := New()
	c.RecordRequest()
	c.RecordFailure()
	if avg := c.Snapshot()["average_solving_time"].(float64); avg != 0 {
		t.Fatalf("average with zero successes = %v, want 0", avg)
	}
}

func TestCountersConcurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordRequest()
			c.RecordSuccess(0.5)
		}()
	}
	wg.Wait()
	s := c.Snapshot()
	if s["total_requests"].(int64) != 50 || s["successful_solves"].(int64) != 50 {
		t.Fatalf("lost updates under concurrency: %v", s)
	}
}
