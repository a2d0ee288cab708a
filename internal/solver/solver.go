// Package solver implements the route-construction engine: shared matrix
// preparation plus a fallback chain of three solving strategies tried in
// fixed order (greedy partition, external generative solver, constraint
// search). The first strategy to produce a solution wins.
package solver

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"fleetsolve/internal/llm"
	"fleetsolve/internal/metrics"
	"fleetsolve/internal/model"
	"fleetsolve/internal/stats"
)

var (
	// ErrEmptyInput marks the degenerate zero-vehicle or zero-customer case.
	ErrEmptyInput = errors.New("no vehicles or no customers")
	// ErrInfeasible means no assignment satisfies the active constraints.
	ErrInfeasible = errors.New("no feasible assignment")
	// ErrExternalSolver wraps transport and parse failures from the
	// generative-solving collaborator.
	ErrExternalSolver = errors.New("external solver failure")
	// ErrNoSolution is the overall failure after every strategy failed.
	ErrNoSolution = errors.New("no solution found")
)

const (
	depotID   = "DEPOT"
	depotName = "Depot"

	timestampLayout = "2006-01-02T15:04:05"
)

// Strategy is one rung of the fallback chain. Implementations swallow
// their internal failures and surface them only through the error return;
// they never return a partial solution alongside an error.
type Strategy interface {
	Name() string
	Solve(ctx context.Context, p *model.Problem, m *Matrices) (*model.Solution, error)
}

// Orchestrator owns the strategy chain and the injected solve counters.
type Orchestrator struct {
	strategies []Strategy
	counters   *stats.Counters
}

// NewOrchestrator wires the fixed-order chain: greedy first (it is the
// only strategy guaranteeing fleet-wide utilization), then the external
// adapter when a provider is configured, then the constraint solver.
func NewOrchestrator(provider llm.Provider, counters *stats.Counters) *Orchestrator {
	if counters == nil {
		counters = stats.New()
	}
	chain := []Strategy{NewGreedy()}
	if provider != nil {
		chain = append(chain, NewExternal(provider))
	} else {
		log.Printf("solve: no external provider configured, adapter disabled")
	}
	chain = append(chain, NewConstraint())
	return &Orchestrator{strategies: chain, counters: counters}
}

// Chain lists the strategy names in try order.
func (o *Orchestrator) Chain() []string {
	names := make([]string, 0, len(o.strategies))
	for _, st := range o.strategies {
		names = append(names, st.Name())
	}
	return names
}

// Solve runs the chain strictly sequentially and returns the first
// success. Strategy failures are logged and fall through; only exhausting
// the whole chain is a caller-visible failure.
func (o *Orchestrator) Solve(ctx context.Context, p *model.Problem) (*model.Solution, error) {
	o.counters.RecordRequest()
	if len(p.Vehicles) == 0 || len(p.Customers) == 0 {
		o.counters.RecordFailure()
		return nil, ErrEmptyInput
	}
	start := time.Now()
	m := BuildMatrices(p)
	for _, st := range o.strategies {
		sol, err := st.Solve(ctx, p, m)
		if err != nil {
			log.Printf("solve: %s: %v", st.Name(), err)
			metrics.Solves.WithLabelValues(st.Name(), "failure").Inc()
			continue
		}
		elapsed := time.Since(start).Seconds()
		sol.SolvingTime = elapsed
		sol.Status = "success"
		sol.Timestamp = time.Now().UTC().Format(timestampLayout)
		o.counters.RecordSuccess(elapsed)
		metrics.Solves.WithLabelValues(st.Name(), "success").Inc()
		metrics.SolveDuration.WithLabelValues(st.Name()).Observe(elapsed)
		return sol, nil
	}
	o.counters.RecordFailure()
	return nil, ErrNoSolution
}

// summarize computes the solution-level aggregates over kept routes.
// Distances, costs, and hours are rounded to 2 decimals; the utilization
// average is a percentage rounded to 1.
func summarize(routes []model.Route, algorithm string) *model.Solution {
	var dist, cost, hours, utilSum, effSum float64
	served := 0
	for _, r := range routes {
		dist += r.TotalDistance
		cost += r.TotalCost
		hours += r.TotalTime
		utilSum += r.UtilizationRate
		effSum += r.Efficiency
		for _, st := range r.Stops {
			if st.Type == "customer" {
				served++
			}
		}
	}
	avgUtil, avgEff := 0.0, 0.0
	if len(routes) > 0 {
		avgUtil = utilSum / float64(len(routes))
		avgEff = effSum / float64(len(routes))
	}
	return &model.Solution{
		Routes:             routes,
		TotalDistance:      round2(dist),
		TotalCost:          round2(cost),
		TotalTime:          round2(hours),
		VehiclesUsed:       len(routes),
		CustomersServed:    served,
		AverageUtilization: round1(avgUtil * 100),
		AverageEfficiency:  round2(avgEff),
		Algorithm:          algorithm,
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
