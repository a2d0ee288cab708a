package solver

import (
	"context"
	"fmt"
	"log"
	"time"

	"fleetsolve/internal/geo"
	"fleetsolve/internal/model"
)

// maxSearchSeconds caps the constraint search regardless of what the
// request asked for. The chain promises bounded latency; this strategy
// is the slow rung.
const maxSearchSeconds = 30

// Constraint is the last fallback: an in-process routing search with
// capacity and time-window dimensions. Construction is cheapest-arc-first
// followed by local search (2-opt, or-opt relocation, cross-exchange)
// under a hard wall-clock deadline. A strictly increasing fixed cost per
// vehicle index nudges the search toward spreading load, but unlike the
// greedy strategy it does not guarantee every vehicle is used.
type Constraint struct{}

func NewConstraint() *Constraint { return &Constraint{} }

func (c *Constraint) Name() string { return "constraint" }

func (c *Constraint) Solve(ctx context.Context, p *model.Problem, m *Matrices) (*model.Solution, error) {
	if len(p.Vehicles) == 0 || len(p.Customers) == 0 {
		return nil, ErrEmptyInput
	}
	budget := p.Options.MaxSolvingTime
	if budget <= 0 || budget > maxSearchSeconds {
		budget = maxSearchSeconds
	}
	deadline := time.Now().Add(time.Duration(budget) * time.Second)
	log.Printf("solve: constraint: %d customers across %d vehicles, budget %ds",
		len(p.Customers), len(p.Vehicles), budget)

	s := &search{p: p, m: m}
	if !s.construct() {
		caps := make([]int, len(p.Vehicles))
		for i, v := range p.Vehicles {
			caps[i] = v.Capacity
		}
		log.Printf("solve: constraint: no feasible assignment (total demand %d, vehicle capacities %v)",
			m.TotalDemand(), caps)
		return nil, ErrInfeasible
	}
	s.improve(ctx, deadline)

	routes := []model.Route{}
	for vi := range s.routes {
		if len(s.routes[vi]) == 0 {
			continue
		}
		routes = append(routes, s.extract(vi))
	}
	return summarize(routes, "Constraint Solver"), nil
}

// search holds the working assignment: routes[vi] is vehicle vi's ordered
// customer node list (matrix indices, never 0).
type search struct {
	p      *model.Problem
	m      *Matrices
	routes [][]int
	loads  []int
}

// construct runs cheapest-arc-first: repeatedly take the globally
// cheapest feasible extension (any vehicle's route tail to any unvisited
// node) until every node is routed. Activating an empty vehicle charges
// its fixed cost (the vehicle index) once. Returns false when some node
// fits nowhere, which is the infeasibility signal.
func (s *search) construct() bool {
	n := len(s.p.Customers)
	s.routes = make([][]int, len(s.p.Vehicles))
	s.loads = make([]int, len(s.p.Vehicles))
	for vi := range s.routes {
		s.routes[vi] = []int{}
	}
	visited := make([]bool, n+1)
	for placed := 0; placed < n; placed++ {
		bestVI, bestNode, bestCost := -1, -1, 0
		for vi := range s.routes {
			tail := 0
			if len(s.routes[vi]) > 0 {
				tail = s.routes[vi][len(s.routes[vi])-1]
			}
			for node := 1; node <= n; node++ {
				if visited[node] {
					continue
				}
				if !s.fitsAppend(vi, node) {
					continue
				}
				cost := s.m.Dist[tail][node]
				if len(s.routes[vi]) == 0 {
					cost += vi
				}
				if bestVI == -1 || cost < bestCost {
					bestVI, bestNode, bestCost = vi, node, cost
				}
			}
		}
		if bestVI == -1 {
			return false
		}
		visited[bestNode] = true
		s.routes[bestVI] = append(s.routes[bestVI], bestNode)
		s.loads[bestVI] += s.m.Demands[bestNode]
	}
	return true
}

// fitsAppend reports whether appending node to vehicle vi's route keeps
// it feasible under the active dimensions.
func (s *search) fitsAppend(vi, node int) bool {
	if s.p.Options.UseCapacityConstraints &&
		s.loads[vi]+s.m.Demands[node] > s.p.Vehicles[vi].Capacity {
		return false
	}
	if !s.p.Options.UseTimeWindows {
		return true
	}
	cand := append(append([]int{}, s.routes[vi]...), node)
	return s.timeFeasible(cand)
}

// feasible rechecks a whole candidate order for vehicle vi; the local
// search calls this after every move.
func (s *search) feasible(vi int, order []int) bool {
	if s.p.Options.UseCapacityConstraints {
		load := 0
		for _, node := range order {
			load += s.m.Demands[node]
		}
		if load > s.p.Vehicles[vi].Capacity {
			return false
		}
	}
	if !s.p.Options.UseTimeWindows {
		return true
	}
	return s.timeFeasible(order)
}

// timeFeasible propagates the clock from the depot at second 0. Each leg
// adds the origin's service time plus the travel time; arrival clamps up
// to the node's window start (waiting) and fails past its window end.
// The return leg must land back inside the depot's window, which caps the
// whole route at dayEndSec.
func (s *search) timeFeasible(order []int) bool {
	t, prev := 0, 0
	for _, node := range order {
		t += s.m.ServiceSec[prev] + s.m.Travel[prev][node]
		if t < s.m.Windows[node][0] {
			t = s.m.Windows[node][0]
		}
		if t > s.m.Windows[node][1] {
			return false
		}
		prev = node
	}
	t += s.m.ServiceSec[prev] + s.m.Travel[prev][0]
	return t <= s.m.Windows[0][1]
}

// improve runs full local-search passes until a pass yields no gain or
// the deadline passes. The deadline is hard: it is re-checked every pass
// and control always returns.
func (s *search) improve(ctx context.Context, deadline time.Time) {
	for time.Now().Before(deadline) && ctx.Err() == nil {
		improved := false
		if s.twoOpt() {
			improved = true
		}
		if s.orOpt() {
			improved = true
		}
		if s.crossExchange() {
			improved = true
		}
		if !improved {
			return
		}
	}
}

// routeDistance sums the arc meters depot -> order -> depot.
func (s *search) routeDistance(order []int) int {
	if len(order) == 0 {
		return 0
	}
	total := s.m.Dist[0][order[0]]
	for i := 0; i < len(order)-1; i++ {
		total += s.m.Dist[order[i]][order[i+1]]
	}
	return total + s.m.Dist[order[len(order)-1]][0]
}

// twoOpt reverses intra-route segments that shorten the route and stay
// feasible. One sweep per call.
func (s *search) twoOpt() bool {
	improved := false
	for vi := range s.routes {
		order := s.routes[vi]
		for i := 0; i < len(order)-1; i++ {
			for k := i + 1; k < len(order); k++ {
				cand := append([]int{}, order...)
				for a, b := i, k; a < b; a, b = a+1, b-1 {
					cand[a], cand[b] = cand[b], cand[a]
				}
				if s.routeDistance(cand) >= s.routeDistance(order) {
					continue
				}
				if !s.feasible(vi, cand) {
					continue
				}
				order = cand
				improved = true
			}
		}
		s.routes[vi] = order
	}
	return improved
}

// orOpt relocates single nodes to better positions within their route.
func (s *search) orOpt() bool {
	improved := false
	for vi := range s.routes {
		order := s.routes[vi]
		for i := 0; i < len(order); i++ {
			for j := 0; j <= len(order); j++ {
				if j == i || j == i+1 {
					continue
				}
				cand := append([]int{}, order[:i]...)
				cand = append(cand, order[i+1:]...)
				pos := j
				if pos > i {
					pos--
				}
				cand = append(cand[:pos], append([]int{order[i]}, cand[pos:]...)...)
				if s.routeDistance(cand) >= s.routeDistance(order) {
					continue
				}
				if !s.feasible(vi, cand) {
					continue
				}
				order = cand
				improved = true
			}
		}
		s.routes[vi] = order
	}
	return improved
}

// crossExchange swaps one node between two routes when the combined
// distance drops and both routes stay feasible.
func (s *search) crossExchange() bool {
	improved := false
	for a := 0; a < len(s.routes); a++ {
		for b := a + 1; b < len(s.routes); b++ {
			for i := 0; i < len(s.routes[a]); i++ {
				for j := 0; j < len(s.routes[b]); j++ {
					ca := append([]int{}, s.routes[a]...)
					cb := append([]int{}, s.routes[b]...)
					ca[i], cb[j] = cb[j], ca[i]
					before := s.routeDistance(s.routes[a]) + s.routeDistance(s.routes[b])
					if s.routeDistance(ca)+s.routeDistance(cb) >= before {
						continue
					}
					if !s.feasible(a, ca) || !s.feasible(b, cb) {
						continue
					}
					s.routes[a], s.routes[b] = ca, cb
					s.loads[a] += s.m.Demands[ca[i]] - s.m.Demands[cb[j]]
					s.loads[b] += s.m.Demands[cb[j]] - s.m.Demands[ca[i]]
					improved = true
				}
			}
		}
	}
	return improved
}

// extract renders vehicle vi's assignment as a route. The clock starts at
// the depot at second 0; each customer stop records arrival (after any
// window wait), departure after service, and the cumulative load. The
// route time counts travel only.
func (s *search) extract(vi int) model.Route {
	v := s.p.Vehicles[vi]
	route := model.Route{
		VehicleID:   fmt.Sprintf("V%03d", vi+1),
		VehicleName: v.Name,
		VehicleType: v.Type,
		Capacity:    v.Capacity,
		Stops:       []model.Stop{},
	}
	route.Stops = append(route.Stops, model.Stop{
		Type:          "depot",
		ID:            depotID,
		Name:          depotName,
		Coordinate:    s.p.Depot,
		ArrivalTime:   geo.SecondsToClock(0),
		DepartureTime: geo.SecondsToClock(0),
	})

	clock, travelSec, distM, load := 0, 0, 0, 0
	prev := 0
	for _, node := range s.routes[vi] {
		clock += s.m.Travel[prev][node]
		travelSec += s.m.Travel[prev][node]
		distM += s.m.Dist[prev][node]
		wait := 0
		if s.p.Options.UseTimeWindows && clock < s.m.Windows[node][0] {
			wait = s.m.Windows[node][0] - clock
			clock = s.m.Windows[node][0]
		}
		cust := s.p.Customers[node-1]
		route.Stops = append(route.Stops, model.Stop{
			Type:          "customer",
			ID:            cust.ID,
			Name:          cust.Name,
			Coordinate:    cust.Coordinate,
			Demand:        cust.Demand,
			Load:          load + cust.Demand,
			ArrivalTime:   geo.SecondsToClock(clock),
			DepartureTime: geo.SecondsToClock(clock + s.m.ServiceSec[node]),
			ServiceTime:   cust.ServiceTime,
			WaitTime:      wait / 60,
		})
		load += cust.Demand
		clock += s.m.ServiceSec[node]
		prev = node
	}
	clock += s.m.Travel[prev][0]
	travelSec += s.m.Travel[prev][0]
	distM += s.m.Dist[prev][0]
	route.Stops = append(route.Stops, model.Stop{
		Type:          "depot",
		ID:            depotID,
		Name:          depotName,
		Coordinate:    s.p.Depot,
		Load:          load,
		ArrivalTime:   geo.SecondsToClock(clock),
		DepartureTime: geo.SecondsToClock(clock),
	})

	route.TotalDistance = float64(distM) / 1000
	route.TotalCost = route.TotalDistance * v.CostPerKM
	route.TotalLoad = load
	route.TotalTime = float64(travelSec) / 3600
	if v.Capacity > 0 {
		route.UtilizationRate = float64(load) / float64(v.Capacity)
	}
	if route.TotalDistance > 0 {
		route.Efficiency = float64(load) / route.TotalDistance
	}
	return route
}
