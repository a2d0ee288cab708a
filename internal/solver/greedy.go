package solver

import (
	"context"
	"fmt"
	"log"
	"math"

	"fleetsolve/internal/geo"
	"fleetsolve/internal/model"
)

const dayStartMin = 8 * 60 // routes leave the depot at 08:00

// Greedy partitions customers across all vehicles and orders each
// vehicle's share with a nearest-neighbor walk. It is tried first, not
// last: it is the only strategy that deterministically gives every
// vehicle at least one customer when customers >= vehicles, and that
// business guarantee outweighs optimality.
type Greedy struct{}

func NewGreedy() *Greedy { return &Greedy{} }

func (g *Greedy) Name() string { return "greedy" }

func (g *Greedy) Solve(ctx context.Context, p *model.Problem, m *Matrices) (*model.Solution, error) {
	if len(p.Vehicles) == 0 || len(p.Customers) == 0 {
		return nil, ErrEmptyInput
	}
	log.Printf("solve: greedy: %d customers across %d vehicles", len(p.Customers), len(p.Vehicles))

	// Contiguous slices of size n/v per vehicle; the last vehicle absorbs
	// the remainder so no customer is ever dropped.
	perVehicle := len(p.Customers) / len(p.Vehicles)
	if perVehicle < 1 {
		perVehicle = 1
	}
	routes := []model.Route{}
	for vi, v := range p.Vehicles {
		lo := vi * perVehicle
		hi := lo + perVehicle
		if vi == len(p.Vehicles)-1 {
			hi = len(p.Customers)
		}
		if lo >= len(p.Customers) {
			continue
		}
		if hi > len(p.Customers) {
			hi = len(p.Customers)
		}
		nodes := make([]int, 0, hi-lo)
		for i := lo; i < hi; i++ {
			nodes = append(nodes, i+1)
		}
		routes = append(routes, buildGreedyRoute(p, m, vi, v, nodes))
	}
	return summarize(routes, "Simple Multi-Vehicle"), nil
}

// buildGreedyRoute runs the nearest-neighbor walk over the assigned nodes.
// Ties keep the first minimum, so input order breaks them. The clock is
// stamped on a stop before the leg's travel is added; the travel then
// surfaces in the next stop's arrival.
func buildGreedyRoute(p *model.Problem, m *Matrices, vi int, v model.Vehicle, nodes []int) model.Route {
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
		Coordinate:    p.Depot,
		ArrivalTime:   geo.MinutesToClock(dayStartMin),
		DepartureTime: geo.MinutesToClock(dayStartMin),
	})

	remaining := append([]int(nil), nodes...)
	cur := 0
	clock := dayStartMin
	totalKM := 0.0
	load := 0
	for len(remaining) > 0 {
		bestIdx := 0
		bestKM := math.Inf(1)
		for ri, node := range remaining {
			if d := m.KM[cur][node]; d < bestKM {
				bestKM = d
				bestIdx = ri
			}
		}
		node := remaining[bestIdx]
		cust := p.Customers[node-1]
		route.Stops = append(route.Stops, model.Stop{
			Type:          "customer",
			ID:            cust.ID,
			Name:          cust.Name,
			Coordinate:    cust.Coordinate,
			Demand:        cust.Demand,
			Load:          load + cust.Demand,
			ArrivalTime:   geo.MinutesToClock(clock),
			DepartureTime: geo.MinutesToClock(clock + cust.ServiceTime),
			ServiceTime:   cust.ServiceTime,
		})
		totalKM += bestKM
		load += cust.Demand
		clock += cust.ServiceTime + int(bestKM*60/referenceSpeedKMH)
		cur = node
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	returnKM := m.KM[cur][0]
	totalKM += returnKM
	clock += int(returnKM * 60 / referenceSpeedKMH)
	route.Stops = append(route.Stops, model.Stop{
		Type:          "depot",
		ID:            depotID,
		Name:          depotName,
		Coordinate:    p.Depot,
		Load:          load,
		ArrivalTime:   geo.MinutesToClock(clock),
		DepartureTime: geo.MinutesToClock(clock),
	})

	route.TotalDistance = totalKM
	route.TotalCost = totalKM * v.CostPerKM
	route.TotalLoad = load
	route.TotalTime = totalKM / referenceSpeedKMH
	if v.Capacity > 0 {
		route.UtilizationRate = float64(load) / float64(v.Capacity)
	}
	if totalKM > 0 {
		route.Efficiency = float64(load) / totalKM
	}
	return route
}
