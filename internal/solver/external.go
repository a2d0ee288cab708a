package solver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"fleetsolve/internal/llm"
	"fleetsolve/internal/metrics"
	"fleetsolve/internal/model"
)

// External hands the whole problem to a generative model and reconciles
// the free-form reply against the canonical customers and vehicles. Stops
// are matched back by display name; anything the model invented is
// dropped and surfaced as a warning rather than silently kept.
type External struct {
	provider llm.Provider
}

func NewExternal(provider llm.Provider) *External {
	return &External{provider: provider}
}

func (e *External) Name() string { return "external" }

// Reply shape the prompt asks for. Keys are snake_case on the wire; the
// skeleton in buildPrompt and these tags must stay in sync.
type extStop struct {
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	Coordinate *model.Coordinate `json:"coordinate"`
	Demand     int               `json:"demand"`
	Load       int               `json:"load"`
}

type extRoute struct {
	VehicleID     string    `json:"vehicle_id"`
	VehicleName   string    `json:"vehicle_name"`
	Stops         []extStop `json:"stops"`
	TotalDistance float64   `json:"total_distance"`
	TotalCost     float64   `json:"total_cost"`
	TotalLoad     int       `json:"total_load"`
}

type extReply struct {
	Routes          []extRoute `json:"routes"`
	TotalDistance   float64    `json:"total_distance"`
	TotalCost       float64    `json:"total_cost"`
	VehiclesUsed    int        `json:"vehicles_used"`
	CustomersServed int        `json:"customers_served"`
}

func (e *External) Solve(ctx context.Context, p *model.Problem, m *Matrices) (*model.Solution, error) {
	if len(p.Vehicles) == 0 || len(p.Customers) == 0 {
		return nil, ErrEmptyInput
	}
	prompt := buildPrompt(p)
	log.Printf("solve: external: prompting %s (%d customers, %d vehicles, prompt %d bytes)",
		e.provider.Name(), len(p.Customers), len(p.Vehicles), len(prompt))

	raw, err := e.provider.Generate(ctx, prompt)
	if err != nil {
		metrics.ExternalSolverCalls.WithLabelValues("transport_error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrExternalSolver, err)
	}
	var reply extReply
	if err := json.Unmarshal([]byte(stripFences(raw)), &reply); err != nil {
		metrics.ExternalSolverCalls.WithLabelValues("parse_error").Inc()
		return nil, fmt.Errorf("%w: decode reply: %v", ErrExternalSolver, err)
	}
	sol, err := reconcile(p, &reply)
	if err != nil {
		metrics.ExternalSolverCalls.WithLabelValues("empty").Inc()
		return nil, err
	}
	metrics.ExternalSolverCalls.WithLabelValues("success").Inc()
	return sol, nil
}

// reconcile maps the reply back onto canonical customers and vehicles.
// The reply's own ids and totals are trusted for display; only stop
// identity is re-derived, because the solver downstream of us (and the
// caller) must never see customers that do not exist.
func reconcile(p *model.Problem, reply *extReply) (*model.Solution, error) {
	var warnings []string
	routes := make([]model.Route, 0, len(reply.Routes))
	served := 0
	for _, er := range reply.Routes {
		v := matchVehicle(p.Vehicles, er.VehicleName, er.VehicleID)
		route := model.Route{
			VehicleID:     er.VehicleID,
			VehicleName:   er.VehicleName,
			VehicleType:   v.Type,
			Capacity:      v.Capacity,
			Stops:         []model.Stop{},
			TotalDistance: er.TotalDistance,
			TotalCost:     er.TotalCost,
			TotalLoad:     er.TotalLoad,
		}
		load := 0
		for _, es := range er.Stops {
			if es.Type == "depot" {
				route.Stops = append(route.Stops, model.Stop{
					Type:          "depot",
					ID:            depotID,
					Name:          depotName,
					Coordinate:    p.Depot,
					ArrivalTime:   "08:00",
					DepartureTime: "08:00",
				})
				continue
			}
			cust := matchCustomer(p.Customers, es.Name)
			if cust == nil {
				warnings = append(warnings,
					fmt.Sprintf("external solver: stop %q does not match any customer; dropped", es.Name))
				continue
			}
			demand := cust.Demand
			if es.Demand > 0 {
				demand = es.Demand
			}
			load += demand
			stopLoad := load
			if es.Load > 0 {
				stopLoad = es.Load
			}
			// Arrival and departure are placeholders: this strategy does
			// not simulate the clock.
			route.Stops = append(route.Stops, model.Stop{
				Type:          "customer",
				ID:            cust.ID,
				Name:          cust.Name,
				Coordinate:    cust.Coordinate,
				Demand:        demand,
				Load:          stopLoad,
				ArrivalTime:   "09:00",
				DepartureTime: "09:15",
				ServiceTime:   cust.ServiceTime,
			})
			served++
		}
		if route.Capacity > 0 {
			route.UtilizationRate = float64(route.TotalLoad) / float64(route.Capacity)
		}
		if route.TotalDistance > 0 {
			route.Efficiency = float64(route.TotalLoad) / route.TotalDistance
		}
		routes = append(routes, route)
	}
	if served == 0 {
		return nil, fmt.Errorf("%w: reply contained no usable routes", ErrExternalSolver)
	}

	var utilSum, effSum float64
	for _, r := range routes {
		utilSum += r.UtilizationRate
		effSum += r.Efficiency
	}
	vehiclesUsed := reply.VehiclesUsed
	if vehiclesUsed == 0 {
		vehiclesUsed = len(routes)
	}
	customersServed := reply.CustomersServed
	if customersServed == 0 {
		customersServed = served
	}
	return &model.Solution{
		Routes:             routes,
		TotalDistance:      round2(reply.TotalDistance),
		TotalCost:          round2(reply.TotalCost),
		TotalTime:          0,
		VehiclesUsed:       vehiclesUsed,
		CustomersServed:    customersServed,
		AverageUtilization: round1(utilSum / float64(len(routes)) * 100),
		AverageEfficiency:  round2(effSum / float64(len(routes))),
		Algorithm:          "Gemini AI",
		Warnings:           warnings,
	}, nil
}

// matchVehicle resolves a reply route to a canonical vehicle: name match
// first, then id, else the first vehicle. Duplicate names resolve to the
// earliest, which mirrors the matching the reply itself was asked to use.
func matchVehicle(vehicles []model.Vehicle, name, id string) model.Vehicle {
	for _, v := range vehicles {
		if v.Name == name {
			return v
		}
	}
	for _, v := range vehicles {
		if v.ID == id {
			return v
		}
	}
	return vehicles[0]
}

func matchCustomer(customers []model.Customer, name string) *model.Customer {
	for i := range customers {
		if customers[i].Name == name {
			return &customers[i]
		}
	}
	return nil
}

// stripFences removes a markdown code fence the model tends to wrap JSON
// in despite being told not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-len("```")]
	}
	return strings.TrimSpace(s)
}

// buildPrompt renders the problem as a plain-text statement with a JSON
// skeleton for the reply. The skeleton's snake_case keys match extReply.
func buildPrompt(p *model.Problem) string {
	var b strings.Builder
	b.WriteString("You are a Vehicle Routing Problem (VRP) expert. Solve the following problem.\n\n")
	fmt.Fprintf(&b, "DEPOT (start and end of every route):\n- Coordinate: %v, %v\n\n", p.Depot.Lat, p.Depot.Lng)

	b.WriteString("CUSTOMERS:\n")
	for i, c := range p.Customers {
		fmt.Fprintf(&b, "%d. %s\n   - Coordinate: %v, %v\n   - Demand: %d\n   - Service time: %d minutes\n",
			i+1, c.Name, c.Coordinate.Lat, c.Coordinate.Lng, c.Demand, c.ServiceTime)
	}

	b.WriteString("\nVEHICLES:\n")
	for i, v := range p.Vehicles {
		fmt.Fprintf(&b, "%d. %s (%s)\n   - Capacity: %d\n   - Speed: %v km/h\n   - Cost: %v per km\n",
			i+1, v.Name, v.Type, v.Capacity, v.Speed, v.CostPerKM)
	}

	b.WriteString(`
RULES:
1. Visit every customer exactly once.
2. Never exceed a vehicle's capacity.
3. USE ALL VEHICLES. Putting everything on a single vehicle is forbidden.
4. Distribute customers evenly across the vehicles.
5. Give every vehicle at least one customer.
6. Minimize the total distance.

REPLY FORMAT (JSON), example for 2 vehicles and 2 customers:
{
  "routes": [
    {
      "vehicle_id": "V001",
      "vehicle_name": "Vehicle 1",
      "stops": [
        {"type": "depot", "name": "Depot", "coordinate": {"lat": 41.009, "lng": 28.957}},
        {"type": "customer", "name": "Customer 1", "coordinate": {"lat": 41.010, "lng": 28.958}, "demand": 50},
        {"type": "depot", "name": "Depot", "coordinate": {"lat": 41.009, "lng": 28.957}}
      ],
      "total_distance": 15.5,
      "total_cost": 38.75,
      "total_load": 50
    },
    {
      "vehicle_id": "V002",
      "vehicle_name": "Vehicle 2",
      "stops": [
        {"type": "depot", "name": "Depot", "coordinate": {"lat": 41.009, "lng": 28.957}},
        {"type": "customer", "name": "Customer 2", "coordinate": {"lat": 41.011, "lng": 28.959}, "demand": 50},
        {"type": "depot", "name": "Depot", "coordinate": {"lat": 41.009, "lng": 28.957}}
      ],
      "total_distance": 12.3,
      "total_cost": 30.75,
      "total_load": 50
    }
  ],
  "total_distance": 27.8,
  "total_cost": 69.5,
  "vehicles_used": 2,
  "customers_served": 2
}

Reply with JSON only, no other explanation.
`)
	return b.String()
}
