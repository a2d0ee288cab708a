package model

import "strings"

// Coordinate is a WGS84 point in decimal degrees.
type Coordinate struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}

// TimeWindow bounds a visit with wall-clock HH:MM strings; start must be
// strictly before end (validated at the API boundary).
type TimeWindow struct {
    Start string `json:"start"`
    End   string `json:"end"`
}

// Customer is the normalized form used by the solving strategies.
// Immutable for the duration of a solve.
type Customer struct {
    ID                  string      `json:"id"`
    Name                string      `json:"name"`
    Coordinate          Coordinate  `json:"coordinate"`
    Demand              int         `json:"demand"`
    TimeWindow          *TimeWindow `json:"timeWindow,omitempty"`
    ServiceTime         int         `json:"serviceTime"` // minutes
    Priority            int         `json:"priority"`    // 1..10
    SpecialRequirements []string    `json:"specialRequirements,omitempty"`
}

// Vehicle is the normalized form used by the solving strategies.
// Immutable for the duration of a solve.
type Vehicle struct {
    ID               string   `json:"id"`
    Name             string   `json:"name"`
    Type             string   `json:"type"`
    Capacity         int      `json:"capacity"`
    Speed            float64  `json:"speed"` // km/h
    CostPerKM        float64  `json:"costPerKm"`
    MaxDistance      *float64 `json:"maxDistance,omitempty"`
    FuelType         string   `json:"fuelType,omitempty"`
    FuelConsumption  *float64 `json:"fuelConsumption,omitempty"`
    RoadRestrictions []string `json:"roadRestrictions,omitempty"`
    IsEcoFriendly    bool     `json:"isEcoFriendly"`
    DriverCost       *float64 `json:"driverCost,omitempty"`
    MaintenanceCost  *float64 `json:"maintenanceCost,omitempty"`
}

// Options are the per-request solver knobs.
type Options struct {
    MaxSolvingTime         int    `json:"maxSolvingTime"` // seconds
    Objective              string `json:"optimizationObjective"`
    UseTimeWindows         bool   `json:"useTimeWindows"`
    UseCapacityConstraints bool   `json:"useCapacityConstraints"`
    UseDistanceConstraints bool   `json:"useDistanceConstraints"`
    Algorithm              string `json:"algorithm"` // advisory hint, echoed in response metadata
}

// Problem is the normalized in-memory representation handed to the
// solving strategies. Node index 0 is the depot; node i (i >= 1) is
// Customers[i-1]. Every matrix and every strategy relies on that indexing.
type Problem struct {
    Depot     Coordinate
    Customers []Customer
    Vehicles  []Vehicle
    Options   Options
}

// Wire request types. Optional fields that carry defaults are pointers so
// an absent field is distinguishable from an explicit zero.

type CustomerIn struct {
    ID                  string      `json:"id"`
    Name                string      `json:"name"`
    Coordinate          *Coordinate `json:"coordinate"`
    Demand              int         `json:"demand"`
    TimeWindow          *TimeWindow `json:"timeWindow,omitempty"`
    ServiceTime         *int        `json:"serviceTime,omitempty"`
    Priority            *int        `json:"priority,omitempty"`
    SpecialRequirements []string    `json:"specialRequirements,omitempty"`
}

type VehicleIn struct {
    ID               string   `json:"id"`
    Name             string   `json:"name"`
    Type             string   `json:"type"`
    Capacity         int      `json:"capacity"`
    Speed            *float64 `json:"speed,omitempty"`
    CostPerKM        *float64 `json:"costPerKm,omitempty"`
    MaxDistance      *float64 `json:"maxDistance,omitempty"`
    FuelType         string   `json:"fuelType,omitempty"`
    FuelConsumption  *float64 `json:"fuelConsumption,omitempty"`
    RoadRestrictions []string `json:"roadRestrictions,omitempty"`
    IsEcoFriendly    *bool    `json:"isEcoFriendly,omitempty"`
    DriverCost       *float64 `json:"driverCost,omitempty"`
    MaintenanceCost  *float64 `json:"maintenanceCost,omitempty"`
}

type SolveRequest struct {
    Depot                  *Coordinate  `json:"depot"`
    Customers              []CustomerIn `json:"customers"`
    Vehicles               []VehicleIn  `json:"vehicles"`
    MaxSolvingTime         *int         `json:"maxSolvingTime,omitempty"`
    OptimizationObjective  string       `json:"optimizationObjective,omitempty"`
    UseTimeWindows         *bool        `json:"useTimeWindows,omitempty"`
    UseCapacityConstraints *bool        `json:"useCapacityConstraints,omitempty"`
    UseDistanceConstraints *bool        `json:"useDistanceConstraints,omitempty"`
    Algorithm              string       `json:"algorithm,omitempty"`
}

// Defaults are the values applied to absent request fields during
// normalization. The zero value is not usable; start from StandardDefaults.
type Defaults struct {
    ServiceTime    int // minutes
    Priority       int
    Speed          float64 // km/h
    CostPerKM      float64
    MaxSolvingTime int // seconds
}

func StandardDefaults() Defaults {
    return Defaults{ServiceTime: 15, Priority: 5, Speed: 50.0, CostPerKM: 2.5, MaxSolvingTime: 300}
}

// Problem normalizes a validated request into the canonical Problem,
// applying defaults for absent fields. The request is not re-validated;
// callers run validation first.
func (r SolveRequest) Problem(d Defaults) *Problem {
    p := &Problem{}
    if r.Depot != nil {
        p.Depot = *r.Depot
    }
    p.Customers = make([]Customer, 0, len(r.Customers))
    for _, c := range r.Customers {
        cust := Customer{
            ID:                  c.ID,
            Name:                c.Name,
            Demand:              c.Demand,
            TimeWindow:          c.TimeWindow,
            ServiceTime:         d.ServiceTime,
            Priority:            d.Priority,
            SpecialRequirements: c.SpecialRequirements,
        }
        if c.Coordinate != nil {
            cust.Coordinate = *c.Coordinate
        }
        if c.ServiceTime != nil {
            cust.ServiceTime = *c.ServiceTime
        }
        if c.Priority != nil {
            cust.Priority = *c.Priority
        }
        p.Customers = append(p.Customers, cust)
    }
    p.Vehicles = make([]Vehicle, 0, len(r.Vehicles))
    for _, v := range r.Vehicles {
        veh := Vehicle{
            ID:               v.ID,
            Name:             v.Name,
            Type:             v.Type,
            Capacity:         v.Capacity,
            Speed:            d.Speed,
            CostPerKM:        d.CostPerKM,
            MaxDistance:      v.MaxDistance,
            FuelType:         v.FuelType,
            FuelConsumption:  v.FuelConsumption,
            RoadRestrictions: v.RoadRestrictions,
            DriverCost:       v.DriverCost,
            MaintenanceCost:  v.MaintenanceCost,
        }
        if v.Speed != nil {
            veh.Speed = *v.Speed
        }
        if v.CostPerKM != nil {
            veh.CostPerKM = *v.CostPerKM
        }
        if v.IsEcoFriendly != nil {
            veh.IsEcoFriendly = *v.IsEcoFriendly
        }
        p.Vehicles = append(p.Vehicles, veh)
    }
    p.Options = Options{
        MaxSolvingTime:         d.MaxSolvingTime,
        Objective:              "balanced",
        UseTimeWindows:         false,
        UseCapacityConstraints: true,
        UseDistanceConstraints: true,
        Algorithm:              NormalizeAlgorithm(r.Algorithm),
    }
    if r.MaxSolvingTime != nil {
        p.Options.MaxSolvingTime = *r.MaxSolvingTime
    }
    if r.OptimizationObjective != "" {
        p.Options.Objective = r.OptimizationObjective
    }
    if r.UseTimeWindows != nil {
        p.Options.UseTimeWindows = *r.UseTimeWindows
    }
    if r.UseCapacityConstraints != nil {
        p.Options.UseCapacityConstraints = *r.UseCapacityConstraints
    }
    if r.UseDistanceConstraints != nil {
        p.Options.UseDistanceConstraints = *r.UseDistanceConstraints
    }
    return p
}

// NormalizeAlgorithm maps the wire hint onto the accepted set. "ortools"
// is a legacy alias kept for existing clients.
func NormalizeAlgorithm(a string) string {
    switch strings.ToLower(strings.TrimSpace(a)) {
    case "", "ortools", "constraint":
        return "constraint"
    case "nearest_neighbor":
        return "nearest_neighbor"
    case "genetic":
        return "genetic"
    default:
        return strings.ToLower(strings.TrimSpace(a))
    }
}

// Solution output types. Field names are the externally observable
// contract and must stay stable.

type Stop struct {
    Type          string     `json:"type"` // depot | customer
    ID            string     `json:"id"`
    Name          string     `json:"name"`
    Coordinate    Coordinate `json:"coordinate"`
    Demand        int        `json:"demand"`
    Load          int        `json:"load"` // cumulative at departure
    ArrivalTime   string     `json:"arrivalTime"`
    DepartureTime string     `json:"departureTime"`
    ServiceTime   int        `json:"serviceTime"` // minutes
    WaitTime      int        `json:"waitTime"`    // minutes
}

type Route struct {
    VehicleID       string  `json:"vehicleId"`
    VehicleName     string  `json:"vehicleName"`
    VehicleType     string  `json:"vehicleType"`
    Capacity        int     `json:"capacity"`
    Stops           []Stop  `json:"stops"`
    TotalDistance   float64 `json:"totalDistance"` // km
    TotalCost       float64 `json:"totalCost"`
    TotalLoad       int     `json:"totalLoad"`
    TotalTime       float64 `json:"totalTime"` // hours
    UtilizationRate float64 `json:"utilizationRate"`
    Efficiency      float64 `json:"efficiency"`
}

type Solution struct {
    Routes             []Route  `json:"routes"`
    TotalDistance      float64  `json:"totalDistance"`
    TotalCost          float64  `json:"totalCost"`
    TotalTime          float64  `json:"totalTime"`
    VehiclesUsed       int      `json:"vehiclesUsed"`
    CustomersServed    int      `json:"customersServed"`
    AverageUtilization float64  `json:"averageUtilization"`
    AverageEfficiency  float64  `json:"averageEfficiency"`
    SolvingTime        float64  `json:"solvingTime"` // seconds
    Status             string   `json:"status"`
    Algorithm          string   `json:"algorithm"`
    Timestamp          string   `json:"timestamp"`
    Warnings           []string `json:"warnings,omitempty"`
}

// CustomerStops counts customer-type stops across all routes.
func (s *Solution) CustomerStops() int {
    n := 0
    for _, r := range s.Routes {
        for _, st := range r.Stops {
            if st.Type == "customer" {
                n++
            }
        }
    }
    return n
}

// Webhook subscription types.

type SubscriptionRequest struct {
    URL    string   `json:"url"`
    Events []string `json:"events"`
    Secret string   `json:"secret"`
}

type Subscription struct {
    ID        string   `json:"id"`
    URL       string   `json:"url"`
    Events    []string `json:"events"`
    Secret    string   `json:"secret,omitempty"`
    CreatedAt string   `json:"createdAt"`
}

// SolveRecord is the audit row written after every solve attempt. Route
// geometry is deliberately absent; solutions themselves are not persisted.
type SolveRecord struct {
    ID              string  `json:"id"`
    CreatedAt       string  `json:"createdAt"`
    Customers       int     `json:"customers"`
    Vehicles        int     `json:"vehicles"`
    Algorithm       string  `json:"algorithm"`     // winning strategy label, empty on failure
    RequestedHint   string  `json:"requestedHint"` // the wire hint, as normalized
    SolvingTime     float64 `json:"solvingTime"`
    Success         bool    `json:"success"`
    Error           string  `json:"error,omitempty"`
    VehiclesUsed    int     `json:"vehiclesUsed"`
    CustomersServed int     `json:"customersServed"`
    TotalDistance   float64 `json:"totalDistance"`
}
