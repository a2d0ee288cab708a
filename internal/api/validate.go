package api

import (
	"fmt"
	"strings"

	"fleetsolve/internal/geo"
	"fleetsolve/internal/model"
)

// validateSolveRequest checks a solve request and returns every violation
// found, not just the first. Messages are part of the API contract.
func validateSolveRequest(req *model.SolveRequest) []string {
	var errs []string
	if req.Depot == nil {
		errs = append(errs, "Depot coordinates are required")
	} else if !validCoordinate(*req.Depot) {
		errs = append(errs, "Invalid depot coordinates")
	}
	if len(req.Customers) == 0 {
		errs = append(errs, "At least one customer is required")
	}
	if len(req.Vehicles) == 0 {
		errs = append(errs, "At least one vehicle is required")
	}
	for i, c := range req.Customers {
		errs = append(errs, validateCustomer(i+1, c)...)
	}
	for i, v := range req.Vehicles {
		errs = append(errs, validateVehicle(i+1, v)...)
	}
	if req.MaxSolvingTime != nil {
		if *req.MaxSolvingTime <= 0 {
			errs = append(errs, "Max solving time must be positive")
		} else if *req.MaxSolvingTime > 3600 {
			errs = append(errs, "Max solving time cannot exceed 3600 seconds")
		}
	}
	if req.OptimizationObjective != "" {
		switch strings.ToLower(req.OptimizationObjective) {
		case "distance", "cost", "time", "balanced":
		default:
			errs = append(errs, "Invalid optimization objective. Must be one of: distance, cost, time, balanced")
		}
	}
	if req.Algorithm != "" {
		switch strings.ToLower(req.Algorithm) {
		case "nearest_neighbor", "genetic", "constraint", "ortools":
		default:
			errs = append(errs, "Invalid algorithm. Must be one of: nearest_neighbor, genetic, constraint")
		}
	}
	return errs
}

func validateCustomer(idx int, c model.CustomerIn) []string {
	var errs []string
	if strings.TrimSpace(c.ID) == "" {
		errs = append(errs, fmt.Sprintf("Customer %d: ID is required", idx))
	}
	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, fmt.Sprintf("Customer %d: Name is required", idx))
	}
	if c.Coordinate == nil {
		errs = append(errs, fmt.Sprintf("Customer %d: Coordinates are required", idx))
	} else if !validCoordinate(*c.Coordinate) {
		errs = append(errs, fmt.Sprintf("Customer %d: Invalid coordinates", idx))
	}
	if c.Demand <= 0 {
		errs = append(errs, fmt.Sprintf("Customer %d: Demand must be positive", idx))
	}
	if c.ServiceTime != nil && *c.ServiceTime < 0 {
		errs = append(errs, fmt.Sprintf("Customer %d: Service time cannot be negative", idx))
	}
	if c.Priority != nil && (*c.Priority < 1 || *c.Priority > 10) {
		errs = append(errs, fmt.Sprintf("Customer %d: Priority must be between 1 and 10", idx))
	}
	if c.TimeWindow != nil {
		startOK, endOK := true, true
		if _, _, err := geo.ParseClock(c.TimeWindow.Start); err != nil {
			errs = append(errs, fmt.Sprintf("Customer %d: Invalid time window start time", idx))
			startOK = false
		}
		if _, _, err := geo.ParseClock(c.TimeWindow.End); err != nil {
			errs = append(errs, fmt.Sprintf("Customer %d: Invalid time window end time", idx))
			endOK = false
		}
		if startOK && endOK && geo.ClockToSeconds(c.TimeWindow.Start) >= geo.ClockToSeconds(c.TimeWindow.End) {
			errs = append(errs, fmt.Sprintf("Customer %d: Time window start must be before end", idx))
		}
	}
	return errs
}

func validateVehicle(idx int, v model.VehicleIn) []string {
	var errs []string
	if strings.TrimSpace(v.ID) == "" {
		errs = append(errs, fmt.Sprintf("Vehicle %d: ID is required", idx))
	}
	if strings.TrimSpace(v.Name) == "" {
		errs = append(errs, fmt.Sprintf("Vehicle %d: Name is required", idx))
	}
	if strings.TrimSpace(v.Type) == "" {
		errs = append(errs, fmt.Sprintf("Vehicle %d: Type is required", idx))
	}
	if v.Capacity <= 0 {
		errs = append(errs, fmt.Sprintf("Vehicle %d: Capacity must be positive", idx))
	}
	if v.Speed != nil && *v.Speed <= 0 {
		errs = append(errs, fmt.Sprintf("Vehicle %d: Speed must be positive", idx))
	}
	if v.CostPerKM != nil && *v.CostPerKM <= 0 {
		errs = append(errs, fmt.Sprintf("Vehicle %d: Cost per km must be positive", idx))
	}
	if v.MaxDistance != nil && *v.MaxDistance <= 0 {
		errs = append(errs, fmt.Sprintf("Vehicle %d: Max distance must be positive", idx))
	}
	if v.FuelConsumption != nil && *v.FuelConsumption <= 0 {
		errs = append(errs, fmt.Sprintf("Vehicle %d: Fuel consumption must be positive", idx))
	}
	if v.DriverCost != nil && *v.DriverCost < 0 {
		errs = append(errs, fmt.Sprintf("Vehicle %d: Driver cost cannot be negative", idx))
	}
	if v.MaintenanceCost != nil && *v.MaintenanceCost < 0 {
		errs = append(errs, fmt.Sprintf("Vehicle %d: Maintenance cost cannot be negative", idx))
	}
	return errs
}

func validCoordinate(c model.Coordinate) bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}
