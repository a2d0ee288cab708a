package solver

import (
	"fleetsolve/internal/geo"
	"fleetsolve/internal/model"
)

// referenceSpeedKMH is the constant speed behind the travel-time matrix
// and the greedy clock. Per-vehicle speeds are display data; the matrices
// are shared across the whole fleet.
const referenceSpeedKMH = 50.0

// dayEndSec caps every time window and every vehicle's working span.
const dayEndSec = 86400

// Matrices bundles the per-node data derived once per request and shared
// by every strategy. Index 0 is the depot; index i is Customers[i-1].
type Matrices struct {
	KM         [][]float64 // great-circle kilometers
	Dist       [][]int     // meters, truncated
	Travel     [][]int     // seconds at referenceSpeedKMH, truncated
	Demands    []int       // depot 0
	ServiceSec []int       // depot 0
	Windows    [][2]int    // [start,end] seconds since midnight
}

// BuildMatrices derives the all-pairs matrices and per-node arrays from a
// well-formed problem. Pure and deterministic: identical problems yield
// identical matrices.
func BuildMatrices(p *model.Problem) *Matrices {
	n := len(p.Customers) + 1
	lat := make([]float64, n)
	lng := make([]float64, n)
	lat[0], lng[0] = p.Depot.Lat, p.Depot.Lng
	for i, c := range p.Customers {
		lat[i+1], lng[i+1] = c.Coordinate.Lat, c.Coordinate.Lng
	}

	m := &Matrices{
		KM:         make([][]float64, n),
		Dist:       make([][]int, n),
		Travel:     make([][]int, n),
		Demands:    make([]int, n),
		ServiceSec: make([]int, n),
		Windows:    make([][2]int, n),
	}
	for i := 0; i < n; i++ {
		m.KM[i] = make([]float64, n)
		m.Dist[i] = make([]int, n)
		m.Travel[i] = make([]int, n)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			km := geo.Haversine(lat[i], lng[i], lat[j], lng[j])
			m.KM[i][j] = km
			m.Dist[i][j] = int(km * 1000)
			m.Travel[i][j] = int(km * 3600 / referenceSpeedKMH)
		}
	}
	for i, c := range p.Customers {
		m.Demands[i+1] = c.Demand
		m.ServiceSec[i+1] = c.ServiceTime * 60
	}
	for i := range m.Windows {
		m.Windows[i] = [2]int{0, dayEndSec}
	}
	if p.Options.UseTimeWindows {
		for i, c := range p.Customers {
			if c.TimeWindow != nil {
				m.Windows[i+1] = [2]int{
					geo.ClockToSeconds(c.TimeWindow.Start),
					geo.ClockToSeconds(c.TimeWindow.End),
				}
			}
		}
	}
	return m
}

// TotalDemand sums customer demands; used for infeasibility diagnostics.
func (m *Matrices) TotalDemand() int {
	total := 0
	for _, d := range m.Demands {
		total += d
	}
	return total
}
