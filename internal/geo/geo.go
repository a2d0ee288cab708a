// Package geo provides the distance and clock primitives shared by every
// solving strategy: great-circle distance between coordinates and
// conversions between wall-clock HH:MM strings and elapsed minutes/seconds.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const earthRadiusKM = 6371.0

// Haversine returns the great-circle distance in kilometers between two
// points given as decimal-degree latitude/longitude pairs. Symmetric in its
// arguments; zero for identical points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180.0 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	la1 := toRad(lat1)
	la2 := toRad(lat2)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(la1)*math.Cos(la2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}

// ParseClock parses a wall-clock "HH:MM" string with hours 0-23 and
// minutes 0-59. Used by validation; the solving path uses the tolerant
// ClockToSeconds instead.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid time %q: out of range", s)
	}
	return h, m, nil
}

// ClockToSeconds converts "HH:MM" to seconds since midnight. Malformed
// input yields 0; inputs reaching the solver have already passed
// validation, so 0 here only widens a window rather than corrupting it.
func ClockToSeconds(s string) int {
	h, m, err := ParseClock(s)
	if err != nil {
		return 0
	}
	return h*3600 + m*60
}

// SecondsToClock formats seconds since midnight as "HH:MM".
func SecondsToClock(sec int) string {
	return fmt.Sprintf("%02d:%02d", sec/3600, (sec%3600)/60)
}

// MinutesToClock formats minutes since midnight as "HH:MM".
func MinutesToClock(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}
