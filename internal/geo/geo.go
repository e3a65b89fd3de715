// README: Pure great-circle helpers shared by pricing, dispatch and matching.
package geo

import (
	"math"
	"sort"

	"github.com/tejith7/project-bolt/internal/types"
)

const (
	earthRadiusKm = 6371.0
	milesPerKm    = 0.621371
)

// HaversineKm returns the great-circle distance in kilometres between two points.
func HaversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func KmToMiles(km float64) float64 {
	return km * milesPerKm
}

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// SortByDistance orders items nearest first. The sort is stable so equal
// distances keep their incoming order.
func SortByDistance[T any](items []T, dist func(T) float64) {
	sort.SliceStable(items, func(i, j int) bool {
		return dist(items[i]) < dist(items[j])
	})
}
