// README: Driver-facing views of the ride queue.
package dispatch

import (
	"github.com/tejith7/project-bolt/internal/modules/ride"
	"github.com/tejith7/project-bolt/internal/types"
)

type PendingQuery struct {
	// Near restricts the list to pickups within RadiusKm, nearest first.
	Near     *types.Point
	RadiusKm float64
	Limit    int
}

// Offer is a ride a driver may accept.
type Offer struct {
	Ride       ride.Ride `json:"ride"`
	DistanceKm float64   `json:"distance_km,omitempty"`
}

const (
	defaultPendingLimit = 50
	maxPendingLimit     = 200
)
