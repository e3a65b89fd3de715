// README: Ride classes, per-class rates and the quote returned by the estimator.
package pricing

import "github.com/tejith7/project-bolt/internal/types"

type RideClass string

const (
	ClassEconomy RideClass = "economy"
	ClassComfort RideClass = "comfort"
	ClassPremium RideClass = "premium"
)

type Rate struct {
	Class       RideClass `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Multiplier  float64   `json:"multiplier"`
}

// Tariff holds the distance-based fare formula inputs shared by every class.
type Tariff struct {
	BaseFare    float64
	PerMile     float64
	AvgSpeedMph float64
	Currency    string
}

// Quote is a fresh estimate for one pickup/destination pair. A new quote
// replaces any previous one; quotes are never blended.
type Quote struct {
	DistanceMi float64     `json:"distance_mi"`
	TimeMin    int         `json:"time_min"`
	Fare       types.Money `json:"fare"`
}
