// README: Ride aggregate, driver block and the lifecycle state machine.
package ride

import (
	"time"

	"github.com/tejith7/project-bolt/internal/modules/pricing"
	"github.com/tejith7/project-bolt/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSearching Status = "searching"
	StatusMatched   Status = "matched"
	StatusPickup    Status = "pickup"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are every non-terminal status.
var ActiveStatuses = []Status{StatusPending, StatusSearching, StatusMatched, StatusPickup, StatusOngoing}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Cancellable reports whether a rider may still cancel; once the driver has
// arrived the ride can only run to completion.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusSearching || s == StatusMatched
}

// Driver is attached once at match time and never edited afterwards.
type Driver struct {
	ID             types.ID `json:"id"`
	Name           string   `json:"name"`
	Rating         float64  `json:"rating"`
	VehicleModel   string   `json:"vehicle_model"`
	VehicleColor   string   `json:"vehicle_color"`
	LicensePlate   string   `json:"license_plate"`
	ProfilePicture string   `json:"profile_picture,omitempty"`
}

type Ride struct {
	ID                types.ID          `json:"id"`
	RiderID           types.ID          `json:"rider_id"`
	Status            Status            `json:"status"`
	Pickup            types.Location    `json:"pickup"`
	Destination       types.Location    `json:"destination"`
	Class             pricing.RideClass `json:"ride_class"`
	EstimatedDistance float64           `json:"estimated_distance"`
	EstimatedTime     int               `json:"estimated_time"`
	EstimatedFare     types.Money       `json:"estimated_fare"`
	Driver            *Driver           `json:"driver,omitempty"`
	CancelReason      string            `json:"cancel_reason,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	// Version starts at 1 and grows by one per durable transition.
	Version int64 `json:"version"`
}

// Clone returns a copy that shares no pointers with r.
func (r Ride) Clone() Ride {
	out := r
	if r.Driver != nil {
		d := *r.Driver
		out.Driver = &d
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

const (
	ActorRider  = "rider"
	ActorDriver = "driver"
	ActorSystem = "system"
)

type Actor struct {
	Type string
	ID   types.ID
}

// Event is one row of the append-only transition audit trail.
type Event struct {
	ID         int64     `json:"id"`
	RideID     types.ID  `json:"ride_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorType  string    `json:"actor_type"`
	ActorID    types.ID  `json:"actor_id,omitempty"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
}

// AllowedTransitions represents the ride state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:   {StatusSearching, StatusCancelled},
	StatusSearching: {StatusMatched, StatusCancelled},
	StatusMatched:   {StatusPickup, StatusCancelled},
	StatusPickup:    {StatusOngoing},
	StatusOngoing:   {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}
