// README: User profiles as seen by the ride core (riders and drivers).
package identity

import (
	"github.com/tejith7/project-bolt/internal/modules/ride"
	"github.com/tejith7/project-bolt/internal/types"
)

type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
)

type Vehicle struct {
	Model        string `json:"model"`
	Color        string `json:"color"`
	LicensePlate string `json:"license_plate"`
}

type Profile struct {
	ID             types.ID `json:"id"`
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Role           Role     `json:"role"`
	Rating         float64  `json:"rating"`
	ProfilePicture string   `json:"profile_picture,omitempty"`
	Vehicle        Vehicle  `json:"vehicle"`
}

// AsDriver builds the driver block attached to a ride at match time.
func (p Profile) AsDriver() ride.Driver {
	return ride.Driver{
		ID:             p.ID,
		Name:           p.Name,
		Rating:         p.Rating,
		VehicleModel:   p.Vehicle.Model,
		VehicleColor:   p.Vehicle.Color,
		LicensePlate:   p.Vehicle.LicensePlate,
		ProfilePicture: p.ProfilePicture,
	}
}
