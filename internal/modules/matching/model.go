// README: Online drivers and the simulated roster used when nobody is online.
package matching

import (
	"time"

	"github.com/tejith7/project-bolt/internal/modules/ride"
	"github.com/tejith7/project-bolt/internal/types"
)

// Candidate is a driver who toggled themselves online at a position.
type Candidate struct {
	ID       types.ID
	Position types.Point
	JoinTime time.Time
}

const (
	// defaultPoolSize is how many of the nearest drivers the random pick samples from.
	defaultPoolSize = 10
	defaultRadiusKm = 3.0
)

// roster stands in for real drivers so the ride timeline always completes.
var roster = []ride.Driver{
	{Name: "John Driver", Rating: 4.9, VehicleModel: "Toyota Camry", VehicleColor: "Blue", LicensePlate: "ABC123",
		ProfilePicture: "https://i.pravatar.cc/150?u=johndriver"},
	{Name: "Sarah Driver", Rating: 4.8, VehicleModel: "Honda Civic", VehicleColor: "Silver", LicensePlate: "XYZ789",
		ProfilePicture: "https://i.pravatar.cc/150?u=sarahdriver"},
	{Name: "Alex Driver", Rating: 4.7, VehicleModel: "Tesla Model 3", VehicleColor: "White", LicensePlate: "EV482",
		ProfilePicture: "https://i.pravatar.cc/150?u=alexdriver"},
}
