// README: History query filters, sort keys and date-window presets.
package history

import (
	"fmt"
	"time"

	"github.com/tejith7/project-bolt/internal/modules/ride"
	"github.com/tejith7/project-bolt/internal/types"
)

type SortField string

const (
	SortDate     SortField = "date"
	SortPrice    SortField = "price"
	SortDistance SortField = "distance"
)

type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

type Sort struct {
	Field SortField
	Order Order
}

// Filter narrows a history query. Zero fields match everything; the
// creation window is [From, To).
type Filter struct {
	RiderID  types.ID
	DriverID types.ID
	Status   ride.Status
	From     time.Time
	To       time.Time
	// Search is a case-insensitive substring match over both addresses and
	// the driver's name.
	Search string
	Limit  int
}

type Window string

const (
	WindowAll   Window = "all"
	WindowToday Window = "today"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
)

// Bounds turns a preset into a [from, to) range in now's location. Weeks
// start on Sunday. WindowAll returns zero times.
func (w Window) Bounds(now time.Time) (time.Time, time.Time, error) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch w {
	case "", WindowAll:
		return time.Time{}, time.Time{}, nil
	case WindowToday:
		return day, day.AddDate(0, 0, 1), nil
	case WindowWeek:
		start := day.AddDate(0, 0, -int(day.Weekday()))
		return start, start.AddDate(0, 0, 7), nil
	case WindowMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown window %q", ErrBadQuery, w)
	}
}
