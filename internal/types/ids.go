// README: Identifier type shared by rides, riders and drivers.
package types

import "github.com/google/uuid"

type ID string

// NewID returns a fresh random identifier. IDs are never reused.
func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string { return string(id) }
