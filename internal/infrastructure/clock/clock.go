// Package clock provides the wall clock used by the ledger and scheduler.
package clock

import (
	"fmt"
	"time"

	"github.com/garyjia/office-ledger/internal/application/port"
)

// System reads the wall clock in a fixed location. The location decides
// which calendar day "today" is for effective status and dispatch keys.
type System struct {
	loc *time.Location
}

// New returns a system clock in the named IANA zone. An empty name means
// the process local zone.
func New(zone string) (*System, error) {
	if zone == "" {
		return &System{loc: time.Local}, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return &System{loc: loc}, nil
}

// Now returns the current time in the clock's location
func (c *System) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location returns the clock's location
func (c *System) Location() *time.Location {
	return c.loc
}

var _ port.Clock = (*System)(nil)
