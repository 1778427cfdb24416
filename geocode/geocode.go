// Package geocode resolves destination addresses to coordinates. Resolution
// happens exactly once per visit, when tracking begins; a failure means
// tracking for that visit cannot start and is surfaced to the caller.
package geocode

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// ErrNotFound is returned when the address resolves to nothing.
var ErrNotFound = errors.New("address not found")

type Geocoder interface {
	ResolveAddress(ctx context.Context, address string) (orb.Point, error)
}

// Static is a fixed address table, used in development and tests.
type Static map[string]orb.Point

func (s Static) ResolveAddress(_ context.Context, address string) (orb.Point, error) {
	pt, ok := s[address]
	if !ok {
		return orb.Point{}, fmt.Errorf("%q: %w", address, ErrNotFound)
	}
	return pt, nil
}
