// Package clock re-exports github.com/jonboulle/clockwork's Clock as the
// injectable UTC time source spec §4.3 requires, so production code
// depends on clock.Clock rather than importing clockwork directly, and
// tests advance time deterministically with clockwork.NewFakeClock().
package clock

import (
	"github.com/jonboulle/clockwork"
)

// Clock returns the current UTC instant (spec §4.3). It is satisfied by
// clockwork.NewRealClock() in production and clockwork.NewFakeClock() in
// tests.
type Clock = clockwork.Clock

// New returns the real wall-clock implementation.
func New() Clock { return clockwork.NewRealClock() }
