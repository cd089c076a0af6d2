package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the time source for services that only stamp records. Timer
// driven components take a clockwork.Clock; any clockwork clock, real or
// fake, also satisfies Clock so one fake can drive a whole app in tests.
type Clock interface {
	Now() time.Time
}

var _ Clock = clockwork.NewRealClock()
