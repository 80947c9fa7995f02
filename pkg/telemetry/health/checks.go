package health

import (
	"context"
	"errors"
)

// ErrNoEnabledEngine is reported when the registry has nothing to route to.
var ErrNoEnabledEngine = errors.New("no enabled engine")

// EnabledEngines fails while count reports zero enabled engines.
func EnabledEngines(count func() int) CheckFunc {
	return func(context.Context) error {
		if count() == 0 {
			return ErrNoEnabledEngine
		}
		return nil
	}
}

// Pinger is a dependency that can be probed, such as the event store or the
// shared cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks a dependency through its Ping method.
func Ping(p Pinger) CheckFunc {
	return p.Ping
}
