// Package log re-exports the logger interface every QuDAG component takes
// as a dependency, so no component ever reaches for a process-wide global.
package log

import (
	"github.com/luxfi/log"
)

// Logger is the interface every component logs through.
type Logger = log.Logger

// New returns a named no-op logger scoped to a component, e.g.
// New("avalanche"). It is only the fallback every constructor uses when
// called with a nil logger; an embedding application that wants real
// structured output must inject its own github.com/luxfi/log.Logger
// directly rather than relying on New to produce one.
func New(name string) Logger {
	return NewNoOpLogger().New("component", name)
}
