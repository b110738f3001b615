package model

import "time"

// Window is the result of evaluating a product availability window at an instant.
type Window struct {
	Available       bool
	NotYetAvailable bool
	Expired         bool
}

// EvaluateWindow reports where now falls relative to [from, until).
// A nil bound is open-ended. The until bound is exclusive: at exactly until the window is expired.
// Callers must not pass from >= until; products with such windows are rejected at construction.
func EvaluateWindow(now time.Time, from, until *time.Time) Window {
	notYet := from != nil && from.After(now)
	expired := until != nil && !until.After(now)
	return Window{
		Available:       !notYet && !expired,
		NotYetAvailable: notYet,
		Expired:         expired,
	}
}
