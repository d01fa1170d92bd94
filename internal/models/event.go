// Package models defines the core domain entities for mtbevents.
// These models represent tracked organism positions, classified behavioral
// events, and the per-file summaries derived from them.
//
// Terminology:
//   - Trajectory: one tracked organism's ordered position history.
//   - Tick: an index into a (possibly smoothed) kinematic series. Ticks are
//     frames only when the smoothing window is 1.
package models

import (
	"errors"
	"fmt"
)

// EventKind is the classification assigned to a detected behavioral event.
type EventKind string

const (
	// Tumble is a prolonged slowdown combined with a prolonged direction change.
	Tumble EventKind = "tumble"
	// Reverse is a slowdown combined with a direction change.
	Reverse EventKind = "reverse"
	// UTurn is a heading swap without slowing or heading variability.
	// The detector keeps this branch but never emits it.
	UTurn EventKind = "uturn"
)

// Valid reports whether k is one of the known event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case Tumble, Reverse, UTurn:
		return true
	}
	return false
}

// Event is a single classified behavioral event. Events are created only by
// the detector and never mutated afterwards.
type Event struct {
	TrajectoryID int       `json:"trajectory_id"`
	Kind         EventKind `json:"kind"`
	Tick         int       `json:"tick"` // index into the smoothed series
}

// Validate checks that all event fields are valid
func (e *Event) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if e.Tick < 0 {
		return errors.New("tick must not be negative")
	}
	return nil
}

// CountKind returns how many events in events have the given kind.
func CountKind(events []Event, kind EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
