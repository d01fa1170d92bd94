// Package detector classifies behavioral events from smoothed kinematics.
//
// A trajectory is scanned tick by tick from WarmupTicks up to LookaheadTicks
// before its end. Each tick evaluates three instantaneous conditions:
//
//	directions swap:     x and y heading exchange order between k and k+1
//	                     and end up more than SwapSeparation apart
//	slowing:             speed[k] < speed_fraction * median(speed)
//	changing direction:  heading_std[k] > heading_std_threshold
//
// The first occurrence of a condition sets a latch. A recurrence of slowing
// or changing direction while latched marks the episode as prolonged and
// increments the trajectory's entry in the file's DurationCounter.
//
// When all three conditions are clear at once, the latches are resolved:
//
//	slowed + prolonged changing + duration > 1  -> tumble
//	slowing + changing                          -> reverse
//	swap only                                   -> u-turn branch (never emitted)
//
// A resolved branch clears every latch (back to PhaseIdle). Clear ticks that
// match no branch leave the latches in place.
package detector

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rewired-gh/mtbevents/internal/kinematics"
	"github.com/rewired-gh/mtbevents/internal/logger"
	"github.com/rewired-gh/mtbevents/internal/models"
)

const (
	// WarmupTicks are skipped at the start of every scan.
	WarmupTicks = 5
	// LookaheadTicks are left unscanned at the end so the swap test can read k+1.
	LookaheadTicks = 2
	// MinScanTicks is the shortest smoothed series that yields a non-empty scan.
	MinScanTicks = WarmupTicks + LookaheadTicks + 1
	// SwapSeparation is the heading gap required after a directions swap.
	SwapSeparation = 0.05
)

// Thresholds are the detection parameters taken from configuration.
type Thresholds struct {
	SpeedFraction       float64 // slowing below this fraction of the median speed
	HeadingStdThreshold float64 // absolute heading-std level for changing direction
}

// Validate rejects thresholds outside their declared ranges.
func (t Thresholds) Validate() error {
	if math.IsNaN(t.SpeedFraction) || t.SpeedFraction < 0 || t.SpeedFraction > 1 {
		return fmt.Errorf("speed fraction must be between 0 and 1, got %v", t.SpeedFraction)
	}
	if math.IsNaN(t.HeadingStdThreshold) || t.HeadingStdThreshold < 0 || t.HeadingStdThreshold > 2 {
		return fmt.Errorf("heading std threshold must be between 0 and 2, got %v", t.HeadingStdThreshold)
	}
	return nil
}

// Latch is a set of sticky detection flags. Latches persist across ticks
// until a resolution clears them.
type Latch uint8

const (
	LatchSwap Latch = 1 << iota
	LatchSlowing
	LatchChanging
	LatchSlowed            // slowing recurred while latched
	LatchProlongedChanging // changing direction recurred while latched
)

var latchNames = []struct {
	l    Latch
	name string
}{
	{LatchSwap, "swap"},
	{LatchSlowing, "slowing"},
	{LatchChanging, "changing"},
	{LatchSlowed, "slowed"},
	{LatchProlongedChanging, "prolonged-changing"},
}

// Has reports whether every flag in mask is set.
func (l Latch) Has(mask Latch) bool {
	return l&mask == mask
}

// HasAny reports whether at least one flag in mask is set.
func (l Latch) HasAny(mask Latch) bool {
	return l&mask != 0
}

func (l Latch) String() string {
	if l == 0 {
		return "none"
	}
	var parts []string
	for _, n := range latchNames {
		if l.Has(n.l) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Phase summarizes the latch set.
type Phase int

const (
	PhaseIdle      Phase = iota // nothing latched
	PhaseLatched                // at least one condition seen once
	PhaseProlonged              // slowing or changing direction recurred
)

// Phase returns the state-machine phase for this latch set.
func (l Latch) Phase() Phase {
	switch {
	case l == 0:
		return PhaseIdle
	case l.HasAny(LatchSlowed | LatchProlongedChanging):
		return PhaseProlonged
	default:
		return PhaseLatched
	}
}

// DurationCounter counts prolonged-episode ticks per trajectory. One counter
// is owned by each per-file pass and shared by every trajectory scan in it.
type DurationCounter struct {
	counts map[int]int
	order  []int
}

// NewDurationCounter creates an empty counter.
func NewDurationCounter() *DurationCounter {
	return &DurationCounter{counts: make(map[int]int)}
}

// Increment adds one tick for the trajectory, creating the entry at 1.
func (c *DurationCounter) Increment(trajectoryID int) int {
	if _, ok := c.counts[trajectoryID]; !ok {
		c.order = append(c.order, trajectoryID)
	}
	c.counts[trajectoryID]++
	return c.counts[trajectoryID]
}

// Count returns the current count for the trajectory (0 when absent).
func (c *DurationCounter) Count(trajectoryID int) int {
	return c.counts[trajectoryID]
}

// IDs returns trajectory ids in the order their entries were created.
func (c *DurationCounter) IDs() []int {
	out := make([]int, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of trajectories with an entry.
func (c *DurationCounter) Len() int {
	return len(c.order)
}

// Detector scans trajectories of one file.
type Detector struct {
	thresholds Thresholds
	durations  *DurationCounter
}

// New creates a Detector writing prolonged-episode counts into durations.
func New(thresholds Thresholds, durations *DurationCounter) (*Detector, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if durations == nil {
		return nil, errors.New("duration counter is required")
	}
	return &Detector{thresholds: thresholds, durations: durations}, nil
}

// Scan classifies the events of one trajectory from its smoothed series.
// Series shorter than MinScanTicks produce no events and no error.
func (d *Detector) Scan(trajectoryID int, s *kinematics.Series) ([]models.Event, error) {
	events := []models.Event{}
	if s == nil {
		return events, nil
	}

	end := scanEnd(s)
	if end <= WarmupTicks {
		return events, nil
	}

	// The slowing threshold uses the median of the whole trajectory, fixed
	// before the scan starts.
	med, err := kinematics.Median(s.Speed)
	if err != nil {
		return nil, err
	}

	sc := &scan{
		id:        trajectoryID,
		series:    s,
		slowLimit: d.thresholds.SpeedFraction * med,
		stdLimit:  d.thresholds.HeadingStdThreshold,
		durations: d.durations,
	}
	for k := WarmupTicks; k < end; k++ {
		if kind, ok := sc.step(k); ok {
			events = append(events, models.Event{TrajectoryID: trajectoryID, Kind: kind, Tick: k})
		}
	}

	if len(events) > 0 {
		logger.Debug("trajectory %d: %d events, duration count %d", trajectoryID, len(events), d.durations.Count(trajectoryID))
	}
	return events, nil
}

// scanEnd returns the exclusive upper tick bound. It is len(speed) minus the
// look-ahead, further limited so k+1 stays inside both heading series.
func scanEnd(s *kinematics.Series) int {
	end := len(s.Speed) - LookaheadTicks
	end = min(end, len(s.HeadingX)-1, len(s.HeadingY)-1, len(s.HeadingStd))
	return end
}

// scan is the per-trajectory state. It is discarded after the scan; only the
// shared DurationCounter outlives it.
type scan struct {
	id        int
	series    *kinematics.Series
	slowLimit float64
	stdLimit  float64
	durations *DurationCounter
	latches   Latch
}

// step evaluates tick k and returns a classification when one resolves.
func (sc *scan) step(k int) (models.EventKind, bool) {
	swap := sc.directionsSwap(k)
	if swap {
		sc.latches |= LatchSwap
	}

	slowing := sc.series.Speed[k] < sc.slowLimit
	if slowing {
		sc.latchOrProlong(LatchSlowing, LatchSlowed)
	}

	changing := sc.series.HeadingStd[k] > sc.stdLimit
	if changing {
		sc.latchOrProlong(LatchChanging, LatchProlongedChanging)
	}

	if swap || slowing || changing {
		return "", false
	}
	return sc.resolve(k)
}

func (sc *scan) latchOrProlong(first, prolonged Latch) {
	if sc.latches.Has(first) {
		sc.latches |= prolonged
		sc.durations.Increment(sc.id)
		return
	}
	sc.latches |= first
}

// directionsSwap reports whether the x and y headings exchange order between
// k and k+1 and end more than SwapSeparation apart. Equal headings never swap.
func (sc *scan) directionsSwap(k int) bool {
	x0, y0 := sc.series.HeadingX[k], sc.series.HeadingY[k]
	x1, y1 := sc.series.HeadingX[k+1], sc.series.HeadingY[k+1]
	flipped := (x0 > y0 && x1 < y1) || (x0 < y0 && x1 > y1)
	return flipped && math.Abs(x1-y1) > SwapSeparation
}

// resolve runs on a tick where every instantaneous condition is clear.
func (sc *scan) resolve(k int) (models.EventKind, bool) {
	held := sc.latches

	var kind models.EventKind
	switch {
	case held.Has(LatchSlowed|LatchProlongedChanging) && sc.durations.Count(sc.id) > 1:
		kind = models.Tumble
	case held.Has(LatchSlowing | LatchChanging):
		kind = models.Reverse
	case held.Has(LatchSwap) && !held.HasAny(LatchSlowing|LatchChanging):
		// u-turn: the latches resolve but no classification is emitted
		logger.Debug("trajectory %d: u-turn candidate at tick %d", sc.id, k)
		sc.latches = 0
		return "", false
	default:
		return "", false
	}

	logger.Debug("trajectory %d: %s at tick %d (latches %s)", sc.id, kind, k, held)
	sc.latches = 0
	return kind, true
}
