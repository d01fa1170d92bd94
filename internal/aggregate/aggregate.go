// Package aggregate folds per-trajectory detections into per-file totals,
// per-organism-per-second event rates, and the cross-file histogram of
// prolonged-episode durations.
package aggregate

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/rewired-gh/mtbevents/internal/detector"
	"github.com/rewired-gh/mtbevents/internal/models"
)

// ErrNoTrajectories is returned when a file retains no trajectories (or no
// frames), which leaves its event rates undefined.
var ErrNoTrajectories = errors.New("no trajectories retained")

// Tally accumulates the counts of one file.
type Tally struct {
	filename            string
	framerate           float64
	fpra                int
	frameThresholdCount int

	trajectories int
	skipped      int
	frames       int
	tumbles      int
	reverses     int
}

// NewTally starts the totals for one file.
func NewTally(filename string, framerate float64, fpra, frameThresholdCount int) *Tally {
	return &Tally{
		filename:            filename,
		framerate:           framerate,
		fpra:                fpra,
		frameThresholdCount: frameThresholdCount,
	}
}

// AddTrajectory folds one scanned trajectory into the totals. Only tumbles
// and reverses are counted.
func (t *Tally) AddTrajectory(frames int, events []models.Event) {
	t.trajectories++
	t.frames += frames
	t.tumbles += models.CountKind(events, models.Tumble)
	t.reverses += models.CountKind(events, models.Reverse)
}

// AddSkipped records a trajectory that was observed but could not be scanned.
// Its frames still count toward the observed time.
func (t *Tally) AddSkipped(frames int) {
	t.AddTrajectory(frames, nil)
	t.skipped++
}

// Probability returns count * framerate / (totalFrames * trajectories): the
// event rate per organism per second.
func Probability(count int, framerate float64, totalFrames, trajectories int) (float64, error) {
	if totalFrames <= 0 || trajectories <= 0 {
		return 0, ErrNoTrajectories
	}
	if framerate <= 0 {
		return 0, fmt.Errorf("framerate must be positive, got %v", framerate)
	}
	return float64(count) * framerate / (float64(totalFrames) * float64(trajectories)), nil
}

// Summary computes the file summary. found is the number of distinct
// trajectories in the file before trimming.
func (t *Tally) Summary(found int) (models.FileSummary, error) {
	s := models.FileSummary{
		Filename:            t.filename,
		Fpra:                t.fpra,
		FrameThresholdCount: t.frameThresholdCount,
		Framerate:           t.framerate,
		TrajectoriesFound:   found,
		TrajectoriesUsed:    t.trajectories,
		TrajectoriesSkipped: t.skipped,
		TotalFrames:         t.frames,
		Tumbles:             t.tumbles,
		Reverses:            t.reverses,
	}

	var err error
	if s.ReverseProbability, err = Probability(t.reverses, t.framerate, t.frames, t.trajectories); err != nil {
		return s, fmt.Errorf("%s: %w", t.filename, err)
	}
	if s.TumbleProbability, err = Probability(t.tumbles, t.framerate, t.frames, t.trajectories); err != nil {
		return s, fmt.Errorf("%s: %w", t.filename, err)
	}
	return s, nil
}

// ProlongedDuration is one trajectory's prolonged-episode count converted to
// seconds with the framerate of the file that produced it.
type ProlongedDuration struct {
	Filename     string  `json:"filename"`
	TrajectoryID int     `json:"trajectory_id"`
	Ticks        int     `json:"ticks"`
	Seconds      float64 `json:"seconds"`
}

// Durations converts a file's final duration counts to seconds.
func Durations(filename string, counter *detector.DurationCounter, framerate float64) []ProlongedDuration {
	if counter == nil || framerate <= 0 {
		return nil
	}
	out := make([]ProlongedDuration, 0, counter.Len())
	for _, id := range counter.IDs() {
		ticks := counter.Count(id)
		out = append(out, ProlongedDuration{
			Filename:     filename,
			TrajectoryID: id,
			Ticks:        ticks,
			Seconds:      float64(ticks) / framerate,
		})
	}
	return out
}

// Histogram collects prolonged-episode durations across files.
type Histogram struct {
	samples []float64
}

// Add appends duration samples in the given order.
func (h *Histogram) Add(durations ...ProlongedDuration) {
	for _, d := range durations {
		h.samples = append(h.samples, d.Seconds)
	}
}

// Len returns the number of samples.
func (h *Histogram) Len() int {
	return len(h.samples)
}

// Samples returns a copy of the samples in insertion order.
func (h *Histogram) Samples() []float64 {
	out := make([]float64, len(h.samples))
	copy(out, h.samples)
	return out
}

// Bin is one histogram bucket covering [Low, High).
type Bin struct {
	Low   float64
	High  float64
	Count int
}

// Bins splits the samples into n equal-width buckets spanning the sample
// range. A range of zero width is widened to one second around the value.
func (h *Histogram) Bins(n int) []Bin {
	if n < 1 || len(h.samples) == 0 {
		return nil
	}

	x := h.Samples()
	sort.Float64s(x)
	lo, hi := x[0], x[len(x)-1]
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}

	dividers := floats.Span(make([]float64, n+1), lo, hi)
	// stat.Histogram needs the largest sample strictly below the last divider
	dividers[n] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, x, nil)

	bins := make([]Bin, n)
	for i := range bins {
		bins[i] = Bin{Low: dividers[i], High: dividers[i+1], Count: int(counts[i])}
	}
	return bins
}

// Mean returns the mean duration in seconds, or 0 with no samples.
func (h *Histogram) Mean() float64 {
	if len(h.samples) == 0 {
		return 0
	}
	return stat.Mean(h.samples, nil)
}
