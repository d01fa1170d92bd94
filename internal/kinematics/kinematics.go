// Package kinematics derives speed, heading and heading variability series
// from tracked positions.
//
// Every series comes in two resolutions: raw (window 1) for plots and debug
// views, and smoothed (window = fpra) for event detection. Smoothing is a
// sliding mean that advances one tick at a time, so a smoothed series is
// shorter than its input by the window width:
//
//	speed:       n-1   (window 1)   or n-1-w (window w > 1)
//	heading:     n-1-w
//	heading std: n-1-w
//
// for an input of n positions.
package kinematics

import (
	"fmt"
	"math"
	"sort"

	"github.com/rewired-gh/mtbevents/internal/models"
	"gonum.org/v1/gonum/stat"
)

// DegenerateTrajectoryError reports a trajectory whose kinematics are
// undefined, such as two identical consecutive positions (no heading) or an
// empty series where a median or deviation is required.
type DegenerateTrajectoryError struct {
	Reason string
	Index  int // offending index into the input, -1 when not applicable
}

func (e *DegenerateTrajectoryError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("degenerate trajectory: %s", e.Reason)
	}
	return fmt.Sprintf("degenerate trajectory: %s at index %d", e.Reason, e.Index)
}

// Smoothing selects how heading angles are averaged over the window.
type Smoothing int

const (
	// SmoothAngles computes one heading per frame and averages the angles.
	SmoothAngles Smoothing = iota
	// SmoothVectors averages the displacement components over the window and
	// takes the heading of the mean displacement.
	SmoothVectors
)

// ParseSmoothing maps the configuration names "angle" and "vector".
func ParseSmoothing(name string) (Smoothing, error) {
	switch name {
	case "angle", "":
		return SmoothAngles, nil
	case "vector":
		return SmoothVectors, nil
	}
	return SmoothAngles, fmt.Errorf("unknown heading smoothing %q", name)
}

// Series bundles every kinematic signal derived at one window width.
// Ticks are aligned: index k of each slice describes the same tick.
type Series struct {
	Window     int
	Rolled     []models.Position // block-averaged positions
	Speed      []float64
	HeadingX   []float64 // fraction of pi off the +x axis
	HeadingY   []float64 // fraction of pi off the +y axis
	HeadingStd []float64
}

// Ticks returns the number of speed ticks, which bounds the detection scan.
func (s *Series) Ticks() int {
	return len(s.Speed)
}

// Derive computes all series for positions at the given window width.
func Derive(positions []models.Position, window int, mode Smoothing) (*Series, error) {
	if window < 1 {
		return nil, fmt.Errorf("window must be at least 1, got %d", window)
	}

	hx, hy, err := Heading(positions, window, mode)
	if err != nil {
		return nil, err
	}
	hstd, err := HeadingStd(positions, window, mode)
	if err != nil {
		return nil, err
	}

	return &Series{
		Window:     window,
		Rolled:     Roll(positions, window),
		Speed:      Speed(positions, window),
		HeadingX:   hx,
		HeadingY:   hy,
		HeadingStd: hstd,
	}, nil
}

// Roll downsamples positions by averaging non-overlapping blocks of w
// samples. A trailing partial block is dropped, so the result has
// floor(len/w) entries. Each rolled position keeps the frame of the first
// sample in its block. Roll with w = 1 returns a copy of the input.
func Roll(positions []models.Position, w int) []models.Position {
	if w < 1 {
		w = 1
	}
	blocks := len(positions) / w
	rolled := make([]models.Position, blocks)
	xs := make([]float64, w)
	ys := make([]float64, w)
	for m := 0; m < blocks; m++ {
		block := positions[m*w : (m+1)*w]
		for i, p := range block {
			xs[i] = p.X
			ys[i] = p.Y
		}
		rolled[m] = models.Position{
			X:     stat.Mean(xs, nil),
			Y:     stat.Mean(ys, nil),
			Frame: block[0].Frame,
		}
	}
	return rolled
}

// Speed returns the frame-to-frame displacement magnitudes of positions,
// smoothed with a sliding mean of width w when w > 1.
func Speed(positions []models.Position, w int) []float64 {
	work := Roll(positions, 1)
	if len(work) < 2 {
		return []float64{}
	}

	base := make([]float64, len(work)-1)
	for m := range base {
		base[m] = math.Hypot(work[m+1].X-work[m].X, work[m+1].Y-work[m].Y)
	}
	if w <= 1 {
		return base
	}
	return slidingMean(base, w)
}

// Heading returns the smoothed x and y heading angles of positions. Each
// angle is arccos of the normalized displacement component divided by pi,
// so both lie in [0, 1].
func Heading(positions []models.Position, w int, mode Smoothing) (xs, ys []float64, err error) {
	dx, dy := displacements(Roll(positions, 1))

	if mode == SmoothVectors {
		n := len(dx) - w
		if n <= 0 {
			return []float64{}, []float64{}, nil
		}
		xs = make([]float64, n)
		ys = make([]float64, n)
		for m := 0; m < n; m++ {
			ax, ay, ok := headingAngles(stat.Mean(dx[m:m+w], nil), stat.Mean(dy[m:m+w], nil))
			if !ok {
				return nil, nil, &DegenerateTrajectoryError{Reason: "zero mean displacement", Index: m}
			}
			xs[m], ys[m] = ax, ay
		}
		return xs, ys, nil
	}

	ax, ay, err := frameHeadings(dx, dy)
	if err != nil {
		return nil, nil, err
	}
	return slidingMean(ax, w), slidingMean(ay, w), nil
}

// HeadingStd returns, per tick, the population standard deviation of the
// frame-to-frame x heading plus that of the y heading over a sliding window
// of width w. It always works from consecutive raw displacements, never from
// smoothed headings.
//
// Under SmoothAngles a zero-magnitude displacement is a
// DegenerateTrajectoryError. Under SmoothVectors it only makes the windows
// that contain it NaN, which never exceeds a threshold.
func HeadingStd(positions []models.Position, w int, mode Smoothing) ([]float64, error) {
	dx, dy := displacements(Roll(positions, 1))
	var ax, ay []float64
	if mode == SmoothVectors {
		ax, ay = frameHeadingsNaN(dx, dy)
	} else {
		var err error
		ax, ay, err = frameHeadings(dx, dy)
		if err != nil {
			return nil, err
		}
	}

	n := len(ax) - w
	if n <= 0 {
		return []float64{}, nil
	}
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		out[k] = popStdDev(ax[k:k+w]) + popStdDev(ay[k:k+w])
	}
	return out, nil
}

// Median returns the median of values, averaging the two middle elements
// for even lengths. values is not modified.
func Median(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, &DegenerateTrajectoryError{Reason: "median of empty series", Index: -1}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2, nil
	}
	return sorted[mid], nil
}

func displacements(positions []models.Position) (dx, dy []float64) {
	if len(positions) < 2 {
		return []float64{}, []float64{}
	}
	dx = make([]float64, len(positions)-1)
	dy = make([]float64, len(positions)-1)
	for n := range dx {
		dx[n] = positions[n+1].X - positions[n].X
		dy[n] = positions[n+1].Y - positions[n].Y
	}
	return dx, dy
}

func frameHeadings(dx, dy []float64) (ax, ay []float64, err error) {
	ax = make([]float64, len(dx))
	ay = make([]float64, len(dy))
	for k := range dx {
		x, y, ok := headingAngles(dx[k], dy[k])
		if !ok {
			return nil, nil, &DegenerateTrajectoryError{Reason: "zero-magnitude displacement", Index: k}
		}
		ax[k], ay[k] = x, y
	}
	return ax, ay, nil
}

// frameHeadingsNaN is frameHeadings with NaN in place of undefined headings.
func frameHeadingsNaN(dx, dy []float64) (ax, ay []float64) {
	ax = make([]float64, len(dx))
	ay = make([]float64, len(dy))
	for k := range dx {
		x, y, ok := headingAngles(dx[k], dy[k])
		if !ok {
			x, y = math.NaN(), math.NaN()
		}
		ax[k], ay[k] = x, y
	}
	return ax, ay
}

// headingAngles returns the angle of (dx, dy) off the +x and +y axes as a
// fraction of pi. ok is false for a zero vector.
func headingAngles(dx, dy float64) (ax, ay float64, ok bool) {
	norm := math.Hypot(dx, dy)
	if norm == 0 {
		return 0, 0, false
	}
	return math.Acos(clampUnit(dx/norm)) / math.Pi, math.Acos(clampUnit(dy/norm)) / math.Pi, true
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// slidingMean averages windows xs[k:k+w] for k in [0, len(xs)-w).
func slidingMean(xs []float64, w int) []float64 {
	n := len(xs) - w
	if n <= 0 {
		return []float64{}
	}
	out := make([]float64, n)
	for k := range out {
		out[k] = stat.Mean(xs[k:k+w], nil)
	}
	return out
}

// popStdDev is the population (ddof=0) standard deviation; a single sample
// has zero spread. Any NaN sample makes the result NaN.
func popStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		if len(xs) == 1 && math.IsNaN(xs[0]) {
			return math.NaN()
		}
		return 0
	}
	return stat.PopStdDev(xs, nil)
}
