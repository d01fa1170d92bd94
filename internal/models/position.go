package models

// Position is one tracked (x, y) sample of an organism at a frame.
type Position struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Frame int     `json:"frame"`
}

// Trajectory is an organism's position history, ordered by ascending frame.
type Trajectory struct {
	ID        int        `json:"id"`
	Positions []Position `json:"positions"`
}

// Len returns the number of positions in the trajectory.
func (t *Trajectory) Len() int {
	return len(t.Positions)
}

// XY splits the positions into separate coordinate slices.
func (t *Trajectory) XY() (xs, ys []float64) {
	xs = make([]float64, len(t.Positions))
	ys = make([]float64, len(t.Positions))
	for i, p := range t.Positions {
		xs[i] = p.X
		ys[i] = p.Y
	}
	return xs, ys
}
