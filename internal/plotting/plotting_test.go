package plotting

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/mtbevents/internal/aggregate"
	"github.com/rewired-gh/mtbevents/internal/kinematics"
	"github.com/rewired-gh/mtbevents/internal/models"
)

func zigzag(n int) []models.Position {
	ps := make([]models.Position, n)
	for i := range ps {
		ps[i] = models.Position{X: float64(i), Y: float64(i % 3), Frame: i}
	}
	return ps
}

func TestSaveTrajectory(t *testing.T) {
	ps := zigzag(40)
	raw, err := kinematics.Derive(ps, 1, kinematics.SmoothAngles)
	require.NoError(t, err)
	smoothed, err := kinematics.Derive(ps, 4, kinematics.SmoothAngles)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "plots")
	files, err := SaveTrajectory(dir, TrajectoryPlot{
		File:      "sample_30fps.csv",
		ID:        3,
		Positions: ps,
		Raw:       raw,
		Smoothed:  smoothed,
		Events:    []models.Event{{TrajectoryID: 3, Kind: models.Reverse, Tick: 10}},
	}, Limits{SpeedFraction: 0.66, HeadingStdThreshold: 0.5})
	require.NoError(t, err)
	require.Len(t, files, 4)

	for _, f := range files {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
	assert.Equal(t, filepath.Join(dir, "sample_30fps_traj3_path.png"), files[0])
}

func TestSaveTrajectoryWithUndefinedHeadingStd(t *testing.T) {
	ps := zigzag(40)
	// frame 12 repeats frame 11
	for i := 12; i < len(ps); i++ {
		ps[i].X = float64(i - 1)
		ps[i].Y = float64((i - 1) % 3)
	}

	smoothed, err := kinematics.Derive(ps, 4, kinematics.SmoothVectors)
	require.NoError(t, err)
	require.True(t, math.IsNaN(smoothed.HeadingStd[8]))

	files, err := SaveTrajectory(t.TempDir(), TrajectoryPlot{
		File:      "still_30fps.csv",
		ID:        1,
		Positions: ps,
		Smoothed:  smoothed,
	}, Limits{SpeedFraction: 0.66, HeadingStdThreshold: 0.5})
	require.NoError(t, err)
	assert.Len(t, files, 4)
}

func TestSaveTrajectoryWithoutSeries(t *testing.T) {
	_, err := SaveTrajectory(t.TempDir(), TrajectoryPlot{ID: 1}, Limits{})
	assert.Error(t, err)
}

func sampleHistogram() *aggregate.Histogram {
	h := &aggregate.Histogram{}
	for _, s := range []float64{0.1, 0.2, 0.2, 0.5, 1.5} {
		h.Add(aggregate.ProlongedDuration{Seconds: s})
	}
	return h
}

func TestSaveHistogramPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hist.png")
	require.NoError(t, SaveHistogramPNG(path, sampleHistogram(), DefaultBins))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.ErrorIs(t, SaveHistogramPNG(path, &aggregate.Histogram{}, DefaultBins), ErrNoSamples)
}

func TestRenderHistogramHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHistogramHTML(&buf, sampleHistogram(), 5))

	html := buf.String()
	assert.True(t, strings.Contains(html, "<html"))
	assert.True(t, strings.Contains(html, "durations"))

	assert.ErrorIs(t, RenderHistogramHTML(&buf, nil, 5), ErrNoSamples)

	path := filepath.Join(t.TempDir(), "out", "hist.html")
	require.NoError(t, SaveHistogramHTML(path, sampleHistogram(), 5))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}
