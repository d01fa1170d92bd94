package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/mtbevents/internal/config"
	"github.com/rewired-gh/mtbevents/internal/filemeta"
	"github.com/rewired-gh/mtbevents/internal/models"
)

type point struct{ x, y float64 }

// reversingTrack runs along +x, slows through a turn and runs back along -x.
func reversingTrack() []point {
	var pts []point
	for i := 0; i < 30; i++ {
		pts = append(pts, point{float64(i), 0})
	}
	pts = append(pts, point{29.1, 0}, point{29.0, 0})
	for j := 1; j <= 28; j++ {
		pts = append(pts, point{29 - float64(j), 0})
	}
	return pts
}

func straightTrack(n int) []point {
	pts := make([]point, n)
	for i := range pts {
		pts[i] = point{float64(i), 2 * float64(i)}
	}
	return pts
}

func writeTracks(t *testing.T, dir, name string, tracks map[int][]point) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Trajectory,Frame,x,y\n")
	for id := 1; id <= len(tracks); id++ {
		for frame, p := range tracks[id] {
			fmt.Fprintf(&b, "%d,%d,%g,%g\n", id, frame, p.x, p.y)
		}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func testConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		Fpra:                2,
		FrameThresholdCount: 10,
		HeadingStdThreshold: 0.4,
		SpeedFraction:       0.66,
		HeadingSmoothing:    config.HeadingSmoothingAngle,
		Workers:             1,
	}
}

func TestAnalyzeFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTracks(t, dir, "sample_2mT_30fps.csv", map[int][]point{
		1: reversingTrack(),
		2: straightTrack(50),
		3: straightTrack(5),
	})

	a, err := New(testConfig())
	require.NoError(t, err)

	res, err := a.AnalyzeFile(context.Background(), path)
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, "sample_2mT_30fps.csv", s.Filename)
	assert.Equal(t, 30.0, s.Framerate)
	assert.True(t, s.HasFieldStrength)
	assert.Equal(t, 2.0, s.FieldStrength)
	assert.Equal(t, 3, s.TrajectoriesFound)
	assert.Equal(t, 2, s.TrajectoriesUsed)
	assert.Equal(t, 110, s.TotalFrames)
	assert.Equal(t, 1, s.Reverses)
	assert.Equal(t, 0, s.Tumbles)
	assert.InDelta(t, 30.0/220.0, s.ReverseProbability, 1e-12)
	assert.NoError(t, s.Validate())

	require.Len(t, res.Events, 1)
	assert.Equal(t, models.Event{TrajectoryID: 1, Kind: models.Reverse, Tick: 31}, res.Events[0])

	require.Len(t, res.Durations, 1)
	assert.Equal(t, 1, res.Durations[0].TrajectoryID)
	assert.Equal(t, 2, res.Durations[0].Ticks)
	assert.InDelta(t, 2.0/30.0, res.Durations[0].Seconds, 1e-12)
}

func TestAnalyzeFileSkipsDegenerate(t *testing.T) {
	dir := t.TempDir()
	stuck := straightTrack(20)
	stuck[7] = stuck[6]
	path := writeTracks(t, dir, "stuck_10fps.csv", map[int][]point{
		1: stuck,
		2: straightTrack(20),
	})

	var mu sync.Mutex
	var seen []TrajectoryResult
	a, err := New(testConfig(), WithTrajectoryHook(func(file string, tr TrajectoryResult) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, tr)
	}))
	require.NoError(t, err)

	res, err := a.AnalyzeFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.TrajectoriesUsed)
	assert.Equal(t, 1, res.Summary.TrajectoriesSkipped)
	assert.Equal(t, 40, res.Summary.TotalFrames)

	require.Len(t, seen, 2)
	assert.Error(t, seen[0].Skipped)
	assert.Nil(t, seen[0].Smoothed)
	assert.NoError(t, seen[1].Skipped)
	assert.NotNil(t, seen[1].Raw)
	assert.NotNil(t, seen[1].Smoothed)
}

func TestAnalyzeFileVectorSmoothingKeepsStationaryFrame(t *testing.T) {
	dir := t.TempDir()
	stuck := straightTrack(20)
	stuck[7] = stuck[6]
	path := writeTracks(t, dir, "stuck_10fps.csv", map[int][]point{
		1: stuck,
		2: straightTrack(20),
	})

	cfg := testConfig()
	cfg.HeadingSmoothing = config.HeadingSmoothingVector
	a, err := New(cfg)
	require.NoError(t, err)

	res, err := a.AnalyzeFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.TrajectoriesUsed)
	assert.Equal(t, 0, res.Summary.TrajectoriesSkipped)
	assert.Empty(t, res.Events)
}

func TestAnalyzeFileErrors(t *testing.T) {
	dir := t.TempDir()
	a, err := New(testConfig())
	require.NoError(t, err)

	noRate := writeTracks(t, dir, "plain.csv", map[int][]point{1: straightTrack(20)})
	_, err = a.AnalyzeFile(context.Background(), noRate)
	assert.True(t, errors.Is(err, filemeta.ErrNoFramerate))

	short := writeTracks(t, dir, "short_30fps.csv", map[int][]point{1: straightTrack(4)})
	_, err = a.AnalyzeFile(context.Background(), short)
	assert.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.FrameThresholdCount = 1
	_, err := New(cfg)
	assert.Error(t, err)
}

func populateDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTracks(t, dir, "a_30fps.csv", map[int][]point{1: reversingTrack(), 2: straightTrack(50)})
	writeTracks(t, dir, "b_15fps.csv", map[int][]point{1: straightTrack(40), 2: reversingTrack()})
	writeTracks(t, dir, "c_nofps.csv", map[int][]point{1: straightTrack(40)})
	writeTracks(t, dir, "d_60fps.csv", map[int][]point{1: reversingTrack()})
	writeTracks(t, dir, ".hidden_30fps.csv", map[int][]point{1: reversingTrack()})
	writeTracks(t, dir, "MTB_Events_Results.csv", map[int][]point{1: reversingTrack()})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "plots.csv"), 0o755))
	return dir
}

func TestAnalyzeDir(t *testing.T) {
	dir := populateDir(t)
	a, err := New(testConfig(), WithSkipFiles("MTB_Events_Results.csv"))
	require.NoError(t, err)

	batch, err := a.AnalyzeDir(context.Background(), dir)
	require.NoError(t, err)

	var names []string
	for _, f := range batch.Files {
		names = append(names, f.Summary.Filename)
	}
	assert.Equal(t, []string{"a_30fps.csv", "b_15fps.csv", "d_60fps.csv"}, names)

	require.Len(t, batch.Failures, 1)
	assert.Equal(t, "c_nofps.csv", batch.Failures[0].Filename)
	assert.ErrorIs(t, batch.Failures[0], filemeta.ErrNoFramerate)

	// each reversing track contributes two ticks at its own file's framerate
	want := []float64{2.0 / 30.0, 2.0 / 15.0, 2.0 / 60.0}
	got := batch.Histogram.Samples()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-12)
	}
}

func TestAnalyzeDirWorkersMatchSequential(t *testing.T) {
	dir := populateDir(t)

	seq, err := New(testConfig(), WithSkipFiles("MTB_Events_Results.csv"))
	require.NoError(t, err)
	cfg := testConfig()
	cfg.Workers = 4
	par, err := New(cfg, WithSkipFiles("MTB_Events_Results.csv"))
	require.NoError(t, err)

	want, err := seq.AnalyzeDir(context.Background(), dir)
	require.NoError(t, err)
	got, err := par.AnalyzeDir(context.Background(), dir)
	require.NoError(t, err)

	if diff := cmp.Diff(want.Files, got.Files); diff != "" {
		t.Errorf("parallel results differ (-seq +par):\n%s", diff)
	}
	assert.Equal(t, want.Histogram.Samples(), got.Histogram.Samples())
}

func TestAnalyzeDirExtensions(t *testing.T) {
	dir := populateDir(t)
	a, err := New(testConfig(), WithExtensions(".TXT"))
	require.NoError(t, err)

	files, err := a.ListFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "notes.txt")}, files)

	_, err = a.ListFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestAnalyzeDirCancelled(t *testing.T) {
	dir := populateDir(t)
	a, err := New(testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.AnalyzeDir(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}
