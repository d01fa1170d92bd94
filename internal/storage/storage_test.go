package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/rewired-gh/mtbevents/internal/aggregate"
	"github.com/rewired-gh/mtbevents/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSummary(name string) models.FileSummary {
	return models.FileSummary{
		Filename:            name,
		Fpra:                10,
		FrameThresholdCount: 40,
		Framerate:           30,
		FieldStrength:       2.5,
		HasFieldStrength:    true,
		TrajectoriesFound:   5,
		TrajectoriesUsed:    3,
		TotalFrames:         600,
		Tumbles:             1,
		Reverses:            2,
		TumbleProbability:   1.0 * 30 / (600 * 3),
		ReverseProbability:  2.0 * 30 / (600 * 3),
	}
}

func TestStorage_RunRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	params := RunParams{DataDir: "./data", Fpra: 10, FrameThresholdCount: 40, HeadingStdThreshold: 0.5, SpeedFraction: 0.66, HeadingSmoothing: "angle"}
	runID, err := s.BeginRun(ctx, params)
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	if len(runID) != 36 {
		t.Errorf("Expected uuid run id, got %q", runID)
	}

	run, err := s.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if diff := cmp.Diff(params, run.Params); diff != "" {
		t.Errorf("run params mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
}

func TestStorage_SaveAndReadFile(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	runID, err := s.BeginRun(ctx, RunParams{Fpra: 10})
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	events := []models.Event{
		{TrajectoryID: 4, Kind: models.Reverse, Tick: 9},
		{TrajectoryID: 2, Kind: models.Tumble, Tick: 30},
		{TrajectoryID: 2, Kind: models.Reverse, Tick: 41},
	}
	durations := []aggregate.ProlongedDuration{
		{Filename: "b_30fps.csv", TrajectoryID: 4, Ticks: 3, Seconds: 0.1},
		{Filename: "b_30fps.csv", TrajectoryID: 2, Ticks: 6, Seconds: 0.2},
	}
	if err := s.SaveFile(ctx, runID, sampleSummary("b_30fps.csv"), events, durations); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	plain := sampleSummary("a_30fps.csv")
	plain.HasFieldStrength, plain.FieldStrength = false, 0
	if err := s.SaveFile(ctx, runID, plain, nil, nil); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}

	files, err := s.FileResults(ctx, runID)
	if err != nil {
		t.Fatalf("FileResults failed: %v", err)
	}
	want := []models.FileSummary{plain, sampleSummary("b_30fps.csv")}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("file results mismatch (-want +got):\n%s", diff)
	}

	got, err := s.Events(ctx, runID, "b_30fps.csv")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if diff := cmp.Diff(events, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	none, err := s.Events(ctx, runID, "a_30fps.csv")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Expected no events, got %d", len(none))
	}

	gotDurations, err := s.Durations(ctx, runID)
	if err != nil {
		t.Fatalf("Durations failed: %v", err)
	}
	if diff := cmp.Diff(durations, gotDurations); diff != "" {
		t.Errorf("durations mismatch (-want +got):\n%s", diff)
	}
}

func TestStorage_SaveFileRejects(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	runID, err := s.BeginRun(ctx, RunParams{})
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	if err := s.SaveFile(ctx, "no-such-run", sampleSummary("a.csv"), nil, nil); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}

	bad := sampleSummary("a.csv")
	bad.Framerate = 0
	if err := s.SaveFile(ctx, runID, bad, nil, nil); err == nil {
		t.Error("Expected error for invalid summary")
	}

	badEvents := []models.Event{{TrajectoryID: 1, Kind: "spin", Tick: 3}}
	if err := s.SaveFile(ctx, runID, sampleSummary("a.csv"), badEvents, nil); err == nil {
		t.Error("Expected error for invalid event kind")
	}

	// rejected saves store nothing
	files, err := s.FileResults(ctx, runID)
	if err != nil {
		t.Fatalf("FileResults failed: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("Expected no stored files, got %d", len(files))
	}

	if err := s.SaveFile(ctx, runID, sampleSummary("a.csv"), nil, nil); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	if err := s.SaveFile(ctx, runID, sampleSummary("a.csv"), nil, nil); err == nil {
		t.Error("Expected error saving the same file twice in one run")
	}
}

func TestStorage_FileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "mtbevents.db")

	s, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	runID, err := s.BeginRun(ctx, RunParams{Fpra: 3})
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	run, err := reopened.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun after reopen failed: %v", err)
	}
	if run.Params.Fpra != 3 {
		t.Errorf("Expected fpra 3, got %d", run.Params.Fpra)
	}

	if _, err := New(""); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestStorage_ExportRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	runID, err := s.BeginRun(ctx, RunParams{Fpra: 10})
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	events := []models.Event{{TrajectoryID: 1, Kind: models.Reverse, Tick: 7}}
	if err := s.SaveFile(ctx, runID, sampleSummary("a_30fps.csv"), events, nil); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "export", "run.json")
	if err := s.ExportRun(ctx, runID, path); err != nil {
		t.Fatalf("ExportRun failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read export: %v", err)
	}
	var export ExportFile
	if err := json.Unmarshal(data, &export); err != nil {
		t.Fatalf("Failed to decode export: %v", err)
	}
	if export.Run.ID != runID {
		t.Errorf("Expected run id %s, got %s", runID, export.Run.ID)
	}
	if len(export.Files) != 1 || export.Files[0].Filename != "a_30fps.csv" {
		t.Errorf("Unexpected exported files: %+v", export.Files)
	}
	if diff := cmp.Diff(events, export.Events["a_30fps.csv"]); diff != "" {
		t.Errorf("exported events mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary export file left behind")
	}

	if err := s.ExportRun(ctx, "missing", path); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
}
