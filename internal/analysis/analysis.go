// Package analysis runs the per-file and per-directory event analysis:
// ingest, trimming, kinematics, detection and aggregation.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/mtbevents/internal/aggregate"
	"github.com/rewired-gh/mtbevents/internal/config"
	"github.com/rewired-gh/mtbevents/internal/detector"
	"github.com/rewired-gh/mtbevents/internal/filemeta"
	"github.com/rewired-gh/mtbevents/internal/kinematics"
	"github.com/rewired-gh/mtbevents/internal/logger"
	"github.com/rewired-gh/mtbevents/internal/models"
	"github.com/rewired-gh/mtbevents/internal/trajectory"
)

// TrajectoryResult carries everything computed for one trajectory. Raw is
// only populated when a trajectory hook is installed.
type TrajectoryResult struct {
	ID        int
	Positions []models.Position
	Raw       *kinematics.Series
	Smoothed  *kinematics.Series
	Events    []models.Event
	Skipped   error // non-nil when the trajectory was degenerate
}

// TrajectoryHook observes each trajectory of a file after detection.
type TrajectoryHook func(file string, tr TrajectoryResult)

// FileResult is the outcome of analyzing one file.
type FileResult struct {
	Path      string
	Summary   models.FileSummary
	Events    []models.Event
	Durations []aggregate.ProlongedDuration
}

// FileError is a per-file failure. The batch continues past it.
type FileError struct {
	Filename string
	Err      error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Filename, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// BatchResult holds the results of a directory run in file-name order.
type BatchResult struct {
	Files     []*FileResult
	Failures  []*FileError
	Histogram *aggregate.Histogram
}

// Analyzer runs the analysis with fixed parameters.
type Analyzer struct {
	cfg        config.AnalysisConfig
	smoothing  kinematics.Smoothing
	thresholds detector.Thresholds
	extensions map[string]bool
	skip       map[string]bool
	hook       TrajectoryHook
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithTrajectoryHook installs a per-trajectory observer. The hook may be
// called from several goroutines when more than one worker is configured.
func WithTrajectoryHook(h TrajectoryHook) Option {
	return func(a *Analyzer) { a.hook = h }
}

// WithExtensions restricts AnalyzeDir to files with these extensions.
func WithExtensions(exts ...string) Option {
	return func(a *Analyzer) {
		a.extensions = make(map[string]bool, len(exts))
		for _, e := range exts {
			a.extensions[strings.ToLower(e)] = true
		}
	}
}

// WithSkipFiles makes AnalyzeDir ignore the named files, e.g. a previous
// summary report written into the data directory.
func WithSkipFiles(names ...string) Option {
	return func(a *Analyzer) {
		for _, n := range names {
			a.skip[n] = true
		}
	}
}

// New creates an Analyzer. The configuration is validated first.
func New(cfg config.AnalysisConfig, opts ...Option) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	smoothing, err := kinematics.ParseSmoothing(cfg.HeadingSmoothing)
	if err != nil {
		return nil, err
	}

	a := &Analyzer{
		cfg:       cfg,
		smoothing: smoothing,
		thresholds: detector.Thresholds{
			SpeedFraction:       cfg.SpeedFraction,
			HeadingStdThreshold: cfg.HeadingStdThreshold,
		},
		extensions: map[string]bool{".csv": true},
		skip:       make(map[string]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// AnalyzeFile analyzes one trajectory file.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (*FileResult, error) {
	name := filepath.Base(path)

	framerate, err := filemeta.Resolve(path, a.cfg.Framerate)
	if err != nil {
		return nil, err
	}

	store, err := trajectory.ReadFile(path)
	if err != nil {
		return nil, err
	}
	found := store.Found()
	dropped := store.Trim(a.cfg.FrameThresholdCount)
	logger.Debug("%s: %s export, %d trajectories, %d below %d frames", name, store.Tracker, found, dropped, a.cfg.FrameThresholdCount)

	durations := detector.NewDurationCounter()
	det, err := detector.New(a.thresholds, durations)
	if err != nil {
		return nil, err
	}
	tally := aggregate.NewTally(name, framerate, a.cfg.Fpra, a.cfg.FrameThresholdCount)

	var events []models.Event
	for _, tr := range store.Trajectories() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := a.analyzeTrajectory(det, tr)
		if err != nil {
			var degenerate *kinematics.DegenerateTrajectoryError
			if !errors.As(err, &degenerate) {
				return nil, fmt.Errorf("trajectory %d: %w", tr.ID, err)
			}
			logger.Warn("%s: skipping trajectory %d: %v", name, tr.ID, err)
			tally.AddSkipped(tr.Len())
			res.Skipped = err
		} else {
			tally.AddTrajectory(tr.Len(), res.Events)
			events = append(events, res.Events...)
		}

		if a.hook != nil {
			a.hook(name, res)
		}
	}

	summary, err := tally.Summary(found)
	if err != nil {
		return nil, err
	}
	if fs, ok := filemeta.FieldStrength(path); ok {
		summary.FieldStrength = fs
		summary.HasFieldStrength = true
	}

	logger.Info("%s: %d/%d trajectories, %d reverses, %d tumbles", name, summary.TrajectoriesUsed, found, summary.Reverses, summary.Tumbles)

	return &FileResult{
		Path:      path,
		Summary:   summary,
		Events:    events,
		Durations: aggregate.Durations(name, durations, framerate),
	}, nil
}

func (a *Analyzer) analyzeTrajectory(det *detector.Detector, tr models.Trajectory) (TrajectoryResult, error) {
	res := TrajectoryResult{ID: tr.ID, Positions: tr.Positions}

	if a.hook != nil {
		// raw series are for observers only; a degenerate raw view is not fatal
		if raw, err := kinematics.Derive(tr.Positions, 1, a.smoothing); err == nil {
			res.Raw = raw
		}
	}

	smoothed, err := kinematics.Derive(tr.Positions, a.cfg.Fpra, a.smoothing)
	if err != nil {
		return res, err
	}
	res.Smoothed = smoothed

	events, err := det.Scan(tr.ID, smoothed)
	if err != nil {
		return res, err
	}
	res.Events = events
	return res, nil
}

// ListFiles returns the analyzable files of dir in name order. Hidden files,
// directories, skipped names and files with other extensions are excluded.
func (a *Analyzer) ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || a.skip[name] {
			continue
		}
		if !a.extensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	return files, nil
}

// AnalyzeDir analyzes every file in dir using the configured number of
// workers. Results are reduced in file-name order, so totals and histogram
// sample order match a sequential run.
func (a *Analyzer) AnalyzeDir(ctx context.Context, dir string) (*BatchResult, error) {
	files, err := a.ListFiles(dir)
	if err != nil {
		return nil, err
	}
	logger.Info("Analyzing %d files in %s with %d workers", len(files), dir, a.cfg.Workers)

	results := make([]*FileResult, len(files))
	failures := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := a.AnalyzeFile(gctx, path)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failures[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch := &BatchResult{Histogram: &aggregate.Histogram{}}
	for i, path := range files {
		if failures[i] != nil {
			logger.Error("Failed to analyze %s: %v", filepath.Base(path), failures[i])
			batch.Failures = append(batch.Failures, &FileError{Filename: filepath.Base(path), Err: failures[i]})
			continue
		}
		batch.Files = append(batch.Files, results[i])
		batch.Histogram.Add(results[i].Durations...)
	}
	return batch, nil
}
