// Package storage persists analysis runs in a sqlite database.
//
// Each run gets a uuid and records its parameters; per-file summaries, the
// detected events and the prolonged-episode durations are keyed by run and
// file name. A run can be exported as a JSON document with an atomic write.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/mtbevents/internal/aggregate"
	"github.com/rewired-gh/mtbevents/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Storage wraps the sqlite database.
type Storage struct {
	db *sql.DB

	filePermissions os.FileMode
	dirPermissions  os.FileMode
}

// RunParams are the analysis parameters recorded with a run.
type RunParams struct {
	DataDir             string  `json:"data_dir"`
	Fpra                int     `json:"fpra"`
	FrameThresholdCount int     `json:"frame_threshold_count"`
	HeadingStdThreshold float64 `json:"heading_std_threshold"`
	SpeedFraction       float64 `json:"speed_fraction"`
	Framerate           float64 `json:"framerate"`
	HeadingSmoothing    string  `json:"heading_smoothing"`
}

// Run is a stored run header.
type Run struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Params    RunParams `json:"params"`
}

// ExportFile represents the file structure of a JSON run export
type ExportFile struct {
	Version   string                        `json:"version"`
	SavedAt   time.Time                     `json:"saved_at"`
	Run       Run                           `json:"run"`
	Files     []models.FileSummary          `json:"files"`
	Events    map[string][]models.Event     `json:"events"`
	Durations []aggregate.ProlongedDuration `json:"durations"`
}

// New opens (and if needed creates) the database at path. ":memory:" opens a
// private in-memory database.
func New(path string) (*Storage, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps ":memory:" databases shared and writes serialized
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Storage{db: db, filePermissions: 0o644, dirPermissions: 0o755}, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// BeginRun records a new run and returns its id.
func (s *Storage) BeginRun(ctx context.Context, params RunParams) (string, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run params: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_unix_ns, params_json) VALUES (?, ?, ?)`,
		id, time.Now().UnixNano(), string(b))
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// GetRun retrieves a run header by id.
func (s *Storage) GetRun(ctx context.Context, runID string) (*Run, error) {
	var started int64
	var params string
	err := s.db.QueryRowContext(ctx,
		`SELECT started_unix_ns, params_json FROM runs WHERE run_id = ?`, runID).Scan(&started, &params)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	run := &Run{ID: runID, StartedAt: time.Unix(0, started)}
	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return nil, fmt.Errorf("failed to decode run params: %w", err)
	}
	return run, nil
}

// SaveFile stores one file's summary, events and durations in a single
// transaction.
func (s *Storage) SaveFile(ctx context.Context, runID string, summary models.FileSummary, events []models.Event, durations []aggregate.ProlongedDuration) error {
	if err := summary.Validate(); err != nil {
		return fmt.Errorf("invalid summary: %w", err)
	}
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return fmt.Errorf("invalid event: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE run_id = ?`, runID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to query run: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	var field sql.NullFloat64
	if summary.HasFieldStrength {
		field = sql.NullFloat64{Float64: summary.FieldStrength, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO file_results (
			run_id, filename, fpra, frame_threshold, framerate, field_strength_mt,
			trajectories_found, trajectories_used, trajectories_skipped, total_frames,
			tumbles, reverses, tumble_probability, reverse_probability)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, summary.Filename, summary.Fpra, summary.FrameThresholdCount, summary.Framerate, field,
		summary.TrajectoriesFound, summary.TrajectoriesUsed, summary.TrajectoriesSkipped, summary.TotalFrames,
		summary.Tumbles, summary.Reverses, summary.TumbleProbability, summary.ReverseProbability)
	if err != nil {
		return fmt.Errorf("failed to insert file result: %w", err)
	}

	for i, e := range events {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (run_id, filename, trajectory_id, kind, tick, seq) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, summary.Filename, e.TrajectoryID, string(e.Kind), e.Tick, i); err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	for i, d := range durations {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO prolonged_durations (run_id, filename, trajectory_id, ticks, seconds, seq) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, summary.Filename, d.TrajectoryID, d.Ticks, d.Seconds, i); err != nil {
			return fmt.Errorf("failed to insert duration: %w", err)
		}
	}

	return tx.Commit()
}

// FileResults returns the stored summaries of a run in file name order.
func (s *Storage) FileResults(ctx context.Context, runID string) ([]models.FileSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
			filename, fpra, frame_threshold, framerate, field_strength_mt,
			trajectories_found, trajectories_used, trajectories_skipped, total_frames,
			tumbles, reverses, tumble_probability, reverse_probability
		FROM file_results WHERE run_id = ? ORDER BY filename`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query file results: %w", err)
	}
	defer rows.Close()

	var out []models.FileSummary
	for rows.Next() {
		var fs models.FileSummary
		var field sql.NullFloat64
		if err := rows.Scan(&fs.Filename, &fs.Fpra, &fs.FrameThresholdCount, &fs.Framerate, &field,
			&fs.TrajectoriesFound, &fs.TrajectoriesUsed, &fs.TrajectoriesSkipped, &fs.TotalFrames,
			&fs.Tumbles, &fs.Reverses, &fs.TumbleProbability, &fs.ReverseProbability); err != nil {
			return nil, fmt.Errorf("failed to scan file result: %w", err)
		}
		fs.FieldStrength, fs.HasFieldStrength = field.Float64, field.Valid
		out = append(out, fs)
	}
	return out, rows.Err()
}

// Events returns the events stored for one file of a run in detection order.
func (s *Storage) Events(ctx context.Context, runID, filename string) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT trajectory_id, kind, tick FROM events WHERE run_id = ? AND filename = ? ORDER BY seq`,
		runID, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	out := []models.Event{}
	for rows.Next() {
		var e models.Event
		var kind string
		if err := rows.Scan(&e.TrajectoryID, &kind, &e.Tick); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Kind = models.EventKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Durations returns every prolonged-episode duration of a run, ordered by
// file name and then by the order the trajectories were first counted.
func (s *Storage) Durations(ctx context.Context, runID string) ([]aggregate.ProlongedDuration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT filename, trajectory_id, ticks, seconds FROM prolonged_durations WHERE run_id = ? ORDER BY filename, seq`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query durations: %w", err)
	}
	defer rows.Close()

	var out []aggregate.ProlongedDuration
	for rows.Next() {
		var d aggregate.ProlongedDuration
		if err := rows.Scan(&d.Filename, &d.TrajectoryID, &d.Ticks, &d.Seconds); err != nil {
			return nil, fmt.Errorf("failed to scan duration: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ExportRun writes a run and all its results to path as JSON
func (s *Storage) ExportRun(ctx context.Context, runID, path string) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	files, err := s.FileResults(ctx, runID)
	if err != nil {
		return err
	}
	events := make(map[string][]models.Event, len(files))
	for _, f := range files {
		if events[f.Filename], err = s.Events(ctx, runID, f.Filename); err != nil {
			return err
		}
	}
	durations, err := s.Durations(ctx, runID)
	if err != nil {
		return err
	}

	// Create export directory if needed
	if err := os.MkdirAll(filepath.Dir(path), s.dirPermissions); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	data := ExportFile{
		Version:   "1.0",
		SavedAt:   time.Now(),
		Run:       *run,
		Files:     files,
		Events:    events,
		Durations: durations,
	}
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export: %w", err)
	}

	// Write to temporary file first (atomic write)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, jsonData, s.filePermissions); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath) // Clean up temp file on rename failure
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
