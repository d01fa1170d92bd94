// Package report writes the per-file summary CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rewired-gh/mtbevents/internal/models"
)

// DefaultFilename is the report name used when no path is configured. The
// batch driver skips it when listing the data directory.
const DefaultFilename = "MTB_Events_Results.csv"

// Header is the column layout of the report.
var Header = []string{
	"filename",
	"fpra",
	"total_time",
	"num_revs",
	"prob_of_rev(%)",
	"num_tumbles",
	"prob_of_tumble(%)",
	"frame_threshold_count",
	"framerate",
}

// DefaultPath returns the report location inside dataDir.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, DefaultFilename)
}

// Row formats one summary. Probabilities are written as percentages.
func Row(s models.FileSummary) []string {
	return []string{
		s.Stem(),
		strconv.Itoa(s.Fpra),
		formatFloat(s.TotalTime()),
		strconv.Itoa(s.Reverses),
		formatFloat(s.ReverseProbability * 100),
		strconv.Itoa(s.Tumbles),
		formatFloat(s.TumbleProbability * 100),
		strconv.Itoa(s.FrameThresholdCount),
		formatFloat(s.Framerate),
	}
}

// Write writes the header followed by one row per summary.
func Write(w io.Writer, summaries []models.FileSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}
	for _, s := range summaries {
		if err := cw.Write(Row(s)); err != nil {
			return fmt.Errorf("failed to write report row for %s: %w", s.Filename, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the report to path through a temporary file, so a failed
// run never leaves a truncated report behind.
func WriteFile(path string, summaries []models.FileSummary) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := Write(f, summaries); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move report into place: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
