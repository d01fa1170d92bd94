package models

import (
	"errors"
	"strings"
)

// FileSummary holds the per-file totals written to the summary report.
type FileSummary struct {
	Filename            string  `json:"filename"`
	Fpra                int     `json:"fpra"`
	FrameThresholdCount int     `json:"frame_threshold_count"`
	Framerate           float64 `json:"framerate"`
	FieldStrength       float64 `json:"field_strength_mt,omitempty"`
	HasFieldStrength    bool    `json:"has_field_strength"`
	TrajectoriesFound   int     `json:"trajectories_found"`
	TrajectoriesUsed    int     `json:"trajectories_used"`
	TrajectoriesSkipped int     `json:"trajectories_skipped"`
	TotalFrames         int     `json:"total_frames"`
	Tumbles             int     `json:"tumbles"`
	Reverses            int     `json:"reverses"`
	TumbleProbability   float64 `json:"tumble_probability"`  // per organism per second
	ReverseProbability  float64 `json:"reverse_probability"` // per organism per second
}

// TotalTime returns the observed time of all used trajectories in seconds.
func (s *FileSummary) TotalTime() float64 {
	if s.Framerate <= 0 {
		return 0
	}
	return float64(s.TotalFrames) / s.Framerate
}

// Stem returns the filename without its extension.
func (s *FileSummary) Stem() string {
	if i := strings.LastIndex(s.Filename, "."); i > 0 {
		return s.Filename[:i]
	}
	return s.Filename
}

// Validate checks that all summary fields are valid
func (s *FileSummary) Validate() error {
	if s.Filename == "" {
		return errors.New("filename must not be empty")
	}
	if s.Fpra < 1 {
		return errors.New("fpra must be positive")
	}
	if s.Framerate <= 0 {
		return errors.New("framerate must be positive")
	}
	if s.TrajectoriesUsed > s.TrajectoriesFound {
		return errors.New("trajectories used must be <= trajectories found")
	}
	if s.Tumbles < 0 || s.Reverses < 0 {
		return errors.New("event counts must not be negative")
	}
	if s.TumbleProbability < 0 || s.ReverseProbability < 0 {
		return errors.New("probabilities must not be negative")
	}
	return nil
}
