package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/rewired-gh/mtbevents/internal/analysis"
	"github.com/rewired-gh/mtbevents/internal/config"
	"github.com/rewired-gh/mtbevents/internal/report"
)

// parseList parses a comma separated list of floats
func parseList(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", part, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty list")
	}
	return out, nil
}

// runSweep analyzes dir once per threshold combination
func runSweep(ctx context.Context, cfg config.Config, hstds, speeds []float64) ([]SweepPoint, error) {
	points := make([]SweepPoint, 0, len(hstds)*len(speeds))
	for _, h := range hstds {
		for _, sf := range speeds {
			ac := cfg.Analysis
			ac.HeadingStdThreshold = h
			ac.SpeedFraction = sf

			analyzer, err := analysis.New(ac,
				analysis.WithExtensions(cfg.Input.Extensions...),
				analysis.WithSkipFiles(reportNames(cfg)...),
			)
			if err != nil {
				return nil, fmt.Errorf("heading_std_threshold=%g speed_fraction=%g: %w", h, sf, err)
			}
			batch, err := analyzer.AnalyzeDir(ctx, cfg.Input.DataDir)
			if err != nil {
				return nil, err
			}
			points = append(points, summarize(h, sf, batch))
		}
	}
	return points, nil
}

// reportNames lists the report file names that live beside the data.
func reportNames(cfg config.Config) []string {
	names := []string{report.DefaultFilename}
	if cfg.Output.ReportPath != "" {
		names = append(names, filepath.Base(cfg.Output.ReportPath))
	}
	return names
}

// summarize folds one batch into a sweep point
func summarize(h, sf float64, batch *analysis.BatchResult) SweepPoint {
	p := SweepPoint{
		HeadingStdThreshold: h,
		SpeedFraction:       sf,
		Files:               len(batch.Files),
		Failures:            len(batch.Failures),
		ProlongedEpisodes:   batch.Histogram.Len(),
		MeanEpisodeSecs:     batch.Histogram.Mean(),
	}

	revRates := make([]float64, 0, len(batch.Files))
	tumbleRates := make([]float64, 0, len(batch.Files))
	for _, f := range batch.Files {
		p.Trajectories += f.Summary.TrajectoriesUsed
		p.Reverses += f.Summary.Reverses
		p.Tumbles += f.Summary.Tumbles
		revRates = append(revRates, f.Summary.ReverseProbability)
		tumbleRates = append(tumbleRates, f.Summary.TumbleProbability)
	}
	if len(revRates) > 0 {
		p.MeanReverseRate = stat.Mean(revRates, nil)
		p.MeanTumbleRate = stat.Mean(tumbleRates, nil)
	}
	return p
}

var csvHeader = []string{
	"heading_std_threshold", "speed_fraction", "files", "failures", "trajectories",
	"reverses", "tumbles", "mean_reverse_rate", "mean_tumble_rate",
	"prolonged_episodes", "mean_episode_secs",
}

// writeCSV writes one row per sweep point
func writeCSV(w io.Writer, points []SweepPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range points {
		row := []string{
			strconv.FormatFloat(p.HeadingStdThreshold, 'g', -1, 64),
			strconv.FormatFloat(p.SpeedFraction, 'g', -1, 64),
			strconv.Itoa(p.Files),
			strconv.Itoa(p.Failures),
			strconv.Itoa(p.Trajectories),
			strconv.Itoa(p.Reverses),
			strconv.Itoa(p.Tumbles),
			strconv.FormatFloat(p.MeanReverseRate, 'g', 6, 64),
			strconv.FormatFloat(p.MeanTumbleRate, 'g', 6, 64),
			strconv.Itoa(p.ProlongedEpisodes),
			strconv.FormatFloat(p.MeanEpisodeSecs, 'g', 6, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
