package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rewired-gh/mtbevents/internal/analysis"
	"github.com/rewired-gh/mtbevents/internal/config"
	"github.com/rewired-gh/mtbevents/internal/logger"
	"github.com/rewired-gh/mtbevents/internal/models"
	"github.com/rewired-gh/mtbevents/internal/plotting"
	"github.com/rewired-gh/mtbevents/internal/report"
	"github.com/rewired-gh/mtbevents/internal/storage"
	"github.com/rewired-gh/mtbevents/internal/telegram"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	dataDir    = flag.String("dir", "", "Data directory (overrides input.data_dir)")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dataDir != "" {
		cfg.Input.DataDir = *dataDir
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup logging with level support
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	reportPath := cfg.Output.ReportPath
	if reportPath == "" {
		reportPath = report.DefaultPath(cfg.Input.DataDir)
	}

	// Initialize storage
	var store *storage.Storage
	if cfg.Storage.Enabled {
		store, err = storage.New(cfg.Storage.DBPath)
		if err != nil {
			logger.Fatal("Failed to initialize storage: %v", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
	}

	// Initialize Telegram client
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	opts := []analysis.Option{
		analysis.WithExtensions(cfg.Input.Extensions...),
		analysis.WithSkipFiles(report.DefaultFilename, filepath.Base(reportPath)),
	}
	if cfg.Output.PlotEvents {
		opts = append(opts, analysis.WithTrajectoryHook(plotHook(cfg)))
	}
	analyzer, err := analysis.New(cfg.Analysis, opts...)
	if err != nil {
		logger.Fatal("Failed to initialize analyzer: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	logger.Info("Starting analysis (fpra: %d, frame_threshold_count: %d, heading_std_threshold: %.2f, speed_fraction: %.2f, heading_smoothing: %s)",
		cfg.Analysis.Fpra,
		cfg.Analysis.FrameThresholdCount,
		cfg.Analysis.HeadingStdThreshold,
		cfg.Analysis.SpeedFraction,
		cfg.Analysis.HeadingSmoothing,
	)

	startTime := time.Now()
	batch, err := analyzer.AnalyzeDir(ctx, cfg.Input.DataDir)
	if errors.Is(err, context.Canceled) {
		logger.Info("Analysis cancelled")
		return
	}
	if err != nil {
		logger.Fatal("Analysis failed: %v", err)
	}

	summaries := make([]models.FileSummary, len(batch.Files))
	for i, f := range batch.Files {
		summaries[i] = f.Summary
	}

	if err := report.WriteFile(reportPath, summaries); err != nil {
		logger.Error("Failed to write report: %v", err)
	} else {
		logger.Info("Report written to %s", reportPath)
	}

	writeHistogram(cfg, batch)

	var runID string
	if store != nil {
		runID = persist(ctx, cfg, store, batch)
	}

	failures := make([]string, len(batch.Failures))
	for i, f := range batch.Failures {
		failures[i] = f.Filename
	}

	elapsed := time.Since(startTime)
	logger.Info("Analysis complete in %v: %d files analyzed, %d failed, %d prolonged episodes",
		elapsed, len(batch.Files), len(batch.Failures), batch.Histogram.Len())

	if telegramClient != nil {
		if err := telegramClient.Send(telegram.Batch{RunID: runID, Files: summaries, Failures: failures, Elapsed: elapsed}); err != nil {
			logger.Warn("Failed to send Telegram notification: %v", err)
		}
	}
}

// plotHook renders debug panels for every trajectory with at least one event.
func plotHook(cfg *config.Config) analysis.TrajectoryHook {
	limits := plotting.Limits{
		SpeedFraction:       cfg.Analysis.SpeedFraction,
		HeadingStdThreshold: cfg.Analysis.HeadingStdThreshold,
	}
	return func(file string, tr analysis.TrajectoryResult) {
		if tr.Skipped != nil || len(tr.Events) == 0 {
			return
		}
		_, err := plotting.SaveTrajectory(cfg.Output.PlotsDir, plotting.TrajectoryPlot{
			File:      file,
			ID:        tr.ID,
			Positions: tr.Positions,
			Raw:       tr.Raw,
			Smoothed:  tr.Smoothed,
			Events:    tr.Events,
		}, limits)
		if err != nil {
			logger.Warn("Failed to plot trajectory %d of %s: %v", tr.ID, file, err)
		}
	}
}

func writeHistogram(cfg *config.Config, batch *analysis.BatchResult) {
	if batch.Histogram.Len() == 0 {
		logger.Info("No prolonged episodes, skipping histogram")
		return
	}

	dir := cfg.Output.PlotsDir
	if dir == "" {
		dir = cfg.Input.DataDir
	}
	path := filepath.Join(dir, "prolonged_durations."+cfg.Output.HistogramFormat)

	var err error
	switch cfg.Output.HistogramFormat {
	case "html":
		err = plotting.SaveHistogramHTML(path, batch.Histogram, plotting.DefaultBins)
	default:
		err = plotting.SaveHistogramPNG(path, batch.Histogram, plotting.DefaultBins)
	}
	if err != nil {
		logger.Error("Failed to write histogram: %v", err)
		return
	}
	logger.Info("Histogram of %d prolonged episodes written to %s", batch.Histogram.Len(), path)
}

func persist(ctx context.Context, cfg *config.Config, store *storage.Storage, batch *analysis.BatchResult) string {
	runID, err := store.BeginRun(ctx, storage.RunParams{
		DataDir:             cfg.Input.DataDir,
		Fpra:                cfg.Analysis.Fpra,
		FrameThresholdCount: cfg.Analysis.FrameThresholdCount,
		HeadingStdThreshold: cfg.Analysis.HeadingStdThreshold,
		SpeedFraction:       cfg.Analysis.SpeedFraction,
		Framerate:           cfg.Analysis.Framerate,
		HeadingSmoothing:    cfg.Analysis.HeadingSmoothing,
	})
	if err != nil {
		logger.Error("Failed to record run: %v", err)
		return ""
	}

	for _, f := range batch.Files {
		if err := store.SaveFile(ctx, runID, f.Summary, f.Events, f.Durations); err != nil {
			logger.Warn("Failed to store results of %s: %v", f.Summary.Filename, err)
		}
	}
	logger.Info("Run %s stored in %s", runID, cfg.Storage.DBPath)

	if cfg.Storage.ExportPath != "" {
		if err := store.ExportRun(ctx, runID, cfg.Storage.ExportPath); err != nil {
			logger.Warn("Failed to export run: %v", err)
		} else {
			logger.Debug("Run exported to %s", cfg.Storage.ExportPath)
		}
	}
	return runID
}
