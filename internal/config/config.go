package config

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Input    InputConfig    `mapstructure:"input"`
	Output   OutputConfig   `mapstructure:"output"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AnalysisConfig holds the kinematics and event detection parameters
type AnalysisConfig struct {
	Fpra                int     `mapstructure:"fpra"`                  // frames per rolling average
	FrameThresholdCount int     `mapstructure:"frame_threshold_count"` // trajectories must be longer than this
	HeadingStdThreshold float64 `mapstructure:"heading_std_threshold"`
	SpeedFraction       float64 `mapstructure:"speed_fraction"`
	Framerate           float64 `mapstructure:"framerate"` // 0 = only from filename
	HeadingSmoothing    string  `mapstructure:"heading_smoothing"`
	Workers             int     `mapstructure:"workers"`
}

// InputConfig holds the location of the trajectory files
type InputConfig struct {
	DataDir    string   `mapstructure:"data_dir"`
	Extensions []string `mapstructure:"extensions"`
}

// OutputConfig holds report and plot destinations
type OutputConfig struct {
	ReportPath      string `mapstructure:"report_path"`
	PlotsDir        string `mapstructure:"plots_dir"`
	PlotEvents      bool   `mapstructure:"plot_events"`
	HistogramFormat string `mapstructure:"histogram_format"`
}

// StorageConfig holds sqlite persistence configuration
type StorageConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	DBPath     string `mapstructure:"db_path"`
	ExportPath string `mapstructure:"export_path"` // optional JSON export of each run
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	setDefaults(v)

	// MTB_EVENTS_ANALYSIS_FPRA overrides analysis.fpra, and so on
	v.SetEnvPrefix("MTB_EVENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		wholeNumberHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// wholeNumberHookFunc rejects fractional values for integer fields, which
// mapstructure would otherwise truncate (fpra: 2.5 would run as 2).
func wholeNumberHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		default:
			return data, nil
		}
		var n float64
		switch d := data.(type) {
		case float64:
			n = d
		case float32:
			n = float64(d)
		default:
			return data, nil
		}
		if n != math.Trunc(n) {
			return nil, fmt.Errorf("expected a whole number, got %v", n)
		}
		return data, nil
	}
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Analysis defaults
	v.SetDefault("analysis.fpra", 10)
	v.SetDefault("analysis.frame_threshold_count", 30)
	v.SetDefault("analysis.heading_std_threshold", 0.5)
	v.SetDefault("analysis.speed_fraction", 0.66)
	v.SetDefault("analysis.framerate", 0)
	v.SetDefault("analysis.heading_smoothing", HeadingSmoothingAngle)
	v.SetDefault("analysis.workers", 1)

	// Input defaults
	v.SetDefault("input.data_dir", "./data")
	v.SetDefault("input.extensions", []string{".csv"})

	// Output defaults
	v.SetDefault("output.report_path", "")
	v.SetDefault("output.plots_dir", "")
	v.SetDefault("output.plot_events", false)
	v.SetDefault("output.histogram_format", "png")

	// Storage defaults
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.db_path", "./data/mtbevents.db")
	v.SetDefault("storage.export_path", "")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

const (
	// HeadingSmoothingAngle averages the per-frame heading angles.
	HeadingSmoothingAngle = "angle"
	// HeadingSmoothingVector averages displacement components before taking the angle.
	HeadingSmoothingVector = "vector"
)

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if err := c.Analysis.Validate(); err != nil {
		return err
	}

	// Validate Input config
	if c.Input.DataDir == "" {
		return fmt.Errorf("input.data_dir is required")
	}
	if len(c.Input.Extensions) == 0 {
		return fmt.Errorf("input.extensions must contain at least one extension")
	}

	// Validate Output config
	validFormats := map[string]bool{"png": true, "html": true}
	if !validFormats[c.Output.HistogramFormat] {
		return fmt.Errorf("output.histogram_format must be one of: png, html")
	}
	if c.Output.PlotEvents && c.Output.PlotsDir == "" {
		return fmt.Errorf("output.plots_dir is required when output.plot_events is enabled")
	}

	// Validate Storage config
	if c.Storage.Enabled && c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required when storage is enabled")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Validate checks the analysis parameters. These errors are fatal to a run and
// are reported before any file is read.
func (a *AnalysisConfig) Validate() error {
	if a.Fpra < 1 {
		return fmt.Errorf("analysis.fpra must be a positive integer")
	}
	if a.FrameThresholdCount < 1 {
		return fmt.Errorf("analysis.frame_threshold_count must be a positive integer")
	}
	if a.Fpra > a.FrameThresholdCount {
		return fmt.Errorf("analysis.frame_threshold_count must be greater than or equal to analysis.fpra")
	}
	if a.HeadingStdThreshold < 0 || a.HeadingStdThreshold > 2 {
		return fmt.Errorf("analysis.heading_std_threshold must be between 0 and 2")
	}
	if a.SpeedFraction < 0 || a.SpeedFraction > 1 {
		return fmt.Errorf("analysis.speed_fraction must be between 0 and 1")
	}
	if a.Framerate < 0 {
		return fmt.Errorf("analysis.framerate must not be negative")
	}
	if a.HeadingSmoothing != HeadingSmoothingAngle && a.HeadingSmoothing != HeadingSmoothingVector {
		return fmt.Errorf("analysis.heading_smoothing must be one of: %s, %s", HeadingSmoothingAngle, HeadingSmoothingVector)
	}
	if a.Workers < 1 {
		return fmt.Errorf("analysis.workers must be at least 1")
	}
	return nil
}
