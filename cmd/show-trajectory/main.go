// Command show-trajectory renders the debug panels of one trajectory: path,
// speed, heading and heading std, with the detection thresholds and the
// events found.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/rewired-gh/mtbevents/internal/config"
	"github.com/rewired-gh/mtbevents/internal/detector"
	"github.com/rewired-gh/mtbevents/internal/filemeta"
	"github.com/rewired-gh/mtbevents/internal/kinematics"
	"github.com/rewired-gh/mtbevents/internal/logger"
	"github.com/rewired-gh/mtbevents/internal/plotting"
	"github.com/rewired-gh/mtbevents/internal/trajectory"
)

func main() {
	file := flag.String("file", "", "Trajectory file (required)")
	id := flag.Int("trajectory", 1, "Trajectory id")
	fpra := flag.Int("fpra", 10, "Frames per rolling average")
	hstd := flag.Float64("heading-std-threshold", 0.5, "Heading std threshold")
	speedFraction := flag.Float64("speed-fraction", 0.66, "Slowing threshold as a fraction of median speed")
	framerate := flag.Float64("framerate", 0, "Framerate when the file name has none")
	smoothing := flag.String("heading-smoothing", config.HeadingSmoothingAngle, "Heading smoothing: angle or vector")
	out := flag.String("out", "plots", "Output directory")
	verbose := flag.Bool("v", false, "Log every latch resolution")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: show-trajectory -file <csv> [-trajectory N]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	logger.Init(level, "text")

	mode, err := kinematics.ParseSmoothing(*smoothing)
	if err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}
	fr, err := filemeta.Resolve(*file, *framerate)
	if err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}

	store, err := trajectory.ReadFile(*file)
	if err != nil {
		log.Fatalf("Failed to read trajectories: %v", err)
	}
	tr, ok := store.Get(*id)
	if !ok {
		log.Fatalf("Trajectory %d not found in %s (%d trajectories)", *id, *file, store.Len())
	}

	raw, err := kinematics.Derive(tr.Positions, 1, mode)
	if err != nil {
		log.Fatalf("Trajectory %d: %v", *id, err)
	}
	smoothed, err := kinematics.Derive(tr.Positions, *fpra, mode)
	if err != nil {
		log.Fatalf("Trajectory %d: %v", *id, err)
	}

	durations := detector.NewDurationCounter()
	det, err := detector.New(detector.Thresholds{SpeedFraction: *speedFraction, HeadingStdThreshold: *hstd}, durations)
	if err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}
	events, err := det.Scan(*id, smoothed)
	if err != nil {
		log.Fatalf("Trajectory %d: %v", *id, err)
	}

	files, err := plotting.SaveTrajectory(*out, plotting.TrajectoryPlot{
		File:      *file,
		ID:        *id,
		Positions: tr.Positions,
		Raw:       raw,
		Smoothed:  smoothed,
		Events:    events,
	}, plotting.Limits{SpeedFraction: *speedFraction, HeadingStdThreshold: *hstd})
	if err != nil {
		log.Fatalf("Failed to plot: %v", err)
	}

	fmt.Printf("Trajectory %d: %d positions, %.2fs at %.0f fps\n", *id, tr.Len(), float64(tr.Len())/fr, fr)
	for _, e := range events {
		fmt.Printf("  %-8s tick %d\n", e.Kind, e.Tick)
	}
	if n := durations.Count(*id); n > 0 {
		fmt.Printf("  prolonged episode ticks: %d (%.3fs)\n", n, float64(n)/fr)
	}
	for _, f := range files {
		fmt.Println(f)
	}
}
