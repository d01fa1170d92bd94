package main

import (
	"fmt"
	"strings"
)

// printTable displays one line per threshold combination
func printTable(points []SweepPoint) {
	fmt.Printf("%8s %8s %6s %8s %8s %8s %12s %12s %9s\n",
		"hstd", "speed", "files", "trajs", "revs", "tumbles", "rev/s/org", "tumble/s/org", "episodes")
	fmt.Println(strings.Repeat("-", 90))
	for _, p := range points {
		fmt.Printf("%8.3f %8.3f %6d %8d %8d %8d %12.5f %12.5f %9d\n",
			p.HeadingStdThreshold, p.SpeedFraction, p.Files, p.Trajectories,
			p.Reverses, p.Tumbles, p.MeanReverseRate, p.MeanTumbleRate, p.ProlongedEpisodes)
	}
}

// printSensitivity reports how strongly the event count reacts to each
// threshold across the grid
func printSensitivity(points []SweepPoint) {
	if len(points) < 2 {
		return
	}
	lo, hi := points[0], points[0]
	for _, p := range points[1:] {
		if p.Events() < lo.Events() {
			lo = p
		}
		if p.Events() > hi.Events() {
			hi = p
		}
	}

	fmt.Println("\nSENSITIVITY:")
	fmt.Printf("  Fewest events: %d (heading_std_threshold=%.3f, speed_fraction=%.3f)\n",
		lo.Events(), lo.HeadingStdThreshold, lo.SpeedFraction)
	fmt.Printf("  Most events:   %d (heading_std_threshold=%.3f, speed_fraction=%.3f)\n",
		hi.Events(), hi.HeadingStdThreshold, hi.SpeedFraction)
	if hi.Events() == lo.Events() {
		fmt.Println("  Event counts do not depend on the swept thresholds in this data set.")
	}
}
