package main

// SweepPoint holds the batch totals for one threshold combination
type SweepPoint struct {
	HeadingStdThreshold float64
	SpeedFraction       float64

	Files             int
	Failures          int
	Trajectories      int
	Reverses          int
	Tumbles           int
	MeanReverseRate   float64 // per organism per second, averaged over files
	MeanTumbleRate    float64
	ProlongedEpisodes int
	MeanEpisodeSecs   float64
}

// Events returns reverses plus tumbles
func (p SweepPoint) Events() int {
	return p.Reverses + p.Tumbles
}
