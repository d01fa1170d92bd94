// Package filemeta extracts acquisition metadata encoded in trajectory file
// names, e.g. "run3_2.5mT_30fps.csv".
package filemeta

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
)

// ErrNoFramerate is returned when neither the file name nor the configuration
// supplies a positive framerate.
var ErrNoFramerate = errors.New("no framerate in file name or configuration")

var (
	framerateRe     = regexp.MustCompile(`_(\d+(?:\.\d+)?)fps`)
	fieldStrengthRe = regexp.MustCompile(`(?i)_(\d+(?:\.\d+)?)mt`)
)

// Framerate returns the frames per second encoded as "_<N>fps" in the base
// name of path. Fractional values are floored.
func Framerate(path string) (int, bool) {
	v, ok := match(framerateRe, path)
	if !ok {
		return 0, false
	}
	return int(math.Floor(v)), true
}

// FieldStrength returns the magnetic field strength encoded as "_<N>mT".
func FieldStrength(path string) (float64, bool) {
	return match(fieldStrengthRe, path)
}

// Resolve picks the framerate for a file. A value in the file name wins over
// the configured one.
func Resolve(path string, configured float64) (float64, error) {
	if fr, ok := Framerate(path); ok {
		if fr <= 0 {
			return 0, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoFramerate)
		}
		return float64(fr), nil
	}
	if configured > 0 {
		return configured, nil
	}
	return 0, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoFramerate)
}

func match(re *regexp.Regexp, path string) (float64, bool) {
	m := re.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
