package filemeta

import (
	"errors"
	"testing"
)

func TestFramerate(t *testing.T) {
	tests := []struct {
		name   string
		want   int
		wantOK bool
	}{
		{"sample_30fps.csv", 30, true},
		{"/data/run2_2mT_60fps_spots.csv", 60, true},
		{"slow_12.9fps.csv", 12, true},
		{"nofps.csv", 0, false},
		{"30fps.csv", 0, false},
		{"/data_25fps/plain.csv", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Framerate(tt.name)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Framerate(%q) = %d, %v; want %d, %v", tt.name, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFieldStrength(t *testing.T) {
	tests := []struct {
		name   string
		want   float64
		wantOK bool
	}{
		{"run_2.5mT_30fps.csv", 2.5, true},
		{"run_10MT.csv", 10, true},
		{"run_30fps.csv", 0, false},
	}
	for _, tt := range tests {
		got, ok := FieldStrength(tt.name)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("FieldStrength(%q) = %v, %v; want %v, %v", tt.name, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestResolve(t *testing.T) {
	fr, err := Resolve("a_50fps.csv", 30)
	if err != nil || fr != 50 {
		t.Errorf("filename framerate should win, got %v, %v", fr, err)
	}

	fr, err = Resolve("a.csv", 24)
	if err != nil || fr != 24 {
		t.Errorf("configured framerate expected, got %v, %v", fr, err)
	}

	if _, err := Resolve("a.csv", 0); !errors.Is(err, ErrNoFramerate) {
		t.Errorf("expected ErrNoFramerate, got %v", err)
	}
	if _, err := Resolve("a_0fps.csv", 30); !errors.Is(err, ErrNoFramerate) {
		t.Errorf("expected ErrNoFramerate for zero fps, got %v", err)
	}
}
