package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/mtbevents/internal/models"
)

func sampleSummaries() []models.FileSummary {
	return []models.FileSummary{
		{
			Filename:            "run1_30fps.csv",
			Fpra:                10,
			FrameThresholdCount: 40,
			Framerate:           30,
			TotalFrames:         300,
			Reverses:            3,
			Tumbles:             1,
			ReverseProbability:  0.05,
			TumbleProbability:   0.25,
		},
		{
			Filename:            "run2_15fps.csv",
			Fpra:                10,
			FrameThresholdCount: 40,
			Framerate:           15,
			TotalFrames:         45,
		},
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleSummaries()))

	want := strings.Join([]string{
		"filename,fpra,total_time,num_revs,prob_of_rev(%),num_tumbles,prob_of_tumble(%),frame_threshold_count,framerate",
		"run1_30fps,10,10,3,5,1,25,40,30",
		"run2_15fps,10,3,0,0,0,0,40,15",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", DefaultFilename)

	require.NoError(t, WriteFile(path, sampleSummaries()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "MTB_Events_Results.csv"), DefaultPath("data"))
}
