// Package trajectory reads tracker exports into per-organism position
// histories.
//
// Two layouts are recognised. TrackMate spot tables have a header of feature
// keys (TRACK_ID, POSITION_X, POSITION_Y, FRAME) followed by three descriptive
// rows whose second column of the first is "Spot ID". Mosaic tables carry the
// columns Trajectory, x, y and Frame directly.
package trajectory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rewired-gh/mtbevents/internal/models"
)

// Tracker identifies the tool that produced a file.
type Tracker string

const (
	TrackMate Tracker = "TrackMate"
	Mosaic    Tracker = "Mosaic"
)

// trackMateDescriptiveRows follow the key row in TrackMate exports.
const trackMateDescriptiveRows = 3

type columns struct {
	id, x, y, frame string
}

var layouts = map[Tracker]columns{
	TrackMate: {id: "TRACK_ID", x: "POSITION_X", y: "POSITION_Y", frame: "FRAME"},
	Mosaic:    {id: "Trajectory", x: "x", y: "y", frame: "Frame"},
}

// ErrMissingColumn is returned when a required column is absent.
var ErrMissingColumn = errors.New("missing column")

// Store maps trajectory ids to their frame-ordered positions.
type Store struct {
	Tracker Tracker
	tracks  map[int][]models.Position
	found   int
}

// Found returns the number of distinct trajectories read, before trimming.
func (s *Store) Found() int {
	return s.found
}

// Len returns the number of trajectories currently held.
func (s *Store) Len() int {
	return len(s.tracks)
}

// IDs returns the held trajectory ids in ascending order.
func (s *Store) IDs() []int {
	ids := make([]int, 0, len(s.tracks))
	for id := range s.tracks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Get returns the trajectory with the given id.
func (s *Store) Get(id int) (models.Trajectory, bool) {
	ps, ok := s.tracks[id]
	if !ok {
		return models.Trajectory{}, false
	}
	return models.Trajectory{ID: id, Positions: ps}, true
}

// Trajectories returns all held trajectories in id order.
func (s *Store) Trajectories() []models.Trajectory {
	ids := s.IDs()
	out := make([]models.Trajectory, len(ids))
	for i, id := range ids {
		out[i] = models.Trajectory{ID: id, Positions: s.tracks[id]}
	}
	return out
}

// Trim drops trajectories with minFrames positions or fewer and returns how
// many were dropped.
func (s *Store) Trim(minFrames int) int {
	dropped := 0
	for id, ps := range s.tracks {
		if len(ps) <= minFrames {
			delete(s.tracks, id)
			dropped++
		}
	}
	return dropped
}

// ReadFile opens and reads one tracker export.
func ReadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trajectory file: %w", err)
	}
	defer f.Close()

	s, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Read parses a tracker export. Rows whose track id is not numeric (spots
// TrackMate could not link) are dropped.
func Read(r io.Reader) (*Store, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("empty file")
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	rows := records[1:]

	tracker := detect(rows)
	if tracker == TrackMate {
		if len(rows) < trackMateDescriptiveRows {
			rows = nil
		} else {
			rows = rows[trackMateDescriptiveRows:]
		}
	}

	idx, err := locate(header, layouts[tracker])
	if err != nil {
		return nil, fmt.Errorf("%s layout: %w", tracker, err)
	}

	s := &Store{Tracker: tracker, tracks: make(map[int][]models.Position)}
	for n, row := range rows {
		id, ok := parseID(field(row, idx.id))
		if !ok {
			continue
		}
		x, err := parseFloat(field(row, idx.x))
		if err != nil {
			return nil, fmt.Errorf("row %d: x: %w", n+2, err)
		}
		y, err := parseFloat(field(row, idx.y))
		if err != nil {
			return nil, fmt.Errorf("row %d: y: %w", n+2, err)
		}
		frame, err := parseFloat(field(row, idx.frame))
		if err != nil {
			return nil, fmt.Errorf("row %d: frame: %w", n+2, err)
		}
		s.tracks[id] = append(s.tracks[id], models.Position{X: x, Y: y, Frame: int(frame)})
	}

	for id, ps := range s.tracks {
		sort.SliceStable(ps, func(i, j int) bool { return ps[i].Frame < ps[j].Frame })
		s.tracks[id] = ps
	}
	s.found = len(s.tracks)
	return s, nil
}

func detect(rows [][]string) Tracker {
	if len(rows) > 0 && len(rows[0]) > 1 && strings.TrimSpace(rows[0][1]) == "Spot ID" {
		return TrackMate
	}
	return Mosaic
}

type indexes struct {
	id, x, y, frame int
}

func locate(header []string, c columns) (indexes, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if _, dup := pos[name]; !dup {
			pos[name] = i
		}
	}

	lookup := func(name string) (int, error) {
		i, ok := pos[name]
		if !ok {
			return 0, fmt.Errorf("%w %q", ErrMissingColumn, name)
		}
		return i, nil
	}

	var idx indexes
	var err error
	if idx.id, err = lookup(c.id); err != nil {
		return idx, err
	}
	if idx.x, err = lookup(c.x); err != nil {
		return idx, err
	}
	if idx.y, err = lookup(c.y); err != nil {
		return idx, err
	}
	if idx.frame, err = lookup(c.frame); err != nil {
		return idx, err
	}
	return idx, nil
}

func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// parseID accepts integer and float-typed ids, truncating the latter.
func parseID(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	if id, err := strconv.Atoi(s); err == nil {
		return id, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}
