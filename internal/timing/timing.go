// Package timing reads the per-job timing files the imaging executable
// writes (tclean_<jobid>_timing.txt): a header line followed by one row of
// epoch-second timestamps and durations for the untar and tclean steps.
package timing

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"htcimaging/internal/history"
)

// Header is the first line of every timing file.
const Header = "#untar_beg untar_end untar_duration tclean_beg tclean_end tclean_duration"

// TimingDir is where the organizer files timing outputs.
const TimingDir = "tclean_timing"

// fileName also matches the tclean_<id>_timing.<n>.txt copies the organizer
// creates under its rename collision policy.
var fileName = regexp.MustCompile(`^tclean_(\d+)_timing(?:\.(\d+))?\.txt$`)

// Record is the content of one timing file. Complete is false when the file
// holds only the header, which happens when the job failed before imaging.
type Record struct {
	JobID          int     `json:"job_id"`
	Path           string  `json:"path"`
	Copy           int     `json:"copy,omitempty"`
	Complete       bool    `json:"complete"`
	UntarBegin     float64 `json:"untar_begin,omitempty"`
	UntarEnd       float64 `json:"untar_end,omitempty"`
	UntarDuration  float64 `json:"untar_duration,omitempty"`
	TcleanBegin    float64 `json:"tclean_begin,omitempty"`
	TcleanEnd      float64 `json:"tclean_end,omitempty"`
	TcleanDuration float64 `json:"tclean_duration,omitempty"`
}

// Parse reads one timing file. The job id is left at zero.
func Parse(r io.Reader) (Record, error) {
	var rec Record
	scanner := bufio.NewScanner(r)
	sawHeader := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			sawHeader = true
			continue
		}
		if rec.Complete {
			return rec, fmt.Errorf("unexpected extra row %q", line)
		}
		fields := strings.Fields(line)
		if len(fields) != 6 {
			return rec, fmt.Errorf("timing row has %d fields, want 6", len(fields))
		}
		values := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return rec, fmt.Errorf("timing field %d: %w", i+1, err)
			}
			values[i] = v
		}
		rec.UntarBegin, rec.UntarEnd, rec.UntarDuration = values[0], values[1], values[2]
		rec.TcleanBegin, rec.TcleanEnd, rec.TcleanDuration = values[3], values[4], values[5]
		rec.Complete = true
	}
	if err := scanner.Err(); err != nil {
		return rec, fmt.Errorf("read timing file: %w", err)
	}
	if !sawHeader && !rec.Complete {
		return rec, errors.New("empty timing file")
	}
	return rec, nil
}

// JobIDFromName extracts the job id from tclean_<id>_timing.txt or a
// renamed copy tclean_<id>_timing.<n>.txt.
func JobIDFromName(name string) (int, bool) {
	id, _, ok := parseName(name)
	return id, ok
}

// parseName returns the job id and the rename counter, zero for the
// original file name.
func parseName(name string) (id, copyN int, ok bool) {
	m := fileName.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	if m[2] != "" {
		if copyN, err = strconv.Atoi(m[2]); err != nil {
			return 0, 0, false
		}
	}
	return id, copyN, true
}

// ParseFile reads one timing file and sets the job id from its name.
func ParseFile(path string) (Record, error) {
	id, copyN, ok := parseName(path)
	if !ok {
		return Record{}, fmt.Errorf("%s is not a tclean timing file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return Record{}, err
	}
	defer f.Close()
	rec, err := Parse(f)
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", path, err)
	}
	rec.JobID = id
	rec.Path = path
	rec.Copy = copyN
	return rec, nil
}

// ParseDir reads timing files in dir and dir/tclean_timing, ordered by job
// id. When both locations hold a file for the same job, the one in dir wins.
// Within one directory the renamed copy with the highest counter wins, since
// the organizer gives the counter to the newer file.
func ParseDir(dir string) ([]Record, error) {
	byID := map[int]Record{}
	for _, sub := range []string{filepath.Join(dir, TimingDir), dir} {
		seen := map[int]bool{}
		entries, err := os.ReadDir(sub)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", sub, err)
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			if _, ok := JobIDFromName(entry.Name()); !ok {
				continue
			}
			rec, err := ParseFile(filepath.Join(sub, entry.Name()))
			if err != nil {
				return nil, err
			}
			if prev, ok := byID[rec.JobID]; ok && seen[rec.JobID] && prev.Copy > rec.Copy {
				continue
			}
			byID[rec.JobID] = rec
			seen[rec.JobID] = true
		}
	}
	records := make([]Record, 0, len(byID))
	for _, rec := range byID {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].JobID < records[j].JobID })
	return records, nil
}

// Summary aggregates untar and tclean durations over complete records.
type Summary struct {
	Files      int           `json:"files"`
	Complete   int           `json:"complete"`
	Incomplete []int         `json:"incomplete,omitempty"`
	Untar      history.Stats `json:"untar"`
	Tclean     history.Stats `json:"tclean"`
}

// Summarize computes duration statistics for the complete records and lists
// the job ids that never reached imaging.
func Summarize(records []Record) Summary {
	s := Summary{Files: len(records)}
	var untar, tclean []float64
	for _, rec := range records {
		if !rec.Complete {
			s.Incomplete = append(s.Incomplete, rec.JobID)
			continue
		}
		s.Complete++
		untar = append(untar, rec.UntarDuration)
		tclean = append(tclean, rec.TcleanDuration)
	}
	s.Untar = history.Describe(untar)
	s.Tclean = history.Describe(tclean)
	return s
}
