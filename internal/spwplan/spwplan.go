// Package spwplan splits the spectral windows of a measurement set into
// channel chunks, one per imaging job, without crossing window boundaries.
package spwplan

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Chunk is one contiguous channel range of one spectral window.
type Chunk struct {
	SPW       string `json:"spw"`
	First     int    `json:"first"`
	Last      int    `json:"last"`
	Selection string `json:"selection"`
	Name      string `json:"name"`
}

// Channels returns the number of channels in the chunk.
func (c Chunk) Channels() int { return c.Last - c.First + 1 }

// Tarball is the archive name the chunk is shipped as.
func (c Chunk) Tarball() string { return c.Name + ".tar.gz" }

// ChunkSize returns ceil(sum(nchan) / njob).
func ChunkSize(njob int, nchan []int) int {
	total := 0
	for _, n := range nchan {
		total += n
	}
	if njob <= 0 || total <= 0 {
		return 0
	}
	return (total + njob - 1) / njob
}

// Plan splits every spw into chunks of ChunkSize channels. nchan holds
// either one count for all windows or one count per window. The last chunk
// of a window is clamped to its channel count. Selections are inclusive
// (spw:first~last); names carry the exclusive end channel.
func Plan(ms string, njob int, spws []string, nchan []int) ([]Chunk, error) {
	if njob <= 0 {
		return nil, fmt.Errorf("njob must be positive, got %d", njob)
	}
	if len(spws) == 0 {
		return nil, errors.New("at least one spw is required")
	}
	counts, err := expandCounts(spws, nchan)
	if err != nil {
		return nil, err
	}
	size := ChunkSize(njob, counts)
	stem := strings.TrimSuffix(filepath.Base(ms), ".ms")

	var chunks []Chunk
	for i, spw := range spws {
		for first := 0; first < counts[i]; first += size {
			end := min(first+size, counts[i])
			chunks = append(chunks, Chunk{
				SPW:       spw,
				First:     first,
				Last:      end - 1,
				Selection: fmt.Sprintf("%s:%d~%d", spw, first, end-1),
				Name:      fmt.Sprintf("%s_spw%s_chans_%d_%d.ms", stem, spw, first, end),
			})
		}
	}
	return chunks, nil
}

func expandCounts(spws []string, nchan []int) ([]int, error) {
	var counts []int
	switch len(nchan) {
	case 1:
		counts = make([]int, len(spws))
		for i := range counts {
			counts[i] = nchan[0]
		}
	case len(spws):
		counts = nchan
	default:
		return nil, fmt.Errorf("nchan has %d values; want 1 or one per spw (%d)", len(nchan), len(spws))
	}
	for i, n := range counts {
		if n <= 0 {
			return nil, fmt.Errorf("spw %s: channel count must be positive, got %d", spws[i], n)
		}
	}
	return counts, nil
}

// ParseSPWs splits a comma-separated spw list.
func ParseSPWs(list string) ([]string, error) {
	var spws []string
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.ContainsAny(part, ":~ ") {
			return nil, fmt.Errorf("spw %q must be a bare window id", part)
		}
		spws = append(spws, part)
	}
	if len(spws) == 0 {
		return nil, errors.New("spw list is empty")
	}
	return spws, nil
}

// ParseCounts splits a comma-separated list of channel counts.
func ParseCounts(list string) ([]int, error) {
	var counts []int
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("channel count %q: %w", part, err)
		}
		counts = append(counts, n)
	}
	if len(counts) == 0 {
		return nil, errors.New("channel count list is empty")
	}
	return counts, nil
}
