package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// JobStatusCompleted is the scheduler's JobStatus for a finished job.
const JobStatusCompleted = 4

// Record is the timing view of one scheduler job.
type Record struct {
	ClusterID int64 `json:"cluster_id"`
	ProcID    int64 `json:"proc_id"`
	JobStatus int   `json:"job_status"`
	ExitCode  int   `json:"exit_code"`

	JobStart       time.Time `json:"job_start,omitzero"`
	InputStart     time.Time `json:"input_start,omitzero"`
	InputEnd       time.Time `json:"input_end,omitzero"`
	OutputStart    time.Time `json:"output_start,omitzero"`
	OutputEnd      time.Time `json:"output_end,omitzero"`
	JobEnd         time.Time `json:"job_end,omitzero"`
	CompletionTime time.Time `json:"completion,omitzero"`
}

// Failed reports whether the job did not complete with exit code zero.
func (r Record) Failed() bool {
	return r.JobStatus != JobStatusCompleted || r.ExitCode != 0
}

// HasCompletion reports whether the scheduler recorded a completion date.
func (r Record) HasCompletion() bool {
	return !r.CompletionTime.IsZero()
}

// InputTransfer returns the input transfer duration in seconds.
func (r Record) InputTransfer() (float64, bool) {
	return span(r.InputStart, r.InputEnd)
}

// JobDuration returns the time from job start to the job-finished hook.
func (r Record) JobDuration() (float64, bool) {
	return span(r.JobStart, r.JobEnd)
}

// OutputTransfer returns the output transfer duration in seconds.
func (r Record) OutputTransfer() (float64, bool) {
	return span(r.OutputStart, r.OutputEnd)
}

// Total returns completion minus job start.
func (r Record) Total() (float64, bool) {
	return span(r.JobStart, r.CompletionTime)
}

// Execution returns the job duration, falling back to the gap between the
// end of input transfer and the start of output transfer.
func (r Record) Execution() (float64, bool) {
	if d, ok := r.JobDuration(); ok {
		return d, true
	}
	return span(r.InputEnd, r.OutputStart)
}

func span(start, end time.Time) (float64, bool) {
	if start.IsZero() || end.IsZero() {
		return 0, false
	}
	return end.Sub(start).Seconds(), true
}

// jobAd holds the ClassAd attributes read from condor_history -json.
type jobAd struct {
	ClusterID                          *int64 `json:"ClusterId"`
	ProcID                             *int64 `json:"ProcId"`
	JobStatus                          *int   `json:"JobStatus"`
	ExitCode                           *int   `json:"ExitCode"`
	JobCurrentStartDate                *int64 `json:"JobCurrentStartDate"`
	JobCurrentStartTransferInputDate   *int64 `json:"JobCurrentStartTransferInputDate"`
	JobCurrentFinishTransferInputDate  *int64 `json:"JobCurrentFinishTransferInputDate"`
	JobCurrentStartTransferOutputDate  *int64 `json:"JobCurrentStartTransferOutputDate"`
	JobCurrentFinishTransferOutputDate *int64 `json:"JobCurrentFinishTransferOutputDate"`
	JobFinishedHookTime                *int64 `json:"JobFinishedHookTime"`
	CompletionDate                     *int64 `json:"CompletionDate"`
}

func (ad jobAd) record() Record {
	return Record{
		ClusterID:      deref(ad.ClusterID),
		ProcID:         deref(ad.ProcID),
		JobStatus:      derefInt(ad.JobStatus),
		ExitCode:       derefInt(ad.ExitCode),
		JobStart:       unixTime(ad.JobCurrentStartDate),
		InputStart:     unixTime(ad.JobCurrentStartTransferInputDate),
		InputEnd:       unixTime(ad.JobCurrentFinishTransferInputDate),
		OutputStart:    unixTime(ad.JobCurrentStartTransferOutputDate),
		OutputEnd:      unixTime(ad.JobCurrentFinishTransferOutputDate),
		JobEnd:         unixTime(ad.JobFinishedHookTime),
		CompletionTime: unixTime(ad.CompletionDate),
	}
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func unixTime(v *int64) time.Time {
	if v == nil || *v == 0 {
		return time.Time{}
	}
	return time.Unix(*v, 0).UTC()
}

// Parse decodes scheduler job ads. It accepts either a JSON array of ads or
// a stream of concatenated ad objects.
func Parse(r io.Reader) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read job history: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var ads []jobAd
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &ads); err != nil {
			return nil, fmt.Errorf("decode job history: %w", err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		for {
			var ad jobAd
			if err := dec.Decode(&ad); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("decode job ad %d: %w", len(ads), err)
			}
			ads = append(ads, ad)
		}
	}

	records := make([]Record, 0, len(ads))
	for _, ad := range ads {
		records = append(records, ad.record())
	}
	return records, nil
}
