package history

import (
	"math"
	"strings"
	"testing"
	"time"
)

const sampleHistory = `[
  {"ClusterId": 944143, "ProcId": 0, "JobStatus": 4, "ExitCode": 0,
   "JobCurrentStartDate": 1000,
   "JobCurrentStartTransferInputDate": 1000, "JobCurrentFinishTransferInputDate": 1010,
   "JobCurrentStartTransferOutputDate": 1100, "JobCurrentFinishTransferOutputDate": 1105,
   "JobFinishedHookTime": 1105, "CompletionDate": 1110},
  {"ClusterId": 944143, "ProcId": 1, "JobStatus": 4, "ExitCode": 1,
   "JobCurrentStartDate": 1000,
   "JobCurrentStartTransferInputDate": 1000, "JobCurrentFinishTransferInputDate": 1020,
   "JobCurrentStartTransferOutputDate": 1200, "JobCurrentFinishTransferOutputDate": 1210,
   "CompletionDate": 1220},
  {"ClusterId": 944143, "ProcId": 2, "JobStatus": 5, "JobCurrentStartDate": 1050, "CompletionDate": 0}
]`

func mustParse(t *testing.T) []Record {
	t.Helper()
	records, err := Parse(strings.NewReader(sampleHistory))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	return records
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestParseRecord(t *testing.T) {
	records := mustParse(t)
	first := records[0]
	if first.ClusterID != 944143 || first.ProcID != 0 {
		t.Fatalf("unexpected ids: %+v", first)
	}
	if d, ok := first.InputTransfer(); !ok || d != 10 {
		t.Fatalf("input transfer = %v, %v", d, ok)
	}
	if d, ok := first.Total(); !ok || d != 110 {
		t.Fatalf("total = %v, %v", d, ok)
	}
	if first.Failed() {
		t.Fatal("completed job with exit 0 should not be failed")
	}
	if !records[1].Failed() || !records[2].Failed() {
		t.Fatal("non-zero exit and held job should be failed")
	}
	if records[2].HasCompletion() {
		t.Fatal("zero completion date should be absent")
	}
	if _, ok := records[1].JobDuration(); ok {
		t.Fatal("missing hook time should leave job duration absent")
	}
	if d, ok := records[1].Execution(); !ok || d != 180 {
		t.Fatalf("execution fallback = %v, %v; want 180", d, ok)
	}
}

func TestParseConcatenatedAds(t *testing.T) {
	input := `{"ClusterId": 7, "ProcId": 0}
{"ClusterId": 7, "ProcId": 1}`
	records, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(records) != 2 || records[1].ProcID != 1 {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestParseEmptyAndInvalid(t *testing.T) {
	records, err := Parse(strings.NewReader("  \n"))
	if err != nil || len(records) != 0 {
		t.Fatalf("empty input = %v, %v", records, err)
	}
	if _, err := Parse(strings.NewReader("[{")); err == nil {
		t.Fatal("expected error for truncated json")
	}
}

func TestSummarize(t *testing.T) {
	summary := Summarize(mustParse(t))
	if summary.Total != 3 || summary.Failed != 2 {
		t.Fatalf("total/failed = %d/%d", summary.Total, summary.Failed)
	}
	if !approx(summary.SuccessRate, 100.0/3) {
		t.Fatalf("success rate = %v", summary.SuccessRate)
	}
	if summary.WithCompletion != 2 || summary.WithoutCompletion != 1 {
		t.Fatalf("completion split = %d/%d", summary.WithCompletion, summary.WithoutCompletion)
	}
	if len(summary.Incomplete) != 1 || summary.Incomplete[0].Name != "Held" || summary.Incomplete[0].Count != 1 {
		t.Fatalf("incomplete = %+v", summary.Incomplete)
	}

	input := summary.Durations[DurationInputTransfer]
	if input.Count != 2 || input.Mean != 15 {
		t.Fatalf("input stats = %+v", input)
	}
	job := summary.Durations[DurationJob]
	if job.Count != 1 || job.Mean != 105 || job.StdDev != 0 {
		t.Fatalf("job stats = %+v", job)
	}
	total := summary.Durations[DurationTotal]
	if total.Median != 165 || !approx(total.StdDev, math.Sqrt(2*55*55)) {
		t.Fatalf("total stats = %+v", total)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	if summary.Total != 0 || summary.SuccessRate != 0 || len(summary.Durations) != 0 {
		t.Fatalf("unexpected empty summary %+v", summary)
	}
}

func TestStatusName(t *testing.T) {
	cases := map[int]string{
		1:  "Idle",
		4:  "Completed",
		6:  "Transferring Output",
		42: "Unknown (42)",
	}
	for code, want := range cases {
		if got := StatusName(code); got != want {
			t.Fatalf("StatusName(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestConcurrency(t *testing.T) {
	report := Concurrency(mustParse(t), 30*time.Second)
	if report.Jobs != 2 {
		t.Fatalf("jobs = %d, want 2", report.Jobs)
	}
	want := []int{2, 2, 2, 2, 1, 1, 1, 0}
	if len(report.Bins) != len(want) {
		t.Fatalf("bins = %d, want %d", len(report.Bins), len(want))
	}
	for i, bin := range report.Bins {
		if bin.Running != want[i] {
			t.Fatalf("bin %d running = %d, want %d", i, bin.Running, want[i])
		}
	}
	if report.Max != 2 || report.Mean != 11.0/8 || report.Median != 1.5 {
		t.Fatalf("max/mean/median = %d/%v/%v", report.Max, report.Mean, report.Median)
	}
	if !report.Bins[0].Centre.Equal(time.Unix(1015, 0)) {
		t.Fatalf("first centre = %v", report.Bins[0].Centre)
	}
}

func TestConcurrencyWithoutTimingData(t *testing.T) {
	report := Concurrency([]Record{{ProcID: 1}}, 30*time.Second)
	if report.Jobs != 0 || len(report.Bins) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestCompletion(t *testing.T) {
	report := Completion(mustParse(t))
	if report.Total != 3 || report.Completed != 2 {
		t.Fatalf("total/completed = %d/%d", report.Total, report.Completed)
	}
	if report.Span != 110*time.Second {
		t.Fatalf("span = %v", report.Span)
	}
	if !approx(report.JobsPerMinute, 2/(110.0/60)) {
		t.Fatalf("jobs per minute = %v", report.JobsPerMinute)
	}
	if report.Points[1].Cumulative != 2 || !report.Points[1].Time.Equal(time.Unix(1220, 0)) {
		t.Fatalf("last point = %+v", report.Points[1])
	}
}

func TestBuildHistogramBuckets(t *testing.T) {
	hist := BuildHistogram([]float64{0, -3, 1, 2, 3, 4}, 3)
	if hist.Trimmed {
		t.Fatal("did not expect trimming")
	}
	if hist.Stats.Count != 4 {
		t.Fatalf("non-positive values should be dropped, count = %d", hist.Stats.Count)
	}
	want := []int{1, 1, 2}
	for i, b := range hist.Buckets {
		if b.Count != want[i] {
			t.Fatalf("bucket %d = %d, want %d", i, b.Count, want[i])
		}
	}
	if hist.Buckets[2].Upper != 4 {
		t.Fatalf("last upper = %v", hist.Buckets[2].Upper)
	}
}

func TestBuildHistogramTrimsOutliers(t *testing.T) {
	values := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 100}
	hist := BuildHistogram(values, 10)
	if !hist.Trimmed {
		t.Fatal("expected trimming when mean exceeds five times the median")
	}
	if hist.Excluded != 1 {
		t.Fatalf("excluded = %d, want 1", hist.Excluded)
	}
	if !approx(hist.Cutoff, 90.1) {
		t.Fatalf("cutoff = %v, want 90.1", hist.Cutoff)
	}
	if hist.PlottedStats.Count != 9 || hist.PlottedStats.Max != 1 {
		t.Fatalf("plotted stats = %+v", hist.PlottedStats)
	}
	if len(hist.Buckets) != 1 || hist.Buckets[0].Count != 9 {
		t.Fatalf("buckets = %+v", hist.Buckets)
	}
}

func TestBuildHistogramEmpty(t *testing.T) {
	if hist := BuildHistogram([]float64{0, -1}, 5); len(hist.Buckets) != 0 {
		t.Fatalf("expected no buckets, got %+v", hist.Buckets)
	}
}

func TestPhases(t *testing.T) {
	jobs := Phases(mustParse(t))
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	if jobs[0].ProcID != 0 || jobs[1].ProcID != 1 || jobs[2].ProcID != 2 {
		t.Fatalf("unexpected order: %d %d %d", jobs[0].ProcID, jobs[1].ProcID, jobs[2].ProcID)
	}
	if len(jobs[0].Spans) != 3 || jobs[0].Spans[1].Duration != 105 {
		t.Fatalf("job 0 spans = %+v", jobs[0].Spans)
	}
	exec := jobs[1].Spans[1]
	if exec.Phase != PhaseExecution || exec.Duration != 180 || !exec.End.Equal(time.Unix(1200, 0)) {
		t.Fatalf("job 1 execution = %+v", exec)
	}
	if len(jobs[2].Spans) != 0 {
		t.Fatalf("job 2 should have no spans, got %+v", jobs[2].Spans)
	}

	stats := PhaseStats(jobs)
	if stats[PhaseInput].Mean != 15 || stats[PhaseOutput].Count != 2 {
		t.Fatalf("phase stats = %+v", stats)
	}
}

func TestPhaseHistograms(t *testing.T) {
	hists := PhaseHistograms(mustParse(t), 4)
	if hists[PhaseExecution].Stats.Count != 2 {
		t.Fatalf("execution count = %d", hists[PhaseExecution].Stats.Count)
	}
}

func TestClusterFromFilename(t *testing.T) {
	cases := []struct {
		name string
		want int64
		ok   bool
	}{
		{"condor_history_944143.json", 944143, true},
		{"/data/run7/condor_history_12.json", 12, true},
		{"history.json", 0, false},
	}
	for _, tc := range cases {
		got, ok := ClusterFromFilename(tc.name)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ClusterFromFilename(%q) = %d, %v", tc.name, got, ok)
		}
	}
}

func TestGroupByCluster(t *testing.T) {
	records := []Record{
		{ClusterID: 944143, ProcID: 1},
		{ClusterID: 12, ProcID: 0},
		{ClusterID: 944143, ProcID: 0},
	}
	groups, err := GroupByCluster(records, 2)
	if err != nil {
		t.Fatalf("GroupByCluster: %v", err)
	}
	if len(groups) != 2 || groups[0].ClusterID != 12 || groups[1].ClusterID != 944143 || len(groups[1].Records) != 2 {
		t.Fatalf("groups = %+v", groups)
	}

	groups, err = GroupByCluster([]Record{{ClusterID: 9, ProcID: 0}, {ProcID: 1}}, 2)
	if err != nil || len(groups) != 1 || groups[0].ClusterID != 9 || groups[0].Records[1].ClusterID != 9 {
		t.Fatalf("orphan should join cluster 9: %+v, %v", groups, err)
	}

	groups, err = GroupByCluster([]Record{{ProcID: 0}}, 2)
	if err != nil || len(groups) != 1 || groups[0].ClusterID != 2 {
		t.Fatalf("fallback not used: %+v, %v", groups, err)
	}

	if _, err := GroupByCluster([]Record{{ProcID: 0}}, 0); err == nil {
		t.Fatal("expected error without ClusterId or fallback")
	}
	if _, err := GroupByCluster([]Record{{ClusterID: 1}, {ClusterID: 2}, {ProcID: 3}}, 0); err == nil {
		t.Fatal("expected error for orphan ads in a mixed history")
	}
}

func TestDescribeAndPercentile(t *testing.T) {
	s := Describe([]float64{4, 1, 3, 2})
	if s.Count != 4 || s.Mean != 2.5 || s.Median != 2.5 || s.Min != 1 || s.Max != 4 {
		t.Fatalf("even sample stats = %+v", s)
	}
	if !approx(s.StdDev, math.Sqrt(5.0/3)) {
		t.Fatalf("std dev = %v", s.StdDev)
	}
	if odd := Describe([]float64{9, 1, 5}); odd.Median != 5 {
		t.Fatalf("odd median = %v", odd.Median)
	}
	if one := Describe([]float64{7}); one.StdDev != 0 || one.Median != 7 {
		t.Fatalf("single value stats = %+v", one)
	}
	if got := percentileSorted([]float64{10, 20, 30, 40}, 50); !approx(got, 20) {
		t.Fatalf("50th percentile = %v", got)
	}
}

func TestBucketizeIncludesMaximum(t *testing.T) {
	buckets := bucketize([]float64{0, 5, 10}, 2)
	if len(buckets) != 2 || buckets[0].Count != 1 || buckets[1].Count != 2 {
		t.Fatalf("buckets = %+v", buckets)
	}
	if buckets[0].Upper != 5 || buckets[1].Upper != 10 {
		t.Fatalf("bucket bounds = %+v", buckets)
	}
}
