package condor_test

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"htcimaging/internal/services"
	"htcimaging/internal/services/condor"
)

type stubExecutor struct {
	lines  []string
	err    error
	delay  time.Duration
	binary string
	args   []string
}

func (s *stubExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	s.binary = binary
	s.args = append([]string(nil), args...)
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.delay):
		}
	}
	for _, line := range s.lines {
		onStdout(line)
	}
	return s.err
}

func newClient(t *testing.T, exec *stubExecutor, timeout int) *condor.Client {
	t.Helper()
	client, err := condor.New("condor_submit", "condor_history", timeout, condor.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return client
}

func TestSubmitParsesClusterID(t *testing.T) {
	exec := &stubExecutor{lines: []string{
		"Submitting job(s)...........",
		"12 job(s) submitted to cluster 944143.",
	}}
	client := newClient(t, exec, 5)

	sub, err := client.Submit(context.Background(), "/work/tclean.sub")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if sub.ClusterID != 944143 || sub.JobCount != 12 {
		t.Fatalf("unexpected submission: %+v", sub)
	}
	if exec.binary != "condor_submit" || len(exec.args) != 1 || exec.args[0] != "/work/tclean.sub" {
		t.Fatalf("unexpected invocation: %s %v", exec.binary, exec.args)
	}
}

func TestSubmitWithoutClusterLineFails(t *testing.T) {
	client := newClient(t, &stubExecutor{lines: []string{"ERROR: on Line 3"}}, 5)
	_, err := client.Submit(context.Background(), "tclean.sub")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestSubmitMissingBinaryIsConfigurationError(t *testing.T) {
	client := newClient(t, &stubExecutor{err: exec.ErrNotFound}, 5)
	_, err := client.Submit(context.Background(), "tclean.sub")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSubmitTimeout(t *testing.T) {
	client := newClient(t, &stubExecutor{delay: 3 * time.Second}, 1)
	_, err := client.Submit(context.Background(), "tclean.sub")
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestHistoryReturnsJSON(t *testing.T) {
	exec := &stubExecutor{lines: []string{"[", `{"ClusterId": 7, "ProcId": 0}`, "]"}}
	client := newClient(t, exec, 5)

	data, err := client.History(context.Background(), 7)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if !strings.Contains(string(data), `"ClusterId": 7`) {
		t.Fatalf("unexpected history payload: %s", data)
	}
	if strings.Join(exec.args, " ") != "-json 7" {
		t.Fatalf("unexpected args: %v", exec.args)
	}
}

func TestHistoryEmptyIsNotFound(t *testing.T) {
	client := newClient(t, &stubExecutor{}, 5)
	if _, err := client.History(context.Background(), 7); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := client.History(context.Background(), 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for zero cluster, got %v", err)
	}
}

func TestParseSubmitOutputSingleJob(t *testing.T) {
	sub, ok := condor.ParseSubmitOutput([]string{"1 job(s) submitted to cluster 5."})
	if !ok || sub.ClusterID != 5 || sub.JobCount != 1 {
		t.Fatalf("unexpected parse result: %+v %v", sub, ok)
	}
	if _, ok := condor.ParseSubmitOutput(nil); ok {
		t.Fatal("expected no match for empty output")
	}
}
