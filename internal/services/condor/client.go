package condor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"htcimaging/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps condor_submit and condor_history.
type Client struct {
	submitBinary  string
	historyBinary string
	timeout       time.Duration
	exec          Executor
}

// Submission is the scheduler's answer to a successful condor_submit.
type Submission struct {
	ClusterID int64
	JobCount  int
	Output    []string
}

var submittedPattern = regexp.MustCompile(`(\d+)\s+job\(s\)\s+submitted\s+to\s+cluster\s+(\d+)`)

// New constructs a scheduler client.
func New(submitBinary, historyBinary string, timeoutSeconds int, opts ...Option) (*Client, error) {
	submitBinary = strings.TrimSpace(submitBinary)
	historyBinary = strings.TrimSpace(historyBinary)
	if submitBinary == "" || historyBinary == "" {
		return nil, errors.New("condor submit and history binaries required")
	}
	client := &Client{
		submitBinary:  submitBinary,
		historyBinary: historyBinary,
		timeout:       time.Duration(timeoutSeconds) * time.Second,
		exec:          commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Submit queues the jobs described by submitFile and returns the cluster id.
func (c *Client) Submit(ctx context.Context, submitFile string) (Submission, error) {
	submitFile = strings.TrimSpace(submitFile)
	if submitFile == "" {
		return Submission{}, services.Wrap(services.ErrValidation, "submit", "condor_submit", "submit file required", nil)
	}

	runCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	var lines []string
	err := c.exec.Run(runCtx, c.submitBinary, []string{submitFile}, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		return Submission{Output: lines}, c.wrapRunError(runCtx, "submit", c.submitBinary, err)
	}

	sub, ok := ParseSubmitOutput(lines)
	if !ok {
		return Submission{Output: lines}, services.Wrap(services.ErrExternalTool, "submit", c.submitBinary, "no cluster id in output", nil)
	}
	sub.Output = lines
	return sub, nil
}

// History returns the raw JSON job ads for a cluster.
func (c *Client) History(ctx context.Context, clusterID int64) ([]byte, error) {
	if clusterID <= 0 {
		return nil, services.Wrap(services.ErrValidation, "history", c.historyBinary, fmt.Sprintf("invalid cluster id %d", clusterID), nil)
	}

	runCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	var b strings.Builder
	err := c.exec.Run(runCtx, c.historyBinary, []string{"-json", strconv.FormatInt(clusterID, 10)}, func(line string) {
		b.WriteString(line)
		b.WriteByte('\n')
	})
	if err != nil {
		return nil, c.wrapRunError(runCtx, "history", c.historyBinary, err)
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return nil, services.Wrap(services.ErrNotFound, "history", c.historyBinary, fmt.Sprintf("no history for cluster %d", clusterID), nil)
	}
	return []byte(out), nil
}

// ParseSubmitOutput extracts the job count and cluster id from condor_submit output.
func ParseSubmitOutput(lines []string) (Submission, bool) {
	for _, line := range lines {
		match := submittedPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		count, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		cluster, err := strconv.ParseInt(match[2], 10, 64)
		if err != nil {
			continue
		}
		return Submission{ClusterID: cluster, JobCount: count}, true
	}
	return Submission{}, false
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

func (c *Client) wrapRunError(ctx context.Context, phase, binary string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, phase, binary, fmt.Sprintf("exceeded %s", c.timeout), err)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return services.Wrap(services.ErrConfiguration, phase, binary, "binary not found on PATH", err)
	}
	return services.Wrap(services.ErrExternalTool, phase, binary, "command failed", err)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	wg.Add(1)
	go func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			if onStdout != nil {
				onStdout(scanner.Text())
			}
		}
		scanErr = scanner.Err()
	}(stdout)
	wg.Wait()

	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}
	if err := cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("wait command: %w: %s", err, msg)
		}
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
