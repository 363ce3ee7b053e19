package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
)

// Wrap builds an error message that includes phase context while tagging it
// with the provided marker. The marker should be one of the exported
// sentinel errors above; nil falls back to ErrExternalTool.
func Wrap(marker error, phase, operation, message string, err error) error {
	detail := buildDetail(phase, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Hint returns a short operator hint for the marker carried by err.
func Hint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "scheduler did not answer in time; check the schedd or raise condor.timeout_seconds"
	case errors.Is(err, ErrConfiguration):
		return "check the configuration file (htcimaging config validate)"
	case errors.Is(err, ErrValidation):
		return "fix the reported input and rerun"
	case errors.Is(err, ErrNotFound):
		return "verify the path or cluster id exists"
	case errors.Is(err, ErrExternalTool):
		return "inspect the scheduler tool output above"
	default:
		return "check logs for details"
	}
}

func buildDetail(phase, operation, message string) string {
	parts := make([]string, 0, 3)
	if phase = strings.TrimSpace(phase); phase != "" {
		parts = append(parts, phase)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
