package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Read parses manifest entries. Lines are trimmed and blank lines skipped;
// order is preserved and duplicates are kept.
func Read(r io.Reader) ([]string, error) {
	var entries []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return entries, nil
}

// ReadFile parses the manifest at path.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Write emits one entry per line.
func Write(w io.Writer, entries []string) error {
	bw := bufio.NewWriter(w)
	for _, entry := range entries {
		if strings.ContainsAny(entry, "\r\n") {
			return fmt.Errorf("write manifest: entry %q spans lines", entry)
		}
		if _, err := bw.WriteString(entry + "\n"); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
	}
	return bw.Flush()
}

// WriteFile replaces the manifest at path.
func WriteFile(path string, entries []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	if err := Write(f, entries); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Split returns the comma-separated inputs of one entry.
func Split(entry string) []string {
	parts := strings.Split(entry, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
