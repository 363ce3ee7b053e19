package timing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const completeFile = Header + "\n1700000000.5 1700000010.5 10.0 1700000011 1700000311 300\n"

func writeTiming(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseComplete(t *testing.T) {
	rec, err := Parse(strings.NewReader(completeFile))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !rec.Complete || rec.UntarDuration != 10 || rec.TcleanDuration != 300 || rec.UntarBegin != 1700000000.5 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestParseHeaderOnlyIsIncomplete(t *testing.T) {
	rec, err := Parse(strings.NewReader(Header + "\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rec.Complete {
		t.Fatal("header-only file should be incomplete")
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"short row":     Header + "\n1 2 3\n",
		"non-numeric":   Header + "\n1 2 x 4 5 6\n",
		"two data rows": completeFile + "1 2 3 4 5 6\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestJobIDFromName(t *testing.T) {
	if id, ok := JobIDFromName("/x/tclean_42_timing.txt"); !ok || id != 42 {
		t.Fatalf("JobIDFromName = %d, %v", id, ok)
	}
	if id, ok := JobIDFromName("tclean_42_timing.3.txt"); !ok || id != 42 {
		t.Fatalf("renamed copy JobIDFromName = %d, %v", id, ok)
	}
	if _, ok := JobIDFromName("tclean_42.log"); ok {
		t.Fatal("log file should not match")
	}
	if _, ok := JobIDFromName("tclean_42_timing.old.txt"); ok {
		t.Fatal("non-numeric suffix should not match")
	}
}

func TestParseDirReadsRenamedCopies(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, TimingDir)
	newer := Header + "\n1700000000 1700000020 20 1700000021 1700000621 600\n"
	writeTiming(t, sub, "tclean_0_timing.txt", completeFile)
	writeTiming(t, sub, "tclean_0_timing.2.txt", newer)
	writeTiming(t, sub, "tclean_0_timing.1.txt", Header+"\n")
	writeTiming(t, sub, "tclean_5_timing.1.txt", completeFile)

	records, err := ParseDir(dir)
	if err != nil {
		t.Fatalf("ParseDir: %v", err)
	}
	if len(records) != 2 || records[0].JobID != 0 || records[1].JobID != 5 {
		t.Fatalf("records = %+v", records)
	}
	if records[0].Copy != 2 || records[0].TcleanDuration != 600 {
		t.Fatalf("highest rename counter should win: %+v", records[0])
	}
	if records[1].Copy != 1 || !records[1].Complete {
		t.Fatalf("renamed-only job should be read: %+v", records[1])
	}

	writeTiming(t, dir, "tclean_0_timing.txt", completeFile)
	records, err = ParseDir(dir)
	if err != nil {
		t.Fatalf("ParseDir: %v", err)
	}
	if records[0].Path != filepath.Join(dir, "tclean_0_timing.txt") {
		t.Fatalf("top-level file should win over organized copies: %+v", records[0])
	}
}

func TestParseDirOrdersAndPrefersTopLevel(t *testing.T) {
	dir := t.TempDir()
	writeTiming(t, dir, "tclean_10_timing.txt", completeFile)
	writeTiming(t, dir, "tclean_2_timing.txt", Header+"\n")
	writeTiming(t, filepath.Join(dir, TimingDir), "tclean_1_timing.txt", completeFile)
	writeTiming(t, filepath.Join(dir, TimingDir), "tclean_2_timing.txt", completeFile)
	writeTiming(t, dir, "notes.txt", "ignored")

	records, err := ParseDir(dir)
	if err != nil {
		t.Fatalf("ParseDir: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %+v", records)
	}
	if records[0].JobID != 1 || records[1].JobID != 2 || records[2].JobID != 10 {
		t.Fatalf("unexpected order %d %d %d", records[0].JobID, records[1].JobID, records[2].JobID)
	}
	if records[1].Complete || records[1].Path != filepath.Join(dir, "tclean_2_timing.txt") {
		t.Fatalf("top-level file should win: %+v", records[1])
	}

	summary := Summarize(records)
	if summary.Files != 3 || summary.Complete != 2 || len(summary.Incomplete) != 1 || summary.Incomplete[0] != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Tclean.Mean != 300 || summary.Untar.Count != 2 {
		t.Fatalf("duration stats = %+v / %+v", summary.Untar, summary.Tclean)
	}
}

func TestParseDirMissing(t *testing.T) {
	records, err := ParseDir(filepath.Join(t.TempDir(), "absent"))
	if err != nil || len(records) != 0 {
		t.Fatalf("ParseDir(missing) = %v, %v", records, err)
	}
}
