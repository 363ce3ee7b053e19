package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"htcimaging/internal/manifest"
	"htcimaging/internal/spwplan"
	"htcimaging/internal/testsupport"
	"htcimaging/internal/timing"
)

func writeInputs(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		testsupport.WriteFile(t, path, 1024)
		paths = append(paths, path)
	}
	return paths
}

func TestManifestGenerateShowAndExpand(t *testing.T) {
	env := setupCLITestEnv(t)
	inputs := writeInputs(t, t.TempDir(), "c.ms.tar", "a.ms.tar", "b.ms.tar")

	args := append([]string{"manifest", "generate", "--breadth", "2"}, inputs...)
	out, _, err := runCLI(t, args, env.configPath)
	if err != nil {
		t.Fatalf("manifest generate: %v", err)
	}
	requireContains(t, out, "Stride: 2")
	requireContains(t, out, "Entries: 2")

	entries, err := manifest.ReadFile(env.cfg.ManifestPath())
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if len(entries) != 2 || !strings.HasSuffix(entries[0], "b.ms.tar") || !strings.Contains(entries[0], "a.ms.tar,") {
		t.Fatalf("unexpected entries %q", entries)
	}

	out, _, err = runCLI(t, []string{"manifest", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("manifest show: %v", err)
	}
	requireContains(t, out, "(2 entries)")

	out, _, err = runCLI(t, []string{"--json", "submit", "expand"}, env.configPath)
	if err != nil {
		t.Fatalf("submit expand: %v", err)
	}
	var invocations []struct {
		Process int    `json:"process"`
		Input   string `json:"input"`
		Args    string `json:"args"`
	}
	if err := json.Unmarshal([]byte(out), &invocations); err != nil {
		t.Fatalf("decode expand output: %v\n%s", err, out)
	}
	if len(invocations) != 2 || invocations[1].Process != 1 || invocations[1].Input != entries[1] {
		t.Fatalf("unexpected invocations %+v", invocations)
	}
	if !strings.HasPrefix(invocations[0].Args, entries[0]) {
		t.Fatalf("arguments should start with the input entry: %q", invocations[0].Args)
	}
}

func TestManifestGenerateWithTarballs(t *testing.T) {
	env := setupCLITestEnv(t)
	inputs := writeInputs(t, t.TempDir(), "a.ms.tar", "b.ms.tar")

	args := append([]string{"manifest", "generate", "--breadth", "2", "--tar"}, inputs...)
	out, _, err := runCLI(t, args, env.configPath)
	if err != nil {
		t.Fatalf("manifest generate --tar: %v", err)
	}
	requireContains(t, out, "tar_chunk_0001.tar")
	for _, name := range []string{"tar_chunk_0000.tar", "tar_chunk_0001.tar"} {
		if _, err := os.Stat(filepath.Join(env.cfg.Paths.WorkDir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}

	out, _, err = runCLI(t, args, env.configPath)
	if err != nil {
		t.Fatalf("second manifest generate --tar: %v", err)
	}
	requireContains(t, out, "(existing)")
}

func TestSubmitRenderWritesDescription(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"submit", "render", "-o", "-"}, env.configPath)
	if err != nil {
		t.Fatalf("submit render: %v", err)
	}
	requireContains(t, out, "queue input_data from "+env.cfg.ManifestPath())
	requireContains(t, out, "transfer_input_files")

	if _, _, err := runCLI(t, []string{"submit", "render"}, env.configPath); err != nil {
		t.Fatalf("submit render to file: %v", err)
	}
	if _, err := os.Stat(env.cfg.SubmitPath()); err != nil {
		t.Fatalf("expected submit file: %v", err)
	}
}

func TestSubmitRunRecordsCluster(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := manifest.WriteFile(env.cfg.ManifestPath(), []string{"/data/a.ms.tar", "/data/b.ms.tar"}); err != nil {
		t.Fatal(err)
	}
	env.stubBinary(t, "condor_submit", "Submitting job(s)..\n2 job(s) submitted to cluster 4242.")

	out, _, err := runCLI(t, []string{"submit", "run", "--dry-run"}, env.configPath)
	if err != nil {
		t.Fatalf("submit run --dry-run: %v", err)
	}
	requireContains(t, out, "nothing submitted")
	if _, err := os.Stat(env.cfg.JobIDPath()); !os.IsNotExist(err) {
		t.Fatalf("dry run must not write the job id file: %v", err)
	}

	out, _, err = runCLI(t, []string{"submit", "run"}, env.configPath)
	if err != nil {
		t.Fatalf("submit run: %v", err)
	}
	requireContains(t, out, "Submitted 2 job(s) to cluster 4242")

	data, err := os.ReadFile(env.cfg.JobIDPath())
	if err != nil {
		t.Fatalf("read job id file: %v", err)
	}
	if strings.TrimSpace(string(data)) != "4242" {
		t.Fatalf("job id file = %q", data)
	}

	out, _, err = runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "cluster 4242, 2 job(s)")
	requireContains(t, out, "[OK]")
}

func TestSubmitRunRejectsEmptyManifest(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := manifest.WriteFile(env.cfg.ManifestPath(), nil); err != nil {
		t.Fatal(err)
	}
	_, _, err := runCLI(t, []string{"submit", "run", "--dry-run"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "no entries") {
		t.Fatalf("expected empty manifest error, got %v", err)
	}
}

func TestSubmitRunFailsPreflightWithoutManifest(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"submit", "run"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "Manifest") {
		t.Fatalf("expected manifest preflight failure, got %v", err)
	}
}

func TestOrganizeCommandIsIdempotent(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := env.cfg.Paths.WorkDir
	testsupport.Touch(t, dir, "tclean_0.err", "tclean_0.out", "tclean_0.log", "img.fits", "dict.npy", "tclean_0_timing.txt", "notes.md")

	out, _, err := runCLI(t, []string{"organize", "--dry-run"}, env.configPath)
	if err != nil {
		t.Fatalf("organize --dry-run: %v", err)
	}
	requireContains(t, out, "Would move 6 file(s)")
	if _, err := os.Stat(filepath.Join(dir, "img.fits")); err != nil {
		t.Fatalf("dry run moved files: %v", err)
	}

	out, _, err = runCLI(t, []string{"organize", dir}, env.configPath)
	if err != nil {
		t.Fatalf("organize: %v", err)
	}
	requireContains(t, out, "Moved 6 file(s); 1 left in place")
	if _, err := os.Stat(filepath.Join(dir, "fits_images", "img.fits")); err != nil {
		t.Fatalf("expected fits moved: %v", err)
	}

	out, _, err = runCLI(t, []string{"organize", dir}, env.configPath)
	if err != nil {
		t.Fatalf("second organize: %v", err)
	}
	requireContains(t, out, "Moved 0 file(s)")
}

func TestOrganizeRejectsUnknownPolicy(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"organize", "--on-collision", "explode"}, env.configPath); err == nil {
		t.Fatal("expected unknown collision policy to fail")
	}
}

func TestPlanSPWCommand(t *testing.T) {
	out, _, err := runCLI(t, []string{"--json", "plan", "spw", "/data/target.ms", "4", "0,1", "10"}, "")
	if err != nil {
		t.Fatalf("plan spw: %v", err)
	}
	var chunks []spwplan.Chunk
	if err := json.Unmarshal([]byte(out), &chunks); err != nil {
		t.Fatalf("decode plan: %v\n%s", err, out)
	}
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %+v", chunks)
	}
	if chunks[2].Selection != "1:0~4" || chunks[2].Name != "target_spw1_chans_0_5.ms" {
		t.Fatalf("unexpected chunk %+v", chunks[2])
	}

	if _, _, err := runCLI(t, []string{"plan", "spw", "x.ms", "2", "0,1,2", "10,20"}, ""); err == nil {
		t.Fatal("expected mismatched channel counts to fail")
	}
}

const historyFixture = `[
  {"ClusterId": 77, "ProcId": 0, "JobStatus": 4, "ExitCode": 0,
   "JobCurrentStartDate": 1000, "JobCurrentStartTransferInputDate": 1000, "JobCurrentFinishTransferInputDate": 1010,
   "JobCurrentStartTransferOutputDate": 1100, "JobCurrentFinishTransferOutputDate": 1110, "CompletionDate": 1120},
  {"ClusterId": 77, "ProcId": 1, "JobStatus": 4, "ExitCode": 1,
   "JobCurrentStartDate": 1005, "JobCurrentStartTransferInputDate": 1005, "JobCurrentFinishTransferInputDate": 1025,
   "JobCurrentStartTransferOutputDate": 1200, "JobCurrentFinishTransferOutputDate": 1210, "CompletionDate": 1215},
  {"ClusterId": 77, "ProcId": 2, "JobStatus": 5, "JobCurrentStartDate": 1010}
]`

func TestHistoryImportAndReports(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(t.TempDir(), "condor_history_77.json")
	if err := os.WriteFile(path, []byte(historyFixture), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, []string{"history", "import", path}, env.configPath)
	if err != nil {
		t.Fatalf("history import: %v", err)
	}
	requireContains(t, out, "Imported 3 job(s) for cluster 77")

	out, _, err = runCLI(t, []string{"history", "import", path}, env.configPath)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	requireContains(t, out, "already imported")

	out, _, err = runCLI(t, []string{"history", "import", path, "--overwrite"}, env.configPath)
	if err != nil {
		t.Fatalf("overwrite import: %v", err)
	}
	requireContains(t, out, "Imported 3 job(s)")

	out, _, err = runCLI(t, []string{"--json", "history", "stats", "77"}, env.configPath)
	if err != nil {
		t.Fatalf("history stats: %v", err)
	}
	var summary struct {
		Total             int `json:"total"`
		Failed            int `json:"failed"`
		WithoutCompletion int `json:"without_completion"`
	}
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode stats: %v\n%s", err, out)
	}
	if summary.Total != 3 || summary.Failed != 2 || summary.WithoutCompletion != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	out, _, err = runCLI(t, []string{"history", "stats", path}, env.configPath)
	if err != nil {
		t.Fatalf("history stats from file: %v", err)
	}
	requireContains(t, out, "Held: 1")

	for _, sub := range []string{"concurrency", "completion", "histogram", "phases"} {
		if _, _, err := runCLI(t, []string{"history", sub, "77"}, env.configPath); err != nil {
			t.Fatalf("history %s: %v", sub, err)
		}
	}

	out, _, err = runCLI(t, []string{"history", "completion", "77"}, env.configPath)
	if err != nil {
		t.Fatalf("history completion: %v", err)
	}
	requireContains(t, out, "Completed: 2 of 3")

	out, _, err = runCLI(t, []string{"history", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	requireContains(t, out, "77")

	out, _, err = runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Cluster 77:")
	requireContains(t, out, "1 of 3 job(s) succeeded")
	requireContains(t, out, "Held:")
}

func TestHistoryImportKeysByAdClusterID(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "history_v2.json")
	fixture := strings.ReplaceAll(historyFixture, `"ClusterId": 77`, `"ClusterId": 944143`)
	if err := os.WriteFile(path, []byte(fixture), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, []string{"history", "import", path}, env.configPath)
	if err != nil {
		t.Fatalf("history import: %v", err)
	}
	requireContains(t, out, "Imported 3 job(s) for cluster 944143")
	if _, _, err := runCLI(t, []string{"history", "stats", "944143"}, env.configPath); err != nil {
		t.Fatalf("history stats 944143: %v", err)
	}
	if _, _, err := runCLI(t, []string{"history", "stats", "2"}, env.configPath); err == nil {
		t.Fatal("cluster 2 from the file name should not be stored")
	}

	if _, _, err := runCLI(t, []string{"history", "import", path, "--cluster", "5"}, env.configPath); err == nil {
		t.Fatal("expected --cluster mismatch error")
	}

	mixed := filepath.Join(dir, "history_mixed.json")
	mixedFixture := strings.Replace(historyFixture, `"ClusterId": 77, "ProcId": 2`, `"ClusterId": 78, "ProcId": 0`, 1)
	if err := os.WriteFile(mixed, []byte(mixedFixture), 0o644); err != nil {
		t.Fatal(err)
	}
	out, _, err = runCLI(t, []string{"history", "import", mixed}, env.configPath)
	if err != nil {
		t.Fatalf("mixed import: %v", err)
	}
	requireContains(t, out, "Imported 2 job(s) for cluster 77")
	requireContains(t, out, "Imported 1 job(s) for cluster 78")
}

func TestHistoryStatsUnknownCluster(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"history", "stats", "12345"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "history import") {
		t.Fatalf("expected missing import error, got %v", err)
	}
}

func TestHistoryHistogramRejectsUnknownPhase(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(t.TempDir(), "condor_history_77.json")
	if err := os.WriteFile(path, []byte(historyFixture), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := runCLI(t, []string{"history", "histogram", path, "--phase", "queue"}, env.configPath); err == nil {
		t.Fatal("expected unknown phase error")
	}
}

func TestTimingCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := filepath.Join(env.cfg.Paths.WorkDir, timing.TimingDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"tclean_0_timing.txt": timing.Header + "\n100 110 10 111 411 300\n",
		"tclean_1_timing.txt": timing.Header + "\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out, _, err := runCLI(t, []string{"timing"}, env.configPath)
	if err != nil {
		t.Fatalf("timing: %v", err)
	}
	requireContains(t, out, "2 (1 complete)")
	requireContains(t, out, "Jobs without imaging results: 1")
}
