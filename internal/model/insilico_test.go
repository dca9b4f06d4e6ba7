package model

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"vaclassify/internal/config"
	"vaclassify/internal/dataset"
	"vaclassify/internal/docker"
	"vaclassify/internal/logging"
)

// fakeRuntime plays back scripted container runs and counts build calls.
type fakeRuntime struct {
	steps  []fakeRun
	runs   int
	builds int
}

type fakeRun struct {
	result *docker.RunResult
	err    error
	// writeProbs drops a valid insilico_probs.csv into the bind mount.
	writeProbs bool
}

func (f *fakeRuntime) Run(ctx context.Context, spec docker.RunSpec) (*docker.RunResult, error) {
	if f.runs >= len(f.steps) {
		return nil, fmt.Errorf("unexpected container run %d", f.runs)
	}
	step := f.steps[f.runs]
	f.runs++
	if step.writeProbs {
		content := "\"\",\"pneumonia\",\"stroke\"\n"
		for i := 0; i < 12; i++ {
			content += fmt.Sprintf("\"%d\",0.7,0.3\n", i+1)
		}
		path := filepath.Join(spec.Mounts[0].Host, "insilico_probs.csv")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, err
		}
	}
	return step.result, step.err
}

func (f *fakeRuntime) Build(ctx context.Context, contextDir, tag string) error {
	f.builds++
	return nil
}

func newFittedInSilicoWith(t *testing.T, cfg config.InSilicoConfig, rt containerRuntime) *InSilico {
	t.Helper()
	clf, err := NewInSilico(cfg)
	if err != nil {
		t.Fatal(err)
	}
	clf.runtime = rt
	features, labels := trainingSet(t, 12)
	if err := clf.Fit(context.Background(), features, labels); err != nil {
		t.Fatalf("fit: %v", err)
	}
	return clf
}

func newFittedInSilico(t *testing.T) *InSilico {
	t.Helper()
	return newFittedInSilicoWith(t, config.DefaultInSilicoConfig(), nil)
}

func TestInSilicoFitRetainsData(t *testing.T) {
	clf := newFittedInSilico(t)
	if clf.trainFeatures == nil || len(clf.trainLabels) != 12 {
		t.Fatal("fit must retain the training data for the container run")
	}
	if d := clf.Diagnostics(); d["nsim"] != 10000 {
		t.Errorf("nsim diagnostic = %v", d["nsim"])
	}
}

func TestInSilicoPredictSuccess(t *testing.T) {
	rt := &fakeRuntime{steps: []fakeRun{
		{result: &docker.RunResult{ExitCode: 0}, writeProbs: true},
	}}
	clf := newFittedInSilicoWith(t, config.DefaultInSilicoConfig(), rt)

	features, _ := trainingSet(t, 12)
	probs, err := clf.PredictProba(context.Background(), features)
	if err != nil {
		t.Fatal(err)
	}
	if len(probs.Rows) != 12 {
		t.Fatalf("got %d rows", len(probs.Rows))
	}
	if math.Abs(probs.Rows[0][0]-0.7) > 1e-12 {
		t.Errorf("row 0 = %v", probs.Rows[0])
	}
	if rt.runs != 1 || rt.builds != 0 {
		t.Errorf("runs=%d builds=%d, want 1/0", rt.runs, rt.builds)
	}
}

func TestInSilicoFallbackAfterTimeout(t *testing.T) {
	cfg := config.DefaultInSilicoConfig()
	cfg.UseFallbackBuild = true
	rt := &fakeRuntime{steps: []fakeRun{
		{result: &docker.RunResult{TimedOut: true, ExitCode: -1}},
		{result: &docker.RunResult{ExitCode: 0}, writeProbs: true},
	}}
	clf := newFittedInSilicoWith(t, cfg, rt)

	features, _ := trainingSet(t, 12)
	if _, err := clf.PredictProba(context.Background(), features); err != nil {
		t.Fatalf("fallback after timeout failed: %v", err)
	}
	if rt.builds != 1 || rt.runs != 2 {
		t.Errorf("builds=%d runs=%d, want 1/2", rt.builds, rt.runs)
	}
}

func TestInSilicoFallbackAfterNonZeroExit(t *testing.T) {
	cfg := config.DefaultInSilicoConfig()
	cfg.UseFallbackBuild = true
	rt := &fakeRuntime{steps: []fakeRun{
		{result: &docker.RunResult{ExitCode: 1, Stderr: "Error in codeVA"}},
		{result: &docker.RunResult{ExitCode: 0}, writeProbs: true},
	}}
	clf := newFittedInSilicoWith(t, cfg, rt)

	features, _ := trainingSet(t, 12)
	if _, err := clf.PredictProba(context.Background(), features); err != nil {
		t.Fatalf("fallback after exit failure failed: %v", err)
	}
	if rt.builds != 1 || rt.runs != 2 {
		t.Errorf("builds=%d runs=%d, want 1/2", rt.builds, rt.runs)
	}
}

func TestInSilicoFallbackAfterMissingOutput(t *testing.T) {
	cfg := config.DefaultInSilicoConfig()
	cfg.UseFallbackBuild = true
	// First run exits zero but never writes the artifact.
	rt := &fakeRuntime{steps: []fakeRun{
		{result: &docker.RunResult{ExitCode: 0}},
		{result: &docker.RunResult{ExitCode: 0}, writeProbs: true},
	}}
	clf := newFittedInSilicoWith(t, cfg, rt)

	features, _ := trainingSet(t, 12)
	if _, err := clf.PredictProba(context.Background(), features); err != nil {
		t.Fatalf("fallback after missing output failed: %v", err)
	}
	if rt.builds != 1 || rt.runs != 2 {
		t.Errorf("builds=%d runs=%d, want 1/2", rt.builds, rt.runs)
	}
}

func TestInSilicoNoFallbackWhenDisabled(t *testing.T) {
	rt := &fakeRuntime{steps: []fakeRun{
		{result: &docker.RunResult{TimedOut: true, ExitCode: -1}},
	}}
	clf := newFittedInSilicoWith(t, config.DefaultInSilicoConfig(), rt)

	features, _ := trainingSet(t, 12)
	_, err := clf.PredictProba(context.Background(), features)
	eerr, ok := err.(*ExecutionError)
	if !ok || !eerr.TimedOut {
		t.Fatalf("expected timeout ExecutionError, got %v", err)
	}
	if rt.builds != 0 || rt.runs != 1 {
		t.Errorf("builds=%d runs=%d, want 0/1", rt.builds, rt.runs)
	}
}

func TestInSilicoSingleFallbackAttempt(t *testing.T) {
	cfg := config.DefaultInSilicoConfig()
	cfg.UseFallbackBuild = true
	rt := &fakeRuntime{steps: []fakeRun{
		{result: &docker.RunResult{ExitCode: 137}},
		{result: &docker.RunResult{ExitCode: 137}},
	}}
	clf := newFittedInSilicoWith(t, cfg, rt)

	features, _ := trainingSet(t, 12)
	if _, err := clf.PredictProba(context.Background(), features); err == nil {
		t.Fatal("expected error after the fallback attempt also failed")
	}
	if rt.builds != 1 || rt.runs != 2 {
		t.Errorf("builds=%d runs=%d, want exactly one retry", rt.builds, rt.runs)
	}
}

func TestInSilicoVerboseLogsContainerOutput(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logging.InitializeWith(zap.New(core))
	t.Cleanup(func() { logging.InitializeWith(zap.NewNop()) })

	rt := &fakeRuntime{steps: []fakeRun{
		{result: &docker.RunResult{ExitCode: 0, Stdout: "Iteration 1000 of 10000", Stderr: "Loading required package: openVA"}, writeProbs: true},
	}}
	clf := newFittedInSilicoWith(t, config.DefaultInSilicoConfig(), rt)

	features, _ := trainingSet(t, 12)
	if _, err := clf.PredictProba(context.Background(), features); err != nil {
		t.Fatal(err)
	}

	var sawStdout, sawStderr bool
	for _, entry := range logs.All() {
		if strings.Contains(entry.Message, "Iteration 1000 of 10000") {
			sawStdout = true
		}
		if strings.Contains(entry.Message, "Loading required package") {
			sawStderr = true
		}
	}
	if !sawStdout || !sawStderr {
		t.Errorf("container output not logged: stdout=%v stderr=%v", sawStdout, sawStderr)
	}
}

func TestInSilicoRenderScript(t *testing.T) {
	clf := newFittedInSilico(t)
	script, err := clf.renderScript()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"library(openVA)",
		"set.seed(42)",
		"cbind(ID = seq_len(nrow(train_data)), train_data)",
		"cbind(ID = seq_len(nrow(test_data)), test_data)",
		`data.type = "customize"`,
		`causes.train = "va34"`,
		`phmrc.type = "adult"`,
		"jump.scale = 0.05",
		`convert.type = "fixed"`,
		"Nsim = 10000",
		"auto.length = FALSE",
		"seed = 42",
		"tryCatch({",
		"results$indiv.prob",
		`write.csv(results$indiv.prob, "/data/insilico_probs.csv")`,
		"quit(status = 1)",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q", want)
		}
	}
}

func TestInSilicoStageInputs(t *testing.T) {
	clf := newFittedInSilico(t)
	dir := t.TempDir()

	test, _ := trainingSet(t, 12)
	if err := clf.stageInputs(dir, test); err != nil {
		t.Fatal(err)
	}

	train, err := dataset.ReadCSVFile(filepath.Join(dir, "train_data.csv"))
	if err != nil {
		t.Fatalf("train_data.csv: %v", err)
	}
	if v, ok := train.Cell(0, "va34"); !ok || v != "pneumonia" {
		t.Errorf("training cause cell = %q, %v", v, ok)
	}

	testTable, err := dataset.ReadCSVFile(filepath.Join(dir, "test_data.csv"))
	if err != nil {
		t.Fatalf("test_data.csv: %v", err)
	}
	for i := 0; i < testTable.Len(); i++ {
		if v, _ := testTable.Cell(i, "va34"); v != "" {
			t.Fatalf("test cause column must be blanked, row %d has %q", i, v)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "run_insilico.R")); err != nil {
		t.Errorf("run_insilico.R not written: %v", err)
	}
}

func TestReadProbabilityCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insilico_probs.csv")
	content := `"","pneumonia","stroke"
"1",0.7,0.3
"2",0.1,0.9
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	classes, rows, err := readProbabilityCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(classes) != 2 || classes[0] != "pneumonia" || classes[1] != "stroke" {
		t.Errorf("classes = %v", classes)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	if math.Abs(rows[0][0]-0.7) > 1e-12 || math.Abs(rows[1][1]-0.9) > 1e-12 {
		t.Errorf("rows = %v", rows)
	}
}

func TestReadProbabilityCSVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insilico_probs.csv")
	if err := os.WriteFile(path, []byte("\"\",\"a\",\"b\"\n\"1\",0.5,oops\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := readProbabilityCSV(path); err == nil {
		t.Error("expected error for non-numeric probability")
	}
}
