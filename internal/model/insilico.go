package model

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/google/uuid"

	"vaclassify/internal/config"
	"vaclassify/internal/dataset"
	"vaclassify/internal/docker"
	"vaclassify/internal/logging"
)

// containerRuntime is the slice of the docker executor the backend drives.
// Tests substitute a canned implementation.
type containerRuntime interface {
	Run(ctx context.Context, spec docker.RunSpec) (*docker.RunResult, error)
	Build(ctx context.Context, contextDir, tag string) error
}

// InSilico runs the InSilicoVA MCMC algorithm through the openVA R stack in
// a Docker container. Fit only validates and retains the training data; the
// R run needs train and test together, so the container executes at predict
// time. File exchange happens through a bind-mounted temp directory:
// train_data.csv, test_data.csv and a generated run_insilico.R go in,
// insilico_probs.csv comes out.
type InSilico struct {
	base
	cfg     config.InSilicoConfig
	runtime containerRuntime

	trainFeatures *dataset.Table
	trainLabels   []string
}

// NewInSilico builds an unfitted backend from a validated config. The docker
// runtime is probed lazily at predict time, not here, so an instance can be
// constructed and inspected on machines without docker.
func NewInSilico(cfg config.InSilicoConfig) (*InSilico, error) {
	cfg, err := config.NewInSilicoConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &InSilico{base: newBase("insilico"), cfg: cfg}, nil
}

// Fit validates and retains the training data for the predict-time R run.
func (m *InSilico) Fit(ctx context.Context, features *dataset.Table, labels []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.beginFit(features, labels); err != nil {
		return err
	}
	m.trainFeatures = features
	m.trainLabels = append([]string(nil), labels...)
	m.diags["nsim"] = m.cfg.NSim
	m.diags["docker_image"] = m.cfg.DockerImage
	return nil
}

// Predict returns the argmax cause per row.
func (m *InSilico) Predict(ctx context.Context, features *dataset.Table) ([]string, error) {
	probs, err := m.PredictProba(ctx, features)
	if err != nil {
		return nil, err
	}
	return probs.Argmax(), nil
}

// PredictProba runs the container and parses the individual probability
// table it writes. Any failure of the first attempt (timeout, non-zero
// exit, or unusable output) triggers a single retry with a locally built
// image when a fallback build is configured; there is no further retry.
func (m *InSilico) PredictProba(ctx context.Context, features *dataset.Table) (*Probabilities, error) {
	aligned, err := m.alignFeatures(features)
	if err != nil {
		return nil, err
	}

	if m.runtime == nil {
		exec := docker.NewExecutor()
		if rt := docker.ValidateRuntime(exec, m.cfg.DockerImage, m.cfg.UseFallbackBuild); !rt.IsValid {
			return nil, &ExecutionError{
				Backend: m.name, Stage: "runtime check",
				Err: fmt.Errorf("%s", strings.Join(rt.Errors, "; ")),
			}
		}
		m.runtime = exec
	}

	workDir, err := os.MkdirTemp("", "insilico-"+uuid.NewString()[:8]+"-")
	if err != nil {
		return nil, fmt.Errorf("insilico: creating work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	if err := m.stageInputs(workDir, aligned); err != nil {
		return nil, err
	}

	rawClasses, raw, runErr := m.attempt(ctx, workDir, m.cfg.DockerImage, aligned.Len())
	if runErr != nil && m.cfg.UseFallbackBuild {
		logging.ModelWarn("insilico: run with %s failed (%v), building fallback image", m.cfg.DockerImage, runErr)
		fallbackTag := "insilicova-fallback:latest"
		if buildErr := m.runtime.Build(ctx, m.cfg.FallbackContext, fallbackTag); buildErr != nil {
			return nil, &ExecutionError{Backend: m.name, Stage: "fallback build", Err: buildErr}
		}
		rawClasses, raw, runErr = m.attempt(ctx, workDir, fallbackTag, aligned.Len())
	}
	if runErr != nil {
		return nil, runErr
	}
	return m.formatProbabilities(rawClasses, raw)
}

// attempt executes one container run against image and parses its output.
// Every failure mode comes back as an ExecutionError so the caller can
// decide whether a fallback attempt is warranted.
func (m *InSilico) attempt(ctx context.Context, workDir, image string, nTest int) ([]string, [][]float64, error) {
	result, err := m.runtime.Run(ctx, docker.RunSpec{
		Image:    image,
		Platform: m.cfg.DockerPlatform,
		Mounts:   []docker.Mount{{Host: workDir, Container: "/data"}},
		Args:     []string{"R", "-f", "/data/run_insilico.R"},
		Timeout:  m.cfg.Timeout,
	})
	if err != nil {
		return nil, nil, &ExecutionError{Backend: m.name, Stage: "container run", Err: err}
	}

	if m.cfg.Verbose {
		if s := strings.TrimSpace(result.Stdout); s != "" {
			logging.Docker("insilico stdout:\n%s", s)
		}
		if s := strings.TrimSpace(result.Stderr); s != "" {
			logging.Docker("insilico stderr:\n%s", s)
		}
	}

	if result.TimedOut {
		return nil, nil, &ExecutionError{Backend: m.name, Stage: "container run", TimedOut: true, Stderr: result.Stderr}
	}
	if result.ExitCode != 0 {
		return nil, nil, &ExecutionError{Backend: m.name, Stage: "container run", ExitCode: result.ExitCode, Stderr: result.Stderr}
	}
	logging.Docker("insilico: container finished in %s", result.Duration.Round(0))

	rawClasses, raw, err := readProbabilityCSV(filepath.Join(workDir, "insilico_probs.csv"))
	if err != nil {
		return nil, nil, &ExecutionError{Backend: m.name, Stage: "output parse", Err: err, Stderr: result.Stderr}
	}
	if len(raw) != nTest {
		return nil, nil, &ExecutionError{
			Backend: m.name, Stage: "output parse",
			Err: fmt.Errorf("got %d probability rows for %d test cases", len(raw), nTest),
		}
	}
	return rawClasses, raw, nil
}

// stageInputs writes the file contract into the work dir: labeled training
// CSV, test CSV with the cause column blanked, and the generated R script.
func (m *InSilico) stageInputs(workDir string, testFeatures *dataset.Table) error {
	train, err := m.trainFeatures.WithColumn(m.cfg.CauseColumn, m.trainLabels)
	if err != nil {
		return fmt.Errorf("insilico: %w", err)
	}
	if err := train.WriteCSVFile(filepath.Join(workDir, "train_data.csv")); err != nil {
		return err
	}

	blank := make([]string, testFeatures.Len())
	test, err := testFeatures.WithColumn(m.cfg.CauseColumn, blank)
	if err != nil {
		return fmt.Errorf("insilico: %w", err)
	}
	if err := test.WriteCSVFile(filepath.Join(workDir, "test_data.csv")); err != nil {
		return err
	}

	script, err := m.renderScript()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(workDir, "run_insilico.R"), []byte(script), 0o644)
}

// rScriptTemplate mirrors the script the openVA pipeline generates: ID
// columns from row numbers, character coercion, a tryCatch wrapper that
// forces a non-zero exit on any R-level failure, and the individual
// probability matrix written back to the bind mount.
var rScriptTemplate = template.Must(template.New("insilico").Parse(`# InSilicoVA R Script
library(openVA)

set.seed({{.random_seed}})

train_data <- read.csv("/data/train_data.csv", stringsAsFactors = FALSE)
test_data <- read.csv("/data/test_data.csv", stringsAsFactors = FALSE)

# Add ID columns using row numbers
train_data <- cbind(ID = seq_len(nrow(train_data)), train_data)
test_data <- cbind(ID = seq_len(nrow(test_data)), test_data)

# Convert NA to empty strings
train_data[is.na(train_data)] <- ""
test_data[is.na(test_data)] <- ""

# Convert all columns to character
train_data[] <- lapply(train_data, as.character)
test_data[] <- lapply(test_data, as.character)

tryCatch({
    results <- codeVA(
        data = test_data,
        data.type = "customize",
        model = "InSilicoVA",
        data.train = train_data,
        causes.train = "{{.cause_column}}",
        phmrc.type = "{{.phmrc_type}}",
        jump.scale = {{.jump_scale}},
        convert.type = "{{.convert_type}}",
        Nsim = {{.nsim}},
        auto.length = {{.auto_length}},
        seed = {{.random_seed}}
    )

    if (!is.null(results) && !is.null(results$indiv.prob)) {
        write.csv(results$indiv.prob, "/data/insilico_probs.csv")
        cat("InSilicoVA completed successfully\n")
    } else {
        stop("InSilicoVA returned NULL results")
    }
}, error = function(e) {
    cat("Error in InSilicoVA execution:\n")
    cat(as.character(e), "\n")
    quit(status = 1)
})
`))

func (m *InSilico) renderScript() (string, error) {
	var b strings.Builder
	if err := rScriptTemplate.Execute(&b, m.cfg.RScriptParams()); err != nil {
		return "", fmt.Errorf("insilico: rendering R script: %w", err)
	}
	return b.String(), nil
}

// readProbabilityCSV parses the individual probability table written by
// write.csv: an unnamed row-ID column followed by one column per cause.
func readProbabilityCSV(path string) ([]string, [][]float64, error) {
	table, err := dataset.ReadCSVFile(path)
	if err != nil {
		return nil, nil, err
	}
	cols := table.Columns()
	if len(cols) < 2 {
		return nil, nil, fmt.Errorf("probability CSV has %d columns", len(cols))
	}
	// write.csv emits the row names as a leading unnamed column.
	start := 0
	if cols[0] == "" || cols[0] == "X" {
		start = 1
	}
	classes := append([]string(nil), cols[start:]...)

	rows := make([][]float64, table.Len())
	for i := 0; i < table.Len(); i++ {
		cells := table.Row(i)
		row := make([]float64, len(classes))
		for j, cell := range cells[start:] {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d, cause %q: %w", i, classes[j], err)
			}
			row[j] = v
		}
		rows[i] = row
	}
	return classes, rows, nil
}
