package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"google.golang.org/genai"

	"vaclassify/internal/config"
	"vaclassify/internal/dataset"
	"vaclassify/internal/logging"
)

// textGenerator is the narrow slice of the Gemini client the backend needs.
// Tests substitute a canned implementation.
type textGenerator interface {
	Generate(ctx context.Context, model, prompt string, temperature float64) (string, error)
}

// InContext is the foundation-model backend. Fit stores the labeled training
// table; prediction serializes it into the prompt as in-context examples and
// asks the model to classify query rows in small batches, with a JSON
// response contract.
type InContext struct {
	base
	cfg config.InContextConfig
	gen textGenerator

	trainFeatures *dataset.Table
	trainLabels   []string
}

// NewInContext builds an unfitted backend from a validated config. The API
// client is created lazily on first prediction.
func NewInContext(cfg config.InContextConfig) (*InContext, error) {
	cfg, err := config.NewInContextConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &InContext{base: newBase("incontext"), cfg: cfg}, nil
}

// NewInContextWithGenerator injects a generator. Used by tests.
func NewInContextWithGenerator(cfg config.InContextConfig, gen textGenerator) (*InContext, error) {
	m, err := NewInContext(cfg)
	if err != nil {
		return nil, err
	}
	m.gen = gen
	return m, nil
}

// Fit validates and retains the training data as the prompt example pool.
// Large vocabularies and wide tables inflate the prompt, so exceeding the
// configured ceilings warns.
func (m *InContext) Fit(ctx context.Context, features *dataset.Table, labels []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.beginFit(features, labels); err != nil {
		return err
	}
	if len(m.classes) > m.cfg.MaxClassesWarning {
		logging.ModelWarn("incontext: %d classes exceeds %d; prompt quality may degrade",
			len(m.classes), m.cfg.MaxClassesWarning)
	}
	if features.NumColumns() > m.cfg.MaxFeaturesWarning {
		logging.ModelWarn("incontext: %d features exceeds %d; prompt quality may degrade",
			features.NumColumns(), m.cfg.MaxFeaturesWarning)
	}
	m.trainFeatures = features
	m.trainLabels = append([]string(nil), labels...)
	m.diags["model"] = m.cfg.Model
	m.diags["batch_size"] = m.cfg.BatchSize
	return nil
}

// Predict returns the argmax cause per row.
func (m *InContext) Predict(ctx context.Context, features *dataset.Table) ([]string, error) {
	probs, err := m.PredictProba(ctx, features)
	if err != nil {
		return nil, err
	}
	return probs.Argmax(), nil
}

// PredictProba classifies rows in batches. A batch that hits a provider size
// or memory limit is degraded to row-at-a-time requests once; a second
// failure aborts.
func (m *InContext) PredictProba(ctx context.Context, features *dataset.Table) (*Probabilities, error) {
	aligned, err := m.alignFeatures(features)
	if err != nil {
		return nil, err
	}
	if err := m.ensureGenerator(ctx); err != nil {
		return nil, err
	}

	raw := make([][]float64, 0, aligned.Len())
	for start := 0; start < aligned.Len(); start += m.cfg.BatchSize {
		end := start + m.cfg.BatchSize
		if end > aligned.Len() {
			end = aligned.Len()
		}
		batch := indexRange(start, end)

		rows, err := m.classifyBatch(ctx, aligned, batch)
		if err != nil && IsResourceExhausted(err) && len(batch) > 1 {
			logging.ModelWarn("incontext: batch of %d hit a size limit, retrying row by row", len(batch))
			rows = rows[:0]
			for _, idx := range batch {
				single, retryErr := m.classifyBatch(ctx, aligned, []int{idx})
				if retryErr != nil {
					return nil, &ExecutionError{Backend: m.name, Stage: "classification", Err: retryErr}
				}
				rows = append(rows, single...)
			}
			err = nil
		}
		if err != nil {
			return nil, &ExecutionError{Backend: m.name, Stage: "classification", Err: err}
		}
		raw = append(raw, rows...)
	}
	return m.formatProbabilities(m.classes, raw)
}

func (m *InContext) ensureGenerator(ctx context.Context) error {
	if m.gen != nil {
		return nil
	}
	apiKey := m.cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return &ExecutionError{Backend: m.name, Stage: "client setup",
			Err: fmt.Errorf("no API key configured and GEMINI_API_KEY is unset")}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return &ExecutionError{Backend: m.name, Stage: "client setup", Err: err}
	}
	m.gen = &geminiGenerator{client: client}
	return nil
}

// batchResponse is the JSON contract the prompt asks for.
type batchResponse struct {
	Predictions []struct {
		Index      int     `json:"index"`
		Cause      string  `json:"cause"`
		Confidence float64 `json:"confidence"`
	} `json:"predictions"`
}

func (m *InContext) classifyBatch(ctx context.Context, features *dataset.Table, rows []int) ([][]float64, error) {
	prompt := m.buildPrompt(features, rows)

	reqCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()

	text, err := m.gen.Generate(reqCtx, m.cfg.Model, prompt, m.cfg.Temperature)
	if err != nil {
		return nil, err
	}

	var resp batchResponse
	if err := json.Unmarshal([]byte(extractJSON(text)), &resp); err != nil {
		return nil, fmt.Errorf("unparseable model response: %w", err)
	}

	byIndex := make(map[int]struct {
		cause string
		conf  float64
	}, len(resp.Predictions))
	for _, p := range resp.Predictions {
		byIndex[p.Index] = struct {
			cause string
			conf  float64
		}{p.Cause, p.Confidence}
	}

	out := make([][]float64, len(rows))
	for i := range rows {
		pred, ok := byIndex[i]
		if !ok {
			return nil, fmt.Errorf("model response missing prediction for row %d", i)
		}
		out[i] = m.scoreRow(pred.cause, pred.conf)
	}
	return out, nil
}

// scoreRow turns a (cause, confidence) answer into a distribution over the
// class vocabulary: confidence mass on the predicted cause, the remainder
// spread uniformly, then sharpened by the softmax temperature. An unknown
// cause yields a zero row, which downstream normalization preserves.
func (m *InContext) scoreRow(cause string, confidence float64) []float64 {
	row := make([]float64, len(m.classes))
	hit := -1
	for j, c := range m.classes {
		if c == cause {
			hit = j
			break
		}
	}
	if hit < 0 {
		logging.ModelWarn("incontext: model predicted unknown cause %q", cause)
		return row
	}

	conf := math.Min(math.Max(confidence, 0), 1)
	if conf == 0 || len(m.classes) == 1 {
		conf = 1
	}
	rest := (1 - conf) / float64(len(m.classes)-1)
	for j := range row {
		row[j] = rest
	}
	row[hit] = conf

	// Temperature sharpening: T < 1 concentrates mass, T > 1 flattens.
	if t := m.cfg.SoftmaxTemperature; t != 1 {
		var sum float64
		for j := range row {
			row[j] = math.Pow(row[j], 1/t)
			sum += row[j]
		}
		for j := range row {
			row[j] /= sum
		}
	}
	return row
}

func (m *InContext) buildPrompt(features *dataset.Table, rows []int) string {
	var b strings.Builder
	b.WriteString("You are classifying verbal autopsy records by cause of death.\n")
	b.WriteString("Valid causes: ")
	b.WriteString(strings.Join(m.classes, ", "))
	b.WriteString("\n\nLabeled examples:\n")
	for i := 0; i < m.trainFeatures.Len(); i++ {
		writeRecord(&b, m.trainFeatures.Columns(), m.trainFeatures.Row(i))
		fmt.Fprintf(&b, " => %s\n", m.trainLabels[i])
	}
	b.WriteString("\nClassify the following records. Respond with JSON only, in the form\n")
	b.WriteString(`{"predictions":[{"index":0,"cause":"<one of the valid causes>","confidence":0.0}]}`)
	b.WriteString("\nwhere index matches the record number below and confidence is in [0,1].\n\n")
	for i, idx := range rows {
		fmt.Fprintf(&b, "Record %d: ", i)
		writeRecord(&b, features.Columns(), features.Row(idx))
		b.WriteString("\n")
	}
	return b.String()
}

func writeRecord(b *strings.Builder, cols, cells []string) {
	first := true
	for j, c := range cols {
		if cells[j] == "" {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "%s=%s", c, cells[j])
		first = false
	}
	if first {
		b.WriteString("(all values missing)")
	}
}

// extractJSON strips markdown fences some models wrap around JSON output.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
	}
	return strings.TrimSpace(text)
}

func indexRange(start, end int) []int {
	out := make([]int, end-start)
	for i := range out {
		out[i] = start + i
	}
	return out
}

// geminiGenerator adapts the Gemini API client to textGenerator.
type geminiGenerator struct {
	client *genai.Client
}

func (g *geminiGenerator) Generate(ctx context.Context, model, prompt string, temperature float64) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr(float32(temperature)),
		})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
