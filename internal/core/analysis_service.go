package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"roi.com/phaser/internal/structured"
	"roi.com/phaser/internal/warehouse"
)

const (
	// fullDataRowLimit splits the analyzer's two modes: results at or under
	// the limit go to the LLM in full, larger results are sampled.
	fullDataRowLimit = 100
	sampleRowCount   = 10
	// truncationLimit caps the serialized sample payload, in characters.
	truncationLimit = 1000

	degradedSummary = "Unable to generate analysis due to an error."
)

// VizType is the analyzer's chart recommendation.
type VizType string

const (
	VizBar         VizType = "bar"
	VizLine        VizType = "line"
	VizScatter     VizType = "scatter"
	VizPie         VizType = "pie"
	VizHeatmap     VizType = "heatmap"
	VizHistogram   VizType = "histogram"
	VizCandlestick VizType = "candlestick"
	VizNone        VizType = "none"
)

var knownVizTypes = map[VizType]bool{
	VizBar: true, VizLine: true, VizScatter: true, VizPie: true,
	VizHeatmap: true, VizHistogram: true, VizCandlestick: true, VizNone: true,
}

// VizConfig carries the axis and title hints for the recommended chart.
type VizConfig struct {
	XAxis        string   `json:"x_axis"`
	YAxis        string   `json:"y_axis"`
	Title        string   `json:"title"`
	PivotColumns []string `json:"pivot_columns,omitempty"`
}

// AnalysisOutcome is the analyzer's verdict for one query result. It is
// never mutated after creation.
type AnalysisOutcome struct {
	Summary                  string
	VisualizationRecommended bool
	VisualizationType        VizType
	VisualizationConfig      VizConfig
}

func degradedOutcome() *AnalysisOutcome {
	return &AnalysisOutcome{
		Summary:                  degradedSummary,
		VisualizationRecommended: false,
		VisualizationType:        VizNone,
	}
}

var analysisContract = structured.NewContract(
	structured.Field{
		Name:        "analysis",
		Description: "The actual data analysis result based on the user query and provided data.",
	},
	structured.Field{
		Name:        "visualization_recommended",
		Description: "A boolean (true/false) indicating whether the data is suitable for visualization with a charting library.",
	},
	structured.Field{
		Name:        "visualization_type",
		Description: "If visualization_recommended is true, recommend a specific chart type (e.g., 'bar', 'line', 'scatter', 'pie', 'heatmap', 'histogram', 'candlestick'). If visualization_recommended is false, return 'none'.",
	},
	structured.Field{
		Name:        "visualization_config",
		Description: "If visualization_recommended is true, provide a JSON object with basic configuration for the recommended chart type including x_axis, y_axis, and title. If visualization_recommended is false, return an empty object {}.",
	},
)

const analysisPromptTemplate = `You are an AI trained to analyze structured data.
DB SCHEMA: %s

User Query: %s

Data for Analysis:
%s

If the data contains a summary (e.g., sample rows, shape, or columns), use it to infer insights. Generate an insightful analysis that accurately satisfies the user query. Keep the response clear, concise, and limited to a maximum of 200 words.

Additionally, determine if the data is suitable for visualization:
1. If the data contains numerical values that can be plotted (e.g., trends, comparisons, distributions), set visualization_recommended to true.
2. If visualization is recommended, suggest an appropriate chart type (bar, line, scatter, pie, heatmap, etc.)
3. For the visualization_config, specify which columns should be used for x_axis and y_axis, and suggest an appropriate title.
4. If the data is not suitable for visualization (e.g., just text or a single value), set visualization_recommended to false.

Use this format:
%s`

// AnalysisService summarizes a query result and decides whether and how to
// chart it.
type AnalysisService struct {
	llm       Completer
	schemaDoc string
}

func NewAnalysisService(llm Completer, schemaDoc string) *AnalysisService {
	return &AnalysisService{llm: llm, schemaDoc: schemaDoc}
}

// truncate caps s at max bytes on a rune boundary, appending an ellipsis
// marker when anything was cut. Cutting mid-rune would hand the model
// invalid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// dataPayload serializes the result for the analysis prompt. Small results
// go in whole; large ones are reduced to a sample, the shape and the column
// names, then truncated to a fixed character budget.
func dataPayload(result *warehouse.QueryResult) string {
	if result.RowCount() <= fullDataRowLimit {
		b, err := json.Marshal(result.Records())
		if err != nil {
			return ""
		}
		return string(b)
	}

	rows, cols := result.Shape()
	summary := map[string]any{
		"sample_rows": result.Head(sampleRowCount).Records(),
		"data_shape":  []int{rows, cols},
		"columns":     result.Columns,
	}
	b, err := json.Marshal(summary)
	if err != nil {
		return ""
	}
	return truncate(string(b), truncationLimit)
}

// Analyze produces an AnalysisOutcome for result. Any LLM or parsing failure
// is absorbed into a degraded outcome; analysis never fails the request.
func (s *AnalysisService) Analyze(ctx context.Context, result *warehouse.QueryResult, userQuery string) *AnalysisOutcome {
	prompt := fmt.Sprintf(analysisPromptTemplate,
		s.schemaDoc, userQuery, dataPayload(result), analysisContract.FormatInstructions())

	raw, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		log.Printf("Analysis completion failed: %v", err)
		return degradedOutcome()
	}
	fields, err := analysisContract.Parse(raw)
	if err != nil {
		log.Printf("Analysis response did not match the contract: %v", err)
		return degradedOutcome()
	}

	outcome := &AnalysisOutcome{
		Summary:                  structured.StringField(fields, "analysis"),
		VisualizationRecommended: structured.BoolField(fields, "visualization_recommended"),
		VisualizationType:        VizNone,
	}
	structured.ObjectField(fields, "visualization_config", &outcome.VisualizationConfig)

	vizType := VizType(strings.ToLower(strings.TrimSpace(structured.StringField(fields, "visualization_type"))))
	if knownVizTypes[vizType] {
		outcome.VisualizationType = vizType
	}
	if outcome.VisualizationType == VizNone {
		outcome.VisualizationRecommended = false
	}
	return outcome
}
