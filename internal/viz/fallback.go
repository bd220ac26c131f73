package viz

import (
	"context"
	"encoding/json"
	"fmt"

	"roi.com/phaser/internal/structured"
	"roi.com/phaser/internal/warehouse"
)

// Tier 2 asks the LLM for a declarative chart spec and renders it with the
// echarts recipes. The model never produces executable code; anything
// outside the spec grammar is rejected and the ladder falls through to the
// no-chart terminal.

var fallbackContract = structured.NewContract(
	structured.Field{
		Name:        "chart_type",
		Description: "One of 'bar', 'line', 'scatter' or 'pie'.",
	},
	structured.Field{
		Name:        "x_axis",
		Description: "The column to use for the x axis (labels).",
	},
	structured.Field{
		Name:        "y_axis",
		Description: "The numeric column to plot on the y axis.",
	},
	structured.Field{
		Name:        "title",
		Description: "A short descriptive chart title.",
	},
)

const fallbackPromptTemplate = `You are a data visualization expert. Given this dataset:

Column names: %s
Numeric columns: %s
Sample data: %s

And this visualization request:
%s

Choose the most appropriate chart from the supported types (bar, line, scatter, pie)
and which columns to plot. Respond with a declarative chart specification only.
Do not produce any code.

%s`

func (l *Ladder) renderFallback(ctx context.Context, result *warehouse.QueryResult, req Request) (*Artifact, error) {
	columnsJSON, _ := json.Marshal(result.Columns)
	numericJSON, _ := json.Marshal(result.NumericColumns())
	sampleJSON, _ := json.Marshal(result.Head(5).Records())
	requestJSON, _ := json.Marshal(req)

	prompt := fmt.Sprintf(fallbackPromptTemplate,
		columnsJSON, numericJSON, sampleJSON, requestJSON,
		fallbackContract.FormatInstructions())

	raw, err := l.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, renderError("fallback", "LLM call failed: %v", err)
	}
	fields, err := fallbackContract.Parse(raw)
	if err != nil {
		return nil, renderError("fallback", "%v", err)
	}

	chartType := structured.StringField(fields, "chart_type")
	xAxis := structured.StringField(fields, "x_axis")
	yAxis := structured.StringField(fields, "y_axis")
	title := structured.StringField(fields, "title")

	if !result.HasColumn(xAxis) {
		return nil, renderError("fallback", "spec references unknown column %q", xAxis)
	}
	labels, values, ok := result.PairColumns(xAxis, yAxis)
	if !ok {
		return nil, renderError("fallback", "spec column %q is not numeric", yAxis)
	}

	switch chartType {
	case "bar":
		return echartsBar(title, xAxis, yAxis, labels, values)
	case "line":
		return echartsLine(title, xAxis, yAxis, labels, values)
	case "scatter":
		return echartsScatter(title, xAxis, yAxis, labels, values)
	case "pie":
		return echartsPie(title, yAxis, labels, values)
	default:
		return nil, renderError("fallback", "unsupported chart type %q", chartType)
	}
}
