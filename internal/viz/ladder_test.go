package viz

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roi.com/phaser/internal/warehouse"
)

type countingCompleter struct {
	response string
	err      error
	calls    int
}

func (c *countingCompleter) Complete(_ context.Context, _ string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

func specReply(chartType, x, y, title string) string {
	body, _ := json.Marshal(map[string]string{
		"chart_type": chartType,
		"x_axis":     x,
		"y_axis":     y,
		"title":      title,
	})
	return "```json\n" + string(body) + "\n```"
}

func numericResult() *warehouse.QueryResult {
	return &warehouse.QueryResult{
		Columns: []string{"store", "total_sales", "size"},
		Rows: [][]any{
			{"1", float64(120000), float64(15000)},
			{"2", float64(98000), float64(9800)},
			{"3", float64(143500), float64(20100)},
		},
	}
}

func textOnlyResult() *warehouse.QueryResult {
	return &warehouse.QueryResult{
		Columns: []string{"store", "manager"},
		Rows: [][]any{
			{"1", "alice"},
			{"2", "bob"},
		},
	}
}

func TestTemplatedBarDoesNotInvokeFallback(t *testing.T) {
	llm := &countingCompleter{}
	ladder := NewLadder(llm)

	art := ladder.Render(context.Background(), numericResult(), Request{
		Type: "bar", XAxis: "store", YAxis: "total_sales", Title: "Sales by store",
	})

	assert.Equal(t, KindImage, art.Kind)
	assert.NotEmpty(t, art.Image)
	assert.Zero(t, llm.calls)
}

func TestTemplatedRecipes(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want Kind
	}{
		{name: "line", req: Request{Type: "line", XAxis: "store", YAxis: "total_sales"}, want: KindImage},
		{name: "scatter config axes", req: Request{Type: "scatter", XAxis: "size", YAxis: "total_sales"}, want: KindImage},
		{name: "scatter inferred numeric columns", req: Request{Type: "scatter"}, want: KindImage},
		{name: "histogram", req: Request{Type: "histogram", YAxis: "total_sales"}, want: KindImage},
		{name: "heatmap correlation fallback", req: Request{Type: "heatmap"}, want: KindImage},
		{name: "pie", req: Request{Type: "pie", XAxis: "store", YAxis: "total_sales"}, want: KindMarkup},
		{name: "unknown type defaults to bar", req: Request{Type: "mystery", XAxis: "store", YAxis: "total_sales"}, want: KindImage},
		{name: "missing config falls back to first two columns", req: Request{Type: "bar"}, want: KindImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &countingCompleter{}
			art := NewLadder(llm).Render(context.Background(), numericResult(), tt.req)
			assert.Equal(t, tt.want, art.Kind)
			assert.Zero(t, llm.calls, "templated tier should not call the LLM")
		})
	}
}

func TestTemplatedPieMarkupContainsTitle(t *testing.T) {
	art, err := renderTemplated(numericResult(), Request{
		Type: "pie", XAxis: "store", YAxis: "total_sales", Title: "Share of sales",
	})
	require.NoError(t, err)
	assert.Equal(t, KindMarkup, art.Kind)
	assert.Contains(t, art.Markup, "Share of sales")
}

func TestNilCellDropsRowFromChart(t *testing.T) {
	result := &warehouse.QueryResult{
		Columns: []string{"store", "total_sales"},
		Rows: [][]any{
			{"alpha", 100.0},
			{"beta", nil},
			{"gamma", 300.0},
		},
	}

	art, err := renderTemplated(result, Request{Type: "pie", XAxis: "store", YAxis: "total_sales"})
	require.NoError(t, err)
	require.Equal(t, KindMarkup, art.Kind)
	// The nil row disappears whole; its label must not survive to claim the
	// next row's value.
	assert.Contains(t, art.Markup, "alpha")
	assert.Contains(t, art.Markup, "gamma")
	assert.NotContains(t, art.Markup, "beta")
}

func TestFallbackSpecDropsNilRowsWhole(t *testing.T) {
	llm := &countingCompleter{response: specReply("bar", "manager", "total_sales", "By manager")}
	ladder := NewLadder(llm)

	art := ladder.Render(context.Background(), &warehouse.QueryResult{
		Columns: []string{"manager", "city", "total_sales"},
		Rows: [][]any{
			{"alice", "austin", 100.0},
			{"bob", "boston", nil},
			{"carol", "chicago", 300.0},
		},
	}, Request{Type: "scatter", XAxis: "manager", YAxis: "city"})

	require.Equal(t, KindMarkup, art.Kind)
	assert.Contains(t, art.Markup, "alice")
	assert.Contains(t, art.Markup, "carol")
	assert.NotContains(t, art.Markup, "bob")
}

func TestCandlestickNeedsPriceColumns(t *testing.T) {
	result := &warehouse.QueryResult{
		Columns: []string{"date", "open", "close", "low", "high"},
		Rows: [][]any{
			{"2024-01-01", 10.0, 12.0, 9.5, 12.5},
			{"2024-01-02", 12.0, 11.0, 10.5, 12.2},
		},
	}
	art, err := renderTemplated(result, Request{Type: "candlestick", XAxis: "date"})
	require.NoError(t, err)
	assert.Equal(t, KindMarkup, art.Kind)

	_, err = renderTemplated(numericResult(), Request{Type: "candlestick"})
	require.Error(t, err)
}

func TestCandlestickDropsIncompleteRowsAndNamesSeries(t *testing.T) {
	result := &warehouse.QueryResult{
		Columns: []string{"date", "open", "close", "low", "high"},
		Rows: [][]any{
			{"2024-01-01", 10.0, 12.0, 9.5, 12.5},
			{"2024-01-02", 12.0, nil, 10.5, 12.2},
			{"2024-01-03", 11.0, 11.5, 10.8, 11.9},
		},
	}
	art, err := renderTemplated(result, Request{Type: "candlestick", XAxis: "date"})
	require.NoError(t, err)
	assert.Equal(t, KindMarkup, art.Kind)
	assert.Contains(t, art.Markup, "2024-01-01")
	assert.Contains(t, art.Markup, "2024-01-03")
	assert.NotContains(t, art.Markup, "2024-01-02")
	// No y axis configured: the series still gets a usable name.
	assert.Contains(t, art.Markup, "price")
}

func TestFallbackInvokedWhenTemplateFails(t *testing.T) {
	// A scatter over a result with a single numeric column has no templated
	// recipe; tier 2 picks a renderable declarative spec instead.
	llm := &countingCompleter{response: specReply("bar", "manager", "total_sales", "Fallback chart")}
	ladder := NewLadder(llm)

	art := ladder.Render(context.Background(), &warehouse.QueryResult{
		Columns: []string{"manager", "city", "total_sales"},
		Rows: [][]any{
			{"alice", "austin", float64(120000)},
			{"bob", "boston", float64(98000)},
		},
	}, Request{Type: "scatter", XAxis: "manager", YAxis: "city"})

	assert.Equal(t, 1, llm.calls)
	assert.Equal(t, KindMarkup, art.Kind)
	assert.Contains(t, art.Markup, "Fallback chart")
}

func TestFallbackRejectsUnknownColumns(t *testing.T) {
	llm := &countingCompleter{response: specReply("bar", "phantom", "total_sales", "t")}
	ladder := NewLadder(llm)

	art := ladder.Render(context.Background(), textOnlyResult(), Request{Type: "scatter"})

	assert.Equal(t, KindNone, art.Kind)
	assert.NotEmpty(t, art.Err)
}

func TestLadderTerminatesWithNoChartSentinel(t *testing.T) {
	llm := &countingCompleter{err: fmt.Errorf("model unavailable")}
	ladder := NewLadder(llm)

	art := ladder.Render(context.Background(), textOnlyResult(), Request{Type: "scatter"})

	assert.Equal(t, KindNone, art.Kind)
	assert.Empty(t, art.Image)
	assert.Empty(t, art.Markup)
	assert.NotEmpty(t, art.Err)
}

func TestFallbackMalformedSpecFallsThrough(t *testing.T) {
	llm := &countingCompleter{response: "sure, here is some python code: plt.plot(df)"}
	ladder := NewLadder(llm)

	art := ladder.Render(context.Background(), textOnlyResult(), Request{Type: "scatter"})

	assert.Equal(t, KindNone, art.Kind)
}

func TestHeatmapPivotGrid(t *testing.T) {
	result := &warehouse.QueryResult{
		Columns: []string{"store", "dept", "weekly_sales"},
		Rows: [][]any{
			{"1", "a", 10.0},
			{"1", "b", 20.0},
			{"2", "a", 30.0},
			{"2", "b", 40.0},
		},
	}
	art, err := renderTemplated(result, Request{
		Type:         "heatmap",
		PivotColumns: []string{"store", "dept", "weekly_sales"},
	})
	require.NoError(t, err)
	assert.Equal(t, KindImage, art.Kind)
}

func TestEmptyResultFailsTemplatedTier(t *testing.T) {
	_, err := renderTemplated(&warehouse.QueryResult{Columns: []string{"a"}}, Request{Type: "bar"})
	require.Error(t, err)
	var rerr *RenderError
	assert.ErrorAs(t, err, &rerr)
}
