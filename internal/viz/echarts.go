package viz

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"roi.com/phaser/internal/warehouse"
)

// The echarts renderers produce self-contained HTML snippets the front end
// embeds directly, covering the chart types that have no raster recipe and
// everything the declarative fallback spec can ask for.

type renderable interface {
	Render(w io.Writer) error
}

func markupArtifact(chart renderable) (*Artifact, error) {
	var buf bytes.Buffer
	if err := chart.Render(&buf); err != nil {
		return nil, renderError("echarts", "failed to render chart: %v", err)
	}
	return &Artifact{Kind: KindMarkup, Markup: buf.String()}, nil
}

func chartTitle(title string) string {
	if title == "" {
		return "Data Visualization"
	}
	return title
}

func echartsBar(title, xName, yName string, labels []string, values []float64) (*Artifact, error) {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: chartTitle(title)}),
		charts.WithXAxisOpts(opts.XAxis{Name: xName}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName}),
	)
	data := make([]opts.BarData, len(values))
	for i, v := range values {
		data[i] = opts.BarData{Value: v}
	}
	bar.SetXAxis(labels).AddSeries(yName, data)
	return markupArtifact(bar)
}

func echartsLine(title, xName, yName string, labels []string, values []float64) (*Artifact, error) {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: chartTitle(title)}),
		charts.WithXAxisOpts(opts.XAxis{Name: xName}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName}),
	)
	data := make([]opts.LineData, len(values))
	for i, v := range values {
		data[i] = opts.LineData{Value: v}
	}
	line.SetXAxis(labels).AddSeries(yName, data)
	return markupArtifact(line)
}

func echartsScatter(title, xName, yName string, labels []string, values []float64) (*Artifact, error) {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: chartTitle(title)}),
		charts.WithXAxisOpts(opts.XAxis{Name: xName}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName}),
	)
	data := make([]opts.ScatterData, len(values))
	for i, v := range values {
		data[i] = opts.ScatterData{Value: v}
	}
	scatter.SetXAxis(labels).AddSeries(yName, data)
	return markupArtifact(scatter)
}

func echartsPie(title, seriesName string, labels []string, values []float64) (*Artifact, error) {
	pie := charts.NewPie()
	pie.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: chartTitle(title)}))
	data := make([]opts.PieData, len(values))
	for i, v := range values {
		data[i] = opts.PieData{Name: labels[i], Value: v}
	}
	pie.AddSeries(seriesName, data)
	return markupArtifact(pie)
}

func renderPie(result *warehouse.QueryResult, req Request) (*Artifact, error) {
	labels, values, _, yName, err := chooseXY(result, req)
	if err != nil {
		return nil, err
	}
	return echartsPie(req.Title, yName, labels, values)
}

// renderCandlestick expects open/close/low/high columns, with the x axis
// taken from the config or the first column. Rows missing any price cell are
// dropped whole so labels stay aligned with their candles.
func renderCandlestick(result *warehouse.QueryResult, req Request) (*Artifact, error) {
	for _, name := range []string{"open", "close", "low", "high"} {
		if !result.HasColumn(name) {
			return nil, renderError("templated", "candlestick needs an %q column", name)
		}
	}

	xName := req.XAxis
	if xName == "" || !result.HasColumn(xName) {
		xName = result.Columns[0]
	}
	tuples, _ := result.AlignedRows(xName, "open", "close", "low", "high")
	if len(tuples) == 0 {
		return nil, renderError("templated", "candlestick has no complete rows")
	}

	labels := make([]string, 0, len(tuples))
	data := make([]opts.KlineData, 0, len(tuples))
	for _, t := range tuples {
		var prices [4]float64
		for i := 0; i < 4; i++ {
			v, ok := warehouse.AsFloat(t[i+1])
			if !ok {
				return nil, renderError("templated", "candlestick price columns are not numeric")
			}
			prices[i] = v
		}
		labels = append(labels, fmt.Sprintf("%v", t[0]))
		data = append(data, opts.KlineData{Value: prices})
	}

	seriesName := strings.TrimSpace(req.YAxis)
	if seriesName == "" {
		seriesName = "price"
	}
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: chartTitle(req.Title)}),
		charts.WithXAxisOpts(opts.XAxis{Name: xName}),
	)
	kline.SetXAxis(labels).AddSeries(seriesName, data)
	return markupArtifact(kline)
}
