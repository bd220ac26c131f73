package viz

import (
	"bytes"
	"fmt"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"roi.com/phaser/internal/warehouse"
)

const histogramBins = 16

// renderTemplated is tier 1: a fixed recipe per chart type. Bar, line,
// scatter, histogram and heatmap render to PNG; pie and candlestick have no
// raster recipe and render as echarts markup. An unrecognized type falls
// back to a bar chart, matching the analyzer's default.
func renderTemplated(result *warehouse.QueryResult, req Request) (*Artifact, error) {
	if result.RowCount() == 0 {
		return nil, renderError("templated", "result has no rows")
	}
	switch req.Type {
	case "line":
		return renderLine(result, req)
	case "scatter":
		return renderScatter(result, req)
	case "histogram":
		return renderHistogram(result, req)
	case "heatmap":
		return renderHeatmap(result, req)
	case "pie":
		return renderPie(result, req)
	case "candlestick":
		return renderCandlestick(result, req)
	default:
		return renderBar(result, req)
	}
}

// chooseXY picks the label and value columns: config axes when they match
// the result, else the first two columns. Pairs are extracted row by row so a
// nil value cell drops its label too instead of shifting later labels onto
// the wrong values.
func chooseXY(result *warehouse.QueryResult, req Request) (labels []string, values []float64, xName, yName string, err error) {
	xName, yName = req.XAxis, req.YAxis
	if xName == "" || yName == "" || !result.HasColumn(xName) || !result.HasColumn(yName) {
		if len(result.Columns) < 2 {
			return nil, nil, "", "", renderError("templated", "need at least two columns")
		}
		xName, yName = result.Columns[0], result.Columns[1]
	}
	labels, values, ok := result.PairColumns(xName, yName)
	if !ok {
		return nil, nil, "", "", renderError("templated", "column %q is not numeric", yName)
	}
	return labels, values, xName, yName, nil
}

func newPlot(req Request, xName, yName string) *plot.Plot {
	p := plot.New()
	title := req.Title
	if title == "" {
		title = "Data Visualization"
	}
	p.Title.Text = title
	p.X.Label.Text = xName
	p.Y.Label.Text = yName
	return p
}

func pngArtifact(p *plot.Plot) (*Artifact, error) {
	var buf bytes.Buffer
	wt, err := p.WriterTo(8*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return nil, renderError("templated", "failed to encode plot: %v", err)
	}
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, renderError("templated", "failed to write plot: %v", err)
	}
	return &Artifact{Kind: KindImage, Image: buf.Bytes()}, nil
}

func renderBar(result *warehouse.QueryResult, req Request) (*Artifact, error) {
	labels, values, xName, yName, err := chooseXY(result, req)
	if err != nil {
		return nil, err
	}
	p := newPlot(req, xName, yName)
	bars, berr := plotter.NewBarChart(plotter.Values(values), vg.Points(24))
	if berr != nil {
		return nil, renderError("templated", "bar chart: %v", berr)
	}
	p.Add(bars)
	p.NominalX(labels...)
	return pngArtifact(p)
}

func renderLine(result *warehouse.QueryResult, req Request) (*Artifact, error) {
	labels, values, xName, yName, err := chooseXY(result, req)
	if err != nil {
		return nil, err
	}
	var pts plotter.XYs
	xs, ys, numericX := result.FloatPairs(xName, yName)
	if numericX {
		pts = make(plotter.XYs, len(ys))
		for i := range ys {
			pts[i] = plotter.XY{X: xs[i], Y: ys[i]}
		}
	} else {
		pts = make(plotter.XYs, len(values))
		for i, v := range values {
			pts[i] = plotter.XY{X: float64(i), Y: v}
		}
	}
	p := newPlot(req, xName, yName)
	line, lerr := plotter.NewLine(pts)
	if lerr != nil {
		return nil, renderError("templated", "line chart: %v", lerr)
	}
	p.Add(line)
	if !numericX {
		p.NominalX(labels...)
	}
	return pngArtifact(p)
}

func renderScatter(result *warehouse.QueryResult, req Request) (*Artifact, error) {
	xName, yName := req.XAxis, req.YAxis
	xs, ys, ok := result.FloatPairs(xName, yName)
	if !ok {
		// Fall back to the first two numeric columns.
		numeric := result.NumericColumns()
		if len(numeric) < 2 {
			return nil, renderError("templated", "scatter needs two numeric columns")
		}
		xName, yName = numeric[0], numeric[1]
		xs, ys, ok = result.FloatPairs(xName, yName)
		if !ok {
			return nil, renderError("templated", "scatter needs two numeric columns")
		}
	}
	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i] = plotter.XY{X: xs[i], Y: ys[i]}
	}
	p := newPlot(req, xName, yName)
	sc, serr := plotter.NewScatter(pts)
	if serr != nil {
		return nil, renderError("templated", "scatter chart: %v", serr)
	}
	p.Add(sc)
	return pngArtifact(p)
}

func renderHistogram(result *warehouse.QueryResult, req Request) (*Artifact, error) {
	col := req.YAxis
	values, ok := result.FloatColumn(col)
	if !ok {
		numeric := result.NumericColumns()
		if len(numeric) == 0 {
			return nil, renderError("templated", "histogram needs a numeric column")
		}
		col = numeric[0]
		values, _ = result.FloatColumn(col)
	}
	p := newPlot(req, col, "count")
	h, herr := plotter.NewHist(plotter.Values(values), histogramBins)
	if herr != nil {
		return nil, renderError("templated", "histogram: %v", herr)
	}
	p.Add(h)
	return pngArtifact(p)
}

// denseGrid adapts a value matrix to plotter.GridXYZ.
type denseGrid struct {
	z [][]float64 // z[row][col]
}

func (g denseGrid) Dims() (int, int) {
	if len(g.z) == 0 {
		return 0, 0
	}
	return len(g.z[0]), len(g.z)
}
func (g denseGrid) Z(c, r int) float64 { return g.z[r][c] }
func (g denseGrid) X(c int) float64    { return float64(c) }
func (g denseGrid) Y(r int) float64    { return float64(r) }

func renderHeatmap(result *warehouse.QueryResult, req Request) (*Artifact, error) {
	var grid denseGrid
	var xName, yName string

	if len(req.PivotColumns) >= 3 {
		g, err := pivotGrid(result, req.PivotColumns)
		if err != nil {
			return nil, err
		}
		grid = g
		xName, yName = req.PivotColumns[1], req.PivotColumns[0]
	} else {
		// Correlation matrix over the numeric columns.
		numeric := result.NumericColumns()
		if len(numeric) < 2 {
			return nil, renderError("templated", "heatmap needs pivot columns or two numeric columns")
		}
		z := make([][]float64, len(numeric))
		for i := range numeric {
			z[i] = make([]float64, len(numeric))
			for j := range numeric {
				// Pairwise so a nil in one column drops the whole row.
				xs, ys, ok := result.FloatPairs(numeric[i], numeric[j])
				if !ok {
					continue
				}
				z[i][j] = stat.Correlation(xs, ys, nil)
			}
		}
		grid = denseGrid{z: z}
		xName, yName = "columns", "columns"
	}

	p := newPlot(req, xName, yName)
	hm := plotter.NewHeatMap(grid, palette.Heat(12, 255))
	p.Add(hm)
	return pngArtifact(p)
}

// pivotGrid reshapes (row, col, value) triples into a matrix. Rows with a
// nil cell in any of the three columns are dropped whole so labels and
// values stay paired.
func pivotGrid(result *warehouse.QueryResult, pivot []string) (denseGrid, error) {
	tuples, ok := result.AlignedRows(pivot[0], pivot[1], pivot[2])
	if !ok || len(tuples) == 0 {
		return denseGrid{}, renderError("templated", "pivot columns do not match the result")
	}

	type cell struct {
		r, c int
		v    float64
	}
	rowIdx := map[string]int{}
	colIdx := map[string]int{}
	cells := make([]cell, 0, len(tuples))
	for _, t := range tuples {
		v, numOK := warehouse.AsFloat(t[2])
		if !numOK {
			return denseGrid{}, renderError("templated", "pivot column %q is not numeric", pivot[2])
		}
		rl := fmt.Sprintf("%v", t[0])
		cl := fmt.Sprintf("%v", t[1])
		if _, seen := rowIdx[rl]; !seen {
			rowIdx[rl] = len(rowIdx)
		}
		if _, seen := colIdx[cl]; !seen {
			colIdx[cl] = len(colIdx)
		}
		cells = append(cells, cell{r: rowIdx[rl], c: colIdx[cl], v: v})
	}

	z := make([][]float64, len(rowIdx))
	for i := range z {
		z[i] = make([]float64, len(colIdx))
	}
	for _, c := range cells {
		z[c.r][c.c] = c.v
	}
	return denseGrid{z: z}, nil
}
