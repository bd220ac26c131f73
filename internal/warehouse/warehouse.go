package warehouse

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"
)

// Executor runs a SQL statement against a warehouse and returns a tabular
// result. Any failure (connectivity, authorization, syntax, unknown columns)
// is reported as a *DataAccessError so the caller can treat them uniformly.
type Executor interface {
	ExecuteQuery(ctx context.Context, sql string) (*QueryResult, error)
}

// DataAccessError is the single failure type for SQL execution. The retry
// pipeline folds Message back into the next generation prompt.
type DataAccessError struct {
	Message string
}

func (e *DataAccessError) Error() string {
	return e.Message
}

func accessError(format string, args ...any) *DataAccessError {
	return &DataAccessError{Message: fmt.Sprintf(format, args...)}
}

// QueryResult is the tabular output of one executed query. It is owned by
// the request that produced it and is never cached or shared.
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

func (r *QueryResult) RowCount() int {
	return len(r.Rows)
}

// Shape returns (rows, columns).
func (r *QueryResult) Shape() (int, int) {
	return len(r.Rows), len(r.Columns)
}

// Head returns a result holding at most n leading rows. The backing row
// slices are shared, not copied.
func (r *QueryResult) Head(n int) *QueryResult {
	if n > len(r.Rows) {
		n = len(r.Rows)
	}
	return &QueryResult{Columns: r.Columns, Rows: r.Rows[:n]}
}

// Records renders the rows as column-keyed maps, the shape the analysis
// prompts and the JSON response body use.
func (r *QueryResult) Records() []map[string]any {
	records := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		rec := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records
}

func (r *QueryResult) columnIndex(name string) int {
	for i, col := range r.Columns {
		if strings.EqualFold(col, name) {
			return i
		}
	}
	return -1
}

// HasColumn reports whether name matches a column, case-insensitively.
func (r *QueryResult) HasColumn(name string) bool {
	return r.columnIndex(name) >= 0
}

// AsFloat converts the numeric representations the pgx and sqlite scanners
// produce into a float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// NumericColumns lists columns whose non-nil values are all numeric.
func (r *QueryResult) NumericColumns() []string {
	var out []string
	for i, col := range r.Columns {
		numeric := false
		ok := true
		for _, row := range r.Rows {
			if i >= len(row) || row[i] == nil {
				continue
			}
			if _, isNum := AsFloat(row[i]); !isNum {
				ok = false
				break
			}
			numeric = true
		}
		if ok && numeric {
			out = append(out, col)
		}
	}
	return out
}

// FloatColumn extracts a column as float64 values, skipping nils. The second
// return is false when the column is missing or holds no numeric values.
func (r *QueryResult) FloatColumn(name string) ([]float64, bool) {
	idx := r.columnIndex(name)
	if idx < 0 {
		return nil, false
	}
	var out []float64
	for _, row := range r.Rows {
		if idx >= len(row) || row[idx] == nil {
			continue
		}
		f, ok := AsFloat(row[idx])
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, len(out) > 0
}

// PairColumns extracts aligned (label, value) pairs from two columns. A row
// with a nil value cell is dropped as a whole, so labels never drift onto a
// neighboring row's value. The second return is false when either column is
// missing, a non-nil value cell is not numeric, or no pair survives.
func (r *QueryResult) PairColumns(xName, yName string) ([]string, []float64, bool) {
	xi, yi := r.columnIndex(xName), r.columnIndex(yName)
	if xi < 0 || yi < 0 {
		return nil, nil, false
	}
	var labels []string
	var values []float64
	for _, row := range r.Rows {
		if yi >= len(row) || row[yi] == nil {
			continue
		}
		f, ok := AsFloat(row[yi])
		if !ok {
			return nil, nil, false
		}
		label := ""
		if xi < len(row) && row[xi] != nil {
			label = fmt.Sprintf("%v", row[xi])
		}
		labels = append(labels, label)
		values = append(values, f)
	}
	return labels, values, len(values) > 0
}

// FloatPairs extracts aligned numeric (x, y) pairs, dropping rows where
// either cell is nil.
func (r *QueryResult) FloatPairs(xName, yName string) ([]float64, []float64, bool) {
	xi, yi := r.columnIndex(xName), r.columnIndex(yName)
	if xi < 0 || yi < 0 {
		return nil, nil, false
	}
	var xs, ys []float64
	for _, row := range r.Rows {
		if xi >= len(row) || yi >= len(row) || row[xi] == nil || row[yi] == nil {
			continue
		}
		x, xOK := AsFloat(row[xi])
		y, yOK := AsFloat(row[yi])
		if !xOK || !yOK {
			return nil, nil, false
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}
	return xs, ys, len(xs) > 0
}

// AlignedRows returns the named cells, in request order, for every row where
// each named cell is non-nil. The second return is false when a name matches
// no column.
func (r *QueryResult) AlignedRows(names ...string) ([][]any, bool) {
	idx := make([]int, len(names))
	for i, name := range names {
		idx[i] = r.columnIndex(name)
		if idx[i] < 0 {
			return nil, false
		}
	}
	var out [][]any
	for _, row := range r.Rows {
		cells := make([]any, len(idx))
		complete := true
		for i, j := range idx {
			if j >= len(row) || row[j] == nil {
				complete = false
				break
			}
			cells[i] = row[j]
		}
		if complete {
			out = append(out, cells)
		}
	}
	return out, true
}

// StringColumn renders a column as display strings.
func (r *QueryResult) StringColumn(name string) []string {
	idx := r.columnIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		if idx >= len(row) || row[idx] == nil {
			out = append(out, "")
			continue
		}
		out = append(out, fmt.Sprintf("%v", row[idx]))
	}
	return out
}

// JSON renders the rows as a JSON array of records.
func (r *QueryResult) JSON() (string, error) {
	b, err := json.Marshal(r.Records())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CSV renders the result with a header row.
func (r *QueryResult) CSV() string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	w.Write(r.Columns)
	for _, row := range r.Rows {
		record := make([]string, len(r.Columns))
		for i := range r.Columns {
			if i < len(row) && row[i] != nil {
				record[i] = fmt.Sprintf("%v", row[i])
			}
		}
		w.Write(record)
	}
	w.Flush()
	return sb.String()
}

const tableStyle = `<style>
    table {
        width: 100%;
        border-collapse: collapse;
    }
    th, td {
        padding: 12px;
        text-align: left;
        border: 1px solid #DEE2E6;
    }
</style>
`

// HTML renders the result as a styled table for direct embedding in the
// front end.
func (r *QueryResult) HTML() string {
	var sb strings.Builder
	sb.WriteString(tableStyle)
	sb.WriteString(`<table class="table table-bordered"><thead><tr>`)
	for _, col := range r.Columns {
		sb.WriteString("<th>")
		sb.WriteString(html.EscapeString(col))
		sb.WriteString("</th>")
	}
	sb.WriteString("</tr></thead><tbody>")
	for _, row := range r.Rows {
		sb.WriteString("<tr>")
		for i := range r.Columns {
			sb.WriteString("<td>")
			if i < len(row) && row[i] != nil {
				sb.WriteString(html.EscapeString(fmt.Sprintf("%v", row[i])))
			}
			sb.WriteString("</td>")
		}
		sb.WriteString("</tr>")
	}
	sb.WriteString("</tbody></table>")
	return sb.String()
}
