package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/meridian-mel/fieldqc-cli/internal/model"
)

// Stat selects which matrix a crosstab reports.
type Stat string

const (
	StatCounts   Stat = "counts"
	StatRowPct   Stat = "rowpct"
	StatColPct   Stat = "colpct"
	StatTotalPct Stat = "totalpct"
)

// ValidStat reports whether the stat name is supported.
func ValidStat(s Stat) bool {
	switch s {
	case StatCounts, StatRowPct, StatColPct, StatTotalPct:
		return true
	}
	return false
}

// ChartPoint is one x/y pair in a chart series.
type ChartPoint struct {
	X     string  `json:"x"`
	Y     float64 `json:"y"`
	Error float64 `json:"error,omitempty"`
}

// ChartSeries is a named sequence of points.
type ChartSeries struct {
	Name string       `json:"name"`
	Data []ChartPoint `json:"data"`
}

// Chart is a renderable payload for the dashboard front end.
type Chart struct {
	Kind      string            `json:"kind"`
	X         string            `json:"x"`
	Series    []ChartSeries     `json:"series"`
	Labels    map[string]string `json:"labels"`
	Histogram *Chart            `json:"histogram,omitempty"`
}

// Table is a categorical crosstab of top-break rows against variable
// columns. Category order is first appearance in the prepared series.
type Table struct {
	TopBreak      string      `json:"topbreak"`
	Variable      string      `json:"variable"`
	TopCategories []string    `json:"top_categories"`
	VarCategories []string    `json:"var_categories"`
	Counts        [][]int     `json:"counts"`
	RowPct        [][]float64 `json:"row_pct"`
	ColPct        [][]float64 `json:"col_pct"`
	TotalPct      [][]float64 `json:"total_pct"`
	N             int         `json:"n"`
	Notes         []string    `json:"notes"`
}

// Matrix returns the matrix selected by stat as floats.
func (t *Table) Matrix(stat Stat) [][]float64 {
	switch stat {
	case StatRowPct:
		return t.RowPct
	case StatColPct:
		return t.ColPct
	case StatTotalPct:
		return t.TotalPct
	default:
		out := make([][]float64, len(t.Counts))
		for i, row := range t.Counts {
			out[i] = make([]float64, len(row))
			for j, c := range row {
				out[i][j] = float64(c)
			}
		}
		return out
	}
}

// Crosstab tabulates variable against topbreak over the rows. Rows where
// either side dropped out of its prepared series are excluded; an empty
// overlap is an error.
func Crosstab(rows []model.RawSubmission, topbreak, variable string, opts SeriesOptions) (*Table, error) {
	top := PrepareTopBreak(rows, topbreak, opts)
	vars := PrepareCategorical(columnValues(rows, variable), opts)

	var topCats, varCats []string
	topIdx := make(map[string]int)
	varIdx := make(map[string]int)
	type pair struct{ t, v int }
	var pairs []pair

	for i := range rows {
		t, v := top[i], vars[i]
		if t == droppedSentinel || v == droppedSentinel {
			continue
		}
		ti, ok := topIdx[t]
		if !ok {
			ti = len(topCats)
			topIdx[t] = ti
			topCats = append(topCats, t)
		}
		vi, ok := varIdx[v]
		if !ok {
			vi = len(varCats)
			varIdx[v] = vi
			varCats = append(varCats, v)
		}
		pairs = append(pairs, pair{ti, vi})
	}

	if len(pairs) == 0 {
		return nil, eris.New("analysis: no overlapping records for the selected fields")
	}

	counts := make([][]int, len(topCats))
	for i := range counts {
		counts[i] = make([]int, len(varCats))
	}
	for _, p := range pairs {
		counts[p.t][p.v]++
	}

	table := &Table{
		TopBreak:      topbreak,
		Variable:      variable,
		TopCategories: topCats,
		VarCategories: varCats,
		Counts:        counts,
		N:             len(pairs),
	}
	table.RowPct, table.ColPct, table.TotalPct = percentMatrices(counts, len(pairs))

	rawTopDistinct := distinctNonEmpty(PrepareTopBreak(rows, topbreak, SeriesOptions{DropMissing: true}))
	rawVarDistinct := distinctNonEmpty(columnValues(rows, variable))
	if opts.Limit > 0 && rawVarDistinct > len(varCats) {
		table.Notes = append(table.Notes, fmt.Sprintf("Variable categories limited to top %d", opts.Limit))
	}
	if opts.Limit > 0 && rawTopDistinct > len(topCats) {
		table.Notes = append(table.Notes, fmt.Sprintf("Top break categories limited to top %d", opts.Limit))
	}
	return table, nil
}

func percentMatrices(counts [][]int, total int) (rowPct, colPct, totalPct [][]float64) {
	rows := len(counts)
	cols := 0
	if rows > 0 {
		cols = len(counts[0])
	}

	rowSums := make([]int, rows)
	colSums := make([]int, cols)
	for i, row := range counts {
		for j, c := range row {
			rowSums[i] += c
			colSums[j] += c
		}
	}

	rowPct = make([][]float64, rows)
	colPct = make([][]float64, rows)
	totalPct = make([][]float64, rows)
	for i := range counts {
		rowPct[i] = make([]float64, cols)
		colPct[i] = make([]float64, cols)
		totalPct[i] = make([]float64, cols)
		for j, c := range counts[i] {
			if rowSums[i] > 0 {
				rowPct[i][j] = round1(float64(c) / float64(rowSums[i]) * 100)
			}
			if colSums[j] > 0 {
				colPct[i][j] = round1(float64(c) / float64(colSums[j]) * 100)
			}
			if total > 0 {
				totalPct[i][j] = round1(float64(c) / float64(total) * 100)
			}
		}
	}
	return rowPct, colPct, totalPct
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func distinctNonEmpty(values []string) int {
	seen := make(map[string]struct{})
	for _, v := range values {
		if v != "" {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}

// StackedBarChart renders the selected stat matrix as one series per
// variable category over the top-break categories.
func (t *Table) StackedBarChart(stat Stat) *Chart {
	matrix := t.Matrix(stat)
	yLabel := "Percent"
	if stat == StatCounts {
		yLabel = "Count"
	}

	series := make([]ChartSeries, len(t.VarCategories))
	for j, varCat := range t.VarCategories {
		points := make([]ChartPoint, len(t.TopCategories))
		for i, topCat := range t.TopCategories {
			points[i] = ChartPoint{X: topCat, Y: matrix[i][j]}
		}
		series[j] = ChartSeries{Name: varCat, Data: points}
	}

	return &Chart{
		Kind:   "stacked_bar",
		X:      t.TopBreak,
		Series: series,
		Labels: map[string]string{"x": t.TopBreak, "y": yLabel},
	}
}

// NumericSummary is per-category summary stats for a numeric variable.
type NumericSummary struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	Std      float64 `json:"std"`
}

// NumericTable groups a numeric variable by a prepared top-break and
// reports count/mean/median/std per category plus a shared-edge histogram.
type NumericTable struct {
	TopBreak  string           `json:"topbreak"`
	Variable  string           `json:"variable"`
	Summaries []NumericSummary `json:"summaries"`
	Chart     *Chart           `json:"chart"`
	N         int              `json:"n"`
}

// NumericCrosstab builds a numeric summary table. Bins controls the
// histogram resolution.
func NumericCrosstab(rows []model.RawSubmission, topbreak, variable string, opts SeriesOptions, bins int) (*NumericTable, error) {
	if bins <= 0 {
		bins = 10
	}
	top := PrepareTopBreak(rows, topbreak, opts)

	grouped := make(map[string][]float64)
	var order []string
	var all []float64
	for i, row := range rows {
		t := top[i]
		if t == droppedSentinel {
			continue
		}
		v, err := strconv.ParseFloat(cell(row, variable), 64)
		if err != nil {
			continue
		}
		if _, ok := grouped[t]; !ok {
			order = append(order, t)
		}
		grouped[t] = append(grouped[t], v)
		all = append(all, v)
	}

	if len(all) == 0 {
		return nil, eris.New("analysis: no numeric values available for the selected fields")
	}

	out := &NumericTable{TopBreak: topbreak, Variable: variable, N: len(all)}
	meanSeries := ChartSeries{Name: "mean"}
	for _, cat := range order {
		vals := grouped[cat]
		s := summarize(cat, vals)
		out.Summaries = append(out.Summaries, s)
		meanSeries.Data = append(meanSeries.Data, ChartPoint{X: cat, Y: s.Mean, Error: s.Std})
	}

	out.Chart = &Chart{
		Kind:      "grouped_bar",
		X:         topbreak,
		Series:    []ChartSeries{meanSeries},
		Labels:    map[string]string{"x": topbreak, "y": "Mean " + variable},
		Histogram: histogram(order, grouped, all, bins, topbreak),
	}
	return out, nil
}

func summarize(category string, vals []float64) NumericSummary {
	n := len(vals)
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range vals {
		sq += (v - mean) * (v - mean)
	}
	std := 0.0
	if n > 1 {
		std = math.Sqrt(sq / float64(n-1))
	}

	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return NumericSummary{Category: category, Count: n, Mean: mean, Median: median, Std: std}
}

// histogram bins every group against shared equal-width edges over the full
// value range.
func histogram(order []string, grouped map[string][]float64, all []float64, bins int, topbreak string) *Chart {
	lo, hi := all[0], all[0]
	for _, v := range all {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		hi = lo + 1
	}
	width := (hi - lo) / float64(bins)

	labels := make([]string, bins)
	for i := range labels {
		labels[i] = fmt.Sprintf("%.1f-%.1f", lo+float64(i)*width, lo+float64(i+1)*width)
	}

	var series []ChartSeries
	for _, cat := range order {
		counts := make([]int, bins)
		for _, v := range grouped[cat] {
			idx := int((v - lo) / width)
			if idx >= bins {
				idx = bins - 1
			}
			counts[idx]++
		}
		points := make([]ChartPoint, bins)
		for i, c := range counts {
			points[i] = ChartPoint{X: labels[i], Y: float64(c)}
		}
		series = append(series, ChartSeries{Name: cat, Data: points})
	}

	return &Chart{
		Kind:   "hist",
		X:      "value_bin",
		Series: series,
		Labels: map[string]string{"x": "Value bin", "y": "Count"},
	}
}

// Distribution is the single-variable fallback when no top-break is given.
type Distribution struct {
	Variable   string    `json:"variable"`
	Categories []string  `json:"categories"`
	Counts     []int     `json:"counts"`
	Percents   []float64 `json:"percents"`
	N          int       `json:"n"`
}

// Distribute counts one categorical variable.
func Distribute(rows []model.RawSubmission, variable string, opts SeriesOptions) (*Distribution, error) {
	prepared := PrepareCategorical(columnValues(rows, variable), opts)

	var cats []string
	counts := make(map[string]int)
	total := 0
	for _, v := range prepared {
		if v == droppedSentinel {
			continue
		}
		if _, ok := counts[v]; !ok {
			cats = append(cats, v)
		}
		counts[v]++
		total++
	}
	if total == 0 {
		return nil, eris.New("analysis: no records available for the selected variable")
	}

	d := &Distribution{Variable: variable, Categories: cats, N: total}
	for _, cat := range cats {
		d.Counts = append(d.Counts, counts[cat])
		d.Percents = append(d.Percents, round1(float64(counts[cat])/float64(total)*100))
	}
	return d, nil
}

// BarChart renders a distribution as a single count series.
func (d *Distribution) BarChart() *Chart {
	points := make([]ChartPoint, len(d.Categories))
	for i, cat := range d.Categories {
		points[i] = ChartPoint{X: cat, Y: float64(d.Counts[i])}
	}
	return &Chart{
		Kind:   "bar",
		X:      d.Variable,
		Series: []ChartSeries{{Name: "count", Data: points}},
		Labels: map[string]string{"x": d.Variable, "y": "Count"},
	}
}

// RenderText prints a crosstab as an aligned text table for the CLI.
func (t *Table) RenderText(stat Stat) string {
	matrix := t.Matrix(stat)
	var b strings.Builder

	fmt.Fprintf(&b, "%-28s", t.TopBreak)
	for _, v := range t.VarCategories {
		fmt.Fprintf(&b, "%16s", truncate(v, 15))
	}
	b.WriteByte('\n')

	for i, topCat := range t.TopCategories {
		fmt.Fprintf(&b, "%-28s", truncate(topCat, 27))
		for j := range t.VarCategories {
			if stat == StatCounts {
				fmt.Fprintf(&b, "%16d", int(matrix[i][j]))
			} else {
				fmt.Fprintf(&b, "%15.1f%%", matrix[i][j])
			}
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "n=%d\n", t.N)
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
