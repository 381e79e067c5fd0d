// Package analysis builds banner tables (crosstabs) and summary charts over
// survey rows, mirroring the behavior of the dashboard's analysis backend.
package analysis

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/meridian-mel/fieldqc-cli/internal/model"
)

// FieldType classifies a survey column for analysis purposes.
type FieldType string

const (
	FieldNumeric     FieldType = "numeric"
	FieldCategorical FieldType = "categorical"
)

// numericRatioThreshold: a column is numeric when at least this share of its
// non-missing values parse as floats.
const numericRatioThreshold = 0.8

// Field describes one inferred survey column.
type Field struct {
	Name          string    `json:"name"`
	Type          FieldType `json:"type"`
	DistinctCount int       `json:"distinct_count"`
}

// CuratedTopBreaks are the analyst-preferred banner columns, listed first
// among candidates when present in the dataset.
var CuratedTopBreaks = []string{
	"a3_select_the_lga",
	"a3b_select_the_ward",
	"a7_sex",
	"a8_age",
	"c4_current_employment_status",
	"d2_type_of_enterprise",
	"e2_business_sector",
	"g3_member_of_mens_womens_or_youth_group",
	"h1_satisfaction_with_ogstep",
	"h2_trust_in_implementing_institutions",
}

// InferFields scans the rows and classifies every column. Column order is
// alphabetical so the schema is stable regardless of map iteration.
func InferFields(rows []model.RawSubmission) []Field {
	type stats struct {
		nonMissing int
		numeric    int
		distinct   map[string]struct{}
	}
	byName := make(map[string]*stats)

	for _, row := range rows {
		for name := range row {
			v := cell(row, name)
			if v == "" {
				continue
			}
			st := byName[name]
			if st == nil {
				st = &stats{distinct: make(map[string]struct{})}
				byName[name] = st
			}
			st.nonMissing++
			st.distinct[v] = struct{}{}
			if _, err := strconv.ParseFloat(v, 64); err == nil {
				st.numeric++
			}
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]Field, 0, len(names))
	for _, name := range names {
		st := byName[name]
		ft := FieldCategorical
		if st.nonMissing > 0 && float64(st.numeric)/float64(st.nonMissing) >= numericRatioThreshold {
			ft = FieldNumeric
		}
		fields = append(fields, Field{Name: name, Type: ft, DistinctCount: len(st.distinct)})
	}
	return fields
}

// TopBreakCandidates returns curated columns present in the fields, followed
// by the remaining low-cardinality categorical columns in sorted order.
func TopBreakCandidates(fields []Field) []string {
	available := make(map[string]Field, len(fields))
	for _, f := range fields {
		available[f.Name] = f
	}

	var out []string
	seen := make(map[string]bool)
	for _, name := range CuratedTopBreaks {
		if _, ok := available[name]; ok {
			out = append(out, name)
			seen[name] = true
		}
	}
	var auto []string
	for _, f := range fields {
		if f.Type == FieldCategorical && f.DistinctCount <= 30 && !seen[f.Name] {
			auto = append(auto, f.Name)
		}
	}
	sort.Strings(auto)
	return append(out, auto...)
}

// SeriesOptions configure categorical series preparation.
type SeriesOptions struct {
	Limit       int  // category cap; tail collapses into "Other"
	DropMissing bool // drop blanks instead of labelling them
	MinCount    int  // values rarer than this collapse into "Other (n<k)"
}

// DefaultSeriesOptions mirror the dashboard defaults.
func DefaultSeriesOptions() SeriesOptions {
	return SeriesOptions{Limit: 12, DropMissing: true, MinCount: 1}
}

const missingLabel = "Missing"

// droppedSentinel marks positions removed from a prepared series so paired
// series stay index-aligned.
const droppedSentinel = ""

// PrepareCategorical normalizes a value series for tabulation: blanks become
// Missing (or are dropped), rare values collapse, and the category count is
// capped. The result has the same length as the input; dropped positions
// hold the empty string.
func PrepareCategorical(values []string, opts SeriesOptions) []string {
	out := make([]string, len(values))
	counts := make(map[string]int)
	for i, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			if opts.DropMissing {
				out[i] = droppedSentinel
				continue
			}
			v = missingLabel
		}
		out[i] = v
		counts[v]++
	}

	if opts.MinCount > 1 {
		rareLabel := fmt.Sprintf("Other (n<%d)", opts.MinCount)
		collapsed := make(map[string]int)
		for i, v := range out {
			if v == droppedSentinel {
				continue
			}
			if counts[v] < opts.MinCount {
				out[i] = rareLabel
			}
			collapsed[out[i]]++
		}
		counts = collapsed
	}

	if opts.Limit > 0 && len(counts) > opts.Limit {
		keep := topCategories(counts, max(1, opts.Limit-1))
		for i, v := range out {
			if v == droppedSentinel {
				continue
			}
			if !keep[v] {
				out[i] = "Other"
			}
		}
	}
	return out
}

// topCategories returns the n most frequent labels (count desc, label asc).
func topCategories(counts map[string]int, n int) map[string]bool {
	type kv struct {
		label string
		count int
	}
	sorted := make([]kv, 0, len(counts))
	for label, count := range counts {
		sorted = append(sorted, kv{label, count})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].label < sorted[j].label
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	keep := make(map[string]bool, n)
	for _, item := range sorted[:n] {
		keep[item.label] = true
	}
	return keep
}

// ageBinEdges and ageBinLabels bin respondent age into the reporting ranges.
var (
	ageBinEdges  = []float64{24, 34, 44, 54}
	ageBinLabels = []string{"15-24", "25-34", "35-44", "45-54", "55+"}
)

// isAgeColumn reports whether a column holds respondent age.
func isAgeColumn(name string) bool {
	return name == "a8_age" || name == "age" || strings.HasSuffix(name, "_age")
}

// PrepareTopBreak prepares a top-break series, binning age-style numeric
// columns into labelled ranges before categorical preparation.
func PrepareTopBreak(rows []model.RawSubmission, column string, opts SeriesOptions) []string {
	values := columnValues(rows, column)
	if isAgeColumn(column) {
		for i, v := range values {
			if v == "" {
				continue
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				values[i] = ""
				continue
			}
			values[i] = binLabel(f)
		}
	}
	return PrepareCategorical(values, opts)
}

func binLabel(v float64) string {
	for i, edge := range ageBinEdges {
		if v <= edge {
			return ageBinLabels[i]
		}
	}
	return ageBinLabels[len(ageBinLabels)-1]
}

// columnValues extracts one column as trimmed strings, row order preserved.
func columnValues(rows []model.RawSubmission, column string) []string {
	values := make([]string, len(rows))
	for i, row := range rows {
		values[i] = cell(row, column)
	}
	return values
}

func cell(row model.RawSubmission, column string) string {
	return row.Text(column)
}
