package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-mel/fieldqc-cli/internal/model"
)

// MapRows converts tabular rows into raw submissions keyed by normalized
// header labels, preserving input order. Fully empty rows are skipped.
// Values stay strings; the engine's normalizer owns all typing.
func MapRows(header []string, rows [][]string) []model.RawSubmission {
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = normalizeHeader(h)
		if keys[i] == "" {
			keys[i] = fmt.Sprintf("column_%d", i+1)
		}
	}

	out := make([]model.RawSubmission, 0, len(rows))
	for _, row := range rows {
		raw := make(model.RawSubmission, len(keys))
		empty := true
		for i, key := range keys {
			if i >= len(row) {
				break
			}
			val := strings.TrimSpace(row[i])
			if val == "" {
				continue
			}
			raw[key] = val
			empty = false
		}
		if !empty {
			out = append(out, raw)
		}
	}
	return out
}

// normalizeHeader lowercases a header label and collapses separators to
// underscores, so "Submission Date" and "submission_date" map to one key.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '/', '.', ':':
			return '_'
		default:
			return r
		}
	}, h)
	for strings.Contains(h, "__") {
		h = strings.ReplaceAll(h, "__", "_")
	}
	return strings.Trim(h, "_")
}

// ReadSubmissions loads a CSV or XLSX export from disk and maps it into raw
// submissions. The format is chosen by file extension.
func ReadSubmissions(path string, csvOpts CSVOptions, xlsxOpts XLSXOptions) ([]model.RawSubmission, error) {
	var header []string
	var rows [][]string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		header, rows, err = readCSVFile(path, csvOpts)
	case ".xlsx":
		header, rows, err = ReadXLSX(path, xlsxOpts)
	default:
		return nil, eris.Errorf("ingest: unsupported input format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	subs := MapRows(header, rows)
	zap.L().Info("ingest: submissions loaded",
		zap.String("path", path),
		zap.Int("rows", len(subs)),
	)
	return subs, nil
}
