// Package ingest parses survey submission exports (CSV, XLSX) into raw rows
// and downloads hosted exports over HTTP or FTP.
package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// CSVOptions configures the CSV parser.
type CSVOptions struct {
	Delimiter  rune   // default ','
	LazyQuotes bool
	Charset    string // IANA name for legacy exports, e.g. "windows-1252"
}

// ReadCSV parses a CSV export into a header row and data rows. The first row
// is the header; a file with no rows at all is a hard error because nothing
// tabular can be mapped from it.
func ReadCSV(r io.Reader, opts CSVOptions) (header []string, rows [][]string, err error) {
	if opts.Charset != "" {
		enc, encErr := htmlindex.Get(opts.Charset)
		if encErr != nil {
			return nil, nil, eris.Wrapf(encErr, "csv: unknown charset %q", opts.Charset)
		}
		r = enc.NewDecoder().Reader(r)
	}

	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1 // tolerate ragged rows

	first := true
	for {
		record, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, nil, eris.Wrap(readErr, "csv: read row")
		}
		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}
		if first {
			header = record
			first = false
			continue
		}
		rows = append(rows, record)
	}

	if header == nil {
		return nil, nil, eris.New("csv: input has no header row")
	}
	return header, rows, nil
}

// readCSVFile opens and parses a CSV export from disk.
func readCSVFile(path string, opts CSVOptions) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadCSV(f, opts)
}
