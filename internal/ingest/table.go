package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Format is a supported upload file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat returns the format implied by a filename's extension.
func DetectFormat(name string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, true
	case ".xlsx":
		return FormatXLSX, true
	}
	return "", false
}

// Table is a parsed upload: the first non-empty row as header and the rest
// as data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of the header cell matching name after trimming
// and case folding, or -1.
func (t Table) Column(name string) int {
	for i, h := range t.Header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// ReadTable parses the file at path according to its extension.
func ReadTable(ctx context.Context, path string) (*Table, error) {
	format, ok := DetectFormat(path)
	if !ok {
		return nil, eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}

	var rows [][]string
	switch format {
	case FormatCSV:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "ingest: open csv")
		}
		defer f.Close() //nolint:errcheck

		rowCh, errCh := StreamCSV(ctx, f, CSVOptions{LazyQuotes: true, TrimSpace: true})
		for row := range rowCh {
			rows = append(rows, row)
		}
		if err := <-errCh; err != nil {
			return nil, err
		}
	case FormatXLSX:
		var err error
		if rows, err = ReadXLSX(path, XLSXOptions{}); err != nil {
			return nil, err
		}
	}

	t := &Table{}
	for i, row := range rows {
		if isBlank(row) {
			continue
		}
		t.Header = row
		t.Rows = rows[i+1:]
		break
	}
	return t, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
